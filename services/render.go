package services

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"strings"

	"pub-viewer/bibtex"
)

const undatedGroup = "n.d."

var fragmentTemplate = template.Must(template.New("fragment").Parse(`<div id="publications-viewer" class="publications-viewer-container">
  <div class="controls">
    <input type="text" class="search-input" placeholder="Search publications...">
  </div>
  {{- range .Groups}}
  <div class="year-group" data-year="{{.Year}}">
    <div class="year-header">{{.Year}} <span class="year-count">({{len .Cards}})</span></div>
    <div class="publications-list">
    {{- range .Cards}}
      <div class="publication-card" data-key="{{.Key}}" data-type="{{.Type}}" data-citation="{{.Citation}}">
        <div class="publication-title">{{.Title}}</div>
        {{- if .Authors}}
        <div class="publication-authors">{{.Authors}}</div>
        {{- end}}
        <div class="publication-meta">
          <div class="meta-left">{{if .Venue}}<span>{{.Venue}}</span>{{end}}<span>{{.Type}}</span></div>
          {{- if .Link}}
          <a class="publication-link" href="{{.Link}}" target="_blank" rel="noopener noreferrer">DOI</a>
          {{- end}}
        </div>
      </div>
    {{- end}}
    </div>
  </div>
  {{- else}}
  <p class="publications-empty">No publications.</p>
  {{- end}}
  <script>window.__INITIAL_DATA__ = {{.Data}};</script>
</div>
`))

type fragmentData struct {
	Groups []yearGroup
	Data   []bibtex.Entry
}

type yearGroup struct {
	Year  string
	Cards []card
}

type card struct {
	Key      string
	Type     string
	Title    string
	Authors  string
	Venue    string
	Citation string
	Link     string
}

// RenderFragment writes the embeddable HTML for entries, grouped by year.
// All text is escaped by html/template.
func RenderFragment(w io.Writer, entries []bibtex.Entry) error {
	if entries == nil {
		entries = []bibtex.Entry{}
	}
	data := fragmentData{Groups: groupByYear(entries), Data: entries}
	if err := fragmentTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render fragment: %w", err)
	}
	return nil
}

// groupByYear orders groups by numeric year descending, then other year
// literals, then undated entries. Entries keep source order in a group.
func groupByYear(entries []bibtex.Entry) []yearGroup {
	index := map[string]int{}
	var groups []yearGroup
	for _, e := range entries {
		year, ok := e.Year()
		year = strings.TrimSpace(year)
		if !ok || year == "" {
			year = undatedGroup
		}
		i, seen := index[year]
		if !seen {
			i = len(groups)
			index[year] = i
			groups = append(groups, yearGroup{Year: year})
		}
		groups[i].Cards = append(groups[i].Cards, newCard(e))
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return yearBefore(groups[i].Year, groups[j].Year)
	})
	return groups
}

func yearBefore(a, b string) bool {
	ra, rb := yearRank(a), yearRank(b)
	if ra != rb {
		return ra < rb
	}
	if ra == 0 {
		na, _ := strconv.Atoi(a)
		nb, _ := strconv.Atoi(b)
		return na > nb
	}
	return a < b
}

func yearRank(year string) int {
	switch _, err := strconv.Atoi(year); {
	case year == undatedGroup:
		return 2
	case err != nil:
		return 1
	}
	return 0
}

func newCard(e bibtex.Entry) card {
	c := card{
		Key:      e.Key(),
		Type:     e.Type(),
		Title:    DisplayText(e.Title()),
		Authors:  strings.Join(SplitAuthors(e.Author()), ", "),
		Venue:    venue(e),
		Citation: FormatReference(e),
	}
	if c.Title == "" {
		c.Title = "Untitled"
	}
	if doi, ok := e.DOI(); ok {
		c.Link = DOILink(doi)
	}
	return c
}

// FormatReference renders an entry into a compact reference string.
func FormatReference(e bibtex.Entry) string {
	authors := strings.Join(SplitAuthors(e.Author()), ", ")
	if authors == "" {
		authors = "Unknown Authors"
	}
	year := undatedGroup
	if y, ok := e.Year(); ok {
		year = DisplayText(y)
	}
	title := DisplayText(e.Title())
	if title == "" {
		title = "Untitled"
	}
	var tail string
	if doi, ok := e.DOI(); ok {
		tail = fmt.Sprintf(" doi:%s", strings.TrimSpace(doi))
	}
	if v := venue(e); v != "" {
		return fmt.Sprintf("%s (%s). %s. %s.%s", authors, year, title, v, tail)
	}
	return fmt.Sprintf("%s (%s). %s.%s", authors, year, title, tail)
}

// SplitAuthors splits a BibTeX author list on the literal " and ".
func SplitAuthors(author string) []string {
	var out []string
	for _, a := range strings.Split(DisplayText(author), " and ") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// DisplayText drops grouping braces and collapses whitespace. LaTeX
// escapes are left as they are.
func DisplayText(s string) string {
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// DOILink builds a resolver URL for a DOI value.
func DOILink(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return doi
	}
	if strings.HasPrefix(lower, "doi:") {
		doi = strings.TrimSpace(doi[len("doi:"):])
	}
	return "https://doi.org/" + doi
}

func venue(e bibtex.Entry) string {
	for _, name := range []string{"journal", "booktitle", "publisher", "school", "institution"} {
		if v, ok := e.Field(name); ok {
			if v = DisplayText(v); v != "" {
				return v
			}
		}
	}
	return ""
}
