package bibtex

import (
	"encoding/json"
)

// Entry is one bibliographic record parsed from a `@type{key, ...}` block.
// Entries are read-only once Parse returns them.
type Entry struct {
	typ    string
	key    string
	fields map[string]string
}

// Type returns the lower-cased entry type, e.g. "article".
func (e Entry) Type() string { return e.typ }

// Key returns the citation key.
func (e Entry) Key() string { return e.key }

// Field returns the value stored under the lower-cased field name.
func (e Entry) Field(name string) (string, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Fields returns a copy of all fields of the entry.
func (e Entry) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

func (e Entry) Title() string  { return e.fields["title"] }
func (e Entry) Author() string { return e.fields["author"] }

// Year reports the year field; an empty value counts as absent.
func (e Entry) Year() (string, bool) { return e.nonEmpty("year") }

// DOI reports the doi field; an empty value counts as absent.
func (e Entry) DOI() (string, bool) { return e.nonEmpty("doi") }

func (e Entry) nonEmpty(name string) (string, bool) {
	v := e.fields[name]
	return v, v != ""
}

// Map flattens the entry into a single object: every field plus entryType
// and citationKey. title and author are always present, year and doi only
// when non-empty. Field names are lower-case, so they never collide with
// entryType and citationKey.
func (e Entry) Map() map[string]string {
	out := make(map[string]string, len(e.fields)+4)
	for k, v := range e.fields {
		out[k] = v
	}
	out["title"] = e.Title()
	out["author"] = e.Author()
	if _, ok := e.Year(); !ok {
		delete(out, "year")
	}
	if _, ok := e.DOI(); !ok {
		delete(out, "doi")
	}
	out["entryType"] = e.typ
	out["citationKey"] = e.key
	return out
}

// MarshalJSON encodes Map.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}
