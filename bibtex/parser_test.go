package bibtex

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

const smithEntry = `@article{smith2020ai,
  title = {A Study of {AI} Systems},
  author = {Smith, John and Doe, Jane},
  year = {2020},
  doi = {10.1234/example}
}`

func mustParse(t *testing.T, content string) []Entry {
	t.Helper()
	entries, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return entries
}

func TestParse_Example(t *testing.T) {
	entries := mustParse(t, smithEntry)
	if len(entries) != 1 {
		t.Fatalf("Parse() returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Type() != "article" {
		t.Errorf("Type() = %q, want article", e.Type())
	}
	if e.Key() != "smith2020ai" {
		t.Errorf("Key() = %q, want smith2020ai", e.Key())
	}
	want := map[string]string{
		"title":  "A Study of {AI} Systems",
		"author": "Smith, John and Doe, Jane",
		"year":   "2020",
		"doi":    "10.1234/example",
	}
	if got := e.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   \n\n", "% only a comment\n", "free text with no entries"} {
		entries, err := Parse(input)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", input, err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("Parse(%q) = %v, want empty non-nil slice", input, entries)
		}
	}
}

func TestParse_SourceOrder(t *testing.T) {
	input := `
@book{zeta, title = {Z}}
@Article{alpha, title = {A}}
@INPROCEEDINGS{mid, title = {M}}
Office hours @ 10am.
@ misc{spaced, title = {S}, year = 2021}
@
  techreport{wrapped}
`
	entries := mustParse(t, input)
	var keys, types []string
	for _, e := range entries {
		keys = append(keys, e.Key())
		types = append(types, e.Type())
	}
	if want := []string{"zeta", "alpha", "mid", "spaced", "wrapped"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if want := []string{"book", "article", "inproceedings", "misc", "techreport"}; !reflect.DeepEqual(types, want) {
		t.Errorf("types = %v, want %v", types, want)
	}
}

func TestParse_NestedBraces(t *testing.T) {
	entries := mustParse(t, `@misc{k, title = {The {Capitalized} Word}, note = {a {b {c}} d}}`)
	if got := entries[0].Title(); got != "The {Capitalized} Word" {
		t.Errorf("Title() = %q", got)
	}
	if got, _ := entries[0].Field("note"); got != "a {b {c}} d" {
		t.Errorf("note = %q", got)
	}
}

func TestParse_TrailingComma(t *testing.T) {
	with := mustParse(t, `@article{k, title = {T}, year = {2020},}`)
	without := mustParse(t, `@article{k, title = {T}, year = {2020}}`)
	if !reflect.DeepEqual(with, without) {
		t.Errorf("trailing comma changed result: %v vs %v", with, without)
	}
	if len(with[0].Fields()) != 2 {
		t.Errorf("Fields() = %v, want 2 fields", with[0].Fields())
	}
}

func TestParse_CommentLines(t *testing.T) {
	input := `% @article{fake, title = {Not real}}
@article{real,
  title = {Real},
  % year = {1999},
    %@book{also, fake}
  year = {2021}
}`
	entries := mustParse(t, input)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if y, _ := entries[0].Year(); y != "2021" {
		t.Errorf("Year() = %q, want 2021", y)
	}
}

func TestParse_QuotedEqualsBraced(t *testing.T) {
	quoted := mustParse(t, `@article{k, title = "Plain Title"}`)
	braced := mustParse(t, `@article{k, title = {Plain Title}}`)
	if !reflect.DeepEqual(quoted, braced) {
		t.Errorf("quoted %v != braced %v", quoted, braced)
	}
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
		want  string
	}{
		{"bare number", `@article{k, year = 2019}`, "year", "2019"},
		{"bare macro", `@article{k, month = jan,}`, "month", "jan"},
		{"escaped quote", `@article{k, title = "Say \"hi\""}`, "title", `Say \"hi\"`},
		{"latex kept", `@article{k, author = {Ren\'{e} M\"uller}}`, "author", `Ren\'{e} M\"uller`},
		{"concatenation", `@article{k, month = jan # " 1st"}`, "month", "jan 1st"},
		{"field name lower-cased", `@article{k, TiTlE = {X}}`, "title", "X"},
		{"hyphenated name", `@article{k, date-added = {2020-01-01}}`, "date-added", "2020-01-01"},
		{"later wins", `@article{k, note = {first}, note = {second}}`, "note", "second"},
		{"multiline", "@article{k, abstract = {line one\n  line two}}", "abstract", "line one\n  line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := mustParse(t, tt.input)
			got, ok := entries[0].Field(tt.field)
			if !ok || got != tt.want {
				t.Errorf("Field(%q) = %q, %v; want %q", tt.field, got, ok, tt.want)
			}
		})
	}
}

func TestParse_SkipsSpecialBlocks(t *testing.T) {
	input := `@string{acm = "ACM {Press}"}
@comment{ ignore @article{x, y} }
@preamble{"\newcommand{\noop}[1]{}"}
Implicit comment text.
@article{only, publisher = acm}
`
	entries := mustParse(t, input)
	if len(entries) != 1 || entries[0].Key() != "only" {
		t.Fatalf("entries = %v, want just 'only'", entries)
	}
	if got, _ := entries[0].Field("publisher"); got != "acm" {
		t.Errorf("publisher = %q, macros are not expanded", got)
	}
}

func TestParse_EntryWithoutFields(t *testing.T) {
	entries := mustParse(t, `@misc{lonely}`)
	if len(entries) != 1 || entries[0].Key() != "lonely" || len(entries[0].Fields()) != 0 {
		t.Errorf("entries = %v", entries)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		entry int
		line  int
	}{
		{"truncated entry", "@article{k,\n  title = {T},\n  year = {2020}\n", CodeUnterminatedEntry, 1, 1},
		{"truncated value", "@article{k,\n  title = {T\n", CodeUnterminatedValue, 1, 2},
		{"unterminated quote", `@article{k, title = "T}`, CodeUnterminatedValue, 1, 1},
		{"missing brace", "@article{a, title={x}}\n@article k, title={x}}", CodeMissingBrace, 2, 2},
		{"space after at, no brace", "@article{a}\n@ book b, title = {x}}", CodeMissingBrace, 2, 2},
		{"missing key", `@article{, title = {x}}`, CodeMissingKey, 1, 1},
		{"key swallowed by field", `@article{title = {x}}`, CodeMissingKey, 1, 1},
		{"missing equals", `@article{k, title {x}}`, CodeMalformedField, 1, 1},
		{"missing comma", "@article{k, title = {x}\n year = {2020}}", CodeMalformedField, 1, 2},
		{"next entry inside", "@article{a, title = {x},\n@article{b, title = {y}}", CodeMalformedField, 1, 2},
		{"empty bare value", `@article{k, year = , title = {x}}`, CodeMalformedField, 1, 1},
		{"unclosed comment block", "@comment{ never", CodeUnterminatedEntry, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse() = %v, want error", entries)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if pe.Code != tt.code {
				t.Errorf("Code = %s, want %s (%v)", pe.Code, tt.code, err)
			}
			if pe.Entry != tt.entry {
				t.Errorf("Entry = %d, want %d", pe.Entry, tt.entry)
			}
			if pe.Line != tt.line {
				t.Errorf("Line = %d, want %d", pe.Line, tt.line)
			}
			if entries != nil {
				t.Errorf("entries = %v, want nil on error", entries)
			}
		})
	}
}

func TestParseError_Message(t *testing.T) {
	_, err := Parse("@article{smith,\n title = {x}")
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"entry 1", "smith", "never closed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestParseError_OffsetSkipsComments(t *testing.T) {
	input := "% comment\n@article k}"
	_, err := Parse(input)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse() error = %v", err)
	}
	if pe.Line != 2 {
		t.Errorf("Line = %d, want 2", pe.Line)
	}
	if input[pe.Offset] != 'k' {
		t.Errorf("Offset %d points at %q, want 'k'", pe.Offset, input[pe.Offset])
	}
}

func TestEntry_JSON(t *testing.T) {
	entries := mustParse(t, smithEntry+"\n@misc{bare, note = {n}, year = {}}")
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got []map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := []map[string]string{
		{
			"entryType":   "article",
			"citationKey": "smith2020ai",
			"title":       "A Study of {AI} Systems",
			"author":      "Smith, John and Doe, Jane",
			"year":        "2020",
			"doi":         "10.1234/example",
		},
		{
			"entryType":   "misc",
			"citationKey": "bare",
			"title":       "",
			"author":      "",
			"note":        "n",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("JSON = %v, want %v", got, want)
	}
	for i, e := range entries {
		if m := e.Map(); !reflect.DeepEqual(m, want[i]) {
			t.Errorf("Map() = %v, want %v", m, want[i])
		}
	}
	entries[0].Map()["title"] = "changed"
	if entries[0].Title() != "A Study of {AI} Systems" {
		t.Error("mutating Map() leaked into the entry")
	}
}

func TestEntry_FieldsIsCopy(t *testing.T) {
	entries := mustParse(t, smithEntry)
	f := entries[0].Fields()
	f["title"] = "changed"
	if entries[0].Title() != "A Study of {AI} Systems" {
		t.Error("mutating Fields() leaked into the entry")
	}
}

func TestParse_Concurrent(t *testing.T) {
	inputs := []string{smithEntry, `@book{b, title = {B}}`, ""}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(in string) {
			defer wg.Done()
			if _, err := Parse(in); err != nil {
				t.Errorf("Parse() error = %v", err)
			}
		}(inputs[i%len(inputs)])
	}
	wg.Wait()
}
