package bibtex

import "fmt"

// Codes carried by ParseError.
const (
	CodeMissingBrace      = "MISSING_BRACE"
	CodeMissingKey        = "MISSING_KEY"
	CodeMalformedField    = "MALFORMED_FIELD"
	CodeUnterminatedValue = "UNTERMINATED_VALUE"
	CodeUnterminatedEntry = "UNTERMINATED_ENTRY"
)

// ParseError reports why a bibliography was rejected. Entry is the 1-based
// number of the offending block, Key its citation key when already read.
type ParseError struct {
	Message string
	Code    string
	Entry   int
	Key     string
	Offset  int
	Line    int
}

func (e *ParseError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("bibtex: entry %d (%s), line %d: %s", e.Entry, e.Key, e.Line, e.Message)
	}
	return fmt.Sprintf("bibtex: entry %d, line %d: %s", e.Entry, e.Line, e.Message)
}
