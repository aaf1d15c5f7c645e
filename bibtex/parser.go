// Package bibtex parses BibTeX bibliographies into ordered entries.
package bibtex

import (
	"fmt"
	"strings"
)

const (
	at     byte = '@'
	lbrace byte = '{'
	rbrace byte = '}'
	comma  byte = ','
	equal  byte = '='
	quote  byte = '"'
	concat byte = '#'
)

// Parse converts the text of a .bib file into entries in source order.
//
// Lines whose first non-blank character is '%' are ignored. @comment,
// @preamble and @string blocks are consumed without producing entries.
// Any malformed entry rejects the whole input with a *ParseError; empty
// input yields an empty slice. Parse keeps no state between calls.
func Parse(content string) ([]Entry, error) {
	p := &parser{orig: content, src: stripComments(content)}
	return p.parse()
}

type parser struct {
	orig  string
	src   string
	pos   int
	start int    // offset of the '@' of the current block
	entry int    // 1-based number of the current block
	key   string // citation key of the current block, once read
}

func (p *parser) parse() ([]Entry, error) {
	entries := []Entry{}
	for {
		i := strings.IndexByte(p.src[p.pos:], at)
		if i < 0 {
			return entries, nil
		}
		p.start = p.pos + i
		p.pos = p.start + 1
		p.key = ""

		p.skipSpace()
		typ := strings.ToLower(p.readWhile(isLetter))
		if typ == "" {
			// a stray '@' in text between entries
			continue
		}
		p.entry++
		p.skipSpace()
		if p.eof() || p.src[p.pos] != lbrace {
			return nil, p.fail(CodeMissingBrace, fmt.Sprintf("expected '{' after @%s", typ))
		}

		switch typ {
		case "comment", "preamble", "string":
			end := matchBrace(p.src, p.pos)
			if end < 0 {
				return nil, p.failAt(p.start, CodeUnterminatedEntry, fmt.Sprintf("@%s block is never closed", typ))
			}
			p.pos = end + 1
			p.entry--
			continue
		}

		p.pos++
		e, err := p.parseEntry(typ)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

func (p *parser) parseEntry(typ string) (Entry, error) {
	n := strings.IndexAny(p.src[p.pos:], ",}")
	if n < 0 {
		return Entry{}, p.unterminated()
	}
	key := strings.TrimSpace(p.src[p.pos : p.pos+n])
	if key == "" || strings.ContainsAny(key, "={\"") {
		return Entry{}, p.fail(CodeMissingKey, "missing citation key")
	}
	p.key = key
	p.pos += n

	e := Entry{typ: typ, key: key, fields: make(map[string]string)}
	for {
		p.skipSpace()
		if p.eof() {
			return Entry{}, p.unterminated()
		}
		switch p.src[p.pos] {
		case rbrace:
			p.pos++
			return e, nil
		case comma:
			p.pos++
			continue
		}

		name, value, err := p.parseField()
		if err != nil {
			return Entry{}, err
		}
		e.fields[name] = value

		p.skipSpace()
		if p.eof() {
			return Entry{}, p.unterminated()
		}
		switch p.src[p.pos] {
		case comma:
			p.pos++
		case rbrace:
			p.pos++
			return e, nil
		default:
			return Entry{}, p.fail(CodeMalformedField, fmt.Sprintf("expected ',' or '}' after field %q", name))
		}
	}
}

// parseField reads `name = value`, joining values concatenated with '#'.
func (p *parser) parseField() (string, string, error) {
	name := strings.ToLower(p.readWhile(isNameByte))
	if name == "" {
		return "", "", p.fail(CodeMalformedField, fmt.Sprintf("expected field name, found %q", p.src[p.pos]))
	}
	p.skipSpace()
	if p.eof() {
		return "", "", p.unterminated()
	}
	if p.src[p.pos] != equal {
		return "", "", p.fail(CodeMalformedField, fmt.Sprintf("expected '=' after field %q", name))
	}
	p.pos++

	var value strings.Builder
	for {
		p.skipSpace()
		part, err := p.readValue(name)
		if err != nil {
			return "", "", err
		}
		value.WriteString(part)
		p.skipSpace()
		if p.eof() || p.src[p.pos] != concat {
			return name, value.String(), nil
		}
		p.pos++
	}
}

func (p *parser) readValue(field string) (string, error) {
	if p.eof() {
		return "", p.unterminated()
	}
	switch p.src[p.pos] {
	case lbrace:
		end := matchBrace(p.src, p.pos)
		if end < 0 {
			return "", p.fail(CodeUnterminatedValue, fmt.Sprintf("value of field %q is never closed", field))
		}
		v := p.src[p.pos+1 : end]
		p.pos = end + 1
		return v, nil
	case quote:
		end := closingQuote(p.src, p.pos+1)
		if end < 0 {
			return "", p.fail(CodeUnterminatedValue, fmt.Sprintf("value of field %q is never closed", field))
		}
		v := p.src[p.pos+1 : end]
		p.pos = end + 1
		return v, nil
	}

	n := strings.IndexAny(p.src[p.pos:], ",}#")
	if n < 0 {
		return "", p.unterminated()
	}
	v := strings.TrimSpace(p.src[p.pos : p.pos+n])
	if v == "" {
		return "", p.fail(CodeMalformedField, fmt.Sprintf("missing value for field %q", field))
	}
	if strings.ContainsAny(v, "={\" \t\r\n") {
		return "", p.fail(CodeMalformedField, fmt.Sprintf("malformed value for field %q", field))
	}
	p.pos += n
	return v, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) readWhile(ok func(byte) bool) string {
	start := p.pos
	for p.pos < len(p.src) && ok(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) unterminated() *ParseError {
	return p.failAt(p.start, CodeUnterminatedEntry, "entry is never closed")
}

func (p *parser) fail(code, msg string) *ParseError {
	return p.failAt(p.pos, code, msg)
}

func (p *parser) failAt(pos int, code, msg string) *ParseError {
	if pos > len(p.src) {
		pos = len(p.src)
	}
	line := strings.Count(p.src[:pos], "\n") + 1
	col := pos - (strings.LastIndexByte(p.src[:pos], '\n') + 1)
	return &ParseError{
		Message: msg,
		Code:    code,
		Entry:   p.entry,
		Key:     p.key,
		Line:    line,
		Offset:  offsetOf(p.orig, line, col),
	}
}

// matchBrace returns the index of the '}' balancing the '{' at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case lbrace:
			depth++
		case rbrace:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closingQuote returns the index of the next unescaped '"' at or after from.
func closingQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return -1
}

// stripComments empties every line starting with '%'. Newlines are kept so
// line numbers stay valid.
func stripComments(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t\r\f\v"), "%") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// offsetOf maps a line and column of the stripped text back to a byte
// offset in the original. Stripped lines are empty, so columns agree.
func offsetOf(s string, line, col int) int {
	off := 0
	for l := 1; l < line; l++ {
		i := strings.IndexByte(s[off:], '\n')
		if i < 0 {
			return len(s)
		}
		off += i + 1
	}
	return off + col
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isNameByte(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '-' || c == '_'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
