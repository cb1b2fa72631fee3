// Package bibliography loads BibTeX and BibLaTeX files into an in-memory
// library keyed by citation key.
package bibliography

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/c360studio/cargo-cite/citation"
)

var (
	entryHeadRe   = regexp.MustCompile(`^@([A-Za-z]+)\s*[{(]\s*([^\s,={}()"#]+)\s*,$`)
	specialHeadRe = regexp.MustCompile(`^@([A-Za-z]+)`)
)

// Standard month macros.
var monthMacros = map[string]string{
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"may": "May", "jun": "June", "jul": "July", "aug": "August",
	"sep": "September", "oct": "October", "nov": "November", "dec": "December",
}

// BibLaTeX field names and the BibTeX names they also answer to.
var fieldAliases = map[string]string{
	"journaltitle": "journal",
	"location":     "address",
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// IOError reports that a bibliography file could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read bibliography %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed bibliography. It carries every problem
// found, not only the first.
type ParseError struct {
	Path string
	Errs []error
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("parse bibliography %s: %s", e.Path, strings.Join(msgs, "; "))
}

func (e *ParseError) Unwrap() []error {
	return e.Errs
}

// Entry is one bibliography record.
type Entry struct {
	Key citation.Key
	// Type is the lowercased entry type, e.g. "article".
	Type string
	// Fields maps lowercased field names to cleaned text.
	Fields map[string]string
	// Authors and Editors are parsed from the raw name lists.
	Authors []Person
	Editors []Person
}

// Field returns the named field, falling back to the BibTeX spelling of
// BibLaTeX field names.
func (e *Entry) Field(name string) string {
	name = strings.ToLower(name)
	if v, ok := e.Fields[name]; ok {
		return v
	}
	for biblatex, bibtex := range fieldAliases {
		if bibtex == name {
			return e.Fields[biblatex]
		}
	}
	return ""
}

// Year returns the year field, or the year part of a BibLaTeX date.
func (e *Entry) Year() string {
	if y := e.Field("year"); y != "" {
		return y
	}
	date := e.Field("date")
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}

// Month returns the full month name from the month field, or from a
// BibLaTeX date written as YYYY-MM.
func (e *Entry) Month() string {
	m := e.Field("month")
	if m == "" {
		date := e.Field("date")
		if len(date) < 7 || date[4] != '-' {
			return ""
		}
		m = date[5:7]
	}
	if full, ok := monthMacros[strings.ToLower(m)]; ok {
		return full
	}
	if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= 12 {
		return monthNames[n-1]
	}
	return m
}

// Library is a parsed bibliography.
type Library struct {
	entries map[citation.Key]*Entry
}

// Get returns the entry for key.
func (l *Library) Get(key citation.Key) (*Entry, bool) {
	e, ok := l.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (l *Library) Len() int {
	return len(l.entries)
}

// Keys returns every key in ascending order.
func (l *Library) Keys() []citation.Key {
	keys := make([]citation.Key, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Load reads and parses the bibliography at path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse parses BibTeX/BibLaTeX source. name is used in error messages.
func Parse(name string, data []byte) (*Library, error) {
	file, err := bibParser.ParseBytes(name, data)
	if err != nil {
		return nil, &ParseError{Path: name, Errs: []error{err}}
	}

	b := &builder{
		lib:     &Library{entries: make(map[citation.Key]*Entry)},
		macros:  make(map[string]string, len(monthMacros)),
		name:    name,
		defined: make(map[citation.Key]lexer.Position),
	}
	for k, v := range monthMacros {
		b.macros[k] = v
	}
	for _, item := range file.Items {
		switch {
		case item.Entry != nil:
			b.entry(item.Entry)
		case item.Special != nil:
			b.special(item.Special)
		}
	}
	if len(b.errs) > 0 {
		return nil, &ParseError{Path: name, Errs: b.errs}
	}
	return b.lib, nil
}

// builder turns the syntax tree into a Library, collecting every semantic
// error on the way.
type builder struct {
	lib     *Library
	macros  map[string]string
	name    string
	defined map[citation.Key]lexer.Position
	errs    []error
}

func (b *builder) errorf(pos lexer.Position, format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf("%d:%d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...)))
}

func (b *builder) entry(e *bibEntry) {
	m := entryHeadRe.FindStringSubmatch(strings.TrimSpace(e.Head))
	if m == nil {
		b.errorf(e.Pos, "malformed entry head %q", e.Head)
		return
	}

	raw := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		field := strings.ToLower(f.Name)
		if _, dup := raw[field]; dup {
			b.errorf(f.Pos, "entry %s: duplicate field %q", m[2], field)
			continue
		}
		value, err := b.value(f.Value)
		if err != nil {
			b.errorf(f.Pos, "entry %s: field %s: %v", m[2], field, err)
			continue
		}
		raw[field] = value
	}
	b.add(e.Pos, m[1], m[2], raw)
}

func (b *builder) add(pos lexer.Position, typ, key string, raw map[string]string) {
	k := citation.NewKey(key)
	if prev, dup := b.defined[k]; dup {
		b.errorf(pos, "duplicate key %q (first defined at line %d)", key, prev.Line)
		return
	}
	b.defined[k] = pos

	entry := &Entry{
		Key:    k,
		Type:   strings.ToLower(typ),
		Fields: make(map[string]string, len(raw)),
	}
	for field, value := range raw {
		switch field {
		case "author":
			entry.Authors = ParseNames(value)
		case "editor":
			entry.Editors = ParseNames(value)
		}
		entry.Fields[field] = CleanLaTeX(value)
	}
	b.lib.entries[k] = entry
}

// value concatenates the parts of a field value, expanding macros and
// keeping inner braces.
func (b *builder) value(v *bibValue) (string, error) {
	var sb strings.Builder
	for _, p := range v.Parts {
		switch {
		case p.Quoted != nil:
			sb.WriteString(p.Quoted.raw())
		case p.Braced != nil:
			sb.WriteString(p.Braced.raw())
		case p.Ident != nil:
			s, err := b.expand(*p.Ident)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}

func (b *builder) expand(ident string) (string, error) {
	if isDigits(ident) {
		return ident, nil
	}
	if s, ok := b.macros[strings.ToLower(ident)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("undefined string %q", ident)
}

func (b *builder) special(s *bibSpecial) {
	m := specialHeadRe.FindStringSubmatch(s.Head)
	if m == nil {
		b.errorf(s.Pos, "malformed entry head %q", s.Head)
		return
	}
	switch kind := strings.ToLower(m[1]); kind {
	case "preamble":
	case "string":
		b.stringDefs(s)
	default:
		// @type{key} declares an entry without fields.
		if len(s.Atoms) == 1 && s.Atoms[0].Word != nil && !isPunct(*s.Atoms[0].Word) {
			b.add(s.Pos, kind, *s.Atoms[0].Word, nil)
			return
		}
		b.errorf(s.Pos, "malformed @%s entry", kind)
	}
}

// stringDefs reads name = value definitions from an @string body.
func (b *builder) stringDefs(s *bibSpecial) {
	atoms := s.Atoms
	for len(atoms) > 0 {
		if len(atoms) < 3 || atoms[0].Word == nil || isPunct(*atoms[0].Word) ||
			atoms[1].Word == nil || *atoms[1].Word != "=" {
			b.errorf(s.Pos, "malformed @string definition")
			return
		}
		name := strings.ToLower(*atoms[0].Word)
		atoms = atoms[2:]

		var sb strings.Builder
		for len(atoms) > 0 {
			a := atoms[0]
			switch {
			case a.Quoted != nil:
				sb.WriteString(a.Quoted.raw())
			case a.Braced != nil:
				sb.WriteString(a.Braced.raw())
			case a.Word != nil && !isPunct(*a.Word):
				v, err := b.expand(*a.Word)
				if err != nil {
					b.errorf(s.Pos, "@string %s: %v", name, err)
					return
				}
				sb.WriteString(v)
			default:
				b.errorf(s.Pos, "@string %s: unexpected %q", name, *a.Word)
				return
			}
			atoms = atoms[1:]
			if len(atoms) == 0 || atoms[0].Word == nil || *atoms[0].Word != "#" {
				break
			}
			atoms = atoms[1:]
		}
		b.macros[name] = sb.String()

		if len(atoms) > 0 && atoms[0].Word != nil && *atoms[0].Word == "," {
			atoms = atoms[1:]
		}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPunct(s string) bool {
	return s == "=" || s == "," || s == "#"
}

// IsParseError reports whether err is a malformed-bibliography error.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsIOError reports whether err is a bibliography read failure.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
