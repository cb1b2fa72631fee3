package style

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/c360studio/cargo-cite/bibliography"
	"github.com/c360studio/cargo-cite/citation"
)

const defaultTemplate = "default"

// Entry types that share a template with another type.
var typeAliases = map[string]string{
	"conference":   "inproceedings",
	"incollection": "inproceedings",
	"inbook":       "book",
	"mvbook":       "book",
	"collection":   "book",
}

var funcs = template.FuncMap{
	"sentence": sentence,
}

// Cleanup after template execution: empty optional parts leave stray
// separators behind.
var (
	cleanSpaceRe      = regexp.MustCompile(`\s+`)
	cleanSpacePunctRe = regexp.MustCompile(`\s+([,.;:])`)
	cleanCommaRe      = regexp.MustCompile(`,([.;:])`)
	cleanPeriodRe     = regexp.MustCompile(`([.?!])\.`)
	cleanEmptyParenRe = regexp.MustCompile(`\(\s*\)`)
)

// Diagnostic is a non-fatal problem found while rendering, such as a key
// missing from the bibliography.
type Diagnostic struct {
	Key     citation.Key
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("@%s: %s", d.Key, d.Message)
}

// entryData is what templates see.
type entryData struct {
	Index int
	Key   string
	Type  string

	Authors string
	Editors string

	Title     string
	Journal   string
	Booktitle string
	// Container is the journal, book or site the entry appeared in.
	Container string
	Publisher string
	Address   string
	Edition   string
	Volume    string
	Number    string
	Pages     string
	Year      string
	Month     string
	// Date is "Month Year", or whichever part is known.
	Date string
	DOI  string
	URL  string
	Note string
}

func newEntryData(e *bibliography.Entry, index int, names NameFormat) entryData {
	d := entryData{
		Index:     index,
		Key:       e.Key.String(),
		Type:      e.Type,
		Authors:   names.Format(e.Authors),
		Editors:   names.Format(e.Editors),
		Title:     e.Field("title"),
		Journal:   e.Field("journal"),
		Booktitle: e.Field("booktitle"),
		Publisher: firstOf(e, "publisher", "institution", "school", "organization"),
		Address:   e.Field("address"),
		Edition:   e.Field("edition"),
		Volume:    e.Field("volume"),
		Number:    firstOf(e, "number", "issue"),
		Pages:     e.Field("pages"),
		Year:      e.Year(),
		Month:     e.Month(),
		DOI:       e.Field("doi"),
		URL:       e.Field("url"),
		Note:      e.Field("note"),
	}
	d.Container = firstOf(e, "journal", "booktitle", "howpublished")
	d.Date = strings.TrimSpace(d.Month + " " + d.Year)
	return d
}

func firstOf(e *bibliography.Entry, fields ...string) string {
	for _, f := range fields {
		if v := e.Field(f); v != "" {
			return v
		}
	}
	return ""
}

// Format renders one entry. index is the entry's number in numeric styles.
func (s *Style) Format(e *bibliography.Entry, index int) (string, error) {
	data := newEntryData(e, index, s.Names)

	var sb strings.Builder
	if s.label != nil {
		if err := s.label.Execute(&sb, data); err != nil {
			return "", fmt.Errorf("render label for %s: %w", e.Key, err)
		}
	}
	if err := s.template(e.Type).Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s: %w", e.Key, err)
	}
	return cleanup(sb.String()), nil
}

func (s *Style) template(typ string) *template.Template {
	if alias, ok := typeAliases[typ]; ok {
		typ = alias
	}
	if tmpl, ok := s.templates[typ]; ok {
		return tmpl
	}
	return s.templates[defaultTemplate]
}

// Render formats every key in keys that the library knows, in ascending
// key order. Numeric styles number the found entries 1..n in that order,
// so one call must cover the whole batch. Missing keys are left out of the
// result and reported as diagnostics.
func Render(keys citation.KeySet, lib *bibliography.Library, st *Style) (citation.Map, []Diagnostic) {
	out := make(citation.Map, keys.Len())
	var diags []Diagnostic
	index := 0
	for _, key := range keys.Sorted() {
		entry, ok := lib.Get(key)
		if !ok {
			diags = append(diags, Diagnostic{Key: key, Message: "not found in bibliography"})
			continue
		}
		index++
		text, err := st.Format(entry, index)
		if err != nil {
			diags = append(diags, Diagnostic{Key: key, Message: err.Error()})
			continue
		}
		out[key] = text
	}
	return out, diags
}

// sentence ends s with a period unless it already ends in terminal
// punctuation.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	if strings.ContainsRune(".?!", r) {
		return s
	}
	return s + "."
}

func cleanup(s string) string {
	s = cleanSpaceRe.ReplaceAllString(s, " ")
	s = cleanEmptyParenRe.ReplaceAllString(s, "")
	s = cleanSpacePunctRe.ReplaceAllString(s, "$1")
	s = cleanCommaRe.ReplaceAllString(s, "$1")
	s = cleanPeriodRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
