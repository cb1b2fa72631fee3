package citation

import (
	"fmt"
	"regexp"
	"sync"
)

// Line patterns. Doc comments are "///" or "//!" after optional indentation.
const (
	// Inline marker: [^@key], key matched lazily up to the first "]".
	reInlineCite = `\[\^@(.*?)\]`

	// Doc-comment prefix, including the indentation before it.
	reDocComment = `^[ \t]*//[/!]`

	// Citation footnote definition: /// [^@key]:
	reCiteFootnote = `^[ \t]*//[/!]\s*\[\^@(.*?)\]:`

	// Any footnote definition: /// [^label]:
	reFootnote = `^[ \t]*//[/!]\s*\[\^.*\]:`
)

// Patterns is the compiled set of line recognisers. It holds no mutable
// state and may be shared freely.
type Patterns struct {
	inlineCite   *regexp.Regexp
	docComment   *regexp.Regexp
	citeFootnote *regexp.Regexp
	footnote     *regexp.Regexp
}

// DefaultPatterns returns the process-wide pattern set, compiled on first use.
var DefaultPatterns = sync.OnceValue(func() *Patterns {
	return &Patterns{
		inlineCite:   regexp.MustCompile(reInlineCite),
		docComment:   regexp.MustCompile(reDocComment),
		citeFootnote: regexp.MustCompile(reCiteFootnote),
		footnote:     regexp.MustCompile(reFootnote),
	}
})

// HasInlineCite reports whether line contains at least one inline marker.
func (p *Patterns) HasInlineCite(line string) bool {
	return p.inlineCite.MatchString(line)
}

// InlineCites returns the key of every inline marker in line, in order of
// appearance, duplicates included.
func (p *Patterns) InlineCites(line string) []Key {
	matches := p.inlineCite.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	keys := make([]Key, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, NewKey(m[1]))
	}
	return keys
}

// IsDocComment reports whether line starts with a doc-comment marker.
func (p *Patterns) IsDocComment(line string) bool {
	return p.docComment.MatchString(line)
}

// DocPrefix returns the indentation and marker that open line.
func (p *Patterns) DocPrefix(line string) (string, bool) {
	loc := p.docComment.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	return line[loc[0]:loc[1]], true
}

// IsCiteFootnote reports whether line is a rendered citation footnote
// definition such as "/// [^@key]: text".
func (p *Patterns) IsCiteFootnote(line string) bool {
	return p.citeFootnote.MatchString(line)
}

// IsFootnote reports whether line is any footnote definition.
func (p *Patterns) IsFootnote(line string) bool {
	return p.footnote.MatchString(line)
}

// Scan returns every inline key in text without classifying lines, so keys
// inside footnote definitions and non-doc comments are included.
func (p *Patterns) Scan(text string) []Key {
	return p.InlineCites(text)
}

// Scan runs DefaultPatterns().Scan.
func Scan(text string) []Key {
	return DefaultPatterns().Scan(text)
}

// FormatFootnote builds the footnote definition line for key under prefix.
func FormatFootnote(prefix string, key Key, text string) string {
	return fmt.Sprintf("%s [^@%s]: %s", prefix, key, text)
}
