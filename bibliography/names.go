package bibliography

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Person is one name from an author or editor list.
type Person struct {
	Given  string
	Prefix string // "von" part, e.g. "van der"
	Family string
	Suffix string // "Jr." part
	// Literal is set for names protected by braces, e.g. {World Health
	// Organization}; the other fields are empty.
	Literal string
}

// FamilyName returns the prefix and family name, e.g. "van Rossum".
func (p Person) FamilyName() string {
	if p.Literal != "" {
		return p.Literal
	}
	return strings.TrimSpace(p.Prefix + " " + p.Family)
}

// IsOthers reports whether p is the "others" marker of a truncated list.
func (p Person) IsOthers() bool {
	return p.Literal == "" && p.Given == "" && p.Prefix == "" && strings.EqualFold(p.Family, "others")
}

// Initials abbreviates the given names. Each initial is followed by
// period and initials are joined with sep; hyphenated names keep their
// hyphen: "Jean-Paul Marie" gives "J.-P. M." with ("." , " ").
func (p Person) Initials(period, sep string) string {
	var out []string
	for _, word := range strings.Fields(p.Given) {
		var parts []string
		for _, part := range strings.Split(word, "-") {
			r, _ := utf8.DecodeRuneInString(part)
			if r == utf8.RuneError {
				continue
			}
			parts = append(parts, string(r)+period)
		}
		if len(parts) > 0 {
			out = append(out, strings.Join(parts, "-"))
		}
	}
	return strings.Join(out, sep)
}

// ParseNames splits a raw BibTeX name list on "and" at brace depth zero and
// parses each name. Braces must still be present in raw.
func ParseNames(raw string) []Person {
	var people []Person
	for _, name := range splitWords(raw, isAnd) {
		if p, ok := parseName(name); ok {
			people = append(people, p)
		}
	}
	return people
}

// parseName handles the three BibTeX name forms:
//
//	First von Last
//	von Last, First
//	von Last, Jr, First
func parseName(raw string) (Person, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Person{}, false
	}
	if isWrapped(raw) {
		return Person{Literal: CleanLaTeX(raw)}, true
	}

	parts := splitCommas(raw)

	var p Person
	switch len(parts) {
	case 1:
		words := fields(parts[0])
		last := len(words) - 1
		start := last
		for i := 0; i < last; i++ {
			if isLowerWord(words[i]) {
				start = i
				break
			}
		}
		end := start
		for end < last && isLowerWord(words[end]) {
			end++
		}
		p.Given = strings.Join(words[:start], " ")
		p.Prefix = strings.Join(words[start:end], " ")
		p.Family = strings.Join(words[end:], " ")
	default:
		p.Prefix, p.Family = splitVon(fields(parts[0]))
		if len(parts) == 2 {
			p.Given = strings.TrimSpace(parts[1])
		} else {
			p.Suffix = strings.TrimSpace(parts[1])
			p.Given = strings.TrimSpace(strings.Join(parts[2:], ","))
		}
	}

	p.Given = CleanLaTeX(p.Given)
	p.Prefix = CleanLaTeX(p.Prefix)
	p.Family = CleanLaTeX(p.Family)
	p.Suffix = CleanLaTeX(p.Suffix)
	if p.Family == "" {
		p.Family, p.Given = p.Given, ""
	}
	return p, true
}

// splitVon separates leading lowercase words from the family name, keeping
// at least one word as family.
func splitVon(words []string) (prefix, family string) {
	end := 0
	for end < len(words)-1 && isLowerWord(words[end]) {
		end++
	}
	return strings.Join(words[:end], " "), strings.Join(words[end:], " ")
}

func isAnd(word string) bool {
	return strings.EqualFold(word, "and")
}

// splitWords splits raw into groups of whitespace-separated words at brace
// depth zero, breaking on every word sep accepts.
func splitWords(raw string, sep func(string) bool) []string {
	var groups []string
	var current []string
	for _, w := range fields(raw) {
		if sep(w) {
			groups = append(groups, strings.Join(current, " "))
			current = nil
			continue
		}
		current = append(current, w)
	}
	return append(groups, strings.Join(current, " "))
}

// fields splits on whitespace outside braces.
func fields(s string) []string {
	var out []string
	var sb strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '{':
			depth++
		case r == '}':
			depth--
		case unicode.IsSpace(r) && depth <= 0:
			if sb.Len() > 0 {
				out = append(out, sb.String())
				sb.Reset()
			}
			continue
		}
		sb.WriteRune(r)
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}

// splitCommas splits on commas outside braces.
func splitCommas(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth <= 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// isWrapped reports whether s is a single brace group.
func isWrapped(s string) bool {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// isLowerWord reports whether the first letter outside braces is
// lowercase, which marks a "von" word.
func isLowerWord(w string) bool {
	depth := 0
	for _, r := range w {
		switch {
		case r == '{':
			depth++
		case r == '}':
			depth--
		case depth == 0 && unicode.IsLetter(r):
			return unicode.IsLower(r)
		}
	}
	return false
}
