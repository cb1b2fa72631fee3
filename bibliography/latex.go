package bibliography

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// \'e, \'{e}, {\'e}, \"\i; symbol accents take their letter directly.
	symbolAccentRe = regexp.MustCompile(`\\(['"^` + "`" + `~=.])\s*(?:\{\s*(\\[ij]|[A-Za-z])\s*\}|(\\[ij]|[A-Za-z]))`)
	// \c{c}, \v c; letter accents need a brace or a space.
	letterAccentRe = regexp.MustCompile(`\\([uvHckrd])(?:\s*\{\s*(\\[ij]|[A-Za-z])\s*\}|\s+(\\[ij]|[A-Za-z]))`)
	specialCharRe  = regexp.MustCompile(`\\(ss|ae|AE|oe|OE|aa|AA|o|O|l|L|i|j)(?:\{\}|\s+|\b)`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

var combiningMarks = map[string]rune{
	"'": '\u0301', "`": '\u0300', "^": '\u0302', `"`: '\u0308',
	"~": '\u0303', "=": '\u0304', ".": '\u0307', "u": '\u0306',
	"v": '\u030C', "H": '\u030B', "c": '\u0327', "k": '\u0328',
	"r": '\u030A', "d": '\u0323',
}

var specialChars = map[string]string{
	"ss": "ß", "ae": "æ", "AE": "Æ", "oe": "œ", "OE": "Œ",
	"aa": "å", "AA": "Å", "o": "ø", "O": "Ø", "l": "ł", "L": "Ł",
	"i": "ı", "j": "ȷ",
}

// CleanLaTeX turns a raw field value into plain text: accent commands
// become composed characters, escapes become their character, other
// commands keep only their arguments, braces are dropped, dashes and ties
// are converted and whitespace is collapsed. The result is NFC.
func CleanLaTeX(s string) string {
	if s == "" {
		return ""
	}
	s = replaceAccents(symbolAccentRe, s)
	s = replaceAccents(letterAccentRe, s)
	s = specialCharRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := specialCharRe.FindStringSubmatch(m)
		return specialChars[sub[1]]
	})

	var sb strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 >= len(runes) {
				continue
			}
			next := runes[i+1]
			if strings.ContainsRune(`&%$#_{}~\ `, next) {
				if next == '\\' || next == ' ' {
					sb.WriteRune(' ')
				} else {
					sb.WriteRune(next)
				}
				i++
				continue
			}
			// Drop the command name; its arguments stay.
			for i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
				i++
			}
		case '{', '}':
		case '~':
			sb.WriteRune(' ')
		case '-':
			switch {
			case i+2 < len(runes) && runes[i+1] == '-' && runes[i+2] == '-':
				sb.WriteRune('—')
				i += 2
			case i+1 < len(runes) && runes[i+1] == '-':
				sb.WriteRune('–')
				i++
			default:
				sb.WriteRune('-')
			}
		default:
			sb.WriteRune(r)
		}
	}

	out := spaceRe.ReplaceAllString(sb.String(), " ")
	return norm.NFC.String(strings.TrimSpace(out))
}

func replaceAccents(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		sub := re.FindStringSubmatch(m)
		letter := sub[2]
		if letter == "" {
			letter = sub[3]
		}
		switch letter {
		case `\i`:
			letter = "i"
		case `\j`:
			letter = "j"
		}
		return letter + string(combiningMarks[sub[1]])
	})
}
