package bibliography

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// bibLexer tokenizes BibTeX/BibLaTeX sources. Text outside entries is junk
// and is elided. Values keep their brace structure so that name lists and
// protected words can be split later.
//
// Order matters: the first matching rule in a state wins.
var bibLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "CommentHead", Pattern: `@(?i:comment)\s*\{`, Action: lexer.Push("Braced")},
		// @type{key, opens a regular entry.
		{Name: "EntryHead", Pattern: `@[A-Za-z]+\s*[{(]\s*[^\s,={}()"#]+\s*,`, Action: lexer.Push("Body")},
		// @string{...}, @preamble{...} and field-less entries.
		{Name: "SpecialHead", Pattern: `@[A-Za-z]+\s*[{(]`, Action: lexer.Push("Body")},
		{Name: "Junk", Pattern: `@|[^@]+`},
	},
	"Body": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Close", Pattern: `[})]`, Action: lexer.Pop()},
		{Name: "Quote", Pattern: `"`, Action: lexer.Push("Quoted")},
		{Name: "BraceOpen", Pattern: `\{`, Action: lexer.Push("Braced")},
		{Name: "Punct", Pattern: `[=,#]`},
		{Name: "Ident", Pattern: `[^\s"#,=(){}]+`},
	},
	"Quoted": {
		{Name: "QuoteEnd", Pattern: `"`, Action: lexer.Pop()},
		{Name: "BraceOpen", Pattern: `\{`, Action: lexer.Push("Braced")},
		{Name: "QText", Pattern: `[^"{}]+`},
	},
	"Braced": {
		{Name: "BraceClose", Pattern: `\}`, Action: lexer.Pop()},
		{Name: "BraceOpen", Pattern: `\{`, Action: lexer.Push("Braced")},
		{Name: "Text", Pattern: `[^{}]+`},
	},
})

type bibFile struct {
	Items []*bibItem `@@*`
}

type bibItem struct {
	Comment *bibComment `  @@`
	Entry   *bibEntry   `| @@`
	Special *bibSpecial `| @@`
}

type bibComment struct {
	Head  string     `@CommentHead`
	Parts []*bibText `@@* BraceClose`
}

type bibEntry struct {
	Pos    lexer.Position
	Head   string      `@EntryHead`
	Fields []*bibField `( @@ ","? )* Close`
}

type bibField struct {
	Pos   lexer.Position
	Name  string    `@Ident "="`
	Value *bibValue `@@`
}

// bibValue is a "#"-concatenation of parts.
type bibValue struct {
	Parts []*bibPart `@@ ( "#" @@ )*`
}

type bibPart struct {
	Quoted *bibQuoted `  @@`
	Braced *bibBraced `| @@`
	Ident  *string    `| @Ident`
}

type bibQuoted struct {
	Parts []*bibText `Quote @@* QuoteEnd`
}

type bibBraced struct {
	Parts []*bibText `BraceOpen @@* BraceClose`
}

type bibText struct {
	Text   *string    `  @(Text | QText)`
	Braced *bibBraced `| @@`
}

// bibSpecial covers @string and @preamble bodies and entries without
// fields. Its atoms are interpreted in Go because their shape depends on
// the entry type.
type bibSpecial struct {
	Pos   lexer.Position
	Head  string     `@SpecialHead`
	Atoms []*bibAtom `@@* Close`
}

type bibAtom struct {
	Quoted *bibQuoted `  @@`
	Braced *bibBraced `| @@`
	Word   *string    `| @(Ident | "=" | "," | "#")`
}

var bibParser = participle.MustBuild[bibFile](
	participle.Lexer(bibLexer),
	participle.Elide("Whitespace", "Junk"),
)

// raw renders braced text with its inner braces kept. The outer delimiters
// are dropped.
func (b *bibBraced) raw() string {
	var sb strings.Builder
	writeTexts(&sb, b.Parts)
	return sb.String()
}

func (q *bibQuoted) raw() string {
	var sb strings.Builder
	writeTexts(&sb, q.Parts)
	return sb.String()
}

func writeTexts(sb *strings.Builder, parts []*bibText) {
	for _, p := range parts {
		switch {
		case p.Text != nil:
			sb.WriteString(*p.Text)
		case p.Braced != nil:
			sb.WriteByte('{')
			writeTexts(sb, p.Braced.Parts)
			sb.WriteByte('}')
		}
	}
}
