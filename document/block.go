// Package document splits a source file into alternating doc-comment and
// code blocks, appends rendered citation footnotes to comment blocks, and
// writes the result back.
package document

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/cargo-cite/citation"
)

// ErrNoCommentPrefix is returned when a comment block's first line carries
// no doc-comment marker. Parse never builds such a block.
var ErrNoCommentPrefix = errors.New("comment block without doc-comment prefix")

// Kind tags the two block variants.
type Kind int

const (
	KindCode Kind = iota
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindCode:
		return "code"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Block is a maximal run of lines of one kind. The variant set is closed:
// only *CommentBlock and *CodeBlock implement it.
type Block interface {
	Kind() Kind
	// Len returns the current line count.
	Len() int
	// Insert adds a raw line while parsing.
	Insert(line string)
	// Cite appends footnotes for the block's keys found in citations.
	Cite(citations citation.Map) error
	// Keys returns the keys referenced by the block, nil for code.
	Keys() citation.KeySet
	// Lines returns the block's lines without terminators.
	Lines() []string

	sealed()
}

// CommentBlock holds doc-comment lines and the keys cited inline in them.
type CommentBlock struct {
	patterns *citation.Patterns
	lines    []string
	keys     citation.KeySet
}

// NewCommentBlock creates an empty comment block using patterns.
func NewCommentBlock(patterns *citation.Patterns) *CommentBlock {
	if patterns == nil {
		patterns = citation.DefaultPatterns()
	}
	return &CommentBlock{
		patterns: patterns,
		keys:     citation.NewKeySet(),
	}
}

func (b *CommentBlock) sealed() {}

// Kind returns KindComment.
func (b *CommentBlock) Kind() Kind { return KindComment }

// Len returns the number of lines.
func (b *CommentBlock) Len() int { return len(b.lines) }

// Lines returns the block's lines.
func (b *CommentBlock) Lines() []string { return b.lines }

// Keys returns the cited keys.
func (b *CommentBlock) Keys() citation.KeySet { return b.keys }

// Insert appends line and records its inline keys. Citation footnote
// definitions are derived output from an earlier run: they are dropped so
// the next Cite regenerates them instead of duplicating them.
func (b *CommentBlock) Insert(line string) {
	if !b.patterns.HasInlineCite(line) {
		b.lines = append(b.lines, line)
		return
	}
	if b.patterns.IsCiteFootnote(line) {
		return
	}
	for _, key := range b.patterns.InlineCites(line) {
		slog.Debug("Citation found", "key", key)
		b.keys.Add(key)
	}
	b.lines = append(b.lines, line)
}

// Cite appends one footnote per resolvable key, in ascending key order,
// separated from the text by a bare comment line unless the block already
// ends in a footnote or a bare comment line. Keys missing from citations
// are skipped.
func (b *CommentBlock) Cite(citations citation.Map) error {
	if len(b.lines) == 0 {
		return nil
	}
	prefix, ok := b.patterns.DocPrefix(b.lines[0])
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoCommentPrefix, b.lines[0])
	}

	var footnotes []string
	for _, key := range b.keys.Sorted() {
		if text, ok := citations.Get(key); ok {
			footnotes = append(footnotes, citation.FormatFootnote(prefix, key, text))
		}
	}
	if len(footnotes) == 0 {
		return nil
	}

	// Lines of a mixed-ending file keep their "\r"; new lines copy the
	// ending of the line they follow.
	last := b.lines[len(b.lines)-1]
	eol := ""
	if strings.HasSuffix(last, "\r") {
		eol = "\r"
		last = strings.TrimSuffix(last, eol)
	}
	if !b.patterns.IsFootnote(last) && last != prefix {
		b.lines = append(b.lines, prefix+eol)
	}
	for _, f := range footnotes {
		b.lines = append(b.lines, f+eol)
	}
	return nil
}

// CodeBlock holds lines that pass through untouched.
type CodeBlock struct {
	lines []string
}

// NewCodeBlock creates an empty code block.
func NewCodeBlock() *CodeBlock {
	return &CodeBlock{}
}

func (b *CodeBlock) sealed() {}

// Kind returns KindCode.
func (b *CodeBlock) Kind() Kind { return KindCode }

// Len returns the number of lines.
func (b *CodeBlock) Len() int { return len(b.lines) }

// Lines returns the block's lines.
func (b *CodeBlock) Lines() []string { return b.lines }

// Keys returns nil; code is never scanned for keys.
func (b *CodeBlock) Keys() citation.KeySet { return nil }

// Insert appends line unchanged.
func (b *CodeBlock) Insert(line string) { b.lines = append(b.lines, line) }

// Cite does nothing.
func (b *CodeBlock) Cite(citation.Map) error { return nil }
