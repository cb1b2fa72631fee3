package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c360studio/cargo-cite/citation"
)

// Document is a file split into alternating comment and code blocks.
// Concatenating every block's lines reproduces the source exactly until
// Cite is called.
type Document struct {
	filename string
	blocks   []Block
	keys     citation.KeySet

	// newline terminates every line; "\r\n" only when the whole source
	// used it.
	newline      string
	finalNewline bool
	perm         os.FileMode
}

// Parse builds a document from lines without terminators. The serialized
// form ends every line with "\n".
func Parse(lines []string, filename string) *Document {
	return parse(citation.DefaultPatterns(), lines, filename)
}

// ParseBytes builds a document from raw file content, remembering its line
// terminator and whether the last line was terminated.
func ParseBytes(data []byte, filename string) *Document {
	lines, newline, final := splitLines(string(data))
	d := parse(citation.DefaultPatterns(), lines, filename)
	d.newline = newline
	d.finalNewline = final
	return d
}

// Open reads and parses the file at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	d := ParseBytes(data, path)
	d.perm = info.Mode().Perm()
	return d, nil
}

// parse runs the two-state machine: the next line either continues the
// current block or, when its doc-comment status differs, closes it and
// opens a block of the other kind.
func parse(patterns *citation.Patterns, lines []string, filename string) *Document {
	d := &Document{
		filename:     filename,
		keys:         citation.NewKeySet(),
		newline:      "\n",
		finalNewline: true,
	}
	if len(lines) == 0 {
		return d
	}

	var current Block
	for _, line := range lines {
		comment := patterns.IsDocComment(line)
		if current == nil || (current.Kind() == KindComment) != comment {
			if current != nil {
				d.push(current)
			}
			current = d.open(patterns, comment)
		}
		current.Insert(line)
	}
	d.push(current)

	for _, b := range d.blocks {
		if c, ok := b.(*CommentBlock); ok {
			d.keys.Union(c.Keys())
		}
	}
	return d
}

// push finalizes b. A comment block made only of stale citation footnotes
// is empty after parsing and is dropped.
func (d *Document) push(b Block) {
	if b.Kind() == KindComment && b.Len() == 0 {
		return
	}
	d.blocks = append(d.blocks, b)
}

// open starts the next block. After an empty comment block was dropped the
// previous block has the wanted kind and is continued instead, so adjacent
// blocks never share a kind.
func (d *Document) open(patterns *citation.Patterns, comment bool) Block {
	if n := len(d.blocks); n > 0 && (d.blocks[n-1].Kind() == KindComment) == comment {
		last := d.blocks[n-1]
		d.blocks = d.blocks[:n-1]
		return last
	}
	if comment {
		return NewCommentBlock(patterns)
	}
	return NewCodeBlock()
}

func splitLines(text string) (lines []string, newline string, final bool) {
	newline = "\n"
	if text == "" {
		return nil, newline, true
	}
	final = strings.HasSuffix(text, "\n")
	lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	terminated := lines
	if !final {
		terminated = lines[:len(lines)-1]
	}
	if len(terminated) == 0 {
		return lines, newline, final
	}
	for _, l := range terminated {
		if !strings.HasSuffix(l, "\r") {
			return lines, newline, final
		}
	}
	for i := range terminated {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines, "\r\n", final
}

// Filename returns the path the document was read from.
func (d *Document) Filename() string { return d.filename }

// Blocks returns the blocks in file order.
func (d *Document) Blocks() []Block { return d.blocks }

// Keys returns the union of every comment block's keys.
func (d *Document) Keys() citation.KeySet { return d.keys }

// Cite appends footnotes to every comment block, in document order.
func (d *Document) Cite(citations citation.Map) error {
	for i, b := range d.blocks {
		if err := b.Cite(citations); err != nil {
			return fmt.Errorf("cite block %d of %s: %w", i, d.filename, err)
		}
	}
	return nil
}

// Lines returns every line of every block, in order.
func (d *Document) Lines() []string {
	var lines []string
	for _, b := range d.blocks {
		lines = append(lines, b.Lines()...)
	}
	return lines
}

// WriteTo writes the serialized document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var written int64
	lines := d.Lines()
	for i, line := range lines {
		if i < len(lines)-1 || d.finalNewline {
			line += d.newline
		}
		n, err := io.WriteString(w, line)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Bytes returns the serialized document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = d.WriteTo(&buf)
	return buf.Bytes()
}

// Save replaces the file the document was read from.
func (d *Document) Save() error {
	return d.SaveAs(d.filename)
}

// SaveAs atomically replaces path with the serialized document.
func (d *Document) SaveAs(path string) error {
	perm := d.perm
	if perm == 0 {
		perm = 0o644
	}
	if err := WriteFileAtomic(path, d.Bytes(), perm); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
