package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/cargo-cite/citation"
)

const simpleCitation = "Doe, John, and Jane Smith. “A Very Simple Title.” The Journal of Rust, May 2013."

func splitFixture(s string) []string {
	return strings.Split(strings.TrimPrefix(strings.TrimSuffix(s, "\n"), "\n"), "\n")
}

func TestParse_NoCites(t *testing.T) {
	lines := splitFixture(`
    /// This is a comment
    /// that spans multiple lines
    fn main() {
        color = v_color;
    };
`)
	doc := Parse(lines, "test.rs")

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, 2, blocks[0].Len())
	assert.Equal(t, 3, blocks[1].Len())

	comment, ok := blocks[0].(*CommentBlock)
	require.True(t, ok, "first block should be a comment")
	assert.Equal(t, 0, comment.Keys().Len())

	_, ok = blocks[1].(*CodeBlock)
	assert.True(t, ok, "second block should be code")
	assert.Equal(t, 0, doc.Keys().Len())
}

func TestParse_BasicCite(t *testing.T) {
	lines := splitFixture(`
    /// This is a comment
    /// that spans multiple lines
    /// And has a citation [^@simple]
    /// And another citation [^@another] that's not in the bib file
    /// And another footnote [^footnote] that's not a citation
    ///
    /// [^@simple]: Doe, John, and Jane Smith. “A Very Simple Title.” The Journal of Rust, May 2013
    fn main() {
        color = v_color;
    };
`)
	doc := Parse(lines, "test.rs")
	require.NoError(t, doc.Cite(citation.Map{"simple": simpleCitation}))

	comment, ok := doc.Blocks()[0].(*CommentBlock)
	require.True(t, ok)
	assert.Equal(t, 2, comment.Keys().Len())
	assert.Equal(t, 7, comment.Len())
	assert.Equal(t, "    /// [^@simple]: "+simpleCitation, comment.Lines()[6])
	assert.Equal(t, "    ///", comment.Lines()[5])
}

func TestParse_ExtraLine(t *testing.T) {
	lines := splitFixture(`
    /// This is a comment
    /// that spans multiple lines
    /// And has a citation [^@simple]
    /// And another footnote [^footnote] that's not a citation
    /// 
    /// [^footnote]: This is a footnote
    /// [^@simple]: Doe, John, and Jane Smith. “A Very Simple Title.” The Journal of Rust, May 2013
    fn main() {
        color = v_color;
    };
`)
	doc := Parse(lines, "test.rs")
	require.NoError(t, doc.Cite(citation.Map{"simple": simpleCitation}))

	comment, ok := doc.Blocks()[0].(*CommentBlock)
	require.True(t, ok)
	assert.Equal(t, 1, comment.Keys().Len())
	assert.Equal(t, 7, comment.Len())
	assert.Equal(t, "    /// [^footnote]: This is a footnote", comment.Lines()[5])
}

func TestParse_EmptyInput(t *testing.T) {
	doc := Parse(nil, "empty.rs")
	assert.Empty(t, doc.Blocks())
	assert.Equal(t, 0, doc.Keys().Len())
	assert.Empty(t, doc.Bytes())

	doc = ParseBytes(nil, "empty.rs")
	assert.Empty(t, doc.Blocks())
	assert.Empty(t, doc.Bytes())
}

func TestRoundTrip_NoCitations(t *testing.T) {
	inputs := map[string]string{
		"plain":           "fn main() {}\n",
		"doc and code":    "//! crate docs\n//!\nuse std::io;\n\n/// item\npub fn f() {}\n",
		"no final eol":    "/// a\nfn f() {}",
		"crlf":            "/// a\r\n/// b\r\nfn f() {}\r\n",
		"mixed endings":   "/// a\r\nfn f() {}\n",
		"blank lines":     "\n\n\n",
		"single newline":  "\n",
		"plain comments":  "// not a doc comment\n/* block */\n",
		"generic notes":   "/// text [^note]\n///\n/// [^note]: a footnote\n",
		"trailing spaces": "///   \n    ///\t\nfn f() {}   \n",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			doc := ParseBytes([]byte(input), "in.rs")
			assert.Equal(t, input, string(doc.Bytes()))
		})
	}
}

func TestRoundTrip_CiteWithEmptyMapIsIdentity(t *testing.T) {
	input := "/// uses [^@x]\n/// more\nfn f() {}\n"
	doc := ParseBytes([]byte(input), "in.rs")
	require.NoError(t, doc.Cite(citation.Map{}))
	assert.Equal(t, input, string(doc.Bytes()))
}

func TestCite_Example(t *testing.T) {
	doc := Parse([]string{"/// Uses [^@x]", "/// and [^@y]"}, "ex.rs")
	require.NoError(t, doc.Cite(citation.Map{"x": "X.", "y": "Y."}))

	assert.Equal(t, []string{
		"/// Uses [^@x]",
		"/// and [^@y]",
		"///",
		"/// [^@x]: X.",
		"/// [^@y]: Y.",
	}, doc.Lines())
}

func TestCite_Idempotent(t *testing.T) {
	input := `//! Crate docs citing [^@knuth84]
//!
//! More text.
use std::fmt;

    /// Item docs [^@b] and [^@a].
    /// Also [^@missing].
    pub fn f() {}
`
	citations := citation.Map{"a": "A.", "b": "B.", "knuth84": "Knuth, Donald. Literate Programming."}

	first := ParseBytes([]byte(input), "lib.rs")
	require.NoError(t, first.Cite(citations))
	once := first.Bytes()

	second := ParseBytes(once, "lib.rs")
	require.NoError(t, second.Cite(citations))
	assert.Equal(t, string(once), string(second.Bytes()))

	assert.Contains(t, string(once), "//! [^@knuth84]: Knuth, Donald. Literate Programming.\n")
	assert.Contains(t, string(once), "    /// Also [^@missing].\n    ///\n    /// [^@a]: A.\n    /// [^@b]: B.\n")
}

func TestCite_FootnoteLinesNotCountedAsKeys(t *testing.T) {
	doc := Parse([]string{
		"/// Only [^@real] is cited here.",
		"///",
		"/// [^@real]: old rendering",
		"/// [^@stale]: left over from an earlier run",
	}, "x.rs")

	comment := doc.Blocks()[0].(*CommentBlock)
	assert.Equal(t, []citation.Key{"real"}, comment.Keys().Sorted())
	assert.Equal(t, []string{"/// Only [^@real] is cited here.", "///"}, comment.Lines())
	assert.NotContains(t, strings.Join(doc.Lines(), "\n"), "stale")
}

func TestCite_SortedFootnotes(t *testing.T) {
	doc := Parse([]string{"/// first [^@b]", "/// second [^@a]"}, "x.rs")
	require.NoError(t, doc.Cite(citation.Map{"a": "A.", "b": "B."}))

	lines := doc.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, "/// [^@a]: A.", lines[3])
	assert.Equal(t, "/// [^@b]: B.", lines[4])
}

func TestCite_BlankLinePolicy(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		citations citation.Map
		want      []string
	}{
		{
			name:      "plain last line gets one blank",
			lines:     []string{"/// text [^@a]"},
			citations: citation.Map{"a": "A."},
			want:      []string{"/// text [^@a]", "///", "/// [^@a]: A."},
		},
		{
			name:      "generic footnote last line gets none",
			lines:     []string{"/// text [^@a] [^n]", "///", "/// [^n]: note"},
			citations: citation.Map{"a": "A."},
			want:      []string{"/// text [^@a] [^n]", "///", "/// [^n]: note", "/// [^@a]: A."},
		},
		{
			name:      "bare prefix last line gets none",
			lines:     []string{"  //! text [^@a]", "  //!"},
			citations: citation.Map{"a": "A."},
			want:      []string{"  //! text [^@a]", "  //!", "  //! [^@a]: A."},
		},
		{
			name:      "bare prefix with carriage return gets none",
			lines:     []string{"/// text [^@a]\r", "///\r"},
			citations: citation.Map{"a": "A."},
			want:      []string{"/// text [^@a]\r", "///\r", "/// [^@a]: A.\r"},
		},
		{
			name:      "nothing resolvable adds nothing",
			lines:     []string{"/// text [^@a]"},
			citations: citation.Map{"other": "O."},
			want:      []string{"/// text [^@a]"},
		},
		{
			name:      "missing keys are skipped",
			lines:     []string{"/// [^@a] [^@gone]"},
			citations: citation.Map{"a": "A."},
			want:      []string{"/// [^@a] [^@gone]", "///", "/// [^@a]: A."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.lines, "x.rs")
			require.NoError(t, doc.Cite(tt.citations))
			assert.Equal(t, tt.want, doc.Lines())
		})
	}
}

func TestCite_MixedLineEndings(t *testing.T) {
	input := "/// a [^@x]\r\n///\r\nfn f() {}\n"
	want := "/// a [^@x]\r\n///\r\n/// [^@x]: X.\r\nfn f() {}\n"

	doc := ParseBytes([]byte(input), "mixed.rs")
	require.NoError(t, doc.Cite(citation.Map{"x": "X."}))
	assert.Equal(t, want, string(doc.Bytes()))

	again := ParseBytes([]byte(want), "mixed.rs")
	require.NoError(t, again.Cite(citation.Map{"x": "X."}))
	assert.Equal(t, want, string(again.Bytes()))
}

func TestParse_BlockAlternation(t *testing.T) {
	lines := []string{
		"//! a",
		"//! b",
		"use x;",
		"/// c",
		"fn f() {}",
		"",
		"/// d",
		"    /// e",
	}
	doc := Parse(lines, "x.rs")

	blocks := doc.Blocks()
	require.Len(t, blocks, 5)
	for i := 1; i < len(blocks); i++ {
		assert.NotEqual(t, blocks[i-1].Kind(), blocks[i].Kind(), "blocks %d and %d share a kind", i-1, i)
	}
	assert.Equal(t, KindComment, blocks[0].Kind())
	assert.Equal(t, []int{2, 1, 1, 2, 2}, []int{blocks[0].Len(), blocks[1].Len(), blocks[2].Len(), blocks[3].Len(), blocks[4].Len()})
}

func TestParse_StaleFootnoteBlockIsDropped(t *testing.T) {
	lines := []string{
		"/// text [^@a]",
		"fn f() {}",
		"/// [^@a]: stale",
		"fn g() {}",
	}
	doc := Parse(lines, "x.rs")

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, KindComment, blocks[0].Kind())
	assert.Equal(t, KindCode, blocks[1].Kind())
	assert.Equal(t, []string{"fn f() {}", "fn g() {}"}, blocks[1].Lines())
}

func TestCite_ErrNoCommentPrefix(t *testing.T) {
	b := NewCommentBlock(nil)
	b.Insert("not a comment [^@a]")
	err := b.Cite(citation.Map{"a": "A."})
	assert.ErrorIs(t, err, ErrNoCommentPrefix)
}

func TestCodeBlock_Passthrough(t *testing.T) {
	b := NewCodeBlock()
	b.Insert("let s = \"[^@a]\";")
	require.NoError(t, b.Cite(citation.Map{"a": "A."}))
	assert.Nil(t, b.Keys())
	assert.Equal(t, []string{"let s = \"[^@a]\";"}, b.Lines())
}

func TestOpenSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("/// see [^@a]\npub fn f() {}\n"), 0o600))

	doc, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, doc.Cite(citation.Map{"a": "A."}))
	require.NoError(t, doc.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/// see [^@a]\n///\n/// [^@a]: A.\npub fn f() {}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.rs"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
