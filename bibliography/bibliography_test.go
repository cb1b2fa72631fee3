package bibliography

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/cargo-cite/citation"
)

func TestLoad_Fixture(t *testing.T) {
	lib, err := Load(filepath.Join("testdata", "ref.bib"))
	require.NoError(t, err)

	assert.Equal(t, 3, lib.Len())
	assert.Equal(t, []citation.Key{"knuth84", "rustbook", "simple"}, lib.Keys())

	simple, ok := lib.Get("simple")
	require.True(t, ok)
	assert.Equal(t, "article", simple.Type)
	assert.Equal(t, "A Very Simple Title", simple.Field("title"))
	assert.Equal(t, "The Journal of Rust", simple.Field("journal"))
	assert.Equal(t, "2013", simple.Year())
	assert.Equal(t, "May", simple.Month())
	require.Len(t, simple.Authors, 2)
	assert.Equal(t, Person{Given: "John", Family: "Doe"}, simple.Authors[0])
	assert.Equal(t, Person{Given: "Jane", Family: "Smith"}, simple.Authors[1])

	knuth, ok := lib.Get("knuth84")
	require.True(t, ok)
	assert.Equal(t, "book", knuth.Type)
	assert.Equal(t, "Stanford, CA", knuth.Field("address"))
	assert.Equal(t, "1984", knuth.Year())
	require.Len(t, knuth.Authors, 1)
	assert.Equal(t, Person{Given: "Donald E.", Family: "Knuth"}, knuth.Authors[0])

	book, ok := lib.Get("rustbook")
	require.True(t, ok)
	assert.Equal(t, "online", book.Type)
	assert.Equal(t, "The Rust Programming Language", book.Field("title"))
	assert.Equal(t, "Rust Documentation", book.Field("journal"), "journaltitle answers to journal")
	assert.Equal(t, "2019", book.Year())
	assert.Equal(t, "August", book.Month())

	_, ok = lib.Get("missing")
	assert.False(t, ok)
}

func TestParse_Values(t *testing.T) {
	src := `
@string{pre = "Proceedings of "}
@string{conf = pre # {the {Rust} Workshop}, short = "RW"}
@inproceedings{talk,
  title     = "Borrowing " # {\emph{Safely}},
  booktitle = conf,
  series    = short # 24,
  month     = 3,
}
@misc{lonely}
`
	lib, err := Parse("inline.bib", []byte(src))
	require.NoError(t, err)

	talk, ok := lib.Get("talk")
	require.True(t, ok)
	assert.Equal(t, "Borrowing Safely", talk.Field("title"))
	assert.Equal(t, "Proceedings of the Rust Workshop", talk.Field("booktitle"))
	assert.Equal(t, "RW24", talk.Field("series"))
	assert.Equal(t, "March", talk.Month())

	lonely, ok := lib.Get("lonely")
	require.True(t, ok)
	assert.Equal(t, "misc", lonely.Type)
	assert.Empty(t, lonely.Fields)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr int
	}{
		{
			name:    "duplicate key",
			src:     "@misc{a, title={x}}\n@misc{a, title={y}}\n",
			wantErr: 1,
		},
		{
			name:    "undefined string",
			src:     "@misc{a, journal = nowhere}\n",
			wantErr: 1,
		},
		{
			name:    "every problem reported",
			src:     "@misc{a, journal = nowhere}\n@misc{b, title = {x}, title = {y}}\n@misc{a, title = {z}}\n",
			wantErr: 3,
		},
		{
			name:    "unclosed entry",
			src:     "@article{broken, title = {never closed\n",
			wantErr: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.bib", []byte(tt.src))
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Len(t, pe.Errs, tt.wantErr)
			assert.Equal(t, "bad.bib", pe.Path)
			assert.True(t, IsParseError(err))
			assert.False(t, IsIOError(err))
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.bib"))
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Empty(t *testing.T) {
	lib, err := Parse("empty.bib", []byte("% nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, lib.Len())
	assert.Empty(t, lib.Keys())
}

func TestParse_KeysAreNormalized(t *testing.T) {
	lib, err := Parse("nfc.bib", []byte("@misc{müller, title = {x}}\n"))
	require.NoError(t, err)
	_, ok := lib.Get(citation.NewKey("müller"))
	assert.True(t, ok)
}

func TestCleanLaTeX(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`M{\"u}ller`, "Müller"},
		{`\'{e}cole`, "école"},
		{`na\"{\i}ve`, "naïve"},
		{`Fran\c{c}ois`, "François"},
		{`Stra\ss e`, "Straße"},
		{`{\o}stergaard`, "østergaard"},
		{`A {GPU} Study`, "A GPU Study"},
		{`Fish \& Chips, 50\%`, "Fish & Chips, 50%"},
		{`\emph{Nice} title`, "Nice title"},
		{`Donald~E. Knuth`, "Donald E. Knuth"},
		{`The~Art of~Computer Programming`, "The Art of Computer Programming"},
		{`pages 1--10`, "pages 1–10"},
		{`yes---no`, "yes—no"},
		{"  spread\n   over\tlines ", "spread over lines"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLaTeX(tt.in))
		})
	}
}
