package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/cargo-cite/bibliography"
	"github.com/c360studio/cargo-cite/config"
	"github.com/c360studio/cargo-cite/style"
)

const testBib = `@misc{x, author = {Xu, Xia}, title = {Ex}, year = 2001}
@misc{y, author = {Yang, Yi}, title = {Why}, year = 2002}
`

const testSource = "/// See [^@y] and [^@nope]\npub fn f() {}\n\n/// Also [^@x]\npub fn g() {}\n"

// setupCrate creates a one-package crate in a fresh working directory,
// isolated from any user or project config.
func setupCrate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(dir)

	write(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"demo\"\nversion = \"0.1.0\"\n")
	write(t, filepath.Join(dir, "refs.bib"), testBib)
	write(t, filepath.Join(dir, "src", "lib.rs"), testSource)
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCite_Manifest(t *testing.T) {
	dir := setupCrate(t)
	lib := filepath.Join(dir, "src", "lib.rs")

	_, err := execute(t, "cite", "-b", "refs.bib", "-s", "ieee")
	require.NoError(t, err)

	text := read(t, lib)
	assert.Contains(t, text, "/// [^@y]: [2] Y. Yang")
	assert.Contains(t, text, "/// [^@x]: [1] X. Xu")
	assert.NotContains(t, text, "[^@nope]:")

	out, err := execute(t, "--check", "-b", "refs.bib", "-s", "ieee")
	require.NoError(t, err, "second run is a no-op")
	assert.Empty(t, out)
	assert.Equal(t, text, read(t, lib))
}

func TestCite_CheckReportsChanges(t *testing.T) {
	dir := setupCrate(t)
	lib := filepath.Join(dir, "src", "lib.rs")

	out, err := execute(t, "--check", "-b", "refs.bib")
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "lib.rs")
	assert.Equal(t, testSource, read(t, lib), "check mode writes nothing")
}

func TestCite_Files(t *testing.T) {
	dir := setupCrate(t)
	write(t, filepath.Join(dir, "target", "debug", "gen.rs"), "/// [^@x]\nfn gen() {}\n")

	_, err := execute(t, "-b", "refs.bib", "-f", ".")
	require.NoError(t, err)

	assert.Contains(t, read(t, filepath.Join(dir, "src", "lib.rs")), "/// [^@x]: Xu, Xia.")
	assert.Equal(t, "/// [^@x]\nfn gen() {}\n", read(t, filepath.Join(dir, "target", "debug", "gen.rs")))
}

func TestCite_ProjectConfig(t *testing.T) {
	dir := setupCrate(t)
	write(t, filepath.Join(dir, "cite.yaml"), "bibliography: refs.bib\nstyle: vancouver\n")

	_, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, read(t, filepath.Join(dir, "src", "lib.rs")), "/// [^@x]: 1. Xu X.")
}

func TestCite_MetricsFile(t *testing.T) {
	dir := setupCrate(t)
	metrics := filepath.Join(dir, "cite.prom")

	_, err := execute(t, "-b", "refs.bib", "--metrics-file", metrics)
	require.NoError(t, err)

	text := read(t, metrics)
	assert.Contains(t, text, "cargo_cite_files_scanned_total 1")
	assert.Contains(t, text, "cargo_cite_keys_missing_total 1")
}

func TestCite_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, err error)
	}{
		{
			name:  "no bibliography",
			args:  nil,
			check: func(t *testing.T, err error) { assert.ErrorContains(t, err, "no bibliography") },
		},
		{
			name:  "unknown style",
			args:  []string{"-b", "refs.bib", "-s", "klingon"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, style.ErrUnknownStyle) },
		},
		{
			name:  "dependent style",
			args:  []string{"-b", "refs.bib", "-s", "nature"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, style.ErrDependentStyle) },
		},
		{
			name:  "missing bibliography file",
			args:  []string{"-b", "missing.bib"},
			check: func(t *testing.T, err error) { assert.True(t, bibliography.IsIOError(err)) },
		},
		{
			name:  "manifest and file",
			args:  []string{"-b", "refs.bib", "-m", "Cargo.toml", "-f", "src"},
			check: func(t *testing.T, err error) { assert.ErrorContains(t, err, "none of the others can be") },
		},
		{
			name:  "unexpected argument",
			args:  []string{"build"},
			check: func(t *testing.T, err error) { assert.ErrorContains(t, err, "unexpected arguments") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupCrate(t)
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, testSource, read(t, filepath.Join(dir, "src", "lib.rs")))
		})
	}
}

func TestCite_MalformedBibliographyWritesNothing(t *testing.T) {
	dir := setupCrate(t)
	write(t, filepath.Join(dir, "refs.bib"), testBib+"@misc{x, title = {Again}}\n")

	_, err := execute(t, "-b", "refs.bib")
	assert.True(t, bibliography.IsParseError(err))
	assert.Equal(t, testSource, read(t, filepath.Join(dir, "src", "lib.rs")))
}

func TestLoadConfig_KeepGoingFlag(t *testing.T) {
	tests := []struct {
		name    string
		project string
		args    []string
		want    bool
	}{
		{name: "default", args: nil, want: false},
		{name: "from project config", project: "keep_going: true\n", want: true},
		{name: "flag turns it on", args: []string{"--keep-going"}, want: true},
		{name: "flag turns project value off", project: "keep_going: true\n", args: []string{"--keep-going=false"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupCrate(t)
			if tt.project != "" {
				write(t, filepath.Join(dir, config.ProjectConfigFile), tt.project)
			}

			f := &flags{}
			cmd := &cobra.Command{}
			cmd.Flags().BoolVar(&f.keepGoing, "keep-going", false, "")
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg, err := loadConfig(cmd, f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.ShouldKeepGoing())
		})
	}
}

func TestKeys(t *testing.T) {
	setupCrate(t)

	out, err := execute(t, "keys", "-b", "refs.bib")
	require.NoError(t, err)
	assert.Equal(t, "nope\t(missing)\nx\ny\n", out)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cargo-cite version "+Version+" (build: "+BuildTime+")\n", out)
}

func TestStyles(t *testing.T) {
	out, err := execute(t, "styles")
	require.NoError(t, err)
	assert.Contains(t, out, "ieee")
	assert.Contains(t, out, "mla")
	assert.Contains(t, out, "(alias of vancouver, not supported)")
	assert.Regexp(t, `(?m)^nature\s+\(alias of vancouver, not supported\)$`, out)
	assert.Regexp(t, `(?m)^ieee\s+numeric\s+\S`, out)
}

func TestOnChange_ReloadsBibliography(t *testing.T) {
	dir := setupCrate(t)
	bib := filepath.Join(dir, "refs.bib")
	lib := filepath.Join(dir, "src", "lib.rs")

	a, err := newApp(rootCmd(), &flags{bibliography: bib, quiet: true})
	require.NoError(t, err)

	require.NoError(t, a.onChange(context.Background(), []string{lib}))
	assert.NotContains(t, read(t, lib), "[^@nope]:")

	write(t, bib, testBib+"@misc{nope, author = {Nope, Nora}, title = {Found}, year = 2003}\n")
	require.NoError(t, a.onChange(context.Background(), []string{bib}))
	assert.Contains(t, read(t, lib), "/// [^@nope]: Nope, Nora.")
}

func TestInit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	out, err := execute(t, "init")
	require.NoError(t, err)
	path := filepath.Join(home, config.UserConfigDir, config.UserConfigFile)
	assert.Equal(t, path+"\n", out)
	assert.Contains(t, read(t, path), "style: mla")
}

func TestWatchRoots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "nested"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src-extra"), 0755))

	roots := watchRoots(
		[]string{filepath.Join(dir, "src"), filepath.Join(dir, "src-extra", "a.rs")},
		[]string{
			filepath.Join(dir, "src", "nested", "b.rs"),
			filepath.Join(dir, "src-extra", "a.rs"),
		},
	)
	assert.Equal(t, []string{filepath.Join(dir, "src"), filepath.Join(dir, "src-extra")}, roots)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	def := newLogger(&buf, "warn", false, false)
	assert.False(t, def.Enabled(ctx, slog.LevelInfo))
	assert.True(t, def.Enabled(ctx, slog.LevelWarn))

	verbose := newLogger(&buf, "warn", true, false)
	assert.True(t, verbose.Enabled(ctx, slog.LevelInfo))

	debug := newLogger(&buf, "debug", true, false)
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	quiet := newLogger(&buf, "debug", false, true)
	assert.False(t, quiet.Enabled(ctx, slog.LevelError))
}
