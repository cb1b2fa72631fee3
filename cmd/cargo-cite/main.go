// Package main provides the cargo-cite binary entry point.
// cargo-cite resolves [^@key] citations in Rust doc comments against a
// BibTeX bibliography and keeps the footnote definitions up to date.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360studio/cargo-cite/config"
	"github.com/c360studio/cargo-cite/style"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cargo-cite"
)

// cargoSubcommand is the argument cargo passes when run as `cargo cite`.
const cargoSubcommand = "cite"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the command-line values shared by every subcommand.
type flags struct {
	configPath   string
	bibliography string
	style        string
	manifest     string
	files        []string
	exclude      []string
	verbose      bool
	quiet        bool
	check        bool
	keepGoing    bool
	workers      int
	watch        bool
	metricsFile  string
}

func rootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "cargo-cite [cite]",
		Short: "Insert bibliography citations into Rust doc comments",
		Long: `cargo-cite finds [^@key] citation markers in Rust doc comments and
appends a footnote for each cited key, rendered from a BibTeX bibliography
in the chosen citation style.

Files come from --file (files, folders or globs) or from the targets of a
Cargo manifest (--manifest, default ./Cargo.toml). Run as "cargo cite" the
leading "cite" argument is accepted and ignored.`,
		Args:          citeArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			if f.watch {
				return a.watch(cmd.Context())
			}
			return a.cite(cmd.Context())
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Config file path (YAML, default: nearest "+config.ProjectConfigFile+")")
	pf.StringVarP(&f.bibliography, "bib", "b", "", "Bibliography file (BibTeX or BibLaTeX)")
	pf.StringVarP(&f.manifest, "manifest", "m", "", "Cargo.toml whose targets are processed")
	pf.StringArrayVarP(&f.files, "file", "f", nil, "File, folder or glob to process (repeatable)")
	pf.StringArrayVar(&f.exclude, "exclude", nil, "Doublestar pattern excluded from folders (repeatable)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log every processed file")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress all log output")
	cmd.MarkFlagsMutuallyExclusive("manifest", "file")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.Flags().StringVarP(&f.style, "style", "s", "", "Citation style (see \"cargo-cite styles\", default: mla)")
	cmd.Flags().BoolVar(&f.check, "check", false, "Write nothing; exit 1 if any file would change")
	cmd.Flags().BoolVar(&f.keepGoing, "keep-going", false, "Continue past files that fail")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent files (0 = number of CPUs)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Re-run whenever sources or the bibliography change")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each run")
	cmd.MarkFlagsMutuallyExclusive("check", "watch")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(stylesCmd(), keysCmd(f), initCmd())

	return cmd
}

// citeArgs accepts at most the single "cite" argument cargo inserts.
func citeArgs(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return nil
	case len(args) == 1 && args[0] == cargoSubcommand:
		return nil
	default:
		return fmt.Errorf("unexpected arguments %q", args)
	}
}

func stylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the citation styles and the aliases of each",
		Long: `styles prints every style in the catalogue. Independent styles show
their class and title; dependent aliases name their parent and cannot be
selected with --style.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := style.List()
			if err != nil {
				return fmt.Errorf("load styles: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, info := range infos {
				if info.Dependent() {
					fmt.Fprintf(tw, "%s\t%s\t(alias of %s, not supported)\n", info.Name, info.Class, info.Parent)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Class, info.Title)
			}
			return tw.Flush()
		},
	}
}

func keysCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the citation keys used by the selected files",
		Long: `keys scans the selected files and prints every cited key once, in
ascending order. Keys missing from the bibliography are marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			return a.keys(cmd.Context())
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(nil).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
