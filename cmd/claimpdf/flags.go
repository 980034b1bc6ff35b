package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// pageFlags holds primary renderer page layout flags.
type pageFlags struct {
	size        string
	orientation string
	margin      float64
}

// legacyFlags holds fallback renderer flags.
type legacyFlags struct {
	spreadsheetID string
	disabled      bool
}

// renderFlags holds all flags for the render command.
type renderFlags struct {
	common    commonFlags
	output    string
	timeout   string
	submit    bool
	logo      string
	noLogo    bool
	noAudit   bool
	assetPath string
	page      pageFlags
	legacy    legacyFlags
}

// nextIDFlags holds flags for the next-id command.
type nextIDFlags struct {
	common commonFlags
	date   string
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	common commonFlags
	json   bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only log errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "human-readable debug logging")
}

// addPageFlags adds page layout flags to a FlagSet.
func addPageFlags(fs *flag.FlagSet, f *pageFlags) {
	fs.StringVarP(&f.size, "page-size", "p", "", "page size: letter, a4, legal")
	fs.StringVar(&f.orientation, "orientation", "", "page orientation: portrait, landscape")
	fs.Float64Var(&f.margin, "margin", 0, "page margin in inches (0.25-3.0)")
}

// addLegacyFlags adds fallback renderer flags to a FlagSet.
func addLegacyFlags(fs *flag.FlagSet, f *legacyFlags) {
	fs.StringVar(&f.spreadsheetID, "legacy-sheet", "", "legacy workbook spreadsheet ID (enables the fallback)")
	fs.BoolVar(&f.disabled, "no-legacy", false, "disable the fallback renderer")
}

// newFlagSet creates a FlagSet that reports errors instead of exiting.
func newFlagSet(name string, usage func(io.Writer), w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	fs.Usage = func() { usage(w) }
	return fs
}

// parseRenderFlags parses render command flags and returns positional args.
func parseRenderFlags(args []string, stderr io.Writer) (*renderFlags, []string, error) {
	f := &renderFlags{}
	fs := newFlagSet("render", printRenderUsage, stderr)

	fs.StringVarP(&f.output, "output", "o", "", "write the result JSON to a file instead of stdout")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-attempt render timeout (e.g., 45s, 2m)")
	fs.BoolVarP(&f.submit, "submit", "s", false, "reserve a document ID and write the record back")
	fs.StringVar(&f.logo, "logo", "", "logo image reference")
	fs.BoolVar(&f.noLogo, "no-logo", false, "render without failing on a missing logo")
	fs.BoolVar(&f.noAudit, "no-audit", false, "do not save the audit report beside the document")
	fs.StringVar(&f.assetPath, "asset-path", "", "custom asset directory")

	addCommonFlags(fs, &f.common)
	addPageFlags(fs, &f.page)
	addLegacyFlags(fs, &f.legacy)

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return f, fs.Args(), nil
}

// parseNextIDFlags parses next-id command flags.
func parseNextIDFlags(args []string, stderr io.Writer) (*nextIDFlags, error) {
	f := &nextIDFlags{}
	fs := newFlagSet("next-id", printNextIDUsage, stderr)

	fs.StringVarP(&f.date, "date", "d", "", "submission date as YYYY-MM-DD (default: today, UTC)")
	addCommonFlags(fs, &f.common)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return f, nil
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, stderr io.Writer) (*doctorFlags, error) {
	f := &doctorFlags{}
	fs := newFlagSet("doctor", printDoctorUsage, stderr)

	fs.BoolVar(&f.json, "json", false, "print results as JSON")
	addCommonFlags(fs, &f.common)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return f, nil
}
