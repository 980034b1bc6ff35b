package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: claimpdf <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render a claim to a PDF document")
	fmt.Fprintln(w, "  next-id    Print the next document ID for a day")
	fmt.Fprintln(w, "  doctor     Check Chrome, configuration and environment")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'claimpdf help <command>' for details on a specific command.")
}

// printCommonUsage prints the flags every command accepts.
func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only log errors")
	fmt.Fprintln(w, "  -v, --verbose             Human-readable debug logging")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: claimpdf render <claim.json|-> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render a claim record to PDF, falling back to the legacy workbook")
	fmt.Fprintln(w, "when the primary renderer fails. Prints the result as JSON.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  claim.json    Claim record file, or - for stdin")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render:")
	fmt.Fprintln(w, "  -s, --submit              Reserve a document ID and write the record back")
	fmt.Fprintln(w, "  -o, --output <path>       Write the result JSON to a file")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-attempt timeout (e.g., 45s, 2m)")
	fmt.Fprintln(w, "      --logo <ref>          Logo image reference")
	fmt.Fprintln(w, "      --no-logo             Do not fail when the logo is missing")
	fmt.Fprintln(w, "      --no-audit            Do not save the audit report")
	fmt.Fprintln(w, "      --asset-path <dir>    Custom templates, styles and layouts")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Page:")
	fmt.Fprintln(w, "  -p, --page-size <s>       Page size: letter, a4, legal")
	fmt.Fprintln(w, "      --orientation <s>     Orientation: portrait, landscape")
	fmt.Fprintln(w, "      --margin <f>          Margin in inches (0.25-3.0)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Legacy fallback:")
	fmt.Fprintln(w, "      --legacy-sheet <id>   Workbook spreadsheet ID (enables the fallback)")
	fmt.Fprintln(w, "      --no-legacy           Disable the fallback")
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// printNextIDUsage prints usage for the next-id command.
func printNextIDUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: claimpdf next-id [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the document ID the next submission would receive. Nothing is reserved.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -d, --date <YYYY-MM-DD>   Submission day (default: today, UTC)")
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: claimpdf doctor [--json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check Chrome, configuration, container settings and the temp directory.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "      --json                Print results as JSON")
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case "render":
		printRenderUsage(env.Stdout)
	case "next-id":
		printNextIDUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: claimpdf version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: claimpdf help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
