package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
)

// formatRunText formats a run report as key/value lines.
func formatRunText(w io.Writer, r CLIRun) {
	fmt.Fprintf(w, "Run: %s\n", r.ID)
	fmt.Fprintf(w, "Repository: %s\n", r.RepositoryID)
	fmt.Fprintf(w, "State: %s (last pass %d)\n", r.State, r.LastPass)
	fmt.Fprintf(w, "Files: %d indexed, %d failed, %d total\n", r.FilesIndexed, r.FilesFailed, r.FilesTotal)
	fmt.Fprintf(w, "Edges: %d written, %d references dropped\n", r.EdgesWritten, r.ReferencesDropped)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s (retryable: %t)\n", r.Error, r.Retryable)
	}
	for _, f := range r.FailedFiles {
		fmt.Fprintf(w, "  failed: %s\n", f)
	}
}

// formatHitsText formats search hits as aligned columns.
func formatHitsText(w io.Writer, hits []codegraph.SearchHit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tLOCATION\tNAME")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s:%d\t%s\n", h.Score, h.Kind, h.Path, h.Line, h.Name)
	}
	tw.Flush()
}

// formatImpactText formats impact nodes with a score summary.
func formatImpactText(w io.Writer, r *codegraph.ImpactResult) {
	fmt.Fprintf(w, "Impact of %s (%s, depth %d)\n", r.Target, r.Direction, r.MaxDepth)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tFILE\tTEST")
	for _, n := range r.Nodes {
		test := ""
		if n.IsTest {
			test = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", n.Depth, n.Path, test)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nScore: %.2f  Risk: %.2f (%d of %d files)\n", r.Score, r.Risk, len(r.Nodes), r.TotalFiles)
}

// formatDepsText formats a dependency report as sections.
func formatDepsText(w io.Writer, r *codegraph.DependencyReport) {
	fmt.Fprintf(w, "File: %s (depth %d)\n", r.File, r.Depth)
	section := func(title string, paths []string) {
		fmt.Fprintf(w, "%s (%d):\n", title, len(paths))
		for _, p := range paths {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	section("Dependents", r.Dependents)
	section("Dependencies", r.Dependencies)
	section("Test files", r.TestFiles)
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIRun:
		formatRunText(w, v)
	case []codegraph.SearchHit:
		formatHitsText(w, v)
	case *codegraph.ImpactResult:
		formatImpactText(w, v)
	case *codegraph.DependencyReport:
		formatDepsText(w, v)
	case []any:
		for _, item := range v {
			data, err := json.Marshal(item)
			if err != nil {
				fmt.Fprintf(w, "%v\n", item)
				continue
			}
			fmt.Fprintln(w, string(data))
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult to the command's stdout in the selected
// format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
