package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the repository containing path",
	Long:  "Discovers TypeScript and JavaScript files under the repository root containing path, runs both indexing passes and prints the run report. Files that disappeared since the last run are pruned.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	dir, err := resolveTargetDir(args)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	a, err := openApp(findRepoRoot(dir), false)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	defer a.Close()

	report, err := a.engine.Index(context.Background(), codegraph.Repository{ID: a.repoID, Root: a.root})
	if err != nil {
		if report == nil || flagFormat == "text" {
			return outputError(cmd, "index", err)
		}
		errorHandled = true
		_ = outputResult(cmd, CLIResult{Command: "index", Results: runToCLI(report), Error: err.Error()})
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s in %s\n", a.root, time.Since(start).Round(time.Millisecond))
	return outputResult(cmd, CLIResult{Command: "index", Results: runToCLI(report)})
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the report of an indexing run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "status", err)
		}
		defer a.Close()

		report, err := a.engine.RunStatus(context.Background(), args[0])
		if err != nil {
			return outputError(cmd, "status", err)
		}
		return outputResult(cmd, CLIResult{Command: "status", Results: runToCLI(report)})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Rerun Pass 2 of a run that failed after committing Pass 1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "resume", err)
		}
		defer a.Close()

		report, err := a.engine.Resume(context.Background(), args[0])
		if err != nil {
			return outputError(cmd, "resume", err)
		}
		return outputResult(cmd, CLIResult{Command: "resume", Results: runToCLI(report)})
	},
}
