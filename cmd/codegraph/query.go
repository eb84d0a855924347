package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
)

var (
	flagLimit        int
	flagDirection    string
	flagImpactDepth  int
	flagDepsDepth    int
	flagExcludeTests bool
	flagFile         string
)

var errMissingFile = errors.New("--file is required")

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Full-text search over file content and symbols",
	Long:  "Runs a query-string search (bleve syntax) over file content and symbol names, signatures and documentation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "search", err)
		}
		defer a.Close()

		hits, err := a.engine.Query().Search(context.Background(), a.repoID, args[0], flagLimit)
		if err != nil {
			return outputError(cmd, "search", err)
		}
		total := len(hits)
		return outputResult(cmd, CLIResult{Command: "search", Results: hits, TotalCount: &total})
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact <target>",
	Short: "Files affected by a file or path#symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := codegraph.ParseDirection(flagDirection)
		if err != nil {
			return outputError(cmd, "impact", err)
		}
		depth := flagImpactDepth
		if !cmd.Flags().Changed("depth") {
			depth = cfg.Query.DefaultDepth
		}

		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "impact", err)
		}
		defer a.Close()

		res, err := a.engine.Query().Impact(context.Background(), a.repoID, args[0], codegraph.ImpactOptions{
			Direction:    dir,
			MaxDepth:     depth,
			ExcludeTests: flagExcludeTests,
		})
		if err != nil {
			return outputError(cmd, "impact", err)
		}
		total := len(res.Nodes)
		return outputResult(cmd, CLIResult{Command: "impact", Results: res, TotalCount: &total})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Dependents, dependencies and test files of a file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagFile == "" {
			return outputError(cmd, "deps", errMissingFile)
		}
		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "deps", err)
		}
		defer a.Close()

		rep, err := a.engine.Query().Dependencies(context.Background(), a.repoID, flagFile, flagDepsDepth)
		if err != nil {
			return outputError(cmd, "deps", err)
		}
		return outputResult(cmd, CLIResult{Command: "deps", Results: rep})
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagLimit, "limit", codegraph.DefaultSearchLimit, "maximum number of hits")

	impactCmd.Flags().StringVar(&flagDirection, "direction", "reverse", "traversal direction: forward|reverse")
	impactCmd.Flags().IntVar(&flagImpactDepth, "depth", codegraph.DefaultImpactDepth, "maximum traversal depth")
	impactCmd.Flags().BoolVar(&flagExcludeTests, "exclude-tests", false, "drop test files from results")

	depsCmd.Flags().StringVar(&flagFile, "file", "", "file path relative to the repo root")
	depsCmd.Flags().IntVar(&flagDepsDepth, "depth", 1, "traversal depth (1-5)")
}
