package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph/internal/runtime"
)

var scriptCmd = &cobra.Command{
	Use:   "script <file.risor>",
	Short: "Run a Risor script against the index",
	Long:  "Runs a Risor script with the query API as globals: repository_id, search, impact, deps, files, symbols, edges, emit and log. Values passed to emit are printed as results.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCurrentApp(cmd)
		if err != nil {
			return outputError(cmd, "script", err)
		}
		defer a.Close()

		rt := runtime.NewRuntime(a.engine.Query(), a.repoID, runtime.WithLogger(slog.Default()))
		out, err := rt.RunScript(context.Background(), args[0], nil)
		if err != nil {
			return outputError(cmd, "script", err)
		}
		if out == nil {
			out = []any{}
		}
		total := len(out)
		return outputResult(cmd, CLIResult{Command: "script", Results: out, TotalCount: &total})
	},
}
