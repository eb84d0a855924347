package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
	"github.com/jward/codegraph/internal/discover"
	"github.com/jward/codegraph/internal/search"
)

var (
	flagDB        string
	flagFormat    string
	flagRepo      string
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg codegraph.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codegraph",
	Short:         "Dependency graph indexing for TypeScript and JavaScript",
	Long:          "codegraph parses TypeScript and JavaScript with tree-sitter, stores symbols, references and resolved dependency edges in SQLite, and answers search, impact and dependency queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "database path (default: .codegraph/codegraph.db relative to repo root)")
	pf.StringVar(&flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&flagRepo, "repo", "", "repository id (default: base name of the repo root)")
	pf.StringVar(&flagConfig, "config", "", "config file (default: .codegraph/config.yaml in the repo root)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text|json")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(scriptCmd)
}

// setup loads the config for the current repo root and applies flag
// overrides and the logger.
func setup(cmd *cobra.Command) error {
	root, err := currentRepoRoot(cmd)
	if err != nil {
		return err
	}
	path := flagConfig
	if path == "" {
		path = filepath.Join(root, codegraph.DefaultConfigPath)
	}
	loaded, err := codegraph.LoadConfig(path)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		loaded.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		loaded.Log.Format = flagLogFormat
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, lc codegraph.LogConfig) (*slog.Logger, error) {
	level, err := codegraph.ParseLogLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// currentRepoRoot is the repo root of the index target for `index`, and of
// the working directory otherwise.
func currentRepoRoot(cmd *cobra.Command) (string, error) {
	if cmd == indexCmd {
		dir, err := resolveTargetDir(cmd.Flags().Args())
		if err != nil {
			return "", err
		}
		return findRepoRoot(dir), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// inRoot resolves p against repoRoot unless it is absolute.
func inRoot(repoRoot, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}

// resolveDBPath returns the database path from --db, the config, or the
// default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		return inRoot(repoRoot, flagDB)
	}
	if cfg.Database != "" {
		return inRoot(repoRoot, cfg.Database)
	}
	return filepath.Join(repoRoot, ".codegraph", "codegraph.db")
}

// repositoryID returns --repo or the base name of repoRoot.
func repositoryID(repoRoot string) string {
	if flagRepo != "" {
		return flagRepo
	}
	return filepath.Base(repoRoot)
}

// app bundles what a command needs for one repository.
type app struct {
	root   string
	repoID string
	engine *codegraph.Engine
	index  *search.Index
}

func (a *app) Close() {
	if a.index != nil {
		a.index.Close()
	}
	a.engine.Close()
}

// openApp opens the store and search index for repoRoot. When mustExist is
// set, a missing database is an error rather than created.
func openApp(repoRoot string, mustExist bool) (*app, error) {
	dbPath := resolveDBPath(repoRoot)
	if mustExist {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found: %s (run 'codegraph index' first)", dbPath)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	var idx *search.Index
	opts := cfg.EngineOptions()
	opts = append(opts, codegraph.WithLogger(slog.Default()))
	if p := inRoot(repoRoot, cfg.SearchIndex); p != "" {
		var err error
		idx, err = search.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening search index: %w", err)
		}
		opts = append(opts, codegraph.WithSearchIndex(idx))
	}
	opts = append(opts, codegraph.WithDiscoverer(&discover.Local{
		Ignore:      cfg.Discovery.Ignore,
		MaxFileSize: cfg.Discovery.MaxFileSize,
		Logger:      slog.Default(),
	}))

	e, err := codegraph.Open(dbPath, opts...)
	if err != nil {
		if idx != nil {
			idx.Close()
		}
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return &app{root: repoRoot, repoID: repositoryID(repoRoot), engine: e, index: idx}, nil
}

// openCurrentApp opens the app for the working directory's repository.
func openCurrentApp(cmd *cobra.Command) (*app, error) {
	root, err := currentRepoRoot(cmd)
	if err != nil {
		return nil, err
	}
	return openApp(root, true)
}
