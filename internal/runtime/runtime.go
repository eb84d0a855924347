// Package runtime runs Risor scripts against an indexed repository. Scripts
// see the repository's graph through host functions (search, impact, deps,
// files, symbols, edges) and hand results back with emit.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/codegraph"
)

// Runtime evaluates scripts for one repository.
type Runtime struct {
	query      *codegraph.QueryBuilder
	repoID     string
	logger     *slog.Logger
	scriptsDir string
	fsys       fs.FS
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts and resolves imports from fsys instead of
// disk.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithScriptsDir sets the directory imports are resolved against. RunScript
// falls back to the script's own directory.
func WithScriptsDir(dir string) RuntimeOption {
	return func(r *Runtime) {
		r.scriptsDir = dir
	}
}

// WithLogger routes the script log global to l.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime creates a Runtime. q may be nil, in which case only the
// non-query globals are available.
func NewRuntime(q *codegraph.QueryBuilder, repoID string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		query:  q,
		repoID: repoID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a script file. It returns the values the
// script passed to emit, converted to Go values.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) ([]any, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	dir := r.scriptsDir
	if dir == "" && r.fsys == nil {
		dir = filepath.Dir(scriptPath)
	}
	return r.eval(ctx, src, scriptPath, dir, extraGlobals)
}

// RunSource executes source directly.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) ([]any, error) {
	return r.eval(ctx, source, "<inline>", r.scriptsDir, extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label, dir string, extraGlobals map[string]any) ([]any, error) {
	var emitted []any
	globals := r.buildGlobals(&emitted, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals, dir); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return emitted, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return emitted, nil
}

// buildImporter lets scripts import sibling .risor modules.
func (r *Runtime) buildImporter(globals map[string]any, dir string) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if dir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   dir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a script from the configured fs.FS, or from disk
// relative to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to scripts.
func (r *Runtime) buildGlobals(emitted *[]any, extra map[string]any) map[string]any {
	globals := map[string]any{
		"repository_id": r.repoID,
		"emit":          makeEmitFn(emitted),
		"log":           mustProxy(&logObject{logger: r.logger.With("repository_id", r.repoID)}),
	}

	if r.query != nil {
		globals["search"] = makeSearchFn(r.query, r.repoID)
		globals["impact"] = makeImpactFn(r.query, r.repoID)
		globals["deps"] = makeDepsFn(r.query, r.repoID)
		globals["files"] = makeFilesFn(r.query, r.repoID)
		globals["symbols"] = makeSymbolsFn(r.query, r.repoID)
		globals["edges"] = makeEdgesFn(r.query, r.repoID)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
