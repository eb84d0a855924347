package codegraph

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jward/codegraph/internal/extract"
	"github.com/jward/codegraph/internal/metrics"
	"github.com/jward/codegraph/internal/parse"
	"github.com/jward/codegraph/internal/store"
)

// parsed is the Pass 1 output for one file. err is set for files that
// failed to parse; they are skipped.
type parsed struct {
	file SourceFile
	lang parse.Language
	res  extract.Result
	err  error
}

// pass1 parses files in chunks of batchSize and commits each chunk in its
// own transaction. Parsing within a chunk runs on the worker pool; commits
// happen on the calling goroutine, which is the repository's only writer.
// It returns the real IDs of every committed file.
func (e *Engine) pass1(ctx context.Context, rt *runTracker, files []SourceFile) ([]int64, error) {
	var touched []int64
	batch := store.NewBatch(rt.run.RepositoryID, rt.run.ID)

	for start := 0; start < len(files); start += e.batchSize {
		end := min(start+e.batchSize, len(files))
		results, err := e.parseChunk(ctx, files[start:end])
		if err != nil {
			return touched, err
		}

		batch.Reset()
		type pending struct {
			fakeID int64
			file   *store.File
			syms   []store.Symbol
		}
		var staged []pending
		for _, r := range results {
			if r.err != nil {
				rt.run.FilesFailed++
				rt.run.FailedFiles = append(rt.run.FailedFiles, r.file.Path)
				rt.warn(r.err.Error())
				rt.logger.Warn("parse failed", "path", r.file.Path, "error", r.err)
				metrics.FilesParsed.WithLabelValues("failed").Inc()
				continue
			}
			f := &store.File{
				Path:        r.file.Path,
				Content:     string(r.file.Content),
				Language:    string(r.lang),
				Size:        int64(len(r.file.Content)),
				ContentHash: store.ContentHash(r.file.Content),
			}
			fakeID := batch.AddFile(f)
			for i := range r.res.Symbols {
				sym := r.res.Symbols[i]
				sym.FileID = fakeID
				batch.AddSymbol(&sym)
			}
			for i := range r.res.References {
				ref := r.res.References[i]
				ref.FileID = fakeID
				batch.AddReference(&ref)
			}
			staged = append(staged, pending{fakeID: fakeID, file: f, syms: r.res.Symbols})
			metrics.FilesParsed.WithLabelValues("ok").Inc()
		}
		if batch.Len() == 0 {
			continue
		}

		fakeToReal, err := e.store.CommitBatch(ctx, batch)
		if err != nil {
			return touched, err
		}
		for _, p := range staged {
			realID, ok := fakeToReal[p.fakeID]
			if !ok {
				return touched, fmt.Errorf("commit batch: no id for %s", p.file.Path)
			}
			touched = append(touched, realID)
			rt.run.FilesIndexed++
			e.indexSearch(ctx, rt, p.file, p.syms)
		}
		rt.logger.Debug("committed batch", "count", len(staged))
	}
	return touched, nil
}

// parseChunk parses and extracts files on the worker pool. Results keep the
// input order. Parse failures are reported per file; only cancellation
// aborts the chunk.
func (e *Engine) parseChunk(ctx context.Context, files []SourceFile) ([]parsed, error) {
	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, f := range files {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.parseFile(gctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) parseFile(ctx context.Context, f SourceFile) parsed {
	out := parsed{file: f}
	ast, err := e.parser.Parse(ctx, f.Path, f.Content)
	if err != nil {
		var pe *parse.ParseError
		if !errors.As(err, &pe) {
			err = &parse.ParseError{Path: f.Path, Err: err}
		}
		out.err = err
		return out
	}
	defer ast.Close()
	out.lang = ast.Language()
	out.res = extract.File(ast)
	return out
}

// indexSearch updates the full-text index. Failures are recorded as run
// warnings; the graph stays authoritative.
func (e *Engine) indexSearch(ctx context.Context, rt *runTracker, f *store.File, syms []store.Symbol) {
	if e.index == nil {
		return
	}
	f.RepositoryID = rt.run.RepositoryID
	if err := e.index.IndexFile(ctx, f, syms); err != nil {
		rt.logger.Warn("search index update failed", "path", f.Path, "error", err)
		rt.warn(fmt.Sprintf("search index: %s: %v", f.Path, err))
	}
}
