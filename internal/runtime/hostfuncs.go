package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/codegraph"
)

// search(term[, limit]) -> list of hit maps
func makeSearchFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("search", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("search: expected 1 or 2 arguments, got %d", len(args))
		}
		term, err := toString(args[0])
		if err != nil {
			return object.Errorf("search: term: %v", err)
		}
		limit := 0
		if len(args) == 2 {
			n, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("search: limit: %v", err)
			}
			limit = int(n)
		}
		hits, err := q.Search(ctx, repoID, term, limit)
		if err != nil {
			return object.Errorf("search: %v", err)
		}
		return toObject(hits)
	})
}

// impact(target[, direction[, depth]]) -> result map
func makeImpactFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("impact", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 3 {
			return object.Errorf("impact: expected 1 to 3 arguments, got %d", len(args))
		}
		target, err := toString(args[0])
		if err != nil {
			return object.Errorf("impact: target: %v", err)
		}
		var opts codegraph.ImpactOptions
		if len(args) >= 2 {
			dir, err := toString(args[1])
			if err != nil {
				return object.Errorf("impact: direction: %v", err)
			}
			opts.Direction = codegraph.Direction(dir)
		}
		if len(args) == 3 {
			depth, err := toInt64(args[2])
			if err != nil {
				return object.Errorf("impact: depth: %v", err)
			}
			opts.MaxDepth = int(depth)
		}
		res, err := q.Impact(ctx, repoID, target, opts)
		if err != nil {
			return object.Errorf("impact: %v", err)
		}
		return toObject(res)
	})
}

// deps(path[, depth]) -> {file, depth, dependents, dependencies, testFiles}
func makeDepsFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("deps", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("deps: expected 1 or 2 arguments, got %d", len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("deps: path: %v", err)
		}
		depth := 1
		if len(args) == 2 {
			n, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("deps: depth: %v", err)
			}
			depth = int(n)
		}
		rep, err := q.Dependencies(ctx, repoID, path, depth)
		if err != nil {
			return object.Errorf("deps: %v", err)
		}
		return toObject(rep)
	})
}

// files() -> list of {path, language, size, content_hash}
func makeFilesFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := q.Files(ctx, repoID)
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewMap(map[string]object.Object{
				"path":         object.NewString(f.Path),
				"language":     object.NewString(f.Language),
				"size":         object.NewInt(f.Size),
				"content_hash": object.NewString(f.ContentHash),
			}))
		}
		return object.NewList(results)
	})
}

// symbols(path) -> list of symbol maps
func makeSymbolsFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		syms, err := q.SymbolsInFile(ctx, repoID, path)
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		results := make([]object.Object, 0, len(syms))
		for _, s := range syms {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":          object.NewInt(s.ID),
				"name":        object.NewString(s.Name),
				"kind":        object.NewString(s.Kind),
				"line_start":  object.NewInt(int64(s.LineStart)),
				"line_end":    object.NewInt(int64(s.LineEnd)),
				"signature":   object.NewString(s.Signature),
				"is_exported": object.NewBool(s.IsExported),
			}))
		}
		return object.NewList(results)
	})
}

// edges([path]) -> list of edge maps
func makeEdgesFn(q *codegraph.QueryBuilder, repoID string) *object.Builtin {
	return object.NewBuiltin("edges", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("edges: expected 0 or 1 arguments, got %d", len(args))
		}
		path := ""
		if len(args) == 1 {
			p, err := toString(args[0])
			if err != nil {
				return object.Errorf("edges: %v", err)
			}
			path = p
		}
		edges, err := q.Edges(ctx, repoID, path)
		if err != nil {
			return object.Errorf("edges: %v", err)
		}
		return toObject(edges)
	})
}

// emit(value) appends value to the script's results.
func makeEmitFn(emitted *[]any) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		*emitted = append(*emitted, args[0].Interface())
		return object.Nil
	})
}

// --- Conversion helpers ---

// toObject converts a JSON-tagged Go value into Risor maps, lists and
// scalars. Whole numbers become ints.
func toObject(v any) object.Object {
	data, err := json.Marshal(v)
	if err != nil {
		return object.Errorf("convert %T: %v", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return object.Errorf("convert %T: %v", v, err)
	}
	return fromJSON(generic)
}

func fromJSON(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case bool:
		return object.NewBool(x)
	case string:
		return object.NewString(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return object.NewInt(i)
		}
		f, _ := x.Float64()
		return object.NewFloat(f)
	case []any:
		items := make([]object.Object, len(x))
		for i, item := range x {
			items[i] = fromJSON(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(x))
		for k, item := range x {
			m[k] = fromJSON(item)
		}
		return object.NewMap(m)
	}
	return object.Nil
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "script")
}
