// Package codegraph indexes TypeScript and JavaScript repositories into a
// queryable code graph. Files are parsed with tree-sitter into symbols
// (declarations) and references (usages); cross-file dependencies are
// resolved into edges and everything is persisted in SQLite, with a bleve
// index for full-text search.
//
// # Pipeline
//
// Each indexing run for a repository moves through a fixed sequence of
// states:
//
//	pending → discovering → parsing_pass1 → committed_pass1 → resolving_pass2 → completed
//
// A run that finds no files ends in skipped; a run that fails ends in
// failed, tagged with the last pass that committed.
//
//  1. Pass 1: files are parsed in a bounded worker pool and their symbols
//     and references are committed in batched transactions. Rows are
//     buffered under placeholder IDs and remapped at commit time.
//
//  2. Pass 2: the affected file set (files touched by the run plus files
//     with edges into them) is re-resolved from committed data, and its
//     outgoing edges are replaced in one transaction.
//
// Only one run per repository writes at a time; runs for different
// repositories never contend.
//
// # Usage
//
//	e, err := codegraph.Open("codegraph.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Index(ctx, codegraph.Repository{ID: "web", Root: "path/to/web"})
//
//	q := e.Query()
//	impact, err := q.Impact(ctx, "web", "src/util.ts", codegraph.ImpactOptions{Direction: codegraph.Reverse})
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] provides:
//
//   - [QueryBuilder.Search]: ranked full-text hits with highlighted snippets.
//   - [QueryBuilder.Impact]: files affected by a change to a file or symbol,
//     walking edges forward or in reverse up to a depth.
//   - [QueryBuilder.Dependencies]: direct and transitive dependents,
//     dependencies and related test files of one file.
//   - [QueryBuilder.FileByPath], [QueryBuilder.SymbolsInFile] and
//     [QueryBuilder.Edges] for direct lookups.
//
// [Service] wraps an Engine for transports: asynchronous runs, run status
// and cached impact queries.
package codegraph
