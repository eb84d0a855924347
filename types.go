package codegraph

import (
	"github.com/jward/codegraph/internal/discover"
	"github.com/jward/codegraph/internal/search"
	"github.com/jward/codegraph/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs.

type Store = store.Store
type DataStore = store.DataStore
type File = store.File
type Symbol = store.Symbol
type Reference = store.Reference
type Edge = store.Edge
type Counts = store.Counts

// RunReport is the persisted record of an indexing run: its state, the
// last committed pass, and the aggregated file, resolution and warning
// counts.
type RunReport = store.Run

type Repository = discover.Repository
type SourceFile = discover.SourceFile
type Discoverer = discover.Discoverer

type SearchIndex = search.SearchIndex
type SearchHit = search.Hit

type TenantMismatchError = store.TenantMismatchError
