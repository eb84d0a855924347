package store

import "time"

// Symbol kinds.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindType      = "type"
	KindProperty  = "property"
	KindVariable  = "variable"
)

// Reference types.
const (
	RefImport         = "import"
	RefCall           = "call"
	RefPropertyAccess = "property_access"
	RefTypeReference  = "type_reference"
)

// Dependency edge types.
const (
	DepFileImport    = "file_import"
	DepSymbolCall    = "symbol_call"
	DepSymbolTypeRef = "symbol_type_ref"
)

// Metadata is the open key/value bag stored as JSON on symbols,
// references and edges.
type Metadata map[string]any

// String returns the string value at key, or "" if absent or not a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns the bool value at key, or false.
func (m Metadata) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Extraction domain types

type File struct {
	ID           int64
	RepositoryID string
	Path         string
	Content      string
	Language     string
	Size         int64
	ContentHash  string
	IndexedAt    time.Time
}

type Symbol struct {
	ID            int64
	RepositoryID  string
	FileID        int64
	Name          string
	Kind          string
	LineStart     int
	LineEnd       int
	ColumnStart   int
	ColumnEnd     int
	Signature     string
	Documentation string
	IsExported    bool
	Metadata      Metadata
}

type Reference struct {
	ID            int64
	RepositoryID  string
	FileID        int64
	ReferenceType string
	TargetName    string
	LineNumber    int
	ColumnNumber  int
	Metadata      Metadata
}

// Resolution domain types

// Edge is a resolved dependency. For file_import edges ToSymbolID is nil;
// for symbol edges ToSymbolID is set and ToFileID is the symbol's file.
// FromSymbolID is the innermost symbol enclosing the reference, if any.
type Edge struct {
	ID             int64
	RepositoryID   string
	FromFileID     int64
	FromSymbolID   *int64
	ToFileID       int64
	ToSymbolID     *int64
	DependencyType string
	Metadata       Metadata
}

// Run bookkeeping

type Run struct {
	ID                string
	RepositoryID      string
	State             string
	LastPass          int
	Error             string
	Retryable         bool
	Full              bool
	FilesTotal        int
	FilesIndexed      int
	FilesFailed       int
	EdgesWritten      int
	ReferencesDropped int
	Warnings          []string
	FailedFiles       []string
	StartedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        *time.Time
}

// Counts is a per-repository row count summary.
type Counts struct {
	Files      int
	Symbols    int
	References int
	Edges      int
}
