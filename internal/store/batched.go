package store

// Batch buffers Pass 1 rows in memory under fake (negative) IDs. Symbols and
// references point at their file's fake ID; CommitBatch remaps everything to
// real IDs inside one transaction.
//
// A Batch is filled by a single goroutine and is not safe for concurrent use.
type Batch struct {
	RepositoryID string
	RunID        string

	Files      []File
	Symbols    []Symbol
	References []Reference

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch creates an empty Batch for one repository. runID may be empty
// when the batch is not associated with a tracked run.
func NewBatch(repoID, runID string) *Batch {
	return &Batch{
		RepositoryID: repoID,
		RunID:        runID,
		nextFakeID:   -1,
	}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// AddFile buffers a file and returns its fake ID.
func (b *Batch) AddFile(f *File) int64 {
	f.ID = b.allocFakeID()
	f.RepositoryID = b.RepositoryID
	b.Files = append(b.Files, *f)
	return f.ID
}

// AddSymbol buffers a symbol. sym.FileID must be a fake ID returned by AddFile.
func (b *Batch) AddSymbol(sym *Symbol) int64 {
	sym.ID = b.allocFakeID()
	sym.RepositoryID = b.RepositoryID
	b.Symbols = append(b.Symbols, *sym)
	return sym.ID
}

// AddReference buffers a reference. ref.FileID must be a fake ID returned by AddFile.
func (b *Batch) AddReference(ref *Reference) int64 {
	ref.ID = b.allocFakeID()
	ref.RepositoryID = b.RepositoryID
	b.References = append(b.References, *ref)
	return ref.ID
}

// Len returns the number of buffered files.
func (b *Batch) Len() int {
	return len(b.Files)
}

// Reset clears buffered rows so the Batch can be reused. Fake IDs keep
// decrementing so IDs from earlier chunks are never reused.
func (b *Batch) Reset() {
	b.Files = b.Files[:0]
	b.Symbols = b.Symbols[:0]
	b.References = b.References[:0]
}
