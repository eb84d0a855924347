// Package resolve turns per-file references into dependency edges. It is a
// pure function of its input: no storage access, no clock, no randomness,
// and map iteration never leaks into the output order.
package resolve

import (
	"fmt"
	"path"
	"sort"

	"github.com/jward/codegraph/internal/store"
)

// WarningAmbiguous marks a reference that matched more than one symbol.
const WarningAmbiguous = "ambiguous"

// Input is a snapshot of one repository. Sources names the files whose
// outgoing edges are being recomputed; edges are produced only for them.
type Input struct {
	RepositoryID string
	Files        []*store.File
	Symbols      []*store.Symbol
	References   []*store.Reference
	Sources      []int64
}

// Warning describes a reference that was dropped for a reason worth
// reporting.
type Warning struct {
	Kind       string
	FileID     int64
	Path       string
	Line       int
	Target     string
	Candidates []int64
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %s reference %q matches %d symbols", w.Path, w.Line, w.Kind, w.Target, len(w.Candidates))
}

// Output is the resolver result. Dropped counts every reference that
// produced no edge, ambiguous ones included.
type Output struct {
	Edges     []*store.Edge
	Warnings  []Warning
	Dropped   int
	Ambiguous int
}

// binding is one imported name visible in a file.
type binding struct {
	target   int64
	imported string
}

type importTarget struct {
	specs    map[string]bool
	bindings map[string]bool
}

type edgeKey struct {
	depType    string
	fromFile   int64
	fromSymbol int64
	toFile     int64
	toSymbol   int64
}

type resolver struct {
	in Input

	fileByPath map[string]int64
	pathByID   map[int64]string
	barrels    map[int64]bool
	// exported symbols per file, sorted by ID
	exported map[int64][]*store.Symbol
	// all symbols per file, for enclosing-symbol lookup
	byFile map[int64][]*store.Symbol
	refs   map[int64][]*store.Reference

	edges map[edgeKey]*store.Edge
	out   Output
}

// Resolve computes the edges leaving in.Sources.
func Resolve(in Input) Output {
	r := &resolver{
		in:         in,
		fileByPath: make(map[string]int64, len(in.Files)),
		pathByID:   make(map[int64]string, len(in.Files)),
		barrels:    make(map[int64]bool),
		exported:   make(map[int64][]*store.Symbol),
		byFile:     make(map[int64][]*store.Symbol),
		refs:       make(map[int64][]*store.Reference),
		edges:      make(map[edgeKey]*store.Edge),
	}
	for _, f := range in.Files {
		p := path.Clean(f.Path)
		r.fileByPath[p] = f.ID
		r.pathByID[f.ID] = p
	}
	for _, s := range in.Symbols {
		r.byFile[s.FileID] = append(r.byFile[s.FileID], s)
		if s.IsExported {
			r.exported[s.FileID] = append(r.exported[s.FileID], s)
		}
	}
	for _, syms := range r.exported {
		sort.Slice(syms, func(i, j int) bool { return syms[i].ID < syms[j].ID })
	}
	for _, ref := range in.References {
		r.refs[ref.FileID] = append(r.refs[ref.FileID], ref)
		if ref.Metadata.Bool("is_reexport") {
			r.barrels[ref.FileID] = true
		}
	}
	for _, refs := range r.refs {
		sort.SliceStable(refs, func(i, j int) bool {
			if refs[i].LineNumber != refs[j].LineNumber {
				return refs[i].LineNumber < refs[j].LineNumber
			}
			if refs[i].ColumnNumber != refs[j].ColumnNumber {
				return refs[i].ColumnNumber < refs[j].ColumnNumber
			}
			return refs[i].ID < refs[j].ID
		})
	}

	sources := append([]int64(nil), in.Sources...)
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for i, id := range sources {
		if i > 0 && sources[i-1] == id {
			continue
		}
		if _, ok := r.pathByID[id]; !ok {
			continue
		}
		r.resolveFile(id)
	}

	r.out.Edges = r.sortedEdges()
	sort.SliceStable(r.out.Warnings, func(i, j int) bool {
		a, b := r.out.Warnings[i], r.out.Warnings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Target < b.Target
	})
	return r.out
}

func (r *resolver) resolveFile(fileID int64) {
	importer := r.pathByID[fileID]
	exists := func(p string) bool { _, ok := r.fileByPath[p]; return ok }

	targets := make(map[int64]*importTarget)
	named := make(map[string]binding)
	namespaces := make(map[string]int64)
	firstImportLine := make(map[int64]int)

	refs := r.refs[fileID]
	for _, ref := range refs {
		if ref.ReferenceType != store.RefImport {
			continue
		}
		spec := ref.Metadata.String("import_source")
		p, ok := resolvePath(importer, spec, exists)
		if !ok {
			r.out.Dropped++
			continue
		}
		target := r.fileByPath[p]
		if target == fileID {
			continue
		}
		t := targets[target]
		if t == nil {
			t = &importTarget{specs: map[string]bool{}, bindings: map[string]bool{}}
			targets[target] = t
			firstImportLine[target] = ref.LineNumber
		}
		t.specs[spec] = true

		imported := ref.Metadata.String("imported_name")
		local := ref.Metadata.String("local_name")
		if imported != "" {
			t.bindings[imported] = true
		}
		if ref.Metadata.Bool("is_reexport") || local == "" {
			continue
		}
		switch {
		case imported == "*":
			namespaces[local] = target
		case imported == "default" && ref.Metadata.String("import_kind") != "default":
			// require() and import() bind the whole module.
			namespaces[local] = target
			named[local] = binding{target: target, imported: imported}
		case imported != "":
			named[local] = binding{target: target, imported: imported}
		}
	}

	targetIDs := make([]int64, 0, len(targets))
	for id := range targets {
		targetIDs = append(targetIDs, id)
	}
	sort.Slice(targetIDs, func(i, j int) bool { return targetIDs[i] < targetIDs[j] })

	for _, id := range targetIDs {
		t := targets[id]
		r.addEdge(store.DepFileImport, fileID, nil, id, nil, firstImportLine[id], store.Metadata{
			"import_source": sortedKeys(t.specs)[0],
			"bindings":      sortedKeys(t.bindings),
		})
	}

	for _, ref := range refs {
		depType, kinds := classify(ref.ReferenceType)
		if depType == "" {
			continue
		}
		sym, ambiguous := r.lookup(ref, kinds, named, namespaces, targetIDs)
		switch {
		case ambiguous != nil:
			r.out.Dropped++
			r.out.Ambiguous++
			r.out.Warnings = append(r.out.Warnings, Warning{
				Kind:       WarningAmbiguous,
				FileID:     fileID,
				Path:       importer,
				Line:       ref.LineNumber,
				Target:     ref.TargetName,
				Candidates: ambiguous,
			})
		case sym == nil:
			r.out.Dropped++
		default:
			toSym := sym.ID
			r.addEdge(depType, fileID, r.enclosing(fileID, ref.LineNumber), sym.FileID, &toSym, ref.LineNumber, nil)
		}
	}
}

// classify maps a reference type to the edge type it yields and the symbol
// kinds it may bind to.
func classify(refType string) (string, map[string]bool) {
	switch refType {
	case store.RefCall:
		return store.DepSymbolCall, kindSet(store.KindFunction, store.KindMethod, store.KindClass)
	case store.RefPropertyAccess:
		return store.DepSymbolCall, kindSet(store.KindProperty, store.KindMethod, store.KindVariable, store.KindFunction)
	case store.RefTypeReference:
		return store.DepSymbolTypeRef, kindSet(store.KindClass, store.KindInterface, store.KindType)
	}
	return "", nil
}

func kindSet(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// lookup applies the tiered candidate search. It returns the unique match,
// or the candidate IDs when the first non-empty tier is ambiguous. Barrel
// files stay candidates for the symbols they declare themselves; names they
// only re-export have no symbol row and never match.
func (r *resolver) lookup(ref *store.Reference, kinds map[string]bool, named map[string]binding, namespaces map[string]int64, imported []int64) (*store.Symbol, []int64) {
	tier1Files := map[int64]bool{}
	var tier1 []*store.Symbol

	if b, ok := named[ref.TargetName]; ok {
		tier1Files[b.target] = true
		tier1 = r.match(b.target, b.imported, kinds)
	}
	if recv := ref.Metadata.String("receiver"); recv != "" {
		if target, ok := namespaces[recv]; ok && !tier1Files[target] {
			tier1Files[target] = true
			tier1 = append(tier1, r.match(target, ref.TargetName, kinds)...)
		}
	}
	if sym, amb, done := r.pick(tier1); done {
		return sym, amb
	}

	var tier2 []*store.Symbol
	for _, id := range imported {
		if tier1Files[id] {
			continue
		}
		tier2 = append(tier2, r.match(id, ref.TargetName, kinds)...)
	}
	sym, amb, _ := r.pick(tier2)
	return sym, amb
}

// pick returns the single candidate of a tier. Several candidates are
// narrowed to those outside barrel files; if that leaves exactly one it
// wins, otherwise the tier is ambiguous.
func (r *resolver) pick(cands []*store.Symbol) (*store.Symbol, []int64, bool) {
	switch len(cands) {
	case 0:
		return nil, nil, false
	case 1:
		return cands[0], nil, true
	}
	var direct []*store.Symbol
	for _, c := range cands {
		if !r.barrels[c.FileID] {
			direct = append(direct, c)
		}
	}
	if len(direct) == 1 {
		return direct[0], nil, true
	}
	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return nil, ids, true
}

// match returns the exported symbols of file named name with an allowed
// kind. The name "default" matches the file's default export.
func (r *resolver) match(fileID int64, name string, kinds map[string]bool) []*store.Symbol {
	var out []*store.Symbol
	for _, s := range r.exported[fileID] {
		if !kinds[s.Kind] {
			continue
		}
		if s.Name == name || (name == "default" && s.Metadata.Bool("default_export")) {
			out = append(out, s)
		}
	}
	return out
}

// enclosing returns the innermost symbol of fileID whose range contains line.
func (r *resolver) enclosing(fileID int64, line int) *int64 {
	var best *store.Symbol
	for _, s := range r.byFile[fileID] {
		if line < s.LineStart || line > s.LineEnd {
			continue
		}
		if best == nil || narrower(s, best) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}

func narrower(a, b *store.Symbol) bool {
	sa, sb := a.LineEnd-a.LineStart, b.LineEnd-b.LineStart
	if sa != sb {
		return sa < sb
	}
	if a.LineStart != b.LineStart {
		return a.LineStart > b.LineStart
	}
	return a.ID < b.ID
}

func (r *resolver) addEdge(depType string, from int64, fromSym *int64, to int64, toSym *int64, line int, meta store.Metadata) {
	k := edgeKey{depType: depType, fromFile: from, toFile: to}
	if fromSym != nil {
		k.fromSymbol = *fromSym
	}
	if toSym != nil {
		k.toSymbol = *toSym
	}
	if e, ok := r.edges[k]; ok {
		e.Metadata["count"] = e.Metadata["count"].(int) + 1
		if line < e.Metadata["first_line"].(int) {
			e.Metadata["first_line"] = line
		}
		return
	}
	if meta == nil {
		meta = store.Metadata{}
	}
	meta["count"] = 1
	meta["first_line"] = line
	r.edges[k] = &store.Edge{
		RepositoryID:   r.in.RepositoryID,
		FromFileID:     from,
		FromSymbolID:   fromSym,
		ToFileID:       to,
		ToSymbolID:     toSym,
		DependencyType: depType,
		Metadata:       meta,
	}
}

func (r *resolver) sortedEdges() []*store.Edge {
	keys := make([]edgeKey, 0, len(r.edges))
	for k := range r.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.depType != b.depType:
			return a.depType < b.depType
		case a.fromFile != b.fromFile:
			return a.fromFile < b.fromFile
		case a.fromSymbol != b.fromSymbol:
			return a.fromSymbol < b.fromSymbol
		case a.toFile != b.toFile:
			return a.toFile < b.toFile
		default:
			return a.toSymbol < b.toSymbol
		}
	})
	out := make([]*store.Edge, len(keys))
	for i, k := range keys {
		out[i] = r.edges[k]
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
