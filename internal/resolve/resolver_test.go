package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/extract"
	"github.com/jward/codegraph/internal/store"
)

// fixture builds resolver input by hand, assigning IDs in insertion order.
type fixture struct {
	in     Input
	nextID int64
}

func newFixture() *fixture {
	return &fixture{in: Input{RepositoryID: "repo"}, nextID: 1}
}

func (f *fixture) id() int64 {
	f.nextID++
	return f.nextID - 1
}

func (f *fixture) file(path string) int64 {
	id := f.id()
	f.in.Files = append(f.in.Files, &store.File{ID: id, RepositoryID: "repo", Path: path})
	f.in.Sources = append(f.in.Sources, id)
	return id
}

func (f *fixture) symbol(fileID int64, name, kind string, exported bool, start, end int, meta store.Metadata) int64 {
	id := f.id()
	f.in.Symbols = append(f.in.Symbols, &store.Symbol{
		ID: id, RepositoryID: "repo", FileID: fileID, Name: name, Kind: kind,
		IsExported: exported, LineStart: start, LineEnd: end, Metadata: meta,
	})
	return id
}

func (f *fixture) ref(fileID int64, refType, target string, line int, meta store.Metadata) {
	f.in.References = append(f.in.References, &store.Reference{
		ID: f.id(), RepositoryID: "repo", FileID: fileID, ReferenceType: refType,
		TargetName: target, LineNumber: line, Metadata: meta,
	})
}

func (f *fixture) namedImport(fileID int64, source, name string, line int) {
	f.ref(fileID, store.RefImport, name, line, store.Metadata{
		"import_source": source, "imported_name": name, "local_name": name,
		"import_kind": extract.ImportNamed,
	})
}

func edgesOfType(out Output, depType string) []*store.Edge {
	var res []*store.Edge
	for _, e := range out.Edges {
		if e.DependencyType == depType {
			res = append(res, e)
		}
	}
	return res
}

// ---------- Paths ----------

func TestCandidates(t *testing.T) {
	t.Parallel()

	got := Candidates("src/app/main.ts", "../lib/util")
	require.NotEmpty(t, got)
	assert.Equal(t, "src/lib/util", got[0])
	assert.Equal(t, "src/lib/util.ts", got[1])
	assert.Contains(t, got, "src/lib/util/index.ts")
	assert.Contains(t, got, "src/lib/util.d.ts")

	esm := Candidates("src/a.ts", "./b.js")
	assert.Contains(t, esm, "src/b.ts")
	assert.Contains(t, esm, "src/b.tsx")

	assert.Equal(t, "lib/x", Candidates("src/deep/a.ts", "/lib/x")[0])
	assert.Nil(t, Candidates("a.ts", "react"))
	assert.Nil(t, Candidates("a.ts", "../../outside"))
}

func TestResolvePath_ExtensionOrder(t *testing.T) {
	t.Parallel()
	files := map[string]bool{"src/b.tsx": true, "src/b/index.ts": true, "src/b.js": true}
	exists := func(p string) bool { return files[p] }

	p, ok := resolvePath("src/a.ts", "./b", exists)
	require.True(t, ok)
	assert.Equal(t, "src/b.tsx", p, ".tsx is tried before .js and index files")

	p, ok = resolvePath("src/a.ts", "./c", exists)
	assert.False(t, ok)
	assert.Empty(t, p)
}

// ---------- Resolution ----------

func TestResolve_FileAFileB(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("src/fileA.ts")
	b := f.file("src/fileB.ts")
	fnA := f.symbol(a, "functionA", store.KindFunction, true, 1, 3, nil)
	f.symbol(a, "ClassA", store.KindClass, true, 5, 9, nil)
	methodA := f.symbol(a, "methodA", store.KindMethod, true, 6, 8, nil)
	run := f.symbol(b, "run", store.KindFunction, true, 3, 6, nil)

	f.ref(a, store.RefCall, "functionA", 7, store.Metadata{"is_method_call": false})
	f.namedImport(b, "./fileA", "functionA", 1)
	f.namedImport(b, "./fileA", "ClassA", 1)
	f.ref(b, store.RefCall, "functionA", 4, store.Metadata{"is_method_call": false})
	f.ref(b, store.RefCall, "ClassA", 5, store.Metadata{"is_constructor": true})
	f.ref(b, store.RefCall, "methodA", 5, store.Metadata{"is_method_call": true, "receiver": "new ClassA()"})

	out := Resolve(f.in)

	imports := edgesOfType(out, store.DepFileImport)
	require.Len(t, imports, 1)
	assert.Equal(t, b, imports[0].FromFileID)
	assert.Equal(t, a, imports[0].ToFileID)
	assert.Nil(t, imports[0].ToSymbolID)
	assert.Equal(t, "./fileA", imports[0].Metadata.String("import_source"))
	assert.Equal(t, []string{"ClassA", "functionA"}, imports[0].Metadata["bindings"])

	calls := edgesOfType(out, store.DepSymbolCall)
	var targets []int64
	for _, e := range calls {
		assert.Equal(t, b, e.FromFileID)
		require.NotNil(t, e.FromSymbolID)
		assert.Equal(t, run, *e.FromSymbolID)
		targets = append(targets, *e.ToSymbolID)
	}
	assert.Contains(t, targets, fnA)
	assert.Contains(t, targets, methodA)
	assert.Len(t, calls, 3)

	// fileA's own call to functionA is intra-file and produces no edge.
	for _, e := range out.Edges {
		assert.NotEqual(t, a, e.FromFileID)
	}
	assert.Empty(t, out.Warnings)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()
	build := func() Input {
		f := newFixture()
		a := f.file("a.ts")
		b := f.file("b.ts")
		c := f.file("c.ts")
		f.symbol(a, "x", store.KindFunction, true, 1, 1, nil)
		f.symbol(b, "y", store.KindFunction, true, 1, 1, nil)
		f.namedImport(c, "./a", "x", 1)
		f.namedImport(c, "./b", "y", 2)
		f.ref(c, store.RefCall, "y", 4, nil)
		f.ref(c, store.RefCall, "x", 3, nil)
		f.ref(c, store.RefCall, "x", 5, nil)
		return f.in
	}
	first := Resolve(build())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Resolve(build()))
	}

	calls := edgesOfType(first, store.DepSymbolCall)
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[0].Metadata["count"])
	assert.Equal(t, 3, calls[0].Metadata["first_line"])
}

func TestResolve_AliasedImport(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	orig := f.symbol(a, "original", store.KindFunction, true, 1, 1, nil)
	f.ref(b, store.RefImport, "renamed", 1, store.Metadata{
		"import_source": "./a", "imported_name": "original", "local_name": "renamed",
		"import_kind": extract.ImportNamed,
	})
	f.ref(b, store.RefCall, "renamed", 2, nil)

	calls := edgesOfType(Resolve(f.in), store.DepSymbolCall)
	require.Len(t, calls, 1)
	assert.Equal(t, orig, *calls[0].ToSymbolID)
	assert.Nil(t, calls[0].FromSymbolID, "top-level call has no enclosing symbol")
}

func TestResolve_DefaultImport(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("widget.ts")
	b := f.file("main.ts")
	w := f.symbol(a, "Widget", store.KindClass, true, 1, 5, store.Metadata{"default_export": true})
	f.ref(b, store.RefImport, "W", 1, store.Metadata{
		"import_source": "./widget", "imported_name": "default", "local_name": "W",
		"import_kind": extract.ImportDefault,
	})
	f.ref(b, store.RefTypeReference, "W", 2, nil)

	refs := edgesOfType(Resolve(f.in), store.DepSymbolTypeRef)
	require.Len(t, refs, 1)
	assert.Equal(t, w, *refs[0].ToSymbolID)
}

func TestResolve_NamespaceImport(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("util.ts")
	other := f.file("other.ts")
	b := f.file("main.ts")
	fmtA := f.symbol(a, "format", store.KindFunction, true, 1, 1, nil)
	f.symbol(other, "format", store.KindFunction, true, 1, 1, nil)
	f.ref(b, store.RefImport, "u", 1, store.Metadata{
		"import_source": "./util", "imported_name": "*", "local_name": "u",
		"import_kind": extract.ImportNamespace,
	})
	f.namedImport(b, "./other", "unused", 2)
	f.ref(b, store.RefCall, "format", 3, store.Metadata{"is_method_call": true, "receiver": "u"})

	out := Resolve(f.in)
	calls := edgesOfType(out, store.DepSymbolCall)
	require.Len(t, calls, 1, "receiver binding wins over the tier-2 match")
	assert.Equal(t, fmtA, *calls[0].ToSymbolID)
}

func TestResolve_AmbiguityDropsReference(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	c := f.file("c.ts")
	f.symbol(a, "helper", store.KindFunction, true, 1, 1, nil)
	f.symbol(b, "helper", store.KindFunction, true, 1, 1, nil)
	f.ref(c, store.RefImport, "./a", 1, store.Metadata{"import_source": "./a", "import_kind": extract.ImportSideEffect})
	f.ref(c, store.RefImport, "./b", 2, store.Metadata{"import_source": "./b", "import_kind": extract.ImportSideEffect})
	f.ref(c, store.RefCall, "helper", 3, store.Metadata{"is_method_call": true, "receiver": "obj"})

	out := Resolve(f.in)
	assert.Empty(t, edgesOfType(out, store.DepSymbolCall))
	assert.Len(t, edgesOfType(out, store.DepFileImport), 2)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, WarningAmbiguous, out.Warnings[0].Kind)
	assert.Equal(t, "c.ts", out.Warnings[0].Path)
	assert.Equal(t, 3, out.Warnings[0].Line)
	assert.Len(t, out.Warnings[0].Candidates, 2)
	assert.Equal(t, 1, out.Ambiguous)
	assert.Equal(t, 1, out.Dropped)
}

func TestResolve_Tier1BeatsTier2(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	c := f.file("c.ts")
	want := f.symbol(a, "helper", store.KindFunction, true, 1, 1, nil)
	f.symbol(b, "helper", store.KindFunction, true, 1, 1, nil)
	f.namedImport(c, "./a", "helper", 1)
	f.ref(c, store.RefImport, "./b", 2, store.Metadata{"import_source": "./b", "import_kind": extract.ImportSideEffect})
	f.ref(c, store.RefCall, "helper", 3, nil)

	out := Resolve(f.in)
	calls := edgesOfType(out, store.DepSymbolCall)
	require.Len(t, calls, 1)
	assert.Equal(t, want, *calls[0].ToSymbolID)
	assert.Empty(t, out.Warnings)
}

func TestResolve_BarrelsAreUnresolved(t *testing.T) {
	t.Parallel()
	f := newFixture()
	impl := f.file("lib/impl.ts")
	barrel := f.file("lib/index.ts")
	app := f.file("app.ts")
	f.symbol(impl, "thing", store.KindFunction, true, 1, 1, nil)
	f.ref(barrel, store.RefImport, "thing", 1, store.Metadata{
		"import_source": "./impl", "imported_name": "thing", "local_name": "thing",
		"import_kind": extract.ImportReexport, "is_reexport": true,
	})
	f.namedImport(app, "./lib", "thing", 1)
	f.ref(app, store.RefCall, "thing", 2, nil)

	out := Resolve(f.in)
	imports := edgesOfType(out, store.DepFileImport)
	require.Len(t, imports, 2)
	assert.Equal(t, barrel, imports[0].FromFileID)
	assert.Equal(t, impl, imports[0].ToFileID)
	assert.Equal(t, app, imports[1].FromFileID)
	assert.Equal(t, barrel, imports[1].ToFileID, "directory import resolves to index.ts")
	assert.Empty(t, edgesOfType(out, store.DepSymbolCall))
	assert.Empty(t, out.Warnings)
	assert.Equal(t, 1, out.Dropped)
}

func TestResolve_BarrelOwnExportsResolve(t *testing.T) {
	t.Parallel()
	f := newFixture()
	y := f.file("y.ts")
	a := f.file("a.ts")
	b := f.file("b.ts")
	f.symbol(y, "x", store.KindFunction, true, 1, 1, nil)
	f.ref(a, store.RefImport, "x", 1, store.Metadata{
		"import_source": "./y", "imported_name": "x", "local_name": "x",
		"import_kind": extract.ImportReexport, "is_reexport": true,
	})
	own := f.symbol(a, "own", store.KindFunction, true, 2, 2, nil)
	f.namedImport(b, "./a", "own", 1)
	f.namedImport(b, "./a", "x", 2)
	f.ref(b, store.RefCall, "own", 3, nil)
	f.ref(b, store.RefCall, "x", 4, nil)

	out := Resolve(f.in)
	calls := edgesOfType(out, store.DepSymbolCall)
	require.Len(t, calls, 1, "re-exported x stays unresolved")
	assert.Equal(t, b, calls[0].FromFileID)
	assert.Equal(t, a, calls[0].ToFileID)
	assert.Equal(t, own, *calls[0].ToSymbolID)
	assert.Len(t, edgesOfType(out, store.DepFileImport), 2)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, 1, out.Dropped)
}

func TestResolve_NonBarrelBreaksTies(t *testing.T) {
	t.Parallel()
	f := newFixture()
	lib := f.file("lib.ts")
	barrel := f.file("index.ts")
	app := f.file("app.ts")
	want := f.symbol(lib, "helper", store.KindFunction, true, 1, 1, nil)
	f.symbol(barrel, "helper", store.KindFunction, true, 2, 2, nil)
	f.ref(barrel, store.RefImport, "*", 1, store.Metadata{
		"import_source": "./other", "imported_name": "*",
		"import_kind": extract.ImportReexport, "is_reexport": true,
	})
	f.ref(app, store.RefImport, "./lib", 1, store.Metadata{"import_source": "./lib", "import_kind": extract.ImportSideEffect})
	f.ref(app, store.RefImport, "./index", 2, store.Metadata{"import_source": "./index", "import_kind": extract.ImportSideEffect})
	f.ref(app, store.RefCall, "helper", 3, store.Metadata{"receiver": "obj"})

	out := Resolve(f.in)
	calls := edgesOfType(out, store.DepSymbolCall)
	require.Len(t, calls, 1)
	assert.Equal(t, want, *calls[0].ToSymbolID)
	assert.Empty(t, out.Warnings)
}

func TestResolve_KindFilter(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	f.symbol(a, "Config", store.KindInterface, true, 1, 3, nil)
	f.namedImport(b, "./a", "Config", 1)
	f.ref(b, store.RefCall, "Config", 2, nil)
	f.ref(b, store.RefTypeReference, "Config", 3, nil)

	out := Resolve(f.in)
	assert.Empty(t, edgesOfType(out, store.DepSymbolCall), "interfaces are not callable")
	assert.Len(t, edgesOfType(out, store.DepSymbolTypeRef), 1)
}

func TestResolve_UnexportedAndExternal(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	f.symbol(a, "private", store.KindFunction, false, 1, 1, nil)
	f.namedImport(b, "./a", "private", 1)
	f.namedImport(b, "react", "useState", 2)
	f.ref(b, store.RefCall, "private", 3, nil)
	f.ref(b, store.RefCall, "useState", 4, nil)

	out := Resolve(f.in)
	assert.Len(t, edgesOfType(out, store.DepFileImport), 1)
	assert.Empty(t, edgesOfType(out, store.DepSymbolCall))
	assert.Equal(t, 3, out.Dropped, "external import plus two unresolved calls")
}

func TestResolve_OnlySourcesProduceEdges(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	c := f.file("c.ts")
	f.namedImport(b, "./a", "x", 1)
	f.namedImport(c, "./a", "x", 1)
	f.in.Sources = []int64{c}

	out := Resolve(f.in)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, c, out.Edges[0].FromFileID)
	assert.Equal(t, a, out.Edges[0].ToFileID)
}

func TestResolve_EnclosingSymbolIsInnermost(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	target := f.symbol(a, "go", store.KindFunction, true, 1, 1, nil)
	f.symbol(b, "Outer", store.KindClass, false, 2, 10, nil)
	inner := f.symbol(b, "run", store.KindMethod, false, 4, 6, nil)
	f.namedImport(b, "./a", "go", 1)
	f.ref(b, store.RefCall, "go", 5, nil)

	calls := edgesOfType(Resolve(f.in), store.DepSymbolCall)
	require.Len(t, calls, 1)
	assert.Equal(t, inner, *calls[0].FromSymbolID)
	assert.Equal(t, target, *calls[0].ToSymbolID)
}

func TestResolve_CyclicImports(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.file("a.ts")
	b := f.file("b.ts")
	f.namedImport(a, "./b", "y", 1)
	f.namedImport(b, "./a", "x", 1)

	out := Resolve(f.in)
	require.Len(t, out.Edges, 2)
	assert.Equal(t, a, out.Edges[0].FromFileID)
	assert.Equal(t, b, out.Edges[0].ToFileID)
	assert.Equal(t, b, out.Edges[1].FromFileID)
	assert.Equal(t, a, out.Edges[1].ToFileID)
}
