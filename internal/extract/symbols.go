package extract

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codegraph/internal/parse"
	"github.com/jward/codegraph/internal/store"
)

// Symbols returns the declarations of a parsed file in source order. The
// returned symbols have no IDs and no FileID; the caller assigns both.
func Symbols(ast parse.AST) []store.Symbol {
	switch a := ast.(type) {
	case *parse.TypeScriptAST:
		return ecmaSymbols(a.Root(), a.Source())
	case *parse.JavaScriptAST:
		return ecmaSymbols(a.Root(), a.Source())
	}
	return nil
}

type symbolWalker struct {
	src  []byte
	syms []store.Symbol
	// topLevel[i] reports whether syms[i] is a module-level declaration.
	topLevel []bool

	// Names exported away from their declaration: export { a }, CommonJS.
	localExports   map[string]bool
	defaultExports map[string]bool
}

func ecmaSymbols(root *sitter.Node, src []byte) []store.Symbol {
	w := &symbolWalker{
		src:            src,
		localExports:   make(map[string]bool),
		defaultExports: make(map[string]bool),
	}
	w.statements(root)

	for i := range w.syms {
		if !w.topLevel[i] {
			continue
		}
		name := w.syms[i].Name
		if w.localExports[name] {
			w.syms[i].IsExported = true
		}
		if w.defaultExports[name] {
			w.syms[i].IsExported = true
			w.setMeta(i, "default_export", true)
		}
	}

	return dedupeAndSort(w.syms)
}

func (w *symbolWalker) statements(container *sitter.Node) {
	for _, c := range namedChildren(container) {
		w.statement(c)
	}
}

func (w *symbolWalker) statement(n *sitter.Node) {
	switch n.Type() {
	case "export_statement":
		w.exportStatement(n)
	case "expression_statement":
		w.expressionStatement(n)
	case "ambient_declaration":
		for _, c := range namedChildren(n) {
			w.declaration(c, n, false, false)
		}
	default:
		w.declaration(n, n, false, false)
	}
}

func (w *symbolWalker) exportStatement(n *sitter.Node) {
	isDefault := hasToken(n, "default")
	if decl := field(n, "declaration"); decl != nil {
		w.declaration(decl, n, true, isDefault)
		return
	}
	if val := field(n, "value"); val != nil && isDefault {
		switch {
		case val.Type() == "identifier":
			w.defaultExports[text(val, w.src)] = true
		case val.Type() == "class":
			w.class(val, n, true, true)
		case isFunctionValue(val):
			name := text(field(val, "name"), w.src)
			if name == "" {
				name = "default"
			}
			w.emit(name, store.KindFunction, n, funcSignature(name, val, w.src), true,
				store.Metadata{"default_export": true}, true)
		}
		return
	}
	if field(n, "source") != nil {
		return // re-export, handled by the reference extractor
	}
	if clause := firstNamedOfType(n, "export_clause"); clause != nil {
		for _, spec := range namedChildren(clause) {
			if spec.Type() != "export_specifier" {
				continue
			}
			name := text(field(spec, "name"), w.src)
			w.localExports[name] = true
			if text(field(spec, "alias"), w.src) == "default" {
				w.defaultExports[name] = true
			}
		}
	}
}

// expressionStatement handles namespaces and CommonJS export assignments.
func (w *symbolWalker) expressionStatement(n *sitter.Node) {
	expr := n.NamedChild(0)
	if expr == nil {
		return
	}
	switch expr.Type() {
	case "internal_module", "module":
		if body := field(expr, "body"); body != nil {
			w.statements(body)
		}
	case "assignment_expression":
		w.commonJSExport(n, expr)
	}
}

func (w *symbolWalker) commonJSExport(stmt, assign *sitter.Node) {
	left, right := field(assign, "left"), field(assign, "right")
	if left == nil || right == nil || left.Type() != "member_expression" {
		return
	}
	obj := text(field(left, "object"), w.src)
	prop := text(field(left, "property"), w.src)

	switch {
	case obj == "module" && prop == "exports":
		switch right.Type() {
		case "identifier":
			w.localExports[text(right, w.src)] = true
			w.defaultExports[text(right, w.src)] = true
		case "object":
			for _, pair := range namedChildren(right) {
				switch pair.Type() {
				case "shorthand_property_identifier":
					w.localExports[text(pair, w.src)] = true
				case "pair":
					if v := field(pair, "value"); v != nil && v.Type() == "identifier" {
						w.localExports[text(v, w.src)] = true
					}
				}
			}
		}
	case obj == "exports" || obj == "module.exports":
		switch {
		case right.Type() == "identifier":
			w.localExports[text(right, w.src)] = true
		case isFunctionValue(right):
			w.emit(prop, store.KindFunction, stmt, funcSignature(prop, right, w.src), true, nil, true)
		default:
			w.emit(prop, store.KindVariable, stmt, prop, true, nil, true)
		}
	}
}

// declaration emits symbols for a declaration node. outer is the node whose
// range and leading comment belong to the symbol (the export statement when
// present).
func (w *symbolWalker) declaration(n, outer *sitter.Node, exported, isDefault bool) {
	var meta store.Metadata
	if isDefault {
		meta = store.Metadata{"default_export": true}
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		name := text(field(n, "name"), w.src)
		if name == "" {
			name = "default"
		}
		if hasToken(n, "async") {
			meta = with(meta, "async", true)
		}
		w.emit(name, store.KindFunction, outer, funcSignature(name, n, w.src), exported, meta, true)

	case "class_declaration", "abstract_class_declaration", "class":
		w.class(n, outer, exported, isDefault)

	case "interface_declaration":
		name := text(field(n, "name"), w.src)
		w.emit(name, store.KindInterface, outer, header(n, field(n, "body"), w.src), exported, meta, true)

	case "type_alias_declaration":
		name := text(field(n, "name"), w.src)
		w.emit(name, store.KindType, outer, collapse(text(n, w.src), maxSignature), exported, meta, true)

	case "enum_declaration":
		name := text(field(n, "name"), w.src)
		w.emit(name, store.KindType, outer, header(n, field(n, "body"), w.src), exported,
			with(meta, "enum", true), true)

	case "lexical_declaration", "variable_declaration":
		w.variables(n, outer, exported)

	case "internal_module", "module":
		if body := field(n, "body"); body != nil {
			w.statements(body)
		}

	case "expression_statement":
		w.expressionStatement(n)
	}
}

func (w *symbolWalker) class(n, outer *sitter.Node, exported, isDefault bool) {
	name := text(field(n, "name"), w.src)
	if name == "" {
		if !isDefault {
			return
		}
		name = "default"
	}
	body := field(n, "body")

	var meta store.Metadata
	if isDefault {
		meta = store.Metadata{"default_export": true}
	}
	if n.Type() == "abstract_class_declaration" {
		meta = with(meta, "abstract", true)
	}
	w.emit(name, store.KindClass, outer, header(n, body, w.src), exported, meta, true)

	for _, member := range namedChildren(body) {
		w.classMember(member, exported)
	}
}

func (w *symbolWalker) classMember(m *sitter.Node, classExported bool) {
	switch m.Type() {
	case "method_definition", "method_signature", "abstract_method_signature":
		nameNode := field(m, "name")
		name := text(nameNode, w.src)
		meta := memberMeta(m, w.src)
		private := isPrivateMember(m, nameNode, w.src)
		w.emit(name, store.KindMethod, m, funcSignature(name, m, w.src), classExported && !private, meta, false)

	case "public_field_definition", "field_definition":
		nameNode := field(m, "name")
		if nameNode == nil {
			nameNode = field(m, "property")
		}
		name := text(nameNode, w.src)
		if name == "" {
			return
		}
		meta := memberMeta(m, w.src)
		private := isPrivateMember(m, nameNode, w.src)
		value := field(m, "value")
		if isFunctionValue(value) {
			w.emit(name, store.KindMethod, m, funcSignature(name, value, w.src), classExported && !private, meta, false)
			return
		}
		sig := name + text(field(m, "type"), w.src)
		w.emit(name, store.KindProperty, m, collapse(sig, maxSignature), classExported && !private, meta, false)
	}
}

func (w *symbolWalker) variables(n, outer *sitter.Node, exported bool) {
	var decls []*sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() == "variable_declarator" {
			decls = append(decls, c)
		}
	}
	declKind := "var"
	if n.ChildCount() > 0 {
		if first := n.Child(0); first != nil && !first.IsNamed() {
			declKind = first.Type()
		}
	}
	if kind := field(n, "kind"); kind != nil {
		declKind = text(kind, w.src)
	}

	for _, d := range decls {
		rangeNode := outer
		if len(decls) > 1 {
			rangeNode = d
		}
		value := field(d, "value")
		if isRequireCall(value, w.src) {
			continue
		}
		nameNode := field(d, "name")
		if nameNode == nil {
			continue
		}
		meta := store.Metadata{"declaration_kind": declKind}

		if nameNode.Type() != "identifier" {
			for _, id := range patternIdentifiers(nameNode, w.src) {
				w.emit(id, store.KindVariable, rangeNode, declKind+" "+id, exported, meta, true)
			}
			continue
		}

		name := text(nameNode, w.src)
		if isFunctionValue(value) {
			if hasToken(value, "async") {
				meta["async"] = true
			}
			w.emit(name, store.KindFunction, rangeNode, funcSignature(name, value, w.src), exported, meta, true)
			continue
		}
		sig := declKind + " " + name + text(field(d, "type"), w.src)
		w.emit(name, store.KindVariable, rangeNode, collapse(sig, maxSignature), exported, meta, true)
	}
}

func (w *symbolWalker) emit(name, kind string, rangeNode *sitter.Node, sig string, exported bool, meta store.Metadata, top bool) {
	if name == "" {
		return
	}
	w.syms = append(w.syms, store.Symbol{
		Name:          name,
		Kind:          kind,
		LineStart:     line(rangeNode),
		LineEnd:       endLine(rangeNode),
		ColumnStart:   column(rangeNode),
		ColumnEnd:     endColumn(rangeNode),
		Signature:     sig,
		Documentation: docComment(rangeNode, w.src),
		IsExported:    exported,
		Metadata:      meta,
	})
	w.topLevel = append(w.topLevel, top)
}

func (w *symbolWalker) setMeta(i int, key string, v any) {
	if w.syms[i].Metadata == nil {
		w.syms[i].Metadata = store.Metadata{}
	}
	w.syms[i].Metadata[key] = v
}

// --- helpers ---

func with(m store.Metadata, key string, v any) store.Metadata {
	if m == nil {
		m = store.Metadata{}
	}
	m[key] = v
	return m
}

// funcSignature renders name, type parameters, parameters and return type.
func funcSignature(name string, fn *sitter.Node, src []byte) string {
	params := "()"
	if p := field(fn, "parameters"); p != nil {
		params = text(p, src)
	} else if p := field(fn, "parameter"); p != nil {
		params = "(" + text(p, src) + ")"
	}
	sig := name + text(field(fn, "type_parameters"), src) + params + text(field(fn, "return_type"), src)
	if hasToken(fn, "async") {
		sig = "async " + sig
	}
	return collapse(sig, maxSignature)
}

// header returns the text of n up to the start of body.
func header(n, body *sitter.Node, src []byte) string {
	end := n.EndByte()
	if body != nil {
		end = body.StartByte()
	}
	return collapse(string(src[n.StartByte():end]), maxSignature)
}

func memberMeta(m *sitter.Node, src []byte) store.Metadata {
	var meta store.Metadata
	if hasToken(m, "static") {
		meta = with(meta, "static", true)
	}
	if hasToken(m, "async") {
		meta = with(meta, "async", true)
	}
	if hasToken(m, "get") {
		meta = with(meta, "accessor", "get")
	} else if hasToken(m, "set") {
		meta = with(meta, "accessor", "set")
	}
	if acc := firstNamedOfType(m, "accessibility_modifier"); acc != nil {
		meta = with(meta, "accessibility", text(acc, src))
	}
	return meta
}

func isPrivateMember(m, nameNode *sitter.Node, src []byte) bool {
	if nameNode != nil && nameNode.Type() == "private_property_identifier" {
		return true
	}
	if acc := firstNamedOfType(m, "accessibility_modifier"); acc != nil {
		return text(acc, src) == "private"
	}
	return false
}

// patternIdentifiers lists the names bound by a destructuring pattern.
func patternIdentifiers(n *sitter.Node, src []byte) []string {
	var out []string
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		switch c.Type() {
		case "identifier", "shorthand_property_identifier_pattern":
			out = append(out, text(c, src))
			return
		case "pair_pattern":
			if v := field(c, "value"); v != nil {
				visit(v)
			}
			return
		case "assignment_pattern", "object_assignment_pattern":
			if l := field(c, "left"); l != nil {
				visit(l)
			}
			return
		}
		for _, gc := range namedChildren(c) {
			visit(gc)
		}
	}
	visit(n)
	return out
}

func isRequireCall(n *sitter.Node, src []byte) bool {
	if n == nil {
		return false
	}
	if n.Type() == "await_expression" {
		n = n.NamedChild(0)
	}
	if n == nil || n.Type() != "call_expression" {
		return false
	}
	fn := field(n, "function")
	if fn == nil {
		return false
	}
	return fn.Type() == "import" || (fn.Type() == "identifier" && text(fn, src) == "require")
}

// dedupeAndSort keeps the first symbol for each (name, kind, line_start)
// and orders the result by position.
func dedupeAndSort(syms []store.Symbol) []store.Symbol {
	type key struct {
		name, kind string
		line       int
	}
	seen := make(map[key]bool, len(syms))
	out := make([]store.Symbol, 0, len(syms))
	for _, s := range syms {
		k := key{s.Name, s.Kind, s.LineStart}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LineStart != out[j].LineStart {
			return out[i].LineStart < out[j].LineStart
		}
		return out[i].ColumnStart < out[j].ColumnStart
	})
	return out
}
