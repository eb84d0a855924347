package extract

import (
	"sort"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codegraph/internal/parse"
	"github.com/jward/codegraph/internal/store"
)

// Import kinds recorded in reference metadata.
const (
	ImportNamed      = "named"
	ImportDefault    = "default"
	ImportNamespace  = "namespace"
	ImportSideEffect = "side_effect"
	ImportReexport   = "reexport"
	ImportRequire    = "require"
	ImportDynamic    = "dynamic"
)

// References returns every usage site in a parsed file in source order.
// Nothing outside the file is consulted.
func References(ast parse.AST) []store.Reference {
	switch a := ast.(type) {
	case *parse.TypeScriptAST:
		return ecmaReferences(a.Root(), a.Source())
	case *parse.JavaScriptAST:
		return ecmaReferences(a.Root(), a.Source())
	}
	return nil
}

type refWalker struct {
	src  []byte
	refs []store.Reference
}

func ecmaReferences(root *sitter.Node, src []byte) []store.Reference {
	w := &refWalker{src: src}
	w.visit(root)
	sort.SliceStable(w.refs, func(i, j int) bool {
		if w.refs[i].LineNumber != w.refs[j].LineNumber {
			return w.refs[i].LineNumber < w.refs[j].LineNumber
		}
		return w.refs[i].ColumnNumber < w.refs[j].ColumnNumber
	})
	return w.refs
}

func (w *refWalker) add(refType, target string, at *sitter.Node, meta store.Metadata) {
	if target == "" {
		return
	}
	w.refs = append(w.refs, store.Reference{
		ReferenceType: refType,
		TargetName:    target,
		LineNumber:    line(at),
		ColumnNumber:  column(at),
		Metadata:      meta,
	})
}

func (w *refWalker) children(n *sitter.Node) {
	for _, c := range namedChildren(n) {
		w.visit(c)
	}
}

func (w *refWalker) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "string", "template_string", "regex", "number":
		return
	case "import_statement":
		w.importStatement(n)
	case "export_statement":
		if field(n, "source") != nil {
			w.reexport(n)
			return
		}
		w.children(n)
	case "call_expression":
		w.call(n)
	case "new_expression":
		w.newExpression(n)
	case "member_expression":
		w.memberAccess(n)
	case "type_identifier":
		if !isDeclaredName(n) {
			w.add(store.RefTypeReference, text(n, w.src), n, nil)
		}
	case "nested_type_identifier":
		w.add(store.RefTypeReference, text(field(n, "name"), w.src), n,
			store.Metadata{"receiver": text(field(n, "module"), w.src)})
	case "extends_clause", "class_heritage":
		w.heritage(n)
	case "jsx_opening_element", "jsx_self_closing_element":
		w.jsxElement(n)
	default:
		w.children(n)
	}
}

// --- imports ---

func (w *refWalker) importStatement(n *sitter.Node) {
	source, ok := stringLiteral(field(n, "source"), w.src)
	typeOnly := hasToken(n, "type")

	if req := firstNamedOfType(n, "import_require_clause"); req != nil {
		src, _ := stringLiteral(field(req, "source"), w.src)
		local := text(firstNamedOfType(req, "identifier"), w.src)
		w.add(store.RefImport, local, req, importMeta(src, "default", local, ImportRequire, typeOnly))
		return
	}
	if !ok {
		return
	}

	clause := firstNamedOfType(n, "import_clause")
	if clause == nil {
		w.add(store.RefImport, source, n, importMeta(source, "", "", ImportSideEffect, typeOnly))
		return
	}
	for _, c := range namedChildren(clause) {
		switch c.Type() {
		case "identifier":
			local := text(c, w.src)
			w.add(store.RefImport, local, c, importMeta(source, "default", local, ImportDefault, typeOnly))
		case "namespace_import":
			local := text(firstNamedOfType(c, "identifier"), w.src)
			w.add(store.RefImport, local, c, importMeta(source, "*", local, ImportNamespace, typeOnly))
		case "named_imports":
			for _, spec := range namedChildren(c) {
				if spec.Type() != "import_specifier" {
					continue
				}
				imported := text(field(spec, "name"), w.src)
				local := imported
				if alias := field(spec, "alias"); alias != nil {
					local = text(alias, w.src)
				}
				w.add(store.RefImport, local, spec,
					importMeta(source, imported, local, ImportNamed, typeOnly || hasToken(spec, "type")))
			}
		}
	}
}

func (w *refWalker) reexport(n *sitter.Node) {
	source, ok := stringLiteral(field(n, "source"), w.src)
	if !ok {
		return
	}
	typeOnly := hasToken(n, "type")

	clause := firstNamedOfType(n, "export_clause")
	if clause == nil {
		local := "*"
		if ns := firstNamedOfType(n, "namespace_export"); ns != nil {
			local = text(ns.NamedChild(0), w.src)
		}
		meta := importMeta(source, "*", local, ImportReexport, typeOnly)
		meta["is_reexport"] = true
		w.add(store.RefImport, local, n, meta)
		return
	}
	for _, spec := range namedChildren(clause) {
		if spec.Type() != "export_specifier" {
			continue
		}
		imported := text(field(spec, "name"), w.src)
		local := imported
		if alias := field(spec, "alias"); alias != nil {
			local = text(alias, w.src)
		}
		meta := importMeta(source, imported, local, ImportReexport, typeOnly || hasToken(spec, "type"))
		meta["is_reexport"] = true
		w.add(store.RefImport, imported, spec, meta)
	}
}

func importMeta(source, imported, local, kind string, typeOnly bool) store.Metadata {
	m := store.Metadata{
		"import_source": source,
		"import_kind":   kind,
	}
	if imported != "" {
		m["imported_name"] = imported
	}
	if local != "" {
		m["local_name"] = local
	}
	if typeOnly {
		m["is_type_only"] = true
	}
	return m
}

// requireOrDynamicImport handles require("x") and import("x"). It reports
// false when the call is neither.
func (w *refWalker) requireOrDynamicImport(call, fn *sitter.Node) bool {
	var kind string
	switch {
	case fn.Type() == "import":
		kind = ImportDynamic
	case fn.Type() == "identifier" && text(fn, w.src) == "require":
		kind = ImportRequire
	default:
		return false
	}
	args := field(call, "arguments")
	if args == nil {
		return true
	}
	source, ok := stringLiteral(args.NamedChild(0), w.src)
	if !ok {
		w.children(args)
		return true
	}

	// Bindings come from the declarator the call initializes, if any.
	parent := call.Parent()
	if parent != nil && parent.Type() == "await_expression" {
		parent = parent.Parent()
	}
	var pattern *sitter.Node
	if parent != nil && parent.Type() == "variable_declarator" {
		pattern = field(parent, "name")
	}

	switch {
	case pattern != nil && pattern.Type() == "identifier":
		local := text(pattern, w.src)
		w.add(store.RefImport, local, call, importMeta(source, "default", local, kind, false))
	case pattern != nil && pattern.Type() == "object_pattern":
		for _, p := range namedChildren(pattern) {
			switch p.Type() {
			case "shorthand_property_identifier_pattern":
				name := text(p, w.src)
				w.add(store.RefImport, name, p, importMeta(source, name, name, kind, false))
			case "pair_pattern":
				imported := text(field(p, "key"), w.src)
				local := text(field(p, "value"), w.src)
				w.add(store.RefImport, local, p, importMeta(source, imported, local, kind, false))
			}
		}
	default:
		w.add(store.RefImport, source, call, importMeta(source, "", "", kind, false))
	}
	return true
}

// --- calls and member access ---

func (w *refWalker) call(n *sitter.Node) {
	fn := field(n, "function")
	if fn == nil {
		w.children(n)
		return
	}
	if w.requireOrDynamicImport(n, fn) {
		return
	}

	switch fn.Type() {
	case "identifier":
		w.add(store.RefCall, text(fn, w.src), fn, store.Metadata{"is_method_call": false})
	case "member_expression":
		prop := field(fn, "property")
		if prop != nil && prop.Type() != "private_property_identifier" {
			w.add(store.RefCall, text(prop, w.src), prop, store.Metadata{
				"is_method_call": true,
				"receiver":       collapse(text(field(fn, "object"), w.src), maxSignature),
			})
		}
		w.visit(field(fn, "object"))
	default:
		w.visit(fn)
	}
	w.visit(field(n, "type_arguments"))
	w.visit(field(n, "arguments"))
}

func (w *refWalker) newExpression(n *sitter.Node) {
	ctor := field(n, "constructor")
	switch {
	case ctor == nil:
	case ctor.Type() == "identifier":
		w.add(store.RefCall, text(ctor, w.src), ctor, store.Metadata{
			"is_method_call": false,
			"is_constructor": true,
		})
	case ctor.Type() == "member_expression":
		prop := field(ctor, "property")
		w.add(store.RefCall, text(prop, w.src), prop, store.Metadata{
			"is_method_call": true,
			"is_constructor": true,
			"receiver":       collapse(text(field(ctor, "object"), w.src), maxSignature),
		})
		w.visit(field(ctor, "object"))
	default:
		w.visit(ctor)
	}
	w.visit(field(n, "type_arguments"))
	w.visit(field(n, "arguments"))
}

func (w *refWalker) memberAccess(n *sitter.Node) {
	prop := field(n, "property")
	if prop != nil && prop.Type() == "property_identifier" {
		w.add(store.RefPropertyAccess, text(prop, w.src), prop, store.Metadata{
			"receiver": collapse(text(field(n, "object"), w.src), maxSignature),
		})
	}
	w.visit(field(n, "object"))
}

// --- types ---

// isDeclaredName reports whether a type_identifier is the name being
// declared (class, interface, alias, enum or type parameter).
func isDeclaredName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "class_declaration", "abstract_class_declaration", "class",
		"interface_declaration", "type_alias_declaration", "enum_declaration",
		"type_parameter":
		return sameNode(field(parent, "name"), n)
	}
	return false
}

func (w *refWalker) heritage(n *sitter.Node) {
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "identifier":
			w.add(store.RefTypeReference, text(c, w.src), c, store.Metadata{"heritage": "extends"})
		case "member_expression":
			prop := field(c, "property")
			w.add(store.RefTypeReference, text(prop, w.src), prop, store.Metadata{
				"heritage": "extends",
				"receiver": text(field(c, "object"), w.src),
			})
		default:
			w.visit(c)
		}
	}
}

// --- JSX ---

func (w *refWalker) jsxElement(n *sitter.Node) {
	name := field(n, "name")
	switch {
	case name == nil:
	case name.Type() == "identifier" && isComponentName(text(name, w.src)):
		w.add(store.RefCall, text(name, w.src), name, store.Metadata{
			"is_method_call": false,
			"jsx":            true,
		})
	case name.Type() == "member_expression" || name.Type() == "nested_identifier":
		prop := field(name, "property")
		if prop == nil {
			prop = name.NamedChild(int(name.NamedChildCount()) - 1)
		}
		w.add(store.RefCall, text(prop, w.src), prop, store.Metadata{
			"is_method_call": true,
			"jsx":            true,
			"receiver":       text(name.NamedChild(0), w.src),
		})
	}
	for _, c := range namedChildren(n) {
		if !sameNode(c, name) {
			w.visit(c)
		}
	}
}

func isComponentName(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
