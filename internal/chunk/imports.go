package chunk

import "strings"

// importRef is one resolved import edge target, paired with the kind
// of import form it came from (so the relation ID built from it stays
// unique per form, per spec §4.5).
type importRef struct {
	Target string
	Type   string
}

// extractImports walks tree for import declarations, dispatching on
// the language's grammar shape.
func extractImports(tree *Tree, source []byte) []importRef {
	if tree == nil || tree.Root == nil {
		return nil
	}
	switch tree.Language {
	case "go":
		return extractGoImports(tree.Root, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSImports(tree.Root, source)
	case "python":
		return extractPythonImports(tree.Root, source)
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func extractGoImports(root *Node, source []byte) []importRef {
	var refs []importRef
	for _, spec := range root.FindAllByType("import_spec") {
		target := ""
		importType := "standard"
		for _, child := range spec.Children {
			switch child.Type {
			case "interpreted_string_literal", "raw_string_literal":
				target = unquote(child.GetContent(source))
			case "package_identifier":
				importType = "aliased"
			case "dot":
				importType = "dot"
			case "blank_identifier":
				importType = "blank"
			}
		}
		if target != "" {
			refs = append(refs, importRef{Target: target, Type: importType})
		}
	}
	return refs
}

func extractJSImports(root *Node, source []byte) []importRef {
	var refs []importRef
	for _, stmt := range root.FindAllByType("import_statement") {
		target := ""
		hasDefault, hasNamed, hasNamespace := false, false, false

		for _, child := range stmt.Children {
			switch child.Type {
			case "string":
				target = unquote(child.GetContent(source))
			case "import_clause":
				for _, spec := range child.Children {
					switch spec.Type {
					case "identifier":
						hasDefault = true
					case "named_imports":
						hasNamed = true
					case "namespace_import":
						hasNamespace = true
					}
				}
			}
		}

		importType := "side_effect"
		switch {
		case hasNamespace:
			importType = "namespace"
		case hasNamed:
			importType = "named"
		case hasDefault:
			importType = "default"
		}

		if target != "" {
			refs = append(refs, importRef{Target: target, Type: importType})
		}
	}
	return refs
}

func extractPythonImports(root *Node, source []byte) []importRef {
	var refs []importRef

	for _, stmt := range root.FindAllByType("import_statement") {
		for _, child := range stmt.Children {
			if child.Type == "dotted_name" || child.Type == "aliased_import" {
				refs = append(refs, importRef{Target: child.GetContent(source), Type: "module"})
			}
		}
	}

	for _, stmt := range root.FindAllByType("import_from_statement") {
		module := ""
		for _, child := range stmt.Children {
			if child.Type == "dotted_name" {
				module = child.GetContent(source)
				break
			}
		}
		if module != "" {
			refs = append(refs, importRef{Target: module, Type: "from"})
		}
	}

	return refs
}
