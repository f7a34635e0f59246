package entity

import "fmt"

// NewFileEntity builds the file-level entity every parser must emit
// (§4.5): type file, name = absolute/project-relative path.
func NewFileEntity(path string, lines int) (Entity, error) {
	return New(path, TypeFile, []string{
		fmt.Sprintf("File: %s", path),
		fmt.Sprintf("Lines: %d", lines),
	}, WithFilePath(path), WithLineRange(1, lines))
}

// NewFunctionEntity builds a function/method entity from extracted
// signature/doc/line-range information.
func NewFunctionEntity(name string, isMethod bool, filePath string, startLine, endLine int, signature, doc string) (Entity, error) {
	t := TypeFunction
	if isMethod {
		t = TypeMethod
	}
	var observations []string
	if doc != "" {
		observations = append(observations, fmt.Sprintf("Docstring: %s", doc))
	}
	observations = append(observations, fmt.Sprintf("%s: %s", title(string(t)), name))
	return New(name, t, observations,
		WithFilePath(filePath),
		WithLineRange(startLine, endLine),
		WithSignature(signature),
		WithDocstring(doc),
	)
}

// NewClassEntity builds a class/interface entity.
func NewClassEntity(name string, isInterface bool, filePath string, startLine, endLine int, signature, doc string) (Entity, error) {
	t := TypeClass
	if isInterface {
		t = TypeInterface
	}
	var observations []string
	if doc != "" {
		observations = append(observations, fmt.Sprintf("Docstring: %s", doc))
	}
	observations = append(observations, fmt.Sprintf("%s: %s", title(string(t)), name))
	return New(name, t, observations,
		WithFilePath(filePath),
		WithLineRange(startLine, endLine),
		WithSignature(signature),
		WithDocstring(doc),
	)
}

// NewContainsRelation builds the "file contains top-level entity" edge.
func NewContainsRelation(filePath, entityName string) (Relation, error) {
	return NewRelation(filePath, entityName, RelationContains)
}

// NewImportsRelation builds an "imports" edge carrying import_type
// metadata so its deterministic ID stays unique across import forms
// of the same target (§4.5).
func NewImportsRelation(filePath, target, importType string) (Relation, error) {
	return NewRelation(filePath, target, RelationImports,
		WithRelationMetadata(map[string]any{"import_type": importType}))
}

// NewCallsRelation builds a "calls" edge between two functions/methods.
func NewCallsRelation(from, to string) (Relation, error) {
	return NewRelation(from, to, RelationCalls)
}

// NewInheritsRelation builds an "inherits" edge between two classes.
func NewInheritsRelation(from, to string) (Relation, error) {
	return NewRelation(from, to, RelationInherits)
}
