// Package chunk's adapter.go is C5: the parser-dispatch layer of
// spec §4.5, built on this package's existing tree-sitter Parser,
// SymbolExtractor, and LanguageRegistry (kept verbatim from the host)
// but generalized to emit entity.Entity/entity.Relation/
// entity.EntityChunk instead of the host's retrieval-oriented Chunk.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rlefko/codeindexer/internal/entity"
)

// ParserResult is C5's per-file output.
type ParserResult struct {
	Entities             []entity.Entity
	Relations            []entity.Relation
	ImplementationChunks []entity.EntityChunk
	Warnings             []string
	Errors               []string
	ParsingTime          time.Duration
	FileSHA256           string
}

// Dispatcher maps file extensions to tree-sitter parser adapters and
// turns their output into the entity model C7 defines.
type Dispatcher struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
}

// NewDispatcher returns a Dispatcher over the default language registry.
func NewDispatcher() *Dispatcher {
	registry := DefaultRegistry()
	return &Dispatcher{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
	}
}

// Close releases the underlying tree-sitter parser.
func (d *Dispatcher) Close() { d.parser.Close() }

// SupportsExtension reports whether ext (with or without a leading
// dot) has a registered language.
func (d *Dispatcher) SupportsExtension(ext string) bool {
	_, ok := d.registry.GetByExtension(ext)
	return ok
}

// SupportedExtensions lists every extension the dispatcher can parse.
func (d *Dispatcher) SupportedExtensions() []string {
	return d.registry.SupportedExtensions()
}

// ParseFile runs the full C5 pipeline for one file: parse, extract
// symbols, and build the file entity, its contains/imports relations,
// and metadata/implementation chunks for every symbol found.
//
// Per §4.5, responsibilities independent of language: always produce
// one file entity, emit a contains relation to each top-level entity,
// and emit imports relations carrying metadata.import_type.
func (d *Dispatcher) ParseFile(ctx context.Context, path string, source []byte) ParserResult {
	start := time.Now()
	sum := sha256.Sum256(source)
	result := ParserResult{FileSHA256: hex.EncodeToString(sum[:])}

	ext := filepath.Ext(path)
	config, ok := d.registry.GetByExtension(ext)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("no parser registered for extension %q", ext))
		result.ParsingTime = time.Since(start)
		return result
	}

	lineCount := strings.Count(string(source), "\n") + 1
	fileEntity, err := entity.NewFileEntity(path, lineCount)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.ParsingTime = time.Since(start)
		return result
	}
	result.Entities = append(result.Entities, fileEntity)

	tree, err := d.parser.Parse(ctx, source, config.Name)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("parse error: %v", err))
		result.ParsingTime = time.Since(start)
		return result
	}
	if tree.Root != nil && tree.Root.HasError {
		result.Warnings = append(result.Warnings, "parse tree contains syntax errors; some symbols may be missed")
	}

	symbols := d.extractor.Extract(tree, source)
	for _, sym := range symbols {
		symEntity, err := symbolToEntity(sym, path)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipping symbol %q: %v", sym.Name, err))
			continue
		}
		result.Entities = append(result.Entities, symEntity)

		if containsRel, err := entity.NewContainsRelation(path, symEntity.Name()); err == nil {
			result.Relations = append(result.Relations, containsRel)
		}

		if isImplementable(sym.Type) && sym.Body != "" {
			result.ImplementationChunks = append(result.ImplementationChunks, entity.NewImplementationChunk(symEntity, sym.Body))
		}
	}

	for _, ref := range extractImports(tree, source) {
		if rel, err := entity.NewImportsRelation(path, ref.Target, ref.Type); err == nil {
			result.Relations = append(result.Relations, rel)
		}
	}

	result.ParsingTime = time.Since(start)
	return result
}

func isImplementable(t SymbolType) bool {
	switch t {
	case SymbolTypeFunction, SymbolTypeMethod, SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return true
	default:
		return false
	}
}

func symbolToEntity(sym *Symbol, path string) (entity.Entity, error) {
	switch sym.Type {
	case SymbolTypeFunction:
		return entity.NewFunctionEntity(sym.Name, false, path, sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment)
	case SymbolTypeMethod:
		return entity.NewFunctionEntity(sym.Name, true, path, sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment)
	case SymbolTypeClass:
		return entity.NewClassEntity(sym.Name, false, path, sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment)
	case SymbolTypeInterface:
		return entity.NewClassEntity(sym.Name, true, path, sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment)
	case SymbolTypeType:
		// Go's struct and interface definitions both arrive as
		// type_declaration (TypeDefTypes); distinguish by signature text
		// since the node type alone doesn't say which.
		isInterface := strings.Contains(sym.Signature, "interface")
		return entity.NewClassEntity(sym.Name, isInterface, path, sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment)
	case SymbolTypeConstant:
		return entity.New(sym.Name, entity.TypeConstant, nil,
			entity.WithFilePath(path), entity.WithLineRange(sym.StartLine, sym.EndLine), entity.WithSignature(sym.Signature))
	case SymbolTypeVariable:
		return entity.New(sym.Name, entity.TypeVariable, nil,
			entity.WithFilePath(path), entity.WithLineRange(sym.StartLine, sym.EndLine), entity.WithSignature(sym.Signature))
	default:
		return entity.Entity{}, fmt.Errorf("unsupported symbol type %q", sym.Type)
	}
}
