// Package fallback implements C6: regex-based entity extraction for
// files a tree-sitter parser could not handle, so a syntax error never
// drops a file from the index entirely.
//
// Ported from
// original_source/claude_indexer/fallback_parser.py's pattern table
// and identifier validation, generalized from Python's per-entity
// dataclasses to this repo's internal/entity value types.
package fallback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rlefko/codeindexer/internal/entity"
)

var functionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:async\s+)?function\s+(\w+)\s*\(`),
	regexp.MustCompile(`(?:export\s+)?(?:async\s+)?(?:function\s+)?(\w+)\s*(?::\s*\w+)?\s*=\s*(?:async\s*)?\(`),
	regexp.MustCompile(`def\s+(\w+)\s*\(`),
	regexp.MustCompile(`(?:public|private|protected)?\s*(?:static)?\s*(?:async)?\s*(\w+)\s*\(`),
}

var classPatterns = []*regexp.Regexp{
	regexp.MustCompile(`class\s+(\w+)(?:\s+extends\s+\w+)?`),
	regexp.MustCompile(`interface\s+(\w+)`),
	regexp.MustCompile(`type\s+(\w+)\s*=`),
	regexp.MustCompile(`struct\s+(\w+)`),
}

var variablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:const|let|var)\s+(\w+)\s*=`),
	regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+(\w+)`),
	regexp.MustCompile(`^(\w+)\s*=\s*[^=]`),
}

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+(?:\{[^}]*\}|\*|\w+)\s+from\s+['"]([^'"\n]+)`),
	regexp.MustCompile(`import\s+([^\s;]+)`),
	regexp.MustCompile(`require\s*\(['"]([^'")]+)`),
	regexp.MustCompile(`from\s+(\S+)\s+import`),
}

var docPattern = regexp.MustCompile(`(?://|#)\s*(TODO|FIXME|HACK|NOTE|BUG|XXX):?\s*(.+)$`)

var reservedIdentifiers = map[string]bool{
	"if": true, "for": true, "while": true, "return": true,
	"true": true, "false": true, "null": true, "undefined": true,
}

// Result is C6's per-file output: same shape as the parser dispatch's
// ParserResult but without implementation chunks — broken files never
// get full bodies captured, only a best-effort entity/relation sketch.
type Result struct {
	Entities  []entity.Entity
	Relations []entity.Relation
	Warnings  []string
}

// Parse extracts as much structure as it can from a file tree-sitter
// could not parse, using line-by-line regex matching. errMessage is
// the original parser error, recorded on the file entity and in the
// single warning this always returns.
func Parse(path string, content []byte, errMessage string) Result {
	text := string(content)
	lines := strings.Split(text, "\n")

	var result Result

	fileEntity, err := entity.New(path, entity.TypeFile, []string{
		fmt.Sprintf("File has syntax errors: %s", orUnknown(errMessage)),
		"Fallback parsing applied - partial content extracted",
		fmt.Sprintf("File size: %d bytes", len(content)),
		fmt.Sprintf("Lines: %d", len(lines)),
	}, entity.WithFilePath(path), entity.WithLineRange(1, 1))
	if err == nil {
		result.Entities = append(result.Entities, fileEntity)
	}

	for _, m := range extractPatterns(lines, functionPatterns) {
		if !isValidIdentifier(m.text) {
			continue
		}
		e, err := entity.New(m.text, entity.TypeFunction, []string{
			"Function extracted via fallback parser",
			fmt.Sprintf("Found at line %d", m.line),
			"Full signature unavailable due to syntax errors",
		}, entity.WithFilePath(path), entity.WithLineRange(m.line, m.line))
		if err == nil {
			result.Entities = append(result.Entities, e)
		}
	}

	for _, m := range extractPatterns(lines, classPatterns) {
		if !isValidIdentifier(m.text) {
			continue
		}
		e, err := entity.New(m.text, entity.TypeClass, []string{
			"Class/Interface extracted via fallback parser",
			fmt.Sprintf("Found at line %d", m.line),
			"Members unavailable due to syntax errors",
		}, entity.WithFilePath(path), entity.WithLineRange(m.line, m.line))
		if err == nil {
			result.Entities = append(result.Entities, e)
		}
	}

	variables := extractPatterns(lines, variablePatterns)
	if len(variables) > 20 {
		variables = variables[:20]
	}
	for _, m := range variables {
		if !isValidIdentifier(m.text) {
			continue
		}
		e, err := entity.New(m.text, entity.TypeVariable, []string{
			"Variable/Constant extracted via fallback parser",
			fmt.Sprintf("Found at line %d", m.line),
		}, entity.WithFilePath(path), entity.WithLineRange(m.line, m.line))
		if err == nil {
			result.Entities = append(result.Entities, e)
		}
	}

	for _, m := range extractPatterns(lines, importPatterns) {
		if m.text == "" {
			continue
		}
		rel, err := entity.NewRelation(path, m.text, entity.RelationImports,
			entity.WithRelationMetadata(map[string]any{
				"line_number":     m.line,
				"fallback_parsed": true,
			}))
		if err == nil {
			result.Relations = append(result.Relations, rel)
		}
	}

	docs := extractDocComments(lines)
	if len(docs) > 10 {
		docs = docs[:10]
	}
	for _, d := range docs {
		name := fmt.Sprintf("%s: %s", d.kind, truncate(d.text, 50))
		e, err := entity.New(name, entity.TypeDocumentation, []string{
			fmt.Sprintf("%s comment: %s", d.kind, d.text),
			fmt.Sprintf("Found at line %d", d.line),
		}, entity.WithFilePath(path), entity.WithLineRange(d.line, d.line))
		if err == nil {
			result.Entities = append(result.Entities, e)
		}
	}

	if preview := previewContent(text); preview != "" {
		e, err := entity.New(baseName(path)+"_content", entity.TypeDocumentation, []string{
			"File content preview (first 1000 chars)",
			preview,
			"Complete parsing unavailable due to syntax errors",
		}, entity.WithFilePath(path), entity.WithLineRange(1, 1))
		if err == nil {
			result.Entities = append(result.Entities, e)
		}
	}

	result.Warnings = append(result.Warnings, fmt.Sprintf("syntax errors in file - used fallback parser: %s", errMessage))

	return result
}

type match struct {
	text string
	line int
}

func extractPatterns(lines []string, patterns []*regexp.Regexp) []match {
	var results []match
	for _, pattern := range patterns {
		for i, line := range lines {
			for _, groups := range pattern.FindAllStringSubmatch(line, -1) {
				if len(groups) >= 2 {
					results = append(results, match{text: groups[1], line: i + 1})
				}
			}
		}
	}
	return results
}

type docMatch struct {
	kind string
	text string
	line int
}

func extractDocComments(lines []string) []docMatch {
	var results []docMatch
	for i, line := range lines {
		groups := docPattern.FindStringSubmatch(line)
		if len(groups) == 3 {
			results = append(results, docMatch{kind: groups[1], text: strings.TrimSpace(groups[2]), line: i + 1})
		}
	}
	return results
}

// isValidIdentifier mirrors _is_valid_identifier: length bounds,
// letter-or-underscore start, and a small reserved-word denylist.
func isValidIdentifier(name string) bool {
	if len(name) < 2 || len(name) > 100 {
		return false
	}
	first := rune(name[0])
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return false
	}
	return !reservedIdentifiers[name]
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown error"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func previewContent(text string) string {
	n := 1000
	if len(text) < n {
		n = len(text)
	}
	return strings.ReplaceAll(text[:n], "\n", " ")
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}
