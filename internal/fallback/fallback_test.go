package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const brokenPython = `import os
from collections import defaultdict

def process_data(items):
    # TODO: handle empty items
    result = []
    return result

class Processor:
    def run(self):
        pass
`

func TestParseExtractsFileEntityWithErrorNote(t *testing.T) {
	result := Parse("broken.py", []byte(brokenPython), "unexpected indent")

	found := false
	for _, e := range result.Entities {
		if e.Name() == "broken.py" {
			found = true
			assert.Contains(t, e.Observations()[0], "unexpected indent")
		}
	}
	assert.True(t, found)
}

func TestParseExtractsFunctionsAndClasses(t *testing.T) {
	result := Parse("broken.py", []byte(brokenPython), "err")

	var names []string
	for _, e := range result.Entities {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "process_data")
	assert.Contains(t, names, "Processor")
}

func TestParseExtractsImportRelations(t *testing.T) {
	result := Parse("broken.py", []byte(brokenPython), "err")

	found := false
	for _, r := range result.Relations {
		if r.RelationType() == "imports" && r.ToEntity() == "os" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseAlwaysReturnsOneWarning(t *testing.T) {
	result := Parse("broken.py", []byte(brokenPython), "boom")
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "boom")
}

func TestIsValidIdentifierRejectsReservedAndShortNames(t *testing.T) {
	assert.False(t, isValidIdentifier("if"))
	assert.False(t, isValidIdentifier("a"))
	assert.False(t, isValidIdentifier("1abc"))
	assert.True(t, isValidIdentifier("validName"))
}

func TestParseCapsVariableExtractionAtTwenty(t *testing.T) {
	var src string
	for i := 0; i < 30; i++ {
		src += "const value" + string(rune('a'+i%26)) + " = 1\n"
	}

	result := Parse("many.js", []byte(src), "err")

	count := 0
	for _, e := range result.Entities {
		if e.EntityType() == "variable" {
			count++
		}
	}
	assert.LessOrEqual(t, count, 20)
}
