package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEmptyTextReturnsEmptyVector(t *testing.T) {
	v := Build("   ")
	assert.Empty(t, v.Indices)
	assert.Empty(t, v.Values)
}

func TestBuildCountsRepeatedTerms(t *testing.T) {
	v := Build("calculateTotal calculateTotal total")
	assert.NotEmpty(t, v.Indices)

	var maxVal float32
	for _, val := range v.Values {
		if val > maxVal {
			maxVal = val
		}
	}
	assert.GreaterOrEqual(t, maxVal, float32(2))
}

func TestBuildSkipsStopWords(t *testing.T) {
	a := Build("func main")
	b := Build("main")
	assert.Equal(t, b.Indices, a.Indices)
}

func TestBuildIndicesAreSorted(t *testing.T) {
	v := Build("zeta alpha middle beta")
	for i := 1; i < len(v.Indices); i++ {
		assert.LessOrEqual(t, v.Indices[i-1], v.Indices[i])
	}
}
