package followup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticReturnsCopy(t *testing.T) {
	g := NewStatic()

	first := g.Suggest("q", "a")
	first[0] = "mutated"

	assert.Len(t, g.Suggest("q", "a"), 3)
	assert.Equal(t, "Can you explain this in more detail?", g.Suggest("", "")[0])
}

func TestNoneSuggestsNothing(t *testing.T) {
	assert.Empty(t, None{}.Suggest("q", "a"))
}
