package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

func TestCount(t *testing.T) {
	t.Parallel()

	snap := decision.NewSnapshot()
	snap.Upsert(decision.Decision{ID: "a", Reference: "UPC_CFI_1/2024", FullText: "UPC_CFI_1/2024 cites itself"})
	snap.Upsert(decision.Decision{ID: "b", Reference: "UPC_CoA_9/2024", FullText: "following upc_cfi_1/2024 and UPC_CoA_9/2024"})
	snap.Upsert(decision.Decision{ID: "c", FullText: "see UPC_CFI_1/2024"})
	snap.Upsert(decision.Decision{ID: "d", Citations: 5})

	got := map[string]int{}
	for _, c := range Count(snap) {
		require.NotNil(t, c.Citations)
		got[c.ID] = *c.Citations
	}

	assert.Equal(t, map[string]int{"a": 2, "b": 0, "c": 0, "d": 0}, got)
}

func TestCountEmptySnapshot(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Count(decision.NewSnapshot()))
}
