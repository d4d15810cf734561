package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlanChunksCoverage verifies the chunk-coverage testable property: the
// union of [start,end] across the plan covers [0,duration], indices are
// dense from 0, and adjacent chunks overlap by exactly overlapSec (modulo
// final-chunk truncation).
func TestPlanChunksCoverage(t *testing.T) {
	const chunkDur, overlap = 240.0, 1.5
	plans := PlanChunks(600, chunkDur, overlap)
	require.NotEmpty(t, plans)

	assert.Equal(t, 0.0, plans[0].StartSec)
	for i, p := range plans {
		assert.Equal(t, i, p.Index)
		assert.GreaterOrEqual(t, p.EndSec, p.StartSec)
	}
	last := plans[len(plans)-1]
	assert.Equal(t, 600.0, last.EndSec)

	for i := 1; i < len(plans); i++ {
		overlapAmount := plans[i-1].EndSec - plans[i].StartSec
		if i < len(plans)-1 {
			assert.InDelta(t, overlap, overlapAmount, 0.001)
		} else {
			// final chunk may be truncated, so overlap can only shrink
			assert.LessOrEqual(t, overlapAmount, overlap+0.001)
		}
	}
}

func TestPlanChunksShortSourceIsSingleChunk(t *testing.T) {
	plans := PlanChunks(10, 240, 1.5)
	require.Len(t, plans, 1)
	assert.Equal(t, 0.0, plans[0].StartSec)
	assert.Equal(t, 10.0, plans[0].EndSec)
}

func TestPlanChunksZeroDurationProducesNoChunks(t *testing.T) {
	plans := PlanChunks(0, 240, 1.5)
	assert.Empty(t, plans)
}

func TestPlanChunksStepNeverBelowOneSecond(t *testing.T) {
	// overlapSec >= chunkDurationSec would make the naive step non-positive;
	// PlanChunks clamps step to at least 1s.
	plans := PlanChunks(5, 2, 3)
	require.NotEmpty(t, plans)
	if len(plans) > 1 {
		assert.InDelta(t, 1.0, plans[1].StartSec-plans[0].StartSec, 0.001)
	}
}
