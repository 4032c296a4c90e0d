package vector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	s, ok := Cosine([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, ok = Cosine([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, s, 1e-9)

	_, ok = Cosine([]float32{1, 0}, []float32{1, 0, 0})
	assert.False(t, ok)

	_, ok = Cosine([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}

func TestRank(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{ChunkUUID: "late-tie", DocumentUUID: "a", CreatedAt: t0.Add(time.Second), Vector: []float32{1, 0}},
		{ChunkUUID: "far", DocumentUUID: "a", CreatedAt: t0, Vector: []float32{0, 1}},
		{ChunkUUID: "early-tie", DocumentUUID: "b", CreatedAt: t0, Vector: []float32{2, 0}},
		{ChunkUUID: "wrong-dim", DocumentUUID: "c", CreatedAt: t0, Vector: []float32{1}},
	}

	hits := Rank([]float32{1, 0}, candidates, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "early-tie", hits[0].ChunkUUID)
	assert.Equal(t, "late-tie", hits[1].ChunkUUID)

	all := Rank([]float32{1, 0}, candidates, 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "far", all[2].ChunkUUID)
}
