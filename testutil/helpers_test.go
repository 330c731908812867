package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := StepClock(start, time.Second)

	assert.Equal(t, start, clock())
	assert.Equal(t, start.Add(time.Second), clock())
	assert.Equal(t, start.Add(2*time.Second), clock())
}

func TestHits(t *testing.T) {
	hits := Hits("a", "b")
	assert.Len(t, hits, 2)
	assert.Equal(t, "doc-2", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Empty(t, Hits())
}
