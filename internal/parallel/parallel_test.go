package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(0))
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(-2))
	assert.Equal(t, 3, Workers(3))
}

func TestForEach_VisitsEveryIndexOnce(t *testing.T) {
	const n = 257
	hits := make([]int32, n)
	err := ForEach(n, 4, func(i int) error {
		atomic.AddInt32(&hits[i], 1)
		return nil
	})
	require.NoError(t, err)
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestForEachChunk_CoversRangeWithoutOverlap(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		workers int
	}{
		{"fewer items than workers", 3, 8},
		{"single worker", 100, 1},
		{"uneven split", 1001, 6},
		{"default workers", 64, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]int32, tt.n)
			err := ForEachChunk(tt.n, tt.workers, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
				return nil
			})
			require.NoError(t, err)
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "index %d", i)
			}
		})
	}
}

func TestForEachChunk_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEachChunk(50, 2, func(lo, hi int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEach_EmptyRange(t *testing.T) {
	called := false
	require.NoError(t, ForEach(0, 2, func(int) error { called = true; return nil }))
	require.NoError(t, ForEachChunk(-1, 2, func(int, int) error { called = true; return nil }))
	assert.False(t, called)
}
