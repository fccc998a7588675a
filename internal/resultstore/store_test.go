package resultstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaglog/backend/internal/models"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), Options{MemoryLimit: "128MB", Threads: 1})
	require.NoError(t, err)
	defer store.Close()

	result := &models.ParseResult{
		Mode:      "bandwidth",
		RawOutput: "timestamp\ttotal_kbps\n",
		ParsedData: []models.BandwidthSample{
			{Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), TotalKbps: 4000, VideoKbps: 2500},
		},
		LineCount: 1,
	}

	require.NoError(t, store.SaveResult("job-1", result))

	got, err := store.GetResult("job-1")
	require.NoError(t, err)
	assert.Equal(t, "bandwidth", got.Mode)
	assert.Equal(t, result.RawOutput, got.RawOutput)
	assert.Equal(t, 1, got.LineCount)
	assert.False(t, got.Cancelled)

	t.Run("missing job", func(t *testing.T) {
		_, err := store.GetResult("nope")
		assert.Error(t, err)
	})

	t.Run("save twice replaces", func(t *testing.T) {
		result.LineCount = 2
		require.NoError(t, store.SaveResult("job-1", result))
		got, err := store.GetResult("job-1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.LineCount)
	})

	t.Run("cleanup removes stale rows", func(t *testing.T) {
		n, err := store.DeleteOlderThan(-time.Minute) // cutoff in the future
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = store.GetResult("job-1")
		assert.Error(t, err)
	})
}
