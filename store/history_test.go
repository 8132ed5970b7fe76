package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryRecordsAndQueriesImports(t *testing.T) {
	h, err := OpenHistory(":memory:")
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.RecordImport(ctx, true, "accepted"))
	require.NoError(t, h.RecordImport(ctx, false, "unknown function type"))

	recs, err := h.RecentImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "unknown function type", recs[0].Message)
	require.False(t, recs[0].OK)
	require.True(t, recs[1].OK)
}

func TestHistoryRecordsBenchmarks(t *testing.T) {
	h, err := OpenHistory(":memory:")
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.RecordBenchmark(ctx, "run-1", map[string]float64{"mean": 0.016}))
}
