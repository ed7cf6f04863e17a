package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		RunCompleted("succeeded", time.Second)
		ToolRetry("navigate")
		RecordsCaptured(10)
		RecordsKept(3)
	})
}

func TestCountersAfterInit(t *testing.T) {
	Init()
	Init() // idempotent

	RunCompleted("failed", 2*time.Second)
	before := testutil.ToFloat64(captureRunsTotal.WithLabelValues("failed"))
	RunCompleted("failed", time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(captureRunsTotal.WithLabelValues("failed")))

	retriesBefore := testutil.ToFloat64(toolRetriesTotal.WithLabelValues("fetch"))
	ToolRetry("fetch")
	ToolRetry("fetch")
	require.Equal(t, retriesBefore+2, testutil.ToFloat64(toolRetriesTotal.WithLabelValues("fetch")))

	capturedBefore := testutil.ToFloat64(recordsCapturedTotal)
	keptBefore := testutil.ToFloat64(recordsKeptTotal)
	RecordsCaptured(25)
	RecordsKept(7)
	require.Equal(t, capturedBefore+25, testutil.ToFloat64(recordsCapturedTotal))
	require.Equal(t, keptBefore+7, testutil.ToFloat64(recordsKeptTotal))
}
