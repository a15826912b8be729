package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordsAndReports(t *testing.T) {
	tr := NewTrace("req-1")
	tr.SnapshotBefore(map[string]any{"history_turns": 2, "current_domain": ""})
	tr.Record("nlu", "поставь таймер", map[string]any{"intent": "timer.set"}, nil, 12*time.Millisecond)
	tr.Record("intent_execution", nil, map[string]any{"success": true}, nil, 30*time.Millisecond)
	tr.SnapshotAfter(map[string]any{"history_turns": 4, "current_domain": "timer"})

	report := tr.Report()

	assert.Equal(t, "req-1", report.RequestID)
	require.Len(t, report.PipelineStages, 2)
	assert.Equal(t, "nlu", report.PipelineStages[0].Stage)
	assert.Equal(t, 12.0, report.PipelineStages[0].Ms)
	assert.Equal(t, 2, report.Performance.TotalStages)
	assert.Equal(t, 12.0, report.Performance.StageBreakdown["nlu"])
	assert.Equal(t, 30.0, report.Performance.StageBreakdown["intent_execution"])
	assert.Nil(t, report.Metadata)

	assert.ElementsMatch(t, []string{
		"current_domain:  -> timer",
		"history_turns: 2 -> 4",
	}, report.ContextEvolution.Changes)
}

func TestTraceRepeatedStageAggregatesInBreakdown(t *testing.T) {
	tr := NewTrace("req-2")
	tr.Record("asr", nil, nil, nil, 10*time.Millisecond)
	tr.Record("asr", nil, nil, nil, 15*time.Millisecond)

	report := tr.Report()
	assert.Equal(t, 25.0, report.Performance.StageBreakdown["asr"])
	assert.Equal(t, 2, report.Performance.TotalStages)
}

func TestTraceDropsStagesPastTheCap(t *testing.T) {
	tr := NewTrace("req-3", WithMaxStages(2))
	for i := 0; i < 5; i++ {
		tr.Record("nlu", nil, nil, nil, time.Millisecond)
	}

	report := tr.Report()
	assert.Len(t, report.PipelineStages, 2)
	require.NotNil(t, report.Metadata)
	assert.Equal(t, true, report.Metadata["trace_overflow"])
	assert.Equal(t, 3, report.Metadata["dropped_stages"])
}

func TestTraceElidesOversizePayloads(t *testing.T) {
	tr := NewTrace("req-4", WithMaxDataSize(0.0001)) // ~104 bytes
	small := "ок"
	big := strings.Repeat("т", 200)

	tr.Record("nlu", small, big, nil, time.Millisecond)

	report := tr.Report()
	require.Len(t, report.PipelineStages, 1)
	assert.Equal(t, small, report.PipelineStages[0].Input)
	out, ok := report.PipelineStages[0].Output.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(out, "<elided:"), "output should be elided, got %q", out)

	require.NotNil(t, report.Metadata)
	assert.Equal(t, 1, report.Metadata["elided_payloads"])
}

func TestTraceChangesNilWithoutBothSnapshots(t *testing.T) {
	tr := NewTrace("req-5")
	tr.SnapshotBefore(map[string]any{"history_turns": 1})

	report := tr.Report()
	assert.Nil(t, report.ContextEvolution.Changes)
	assert.Nil(t, report.ContextEvolution.After)
}
