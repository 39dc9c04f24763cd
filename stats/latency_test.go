package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyRecorder(t *testing.T) {
	r := NewLatencyRecorder(4)
	for i := 1; i <= 6; i++ {
		r.Record(MetricMineBlock, time.Duration(i)*time.Millisecond)
	}
	r.Record(MetricAddBlock, -time.Second)

	snap := r.Snapshot()
	require.Contains(t, snap, MetricMineBlock)
	mine := snap[MetricMineBlock]
	assert.Equal(t, uint64(6), mine.Count)
	assert.Equal(t, 6*time.Millisecond, mine.Max)
	// 环形缓冲区只保留最近 4 个样本：3,4,5,6
	assert.Equal(t, 4*time.Millisecond, mine.P50)
	assert.Equal(t, 5*time.Millisecond, mine.P95)

	assert.Equal(t, time.Duration(0), snap[MetricAddBlock].Max)
	assert.NotContains(t, snap, MetricVerifyChain)
}

func TestNilRecorder(t *testing.T) {
	var r *LatencyRecorder
	r.Record(MetricAddTx, time.Second)
	r.Since(MetricAddTx, time.Now())
	assert.Nil(t, r.Snapshot())
}
