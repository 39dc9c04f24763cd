// Package stats 账本操作的耗时统计（出块、导入区块、整链校验）。
package stats

import (
	"sort"
	"sync"
	"time"
)

// 账本里用到的指标名
const (
	MetricMineBlock   = "mine_block"
	MetricAddBlock    = "add_block"
	MetricVerifyChain = "verify_chain"
	MetricAddTx       = "add_tx"
)

// LatencySummary 单个指标的延迟分位统计
type LatencySummary struct {
	Count uint64        `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

type window struct {
	samples []time.Duration // 环形缓冲区
	next    int
	full    bool
	count   uint64
	max     time.Duration
}

func (w *window) values() []time.Duration {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	out := make([]time.Duration, n)
	copy(out, w.samples[:n])
	return out
}

// LatencyRecorder 固定容量的延迟记录器，nil 接收者上的调用全部是空操作
type LatencyRecorder struct {
	mu       sync.Mutex
	capacity int
	metrics  map[string]*window
}

func NewLatencyRecorder(capacity int) *LatencyRecorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &LatencyRecorder{
		capacity: capacity,
		metrics:  make(map[string]*window),
	}
}

// Since 记录从 start 到现在的耗时，配合 defer 使用
func (r *LatencyRecorder) Since(name string, start time.Time) {
	r.Record(name, time.Since(start))
}

func (r *LatencyRecorder) Record(name string, d time.Duration) {
	if r == nil || name == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.metrics[name]
	if !ok {
		w = &window{samples: make([]time.Duration, r.capacity)}
		r.metrics[name] = w
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
	w.count++
	if d > w.max {
		w.max = d
	}
}

// Snapshot 各指标的分位统计；没有样本的指标不出现在结果里
func (r *LatencyRecorder) Snapshot() map[string]LatencySummary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[string]LatencySummary, len(r.metrics))
	for name, w := range r.metrics {
		values := w.values()
		if len(values) == 0 {
			continue
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		result[name] = LatencySummary{
			Count: w.count,
			P50:   percentile(values, 0.50),
			P95:   percentile(values, 0.95),
			Max:   w.max,
		}
	}
	return result
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
