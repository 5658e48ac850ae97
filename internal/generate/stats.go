package generate

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies a single completion call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFailed
)

// StatsSnapshot aggregates completion calls made so far in the run.
type StatsSnapshot struct {
	Model     string  `json:"model"`
	Calls     int     `json:"calls"`
	Succeeded int     `json:"succeeded"`
	Retried   int     `json:"retried"`
	Failed    int     `json:"failed"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// LLMStats tracks completion latencies and outcomes. Only the most recent
// maxSamples latencies feed the percentiles; counters cover the whole run.
type LLMStats struct {
	mu         sync.Mutex
	model      string
	latencies  []int64
	next       int
	maxSamples int
	calls      int
	outcomes   [3]int
}

func NewLLMStats(model string, maxSamples int) *LLMStats {
	if maxSamples <= 0 {
		maxSamples = 4096
	}
	return &LLMStats{
		model:      model,
		latencies:  make([]int64, 0, min(maxSamples, 256)),
		maxSamples: maxSamples,
	}
}

// Record adds one call. Negative durations count as zero.
func (s *LLMStats) Record(d time.Duration, outcome Outcome) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if outcome >= OutcomeOK && outcome <= OutcomeFailed {
		s.outcomes[outcome]++
	}
	if len(s.latencies) < s.maxSamples {
		s.latencies = append(s.latencies, ms)
		return
	}
	s.latencies[s.next] = ms
	s.next = (s.next + 1) % s.maxSamples
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Model:     s.model,
		Calls:     s.calls,
		Succeeded: s.outcomes[OutcomeOK],
		Retried:   s.outcomes[OutcomeRetryable],
		Failed:    s.outcomes[OutcomeFailed],
	}
	if len(s.latencies) == 0 {
		return snap
	}

	values := make([]int64, len(s.latencies))
	copy(values, s.latencies)
	var sum int64
	for _, v := range values {
		sum += v
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + ((hi - lo) * weight)
}
