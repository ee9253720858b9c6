package metrics

// Latency and outcome metrics for CIP exchanges

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/correlate"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationRequest      OperationType = "REQUEST"   // unconnected request/reply
	OperationConnected    OperationType = "CONNECTED" // request on an open connection
	OperationForwardOpen  OperationType = "FORWARD_OPEN"
	OperationForwardClose OperationType = "FORWARD_CLOSE"
)

// Outcome classifies how an exchange ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeStatusError Outcome = "status_error" // the device replied with an error status
	OutcomeTimeout     Outcome = "timeout"
	OutcomeFailure     Outcome = "failure"
)

// Metric represents a single exchange
type Metric struct {
	Timestamp time.Time
	Operation OperationType
	Label     string
	Outcome   Outcome
	RTT       time.Duration
	Status    uint8
	Error     string
}

// Success reports whether the exchange got a successful reply.
func (m Metric) Success() bool { return m.Outcome == OutcomeSuccess }

// Exchange builds a metric from the result of one exchange. A status
// error carries the device's status code.
func Exchange(op OperationType, label string, start time.Time, rtt time.Duration, err error) Metric {
	m := Metric{Timestamp: start, Operation: op, Label: label, Outcome: OutcomeSuccess, RTT: rtt}
	if err == nil {
		return m
	}
	m.Error = err.Error()
	var serr *protocol.StatusError
	switch {
	case errors.As(err, &serr):
		m.Outcome, m.Status = OutcomeStatusError, serr.Code
	case errors.Is(err, correlate.ErrTimeout):
		m.Outcome = OutcomeTimeout
	default:
		m.Outcome = OutcomeFailure
	}
	return m
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{}
}

// Record records a new metric
func (s *Sink) Record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

// Metrics returns a copy of all recorded metrics
func (s *Sink) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Metric(nil), s.metrics...)
}

// Summary contains aggregated statistics. Latencies are in milliseconds
// and cover exchanges that got a reply.
type Summary struct {
	TotalOperations int
	SuccessfulOps   int
	StatusErrors    int
	Timeouts        int
	Failures        int
	MinRTT          float64
	MaxRTT          float64
	AvgRTT          float64
	P50RTT          float64
	P90RTT          float64
	P99RTT          float64
	RTTBuckets      map[string]int
	ByOperation     map[OperationType]*OperationStats
}

// OperationStats contains statistics for a specific operation type
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	sumRTT  float64
	replies int
}

// Summary aggregates the recorded metrics.
func (s *Sink) Summary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		RTTBuckets:  make(map[string]int),
		ByOperation: make(map[OperationType]*OperationStats),
	}
	var rtts []float64
	for _, m := range s.metrics {
		summary.TotalOperations++
		switch m.Outcome {
		case OutcomeSuccess:
			summary.SuccessfulOps++
		case OutcomeStatusError:
			summary.StatusErrors++
		case OutcomeTimeout:
			summary.Timeouts++
		default:
			summary.Failures++
		}

		op, ok := summary.ByOperation[m.Operation]
		if !ok {
			op = &OperationStats{}
			summary.ByOperation[m.Operation] = op
		}
		op.Count++
		if m.Success() {
			op.Success++
		} else {
			op.Failed++
		}

		// A status error is still a reply and its latency counts.
		if m.Outcome != OutcomeSuccess && m.Outcome != OutcomeStatusError {
			continue
		}
		ms := float64(m.RTT) / float64(time.Millisecond)
		rtts = append(rtts, ms)
		incrementBucket(summary.RTTBuckets, ms)
		op.replies++
		op.sumRTT += ms
		op.AvgRTT = op.sumRTT / float64(op.replies)
		if op.replies == 1 || ms < op.MinRTT {
			op.MinRTT = ms
		}
		op.MaxRTT = math.Max(op.MaxRTT, ms)
	}

	if len(rtts) > 0 {
		sort.Float64s(rtts)
		sum := 0.0
		for _, v := range rtts {
			sum += v
		}
		summary.MinRTT = rtts[0]
		summary.MaxRTT = rtts[len(rtts)-1]
		summary.AvgRTT = sum / float64(len(rtts))
		summary.P50RTT = percentile(rtts, 0.50)
		summary.P90RTT = percentile(rtts, 0.90)
		summary.P99RTT = percentile(rtts, 0.99)
	}
	return summary
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
