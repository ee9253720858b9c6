package report

import (
	"fmt"
	"time"

	"github.com/tturner/cipstack/internal/metrics"
	"github.com/tturner/cipstack/internal/pcap"
)

// PathCount is a request path and how often it was seen.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// SummaryReport is the JSON form of a capture summary.
type SummaryReport struct {
	GeneratedAt string         `json:"generated_at"`
	Version     string         `json:"cipstack_version"`
	Capture     string         `json:"capture"`
	Frames      int            `json:"frames"`
	Sessions    int            `json:"sessions"`
	Requests    int            `json:"cip_requests"`
	Responses   int            `json:"cip_responses"`
	Errors      int            `json:"error_statuses"`
	Issues      int            `json:"issues"`
	Commands    map[string]int `json:"commands"`
	Services    map[string]int `json:"services"`
	Statuses    map[string]int `json:"statuses"`
	TopPaths    []PathCount    `json:"top_paths,omitempty"`
}

// NewSummaryReport converts a capture summary for JSON output.
func NewSummaryReport(capture, version string, s *pcap.Summary) SummaryReport {
	r := SummaryReport{
		GeneratedAt: FormatTimestamp(time.Now()),
		Version:     version,
		Capture:     capture,
		Frames:      s.Frames,
		Sessions:    s.Sessions,
		Requests:    s.Requests,
		Responses:   s.Responses,
		Errors:      s.Errors,
		Issues:      s.Issues,
		Commands:    s.Commands,
		Services:    s.Services,
		Statuses:    make(map[string]int, len(s.Statuses)),
	}
	for code, n := range s.Statuses {
		r.Statuses[fmt.Sprintf("0x%02X", code)] = n
	}
	for _, p := range s.TopPaths(topPathCount) {
		r.TopPaths = append(r.TopPaths, PathCount{Path: p, Count: s.Paths[p]})
	}
	return r
}

// SelfTestResult is one catalog request replayed against the target.
type SelfTestResult struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Connected bool            `json:"connected"`
	Outcome   metrics.Outcome `json:"outcome"`
	Status    uint8           `json:"status"`
	Value     string          `json:"value,omitempty"`
	Error     string          `json:"error,omitempty"`
	RTTMs     float64         `json:"rtt_ms"`
}

// SelfTestReport collects the results of a selftest run.
type SelfTestReport struct {
	GeneratedAt  string           `json:"generated_at"`
	Version      string           `json:"cipstack_version"`
	Catalog      string           `json:"catalog"`
	Results      []SelfTestResult `json:"results"`
	Passed       int              `json:"passed"`
	StatusErrors int              `json:"status_errors"`
	Failed       int              `json:"failed"`
}

// Add appends a result and updates the counters. A status error is a
// reply and does not fail the run.
func (r *SelfTestReport) Add(res SelfTestResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case metrics.OutcomeSuccess:
		r.Passed++
	case metrics.OutcomeStatusError:
		r.StatusErrors++
	default:
		r.Failed++
	}
}

// OK reports whether every request got a reply.
func (r *SelfTestReport) OK() bool {
	return r.Failed == 0
}
