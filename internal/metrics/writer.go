package metrics

// Metrics output (CSV) and summary formatting

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

var csvHeader = []string{
	"timestamp",
	"operation",
	"label",
	"outcome",
	"rtt_ms",
	"status",
	"error",
}

// WriteCSV writes metrics as CSV with a header row.
func WriteCSV(w io.Writer, metrics []Metric) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, m := range metrics {
		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			string(m.Operation),
			m.Label,
			string(m.Outcome),
			formatRTT(m),
			fmt.Sprintf("0x%02X", m.Status),
			m.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatRTT formats the RTT for CSV, empty when no reply arrived.
func formatRTT(m Metric) string {
	if m.Outcome != OutcomeSuccess && m.Outcome != OutcomeStatusError {
		return ""
	}
	return fmt.Sprintf("%.3f", float64(m.RTT)/float64(time.Millisecond))
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var buf strings.Builder
	if summary.TotalOperations == 0 {
		buf.WriteString("Total Operations: 0\n")
		return buf.String()
	}

	pct := func(n int) float64 { return float64(n) / float64(summary.TotalOperations) * 100 }
	fmt.Fprintf(&buf, "Total Operations: %d\n", summary.TotalOperations)
	fmt.Fprintf(&buf, "Successful: %d (%.1f%%)\n", summary.SuccessfulOps, pct(summary.SuccessfulOps))
	if summary.StatusErrors > 0 {
		fmt.Fprintf(&buf, "Status Errors: %d (%.1f%%)\n", summary.StatusErrors, pct(summary.StatusErrors))
	}
	if summary.Timeouts > 0 {
		fmt.Fprintf(&buf, "Timeouts: %d\n", summary.Timeouts)
	}
	if summary.Failures > 0 {
		fmt.Fprintf(&buf, "Failures: %d\n", summary.Failures)
	}

	if summary.SuccessfulOps+summary.StatusErrors > 0 {
		buf.WriteString("\nRTT Statistics (replied operations):\n")
		fmt.Fprintf(&buf, "  Min: %.3f ms\n", summary.MinRTT)
		fmt.Fprintf(&buf, "  Max: %.3f ms\n", summary.MaxRTT)
		fmt.Fprintf(&buf, "  Avg: %.3f ms\n", summary.AvgRTT)
		fmt.Fprintf(&buf, "  P50: %.3f ms\n", summary.P50RTT)
		fmt.Fprintf(&buf, "  P90: %.3f ms\n", summary.P90RTT)
		fmt.Fprintf(&buf, "  P99: %.3f ms\n", summary.P99RTT)
		fmt.Fprintf(&buf, "  Buckets: <1ms=%d 1-5ms=%d 5-10ms=%d 10-50ms=%d 50-100ms=%d 100-500ms=%d >500ms=%d\n",
			summary.RTTBuckets["lt_1ms"],
			summary.RTTBuckets["1_5ms"],
			summary.RTTBuckets["5_10ms"],
			summary.RTTBuckets["10_50ms"],
			summary.RTTBuckets["50_100ms"],
			summary.RTTBuckets["100_500ms"],
			summary.RTTBuckets["gt_500ms"],
		)
	}

	if len(summary.ByOperation) > 0 {
		buf.WriteString("\nPer-Operation Statistics:\n")
		ops := make([]string, 0, len(summary.ByOperation))
		for op := range summary.ByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			stats := summary.ByOperation[OperationType(op)]
			fmt.Fprintf(&buf, "  %s: %d ops (%d success, %d failed)", op, stats.Count, stats.Success, stats.Failed)
			if stats.replies > 0 {
				fmt.Fprintf(&buf, " - RTT: min=%.3fms, max=%.3fms, avg=%.3fms", stats.MinRTT, stats.MaxRTT, stats.AvgRTT)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}
