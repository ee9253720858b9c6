package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tturner/cipstack/internal/metrics"
	"github.com/tturner/cipstack/internal/pcap"
)

const topPathCount = 10

// WritePCAPSummary writes a human readable capture summary.
func WritePCAPSummary(w io.Writer, s *pcap.Summary) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("PCAP Summary:"))
	fmt.Fprintf(w, "  Frames: %d\n", s.Frames)
	fmt.Fprintf(w, "  Sessions: %d\n", s.Sessions)
	fmt.Fprintf(w, "  CIP requests: %d\n", s.Requests)
	fmt.Fprintf(w, "  CIP responses: %d\n", s.Responses)
	errs := fmt.Sprint(s.Errors)
	if s.Errors > 0 {
		errs = st.err.Render(errs)
	}
	fmt.Fprintf(w, "  Error statuses: %s\n", errs)
	issues := fmt.Sprint(s.Issues)
	if s.Issues > 0 {
		issues = st.warn.Render(issues)
	}
	fmt.Fprintf(w, "  Decode issues: %s\n", issues)

	if len(s.Commands) > 0 {
		fmt.Fprintln(w, "\n"+st.title.Render("Commands:"))
		printCounts(w, s.Commands)
	}
	if len(s.Services) > 0 {
		fmt.Fprintln(w, "\n"+st.title.Render("CIP services:"))
		printCounts(w, s.Services)
	}
	if len(s.Statuses) > 0 {
		fmt.Fprintf(w, "\n%s %s\n", st.title.Render("Reply statuses:"), formatUint8Counts(s.Statuses))
	}
	if paths := s.TopPaths(topPathCount); len(paths) > 0 {
		fmt.Fprintln(w, "\n"+st.title.Render("Top paths:"))
		for _, p := range paths {
			fmt.Fprintf(w, "  %s (%d)\n", p, s.Paths[p])
		}
	}
}

// WriteRecords writes one line per decoded frame. Decode issues follow
// the frame they belong to.
func WriteRecords(w io.Writer, records []pcap.Record) {
	st := newStyles(w)
	for i, r := range records {
		f := r.Frame
		ts := st.dim.Render(f.Timestamp.UTC().Format("15:04:05.000000"))
		line := r.String()
		if r.Response && r.Status.Error {
			line = st.err.Render(line)
		}
		fmt.Fprintf(w, "%4d %s %s:%d > %s:%d %s\n", i+1, ts, f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, line)
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "       %s\n", st.warn.Render("! "+issue))
		}
	}
}

// WriteSelfTest writes selftest results followed by the latency summary.
func WriteSelfTest(w io.Writer, r *SelfTestReport, summary *metrics.Summary) {
	st := newStyles(w)
	fmt.Fprintf(w, "%s %s\n", st.title.Render("Selftest:"), r.Catalog)
	for _, res := range r.Results {
		var mark string
		switch res.Outcome {
		case metrics.OutcomeSuccess:
			mark = st.ok.Render("[ OK ]")
		case metrics.OutcomeStatusError:
			mark = st.warn.Render(fmt.Sprintf("[0x%02X]", res.Status))
		default:
			mark = st.err.Render("[FAIL]")
		}
		mode := "ucmm"
		if res.Connected {
			mode = "conn"
		}
		detail := res.Value
		if res.Outcome != metrics.OutcomeSuccess {
			detail = res.Error
		}
		fmt.Fprintf(w, "  %s %s %-36s %-30s %s\n", mark, mode, res.Key, res.Label, detail)
	}
	fmt.Fprintf(w, "\n  passed=%d status_errors=%d failed=%d\n", r.Passed, r.StatusErrors, r.Failed)
	if summary != nil {
		fmt.Fprintln(w)
		for _, line := range strings.Split(strings.TrimRight(metrics.FormatSummary(summary), "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// printCounts writes "  key: n" lines, most frequent first and ties by key.
func printCounts(w io.Writer, values map[string]int) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if values[keys[i]] != values[keys[j]] {
			return values[keys[i]] > values[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, values[k])
	}
}

func formatUint8Counts(values map[uint8]int) string {
	keys := make([]uint8, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if values[keys[i]] != values[keys[j]] {
			return values[keys[i]] > values[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("0x%02X:%d", k, values[k])
	}
	return "[" + strings.Join(parts, " ") + "]"
}
