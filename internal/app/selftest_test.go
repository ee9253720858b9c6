package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tturner/cipstack/internal/cip/catalog"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/config"
	"github.com/tturner/cipstack/internal/metrics"
	"github.com/tturner/cipstack/internal/pcap"
	"github.com/tturner/cipstack/internal/report"
	"github.com/tturner/cipstack/internal/target"
)

func runSelfTest(t *testing.T, opts SelfTestOptions) *SelfTestRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := RunSelfTest(ctx, opts)
	if err != nil {
		t.Fatalf("RunSelfTest() error = %v", err)
	}
	return run
}

func findResult(r *report.SelfTestReport, key string, connected bool) (report.SelfTestResult, bool) {
	for _, res := range r.Results {
		if res.Key == key && res.Connected == connected {
			return res, true
		}
	}
	return report.SelfTestResult{}, false
}

func TestRunSelfTest_Unconnected(t *testing.T) {
	run := runSelfTest(t, SelfTestOptions{})

	entries := len(catalog.Core().ListAll())
	if len(run.Report.Results) != entries {
		t.Fatalf("results = %d, want %d", len(run.Report.Results), entries)
	}
	if !run.Report.OK() {
		t.Errorf("report not OK: %+v", run.Report)
	}

	vendor, ok := findResult(run.Report, "identity.vendor_id", false)
	if !ok {
		t.Fatal("no identity.vendor_id result")
	}
	if vendor.Outcome != metrics.OutcomeSuccess {
		t.Errorf("vendor outcome = %s (%s)", vendor.Outcome, vendor.Error)
	}
	if want := fmt.Sprint(target.DefaultIdentity().VendorID); vendor.Value != want {
		t.Errorf("vendor value = %q, want %q", vendor.Value, want)
	}

	// The target has no symbol object, so tag reads come back with a
	// status error rather than failing the run.
	tag, ok := findResult(run.Report, "logix.read_tag", false)
	if !ok {
		t.Fatal("no logix.read_tag result")
	}
	if tag.Outcome != metrics.OutcomeStatusError || tag.Status != protocol.StatusPathDestUnknown {
		t.Errorf("tag result = %+v, want path destination unknown", tag)
	}

	if got := len(run.Metrics.Metrics()); got != entries {
		t.Errorf("metrics = %d, want %d", got, entries)
	}
	if run.Target.Opened != 0 {
		t.Errorf("target opened %d connections, want 0", run.Target.Opened)
	}
}

func TestRunSelfTest_Connected(t *testing.T) {
	keys := []string{"identity.vendor_id", "identity.product_name"}
	run := runSelfTest(t, SelfTestOptions{Keys: keys, Connected: true})

	if len(run.Report.Results) != 2*len(keys) {
		t.Fatalf("results = %d, want %d", len(run.Report.Results), 2*len(keys))
	}
	for _, key := range keys {
		res, ok := findResult(run.Report, key, true)
		if !ok {
			t.Fatalf("no connected result for %s", key)
		}
		if res.Outcome != metrics.OutcomeSuccess {
			t.Errorf("%s connected outcome = %s (%s)", key, res.Outcome, res.Error)
		}
	}

	byOp := run.Metrics.Summary().ByOperation
	for _, op := range []metrics.OperationType{metrics.OperationForwardOpen, metrics.OperationForwardClose} {
		if s := byOp[op]; s == nil || s.Success != 1 {
			t.Errorf("%s stats = %+v, want one success", op, s)
		}
	}
	if run.Target.Opened != 1 || run.Target.Closed != 1 || run.Target.Connections != 0 {
		t.Errorf("target stats = %+v, want one connection opened and closed", run.Target)
	}
}

func TestRunSelfTest_LocalRoute(t *testing.T) {
	cfg := config.CreateDefaultConfig()
	cfg.Connection.Route = ""
	run := runSelfTest(t, SelfTestOptions{Config: cfg, Keys: []string{"identity.serial_number"}})

	res := run.Report.Results[0]
	if res.Outcome != metrics.OutcomeSuccess {
		t.Errorf("outcome = %s (%s)", res.Outcome, res.Error)
	}
	if want := fmt.Sprint(target.DefaultIdentity().Serial); res.Value != want {
		t.Errorf("value = %q, want %q", res.Value, want)
	}
}

func TestRunSelfTest_Capture(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.CreateDefaultConfig()
	cfg.Connection.Route = ""
	run := runSelfTest(t, SelfTestOptions{Config: cfg, Capture: &buf, Keys: []string{"identity.vendor_id", "modbus.read_holding"}})
	if !run.Report.OK() {
		t.Fatalf("report not OK: %+v", run.Report)
	}

	frames, err := pcap.Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("pcap.Read() error = %v", err)
	}
	s := pcap.Summarize(pcap.Decode(frames))
	if s.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", s.Sessions)
	}
	if s.Requests != 2 || s.Responses != 2 {
		t.Errorf("requests/responses = %d/%d, want 2/2", s.Requests, s.Responses)
	}
	if s.Issues != 0 {
		t.Errorf("Issues = %d, want 0", s.Issues)
	}
}

func TestRunSelfTest_UnknownKey(t *testing.T) {
	_, err := RunSelfTest(context.Background(), SelfTestOptions{Keys: []string{"no.such.entry"}})
	if err == nil {
		t.Fatal("RunSelfTest() error = nil, want unknown key")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		resp *protocol.Response
		want string
	}{
		{"nil", nil, ""},
		{"value", &protocol.Response{Value: uint16(7)}, "7"},
		{"raw", &protocol.Response{Data: []byte{0x01, 0xAB}}, "01 AB"},
		{"long", &protocol.Response{Data: make([]byte, 20)}, "00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 ... (20 bytes)"},
		{"empty", &protocol.Response{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.resp); got != tt.want {
				t.Errorf("formatValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunSelfTest_Progress(t *testing.T) {
	var buf bytes.Buffer
	runSelfTest(t, SelfTestOptions{Progress: &buf, Keys: []string{"identity.vendor_id"}, Connected: true})
	out := buf.String()
	if !strings.Contains(out, "selftest [") || !strings.Contains(out, "] 2/2 | ") || !strings.HasSuffix(out, "\n") {
		t.Errorf("progress output = %q", out)
	}
}
