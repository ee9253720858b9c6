package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tturner/cipstack/internal/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%v: error = %v\n%s", args, err, out)
	}
	return out
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.Contains(out, "cipstack version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestPathEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "logical",
			args: []string{"path", "encode", "--class", "0x01", "--instance", "1", "--attribute", "1"},
			want: []string{"Bytes (6): 20 01 24 01 30 01", "Words: 3"},
		},
		{
			name: "16-bit instance",
			args: []string{"path", "encode", "--class", "0x6B", "--instance", "0x1234"},
			want: []string{"Bytes (6): 20 6B 25 00 34 12"},
		},
		{
			name: "routed tag",
			args: []string{"path", "encode", "--route", "1,0", "--tag", "Counter"},
			want: []string{"Bytes (12): 01 00 91 07 43 6F 75 6E 74 65 72 00"},
		},
		{
			name: "decode",
			args: []string{"path", "decode", "20 01 24 01 30 01"},
			want: []string{"Words: 3", "Segments:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustExecute(t, tt.args...)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestPathDecode_Invalid(t *testing.T) {
	_, err := execute(t, "path", "decode", "20")
	if err == nil || !strings.Contains(err.Error(), "Cannot decode path") {
		t.Errorf("error = %v, want decode error", err)
	}
}

func TestRequestBuild(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "plain",
			args: []string{"request", "build", "identity.vendor_id"},
			want: "0E 03 20 01 24 01 30 01\n",
		},
		{
			name: "routed",
			args: []string{"request", "build", "identity.vendor_id", "--route", "1,0"},
			want: "52 02 20 06 24 01 0A 0E 08 00 0E 03 20 01 24 01 30 01 01 00 01 00\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := mustExecute(t, tt.args...); out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}

	if _, err := execute(t, "request", "build", "no.such.key"); err == nil {
		t.Error("unknown key: error = nil")
	}
}

func TestRequestDecode_Nested(t *testing.T) {
	multi := strings.TrimSpace(mustExecute(t, "request", "build", "identity.vendor_id", "identity.serial_number", "--route", "1,0"))
	out := mustExecute(t, "request", "decode", multi)
	for _, w := range []string{"Route: ", "Embedded:", "Request 1:", "Request 2:", "    Path: "} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestResponseDecode(t *testing.T) {
	out := mustExecute(t, "response", "decode", "8E 00 00 00 01 00", "--type", "UINT")
	if !strings.Contains(out, "Value (UINT): 1") {
		t.Errorf("output = %q", out)
	}

	out = mustExecute(t, "response", "decode", "8E 00 05 00")
	if !strings.Contains(out, "Status: 0x05") || strings.Contains(out, "Value") {
		t.Errorf("error reply output = %q", out)
	}

	if _, err := execute(t, "response", "decode", "8E", "--type", "UINT"); err == nil {
		t.Error("short reply: error = nil")
	}
	if _, err := execute(t, "response", "decode", "8E 00 00 00", "--type", "NOPE"); err == nil {
		t.Error("unknown type: error = nil")
	}
}

func TestForwardOpenBuildDecode(t *testing.T) {
	open := strings.TrimSpace(mustExecute(t, "forward-open", "build", "--serial", "0x42", "--ot-id", "0x1000"))
	out := mustExecute(t, "forward-open", "decode", open)
	for _, w := range []string{"Forward_Open", "Connection serial:  0x0042", "O->T id:            0x00001000"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}

	closeReq := strings.TrimSpace(mustExecute(t, "forward-open", "build", "--serial", "0x42", "--close"))
	out = mustExecute(t, "forward-open", "decode", closeReq)
	if !strings.Contains(out, "Forward_Close") || !strings.Contains(out, "0x0042") {
		t.Errorf("close output = %q", out)
	}

	if _, err := execute(t, "forward-open", "decode", "0E 03 20 01 24 01 30 01"); err == nil {
		t.Error("non connection manager request: error = nil")
	}
}

func TestCatalogCommands(t *testing.T) {
	out := mustExecute(t, "catalog", "list", "--search", "modbus")
	if !strings.Contains(out, "modbus.read_holding") || !strings.Contains(out, "2 entries") {
		t.Errorf("list output = %q", out)
	}

	out = mustExecute(t, "catalog", "show", "identity.vendor_id")
	if !strings.Contains(out, "Request:      0E 03 20 01 24 01 30 01") {
		t.Errorf("show output = %q", out)
	}

	out = mustExecute(t, "catalog", "validate")
	if !strings.Contains(out, "0 errors") {
		t.Errorf("validate output = %q", out)
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	mustExecute(t, "catalog", "export", "--output", path)
	out = mustExecute(t, "catalog", "list", "--catalog", path)
	if !strings.Contains(out, "identity.vendor_id") {
		t.Errorf("exported catalog list = %q", out)
	}
}

func TestConfigInitValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipstack.yaml")
	mustExecute(t, "config", "init", "--config", path)
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("second init without --force: error = nil")
	}
	mustExecute(t, "config", "init", "--config", path, "--force")

	out := mustExecute(t, "config", "validate", path)
	if !strings.Contains(out, "is valid") {
		t.Errorf("validate output = %q", out)
	}
}

func TestSelfTest(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cipstack.yaml")
	mustExecute(t, "config", "init", "--config", cfgPath)
	pcapPath := filepath.Join(dir, "selftest.pcap")
	csvPath := filepath.Join(dir, "selftest.csv")

	out := mustExecute(t, "selftest", "--config", cfgPath, "--key", "identity.vendor_id",
		"--pcap", pcapPath, "--metrics-csv", csvPath)
	if !strings.Contains(out, "passed=2 status_errors=0 failed=0") {
		t.Errorf("selftest output = %q", out)
	}

	out = mustExecute(t, "pcap", "summary", pcapPath)
	if !strings.Contains(out, "PCAP Summary:") {
		t.Errorf("pcap summary output = %q", out)
	}
	out = mustExecute(t, "pcap", "dump", pcapPath)
	if !strings.Contains(out, "RegisterSession") {
		t.Errorf("pcap dump output = %q", out)
	}
}

func TestSelfTest_JSON(t *testing.T) {
	out := mustExecute(t, "selftest", "--json", "--connected=false", "--key", "identity.vendor_id,identity.product_name")
	var r report.SelfTestReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if r.Passed != 2 || len(r.Results) != 2 || r.Catalog != "core" {
		t.Errorf("report = %+v", r)
	}
}
