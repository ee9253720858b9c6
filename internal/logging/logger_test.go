package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, opts Options) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts.Stdout, opts.Stderr = &stdout, &stderr
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.now = func() time.Time { return time.Date(2024, 3, 1, 11, 30, 45, 0, time.UTC) }
	t.Cleanup(func() { l.Close() })
	return l, &stdout, &stderr
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelDebug, path)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	l.stdout, l.stderr = &bytes.Buffer{}, &bytes.Buffer{}
	l.Error("e")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Closing twice is harmless.
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"ERROR: e", "INFO: i", "VERBOSE: v", "DEBUG: d"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}

	if _, err := NewLogger(LogLevelInfo, filepath.Join(t.TempDir(), "no", "such", "dir.log")); err == nil {
		t.Error("NewLogger(bad path) error = nil")
	}
}

func TestLoggerRouting(t *testing.T) {
	tests := []struct {
		name       string
		level      LogLevel
		wantStdout []string
		wantStderr []string
	}{
		{"silent", LogLevelSilent, nil, nil},
		{"error", LogLevelError, nil, []string{"ERROR: e"}},
		{"info", LogLevelInfo, nil, []string{"ERROR: e"}},
		{"verbose", LogLevelVerbose, []string{"INFO: i", "VERBOSE: v"}, []string{"ERROR: e"}},
		{"debug", LogLevelDebug, []string{"INFO: i", "VERBOSE: v", "DEBUG: d"}, []string{"ERROR: e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, stdout, stderr := newTestLogger(t, Options{Level: tt.level})
			l.Error("e")
			l.Info("i")
			l.Verbose("v")
			l.Debug("d")

			if got := strings.Count(stdout.String(), "\n"); got != len(tt.wantStdout) {
				t.Errorf("stdout lines = %d, want %d:\n%s", got, len(tt.wantStdout), stdout)
			}
			for _, want := range tt.wantStdout {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout missing %q", want)
				}
			}
			if got := strings.Count(stderr.String(), "\n"); got != len(tt.wantStderr) {
				t.Errorf("stderr lines = %d, want %d:\n%s", got, len(tt.wantStderr), stderr)
			}
		})
	}
}

func TestLoggerTextLine(t *testing.T) {
	l, _, stderr := newTestLogger(t, Options{Level: LogLevelInfo})
	l.Error("open %s", "x")
	if got, want := stderr.String(), "2024/03/01 11:30:45 ERROR: open x\n"; got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestLoggerSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, stdout, _ := newTestLogger(t, Options{Level: LogLevelVerbose, File: path, LogEvery: 3})
	for i := 0; i < 9; i++ {
		l.Info("msg %d", i)
	}
	l.Error("never sampled")
	l.Close()

	if got := strings.Count(stdout.String(), "\n"); got != 3 {
		t.Errorf("console lines = %d, want 3", got)
	}
	if !strings.Contains(stdout.String(), "msg 2") || strings.Contains(stdout.String(), "msg 0") {
		t.Errorf("console = %q, want every third message", stdout)
	}
	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\n"); got != 10 {
		t.Errorf("file lines = %d, want 10", got)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	l, stdout, stderr := newTestLogger(t, Options{Level: LogLevelDebug, Format: FormatJSON})
	l.Error("bad %d", 1)
	l.Debug("detail")

	var entry struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(stderr.Bytes(), &entry); err != nil {
		t.Fatalf("stderr is not JSON: %v (%q)", err, stderr)
	}
	if entry.Level != "error" || entry.Message != "bad 1" || entry.Time != "2024-03-01T11:30:45Z" {
		t.Errorf("entry = %+v", entry)
	}
	if err := json.Unmarshal(stdout.Bytes(), &entry); err != nil {
		t.Fatalf("stdout is not JSON: %v (%q)", err, stdout)
	}
	if entry.Level != "debug" {
		t.Errorf("level = %q, want debug", entry.Level)
	}
}

func TestLogExchange(t *testing.T) {
	l, stdout, _ := newTestLogger(t, Options{Level: LogLevelVerbose})
	l.LogExchange("Get_Attribute_Single", "identity.vendor_id", 0x00, 1234*time.Microsecond, nil)
	l.LogExchange("Read_Tag", "logix.read_tag", 0x05, 5678*time.Microsecond, nil)
	l.LogExchange("Get_Attribute_Single", "identity.status", 0, 0, errors.New("request timed out"))

	out := stdout.String()
	for _, want := range []string{
		"VERBOSE: OK Get_Attribute_Single on identity.vendor_id (RTT: 1.234ms)",
		"INFO: STATUS 0x05 Read_Tag on logix.read_tag (RTT: 5.678ms)",
		"INFO: FAILED Get_Attribute_Single on identity.status: request timed out",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogHex(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "DEBUG: packet (4 bytes): de ad be ef\n"},
		{LogLevelVerbose, ""},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			l, stdout, _ := newTestLogger(t, Options{Level: tt.level})
			l.LogHex("packet", []byte{0xDE, 0xAD, 0xBE, 0xEF})
			got := stdout.String()
			if tt.want == "" && got != "" || tt.want != "" && !strings.HasSuffix(got, tt.want) {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	l, stdout, _ := newTestLogger(t, Options{Level: LogLevelInfo})
	l.Verbose("hidden")
	l.SetLevel(LogLevelVerbose)
	l.Verbose("shown")
	if l.GetLevel() != LogLevelVerbose {
		t.Errorf("GetLevel() = %v, want verbose", l.GetLevel())
	}
	if out := stdout.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    LogLevel
		wantErr bool
	}{
		{"", LogLevelInfo, false},
		{"debug", LogLevelDebug, false},
		{"VERBOSE", LogLevelVerbose, false},
		{"silent", LogLevelSilent, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) error = nil")
	}
}

func TestNilAndNopLogger(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Error("ignored")
	nilLogger.LogHex("ignored", []byte{1})
	nilLogger.LogExchange("x", "y", 0, 0, nil)
	if nilLogger.Enabled(LogLevelError) {
		t.Error("nil logger should not be enabled")
	}
	if err := nilLogger.Close(); err != nil {
		t.Errorf("Close() on nil logger error = %v", err)
	}

	nop := Nop()
	nop.Error("ignored")
	if nop.Enabled(LogLevelError) {
		t.Error("Nop() logger should not be enabled")
	}
}
