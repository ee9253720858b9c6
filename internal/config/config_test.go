package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/target"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cipstack.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
connection:
  vendor_id: 0x0042
  originator_serial: 7
  o_to_t_size: 200
  route: "1,3"
messaging:
  request_timeout_ms: 750
`)
	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Connection.VendorID != 0x42 || cfg.Connection.OriginatorSerial != 7 || cfg.Connection.OToTSize != 200 {
		t.Errorf("connection = %+v", cfg.Connection)
	}
	// Unset values keep their defaults.
	if cfg.Connection.TToOSize != 504 || cfg.Connection.Priority != "low" || cfg.Connection.CloseTimeoutMs != 2000 {
		t.Errorf("connection defaults = %+v", cfg.Connection)
	}
	if cfg.RequestTimeout() != 750*time.Millisecond {
		t.Errorf("RequestTimeout() = %v, want 750ms", cfg.RequestTimeout())
	}
	if cfg.Target.ModbusRegisters != 100 || len(cfg.Target.PCCCFiles) != 4 {
		t.Errorf("target defaults = %+v", cfg.Target)
	}
}

func TestLoadConfig_AutoCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	if _, err := LoadConfig(path, false); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("LoadConfig(missing, false) error = %v, want not found", err)
	}
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig(missing, true) error = %v", err)
	}
	if !reflect.DeepEqual(cfg, CreateDefaultConfig()) {
		t.Errorf("auto-created config = %+v, want defaults", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "logging: [", "parse YAML"},
		{"bad level", "logging: {level: loud}", "logging.level"},
		{"bad format", "logging: {format: xml}", "logging.format"},
		{"negative sampling", "logging: {log_every: -2}", "logging.log_every"},
		{"bad priority", "connection: {priority: whenever}", "priority"},
		{"size too big", "connection: {o_to_t_size: 600}", "connection sizes"},
		{"zero rpi", "connection: {t_to_o_rpi_us: 0}", "rpi"},
		{"odd route", `connection: {route: "1"}`, "port,link pairs"},
		{"zero timeout", "messaging: {request_timeout_ms: 0}", "request_timeout_ms"},
		{"bad pccc file", "target: {pccc_files: [{file: Q9, elements: 4}]}", "pccc_files[0]"},
		{"duplicate pccc file", "target: {pccc_files: [{file: N7, elements: 4}, {file: n7, elements: 2}]}", "declared twice"},
		{"negative modbus", "target: {modbus_registers: -1}", "modbus_registers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_LargeSizes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "connection: {large: true, o_to_t_size: 4000, t_to_o_size: 4000}"), false)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	params, err := cfg.Connection.Params()
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}
	want, _ := connection.NetworkParams(4000, true, connection.PriorityLow, connection.TypePointToPoint, true)
	if !params.Large || params.OtoTParams != want || params.TtoOParams != want {
		t.Errorf("Params() = large %v, 0x%08X/0x%08X, want 0x%08X", params.Large, params.OtoTParams, params.TtoOParams, want)
	}
}

func TestConnectionConfig_ParamsMatchDefaults(t *testing.T) {
	params, err := CreateDefaultConfig().Connection.Params()
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}
	want := connection.DefaultParams()
	if !reflect.DeepEqual(params, want) {
		t.Errorf("Params() = %+v, want %+v", params, want)
	}
	if !bytes.Equal(params.Path.Bytes(), want.Path.Bytes()) {
		t.Errorf("path = % X, want % X", params.Path.Bytes(), want.Path.Bytes())
	}
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		route string
		want  []codec.Segment
	}{
		{"", nil},
		{"1,0", []codec.Segment{codec.Port{Port: 1, Link: []byte{0}}}},
		{" 1, 3 ", []codec.Segment{codec.Port{Port: 1, Link: []byte{3}}}},
		{"1,0,2,10.0.0.5", []codec.Segment{
			codec.Port{Port: 1, Link: []byte{0}},
			codec.Port{Port: 2, Link: []byte("10.0.0.5")},
		}},
		{"18,0x02", []codec.Segment{codec.Port{Port: 18, Link: []byte{2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			got, err := ParseRoute(tt.route)
			if err != nil {
				t.Fatalf("ParseRoute(%q) error = %v", tt.route, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRoute(%q) = %v, want %v", tt.route, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"1", "x,0", "0,1", "1,300", "1,host"} {
		if _, err := ParseRoute(bad); err == nil {
			t.Errorf("ParseRoute(%q) error = nil", bad)
		}
	}
}

func TestTargetConfig_Options(t *testing.T) {
	cfg := CreateDefaultTargetConfig()
	cfg.Identity.ProductName = "bench"
	opts, err := cfg.Options(nil)
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	// Logger, identity, Modbus and PCCC.
	if len(opts) != 4 {
		t.Fatalf("Options() = %d options, want 4", len(opts))
	}
	tgt := target.New(opts...)
	if tgt == nil {
		t.Fatal("target.New() = nil")
	}

	cfg.ModbusRegisters = 0
	cfg.PCCCFiles = nil
	if opts, _ := cfg.Options(nil); len(opts) != 2 {
		t.Errorf("Options() without data = %d options, want 2", len(opts))
	}
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := CreateDefaultConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "cipstack.log")
	cfg.Logging.Format = "json"
	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("log file = %q, want the message", data)
	}
}
