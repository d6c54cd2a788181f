package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"transports":[{"name":"api","url":"http://localhost:9000"}]}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("Host = %s", cfg.Host)
	}
	if cfg.Port != DefaultPort || cfg.StatusPort != DefaultStatusPort {
		t.Errorf("ports = %d, %d", cfg.Port, cfg.StatusPort)
	}
	if cfg.QuietWindow != DefaultQuietWindow {
		t.Errorf("QuietWindow = %d", cfg.QuietWindow)
	}
	if cfg.JournalSize != DefaultJournalSize {
		t.Errorf("JournalSize = %d", cfg.JournalSize)
	}
	if cfg.Transports[0].Kind != KindHTTP {
		t.Errorf("Kind = %s, want http default", cfg.Transports[0].Kind)
	}
	if cfg.Transports[0].MessageTimeout != DefaultMessageTimeout {
		t.Errorf("MessageTimeout = %d", cfg.Transports[0].MessageTimeout)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"port": 9090,
		"statusPort": 9091,
		"logLevel": "debug",
		"quietWindow": 1000,
		"transports": [{"name": "rpc", "kind": "ws", "url": "ws://localhost:8546", "pingInterval": 5000}]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 || cfg.QuietWindow != 1000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Transports[0].Kind != KindWS {
		t.Errorf("Kind = %s", cfg.Transports[0].Kind)
	}
	if cfg.Transports[0].GetPingIntervalDuration().Milliseconds() != 5000 {
		t.Errorf("PingInterval = %v", cfg.Transports[0].GetPingIntervalDuration())
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no transports", `{}`},
		{"missing name", `{"transports":[{"url":"http://x"}]}`},
		{"missing url", `{"transports":[{"name":"api"}]}`},
		{"duplicate name", `{"transports":[{"name":"api","url":"http://x"},{"name":"api","url":"http://y"}]}`},
		{"bad kind", `{"transports":[{"name":"api","kind":"smtp","url":"http://x"}]}`},
		{"bad log level", `{"logLevel":"trace","transports":[{"name":"api","url":"http://x"}]}`},
		{"same ports", `{"port":9000,"statusPort":9000,"transports":[{"name":"api","url":"http://x"}]}`},
		{"not json", `not json`},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
