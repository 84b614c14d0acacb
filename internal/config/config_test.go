package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.APIURL != DefaultAPIURL {
		t.Errorf("server.api_url = %q, want %q", cfg.Server.APIURL, DefaultAPIURL)
	}
	if cfg.Server.AssistantID != DefaultAssistantID {
		t.Errorf("server.assistant_id = %q, want %q", cfg.Server.AssistantID, DefaultAssistantID)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("server.timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if len(cfg.Stream.Modes) != 2 || cfg.Stream.Modes[0] != "values" {
		t.Errorf("stream.modes = %v, want [values custom]", cfg.Stream.Modes)
	}
	if !cfg.Stream.Subgraphs || !cfg.Stream.Resumable {
		t.Error("stream.subgraphs/resumable should default to true")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Audit.Enabled {
		t.Error("audit.enabled = true, want false")
	}
	if cfg.Gateway.Addr() != "127.0.0.1:18790" {
		t.Errorf("gateway addr = %q", cfg.Gateway.Addr())
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  api_url: "http://agents.internal:8123/"
  assistant_id: hotline
  timeout: 5s
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 结尾的 / 会被去掉
	if cfg.Server.APIURL != "http://agents.internal:8123" {
		t.Errorf("server.api_url = %q", cfg.Server.APIURL)
	}
	if cfg.Server.AssistantID != "hotline" {
		t.Errorf("server.assistant_id = %q, want hotline", cfg.Server.AssistantID)
	}
	if cfg.Server.Timeout != 5*time.Second {
		t.Errorf("server.timeout = %v, want 5s", cfg.Server.Timeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format = %q, want json", cfg.Log.Format)
	}
	if Path() != configFile {
		t.Errorf("Path() = %q, want %q", Path(), configFile)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.AssistantID != DefaultAssistantID {
		t.Errorf("assistant_id = %q", cfg.Server.AssistantID)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("AGENTDESK_SERVER_ASSISTANT_ID", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.AssistantID != "from-env" {
		t.Errorf("assistant_id = %q, want from-env", cfg.Server.AssistantID)
	}
}

func TestSetPersists(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := Set("server.assistant_id", "dispatch"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(data), "dispatch") {
		t.Errorf("saved config missing value:\n%s", data)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := &Config{Server: ServerConfig{APIURL: DefaultAPIURL, AssistantID: "agent"}}

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"~", home},
		{"~/audit.db", filepath.Join(home, "audit.db")},
		{"/tmp/x", "/tmp/x"},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPaths(t *testing.T) {
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".agentdesk", "config.yaml")) {
		t.Errorf("DefaultConfigPath() = %q", path)
	}

	audit, err := DefaultAuditPath()
	if err != nil {
		t.Fatalf("DefaultAuditPath: %v", err)
	}
	if !strings.HasSuffix(audit, filepath.Join(".agentdesk", "audit.db")) {
		t.Errorf("DefaultAuditPath() = %q", audit)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	cases := map[string]string{
		"scheme":    "server:\n  api_url: ftp://agents\n",
		"assistant": "server:\n  assistant_id: \"  \"\n",
		"level":     "log:\n  level: chatty\n",
		"port":      "gateway:\n  port: 70000\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			Reset()
			defer Reset()

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Server: ServerConfig{APIURL: "https://agents.example.com", AssistantID: "agent"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.Server.APIURL = "agents.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("URL without scheme accepted")
	}
}

func TestHomeEnvOverridesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if path != filepath.Join(dir, "config.yaml") {
		t.Errorf("DefaultConfigPath() = %q", path)
	}
	audit, err := DefaultAuditPath()
	if err != nil {
		t.Fatalf("DefaultAuditPath: %v", err)
	}
	if audit != filepath.Join(dir, "audit.db") {
		t.Errorf("DefaultAuditPath() = %q", audit)
	}
}

func TestExpandPathEnv(t *testing.T) {
	t.Setenv("AUDIT_DIR", "/var/lib/agentdesk")

	got, err := ExpandPath("$AUDIT_DIR/audit.db")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != "/var/lib/agentdesk/audit.db" {
		t.Errorf("ExpandPath = %q", got)
	}
}
