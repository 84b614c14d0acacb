package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: " Debug ", want: zerolog.DebugLevel},
		{in: "warning", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "verbose", want: zerolog.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	if err := Init(LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Init(LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Init(LogConfig{File: filepath.Join(t.TempDir(), "missing", "agentdesk.log")}); err == nil {
		t.Error("expected error for unwritable log file")
	}
}

func TestInitAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.log")
	t.Cleanup(func() { _ = Close() })

	if err := Init(LogConfig{Level: "debug", Format: "json", File: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug().Str("thread_id", "t-1").Msg("stream opened")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// closing twice is harmless
	if err := Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"thread_id":"t-1"`) {
		t.Errorf("log file missing entry: %s", content)
	}
}

func TestNamed(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	SetOutput(&buf)

	l := Named("resolver")
	l.Info().Msg("draft edited")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry["component"] != "resolver" || entry["message"] != "draft edited" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	SetOutput(&buf)

	FromContext(context.Background()).Info().Msg("global")
	if !strings.Contains(buf.String(), `"message":"global"`) {
		t.Fatalf("bare context should use the global logger, got %s", buf.String())
	}

	buf.Reset()
	scoped := Get().With().Str("request_id", "req-7").Logger()
	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx).Info().Msg("scoped")
	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Errorf("context logger not used, got %s", buf.String())
	}
}

func TestGetBeforeInit(t *testing.T) {
	mu.Lock()
	saved := global
	global = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		global = saved
		mu.Unlock()
	})

	if Get() == nil {
		t.Fatal("Get() returned nil before Init")
	}
}
