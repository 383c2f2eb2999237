package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Success(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "json stdout debug",
			config: Config{Level: "debug", Format: "json", OutputPath: "stdout"},
		},
		{
			name:   "console stderr info",
			config: Config{Level: "info", Format: "console", OutputPath: "stderr"},
		},
		{
			name:   "empty level defaults to info",
			config: Config{Format: "json", OutputPath: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if log == nil || log.Logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", Format: "json"})
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "jstail.log")

	log, err := New(Config{Level: "info", Format: "json", OutputPath: logFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Info("session started", Int("consumers", 3))
	_ = log.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain the entry")
	}
}

func TestNew_InvalidFilePath(t *testing.T) {
	_, err := New(Config{Level: "info", OutputPath: "/invalid/path/that/does/not/exist/test.log"})
	if err == nil {
		t.Fatal("expected error for invalid file path")
	}
}

func TestLogger_Children(t *testing.T) {
	log := Nop()

	if log.Named("session").Logger == nil {
		t.Fatal("expected named logger")
	}
	if log.WithStream("ORDERS").Logger == nil {
		t.Fatal("expected stream-scoped logger")
	}
	if log.WithField("generation", "abc").Logger == nil {
		t.Fatal("expected field-scoped logger")
	}
}

func TestHelperFunctions(t *testing.T) {
	if f := String("stream", "ORDERS"); f.Key != "stream" {
		t.Errorf("expected key 'stream', got '%s'", f.Key)
	}
	if f := Strings("streams", []string{"A"}); f.Key != "streams" {
		t.Errorf("expected key 'streams', got '%s'", f.Key)
	}
	if f := Uint64("sequence", 7); f.Key != "sequence" {
		t.Errorf("expected key 'sequence', got '%s'", f.Key)
	}
	if f := Duration("delay", time.Second); f.Key != "delay" {
		t.Errorf("expected key 'delay', got '%s'", f.Key)
	}
	if f := Error(errors.New("boom")); f.Key != "error" {
		t.Errorf("expected key 'error', got '%s'", f.Key)
	}
}
