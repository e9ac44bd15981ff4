package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_BasicLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "logfmt", Output: &buf})

	log.Debug("dbg", String("k", "v"))
	log.Info("info", Int("n", 42))
	log.Warn("warn", Bool("ok", true))
	log.Error("err", Error(nil))

	out := buf.String()
	// Expect all levels present (debug is the lowest configured)
	for _, s := range []string{
		"level=debug msg=dbg k=v",
		"level=info msg=info n=42",
		"level=warn msg=warn ok=true",
		"level=error msg=err error=nil",
	} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected output to contain %q, got: %s", s, out)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "logfmt", Output: &buf})

	log.Debug("hidden-debug")
	log.Info("hidden-info")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug and info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Fatalf("expected warn message in output, got: %s", out)
	}
	if log.Enabled(InfoLevel) || !log.Enabled(ErrorLevel) {
		t.Fatal("Enabled disagrees with configured level")
	}
}

func TestLogger_WithComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", Format: "logfmt", Output: &buf})
	comp := base.WithComponent("sweep.runner")

	comp.Info("started")

	out := buf.String()
	if !strings.Contains(out, "component=sweep.runner") {
		t.Fatalf("expected component field in output, got: %s", out)
	}
	if !strings.Contains(out, "msg=started") {
		t.Fatalf("expected info message in output, got: %s", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.With(String("run", "abc")).Info("point", Float64("ber", 0.5), Error(errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "point" || entry["run"] != "abc" || entry["error"] != "boom" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["ber"] != 0.5 {
		t.Errorf("ber = %v, want 0.5", entry["ber"])
	}
}
