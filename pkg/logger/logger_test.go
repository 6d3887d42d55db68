package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"kemonograb/pkg/config"
)

// jsonLogger builds a debug-level zerologLogger writing JSON lines to
// buf, bypassing New so tests control the sink.
func jsonLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}
}

// lastEntry decodes the most recent JSON line in buf.
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	entry := map[string]interface{}{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("output is not a JSON line: %v\n%s", err, buf.String())
	}
	return entry
}

func TestNew(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"text at info", &config.LoggingConfig{Level: "info", Format: "text"}, false},
		{"text at debug", &config.LoggingConfig{Level: "debug", Format: "text"}, false},
		{"json format", &config.LoggingConfig{Level: "info", Format: "json"}, false},
		{"bogus level rejected", &config.LoggingConfig{Level: "shouting"}, true},
		{"with file sink", &config.LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(t.TempDir(), "grab.log"),
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected New to fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got == nil {
				t.Fatal("New returned a nil logger")
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grab.log")
	log, err := New(&config.LoggingConfig{Level: "info", Format: "text", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.InfoWithFields("file sink check", map[string]interface{}{"creator": "9001"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	// The file side always carries JSON regardless of console format.
	if !strings.Contains(string(data), `"file sink check"`) {
		t.Errorf("log file missing the message: %s", data)
	}
	if !strings.Contains(string(data), `"creator":"9001"`) {
		t.Errorf("log file missing the field: %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	valid := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"INFO":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"panic":    zerolog.PanicLevel,
		"disabled": zerolog.Disabled,
	}
	for input, want := range valid {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Errorf("parseLogLevel(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	for _, input := range []string{"", "verbose", "loud"} {
		if _, err := parseLogLevel(input); err == nil {
			t.Errorf("parseLogLevel(%q) should fail", input)
		}
	}
}

func TestLevelMethods(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	calls := []struct {
		level string
		fn    func(string)
	}{
		{"debug", log.Debug},
		{"info", log.Info},
		{"warn", log.Warn},
		{"error", log.Error},
	}

	for _, call := range calls {
		buf.Reset()
		call.fn("pipeline event")

		entry := lastEntry(t, &buf)
		if entry["level"] != call.level {
			t.Errorf("level = %v, want %s", entry["level"], call.level)
		}
		if entry["message"] != "pipeline event" {
			t.Errorf("message = %v, want pipeline event", entry["message"])
		}
	}
}

func TestBoundFields(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	log.WithField("creator", "9001").
		WithField("service", "patreon").
		WithFields(map[string]interface{}{
			"post":  "555",
			"files": 4,
		}).
		Info("post scheduled")

	entry := lastEntry(t, &buf)
	if entry["creator"] != "9001" || entry["service"] != "patreon" {
		t.Errorf("chained WithField values missing: %v", entry)
	}
	if entry["post"] != "555" {
		t.Errorf("post = %v, want 555", entry["post"])
	}
	if entry["files"] != float64(4) {
		t.Errorf("files = %v, want 4", entry["files"])
	}
}

func TestBoundFieldsReplayOnEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf).WithField("component", "pool")

	log.Info("first")
	first := lastEntry(t, &buf)
	log.Info("second")
	second := lastEntry(t, &buf)

	if first["component"] != "pool" || second["component"] != "pool" {
		t.Errorf("bound field must appear on every event: %v / %v", first, second)
	}
}

func TestOneShotFields(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	log.InfoWithFields("transfer finished", map[string]interface{}{
		"file":    "page_01.jpg",
		"bytes":   int64(1536),
		"skipped": false,
	})

	entry := lastEntry(t, &buf)
	if entry["message"] != "transfer finished" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["file"] != "page_01.jpg" {
		t.Errorf("file = %v", entry["file"])
	}
	if entry["bytes"] != float64(1536) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
	if entry["skipped"] != false {
		t.Errorf("skipped = %v", entry["skipped"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	if log.WithError(nil) != Logger(log) {
		t.Error("WithError(nil) should return the receiver unchanged")
	}

	log.WithError(errors.New("connection reset")).Error("transfer failed")

	entry := lastEntry(t, &buf)
	if entry["error"] != "connection reset" {
		t.Errorf("error field = %v, want connection reset", entry["error"])
	}
	if entry["message"] != "transfer failed" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	log.WithFields(map[string]interface{}{
		"name":     "cover.png",
		"count":    12,
		"offset":   int64(250),
		"ratio":    0.5,
		"resumed":  true,
		"at":       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"took":     5 * time.Second,
		"hosts":    []string{"n1", "n2"},
		"statuses": []int{200, 429},
		"custom":   struct{ Name string }{Name: "x"},
	}).Info("all field kinds")

	entry := lastEntry(t, &buf)
	if entry["name"] != "cover.png" || entry["count"] != float64(12) {
		t.Errorf("basic fields wrong: %v", entry)
	}
	if entry["at"] != "2023-01-01T00:00:00Z" {
		t.Errorf("time field = %v", entry["at"])
	}
	if entry["took"] != float64(5000) {
		t.Errorf("duration should be milliseconds, got %v", entry["took"])
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Initialize(&config.LoggingConfig{Level: "debug", Format: "text"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger returned nil after Initialize")
	}

	// Package-level helpers route through the global logger and must
	// not panic.
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
	WithField("key", "value").Info("with field")
	WithFields(map[string]interface{}{"k1": "v1", "k2": "v2"}).Info("with fields")
	WithError(errors.New("boom")).Error("with error")
}
