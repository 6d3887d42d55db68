package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one record captured by a TestLogger.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Err     error
}

// TestLogger is a Logger that records entries in memory instead of
// writing them anywhere. Loggers derived through WithField, WithFields
// and WithError share the parent's recorder, so a test can hand a
// component a decorated logger and still assert on a single stream.
type TestLogger struct {
	rec    *recorder
	fields map[string]interface{}
	err    error
	zl     *zerolog.Logger
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTestLogger builds an empty in-memory logger.
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{rec: &recorder{}, zl: &nop}
}

func (l *TestLogger) Debug(msg string) { l.capture("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.capture("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.capture("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.capture("ERROR", msg, nil) }

// Fatal records the entry like any other level. Tests must keep
// running, so nothing exits here.
func (l *TestLogger) Fatal(msg string) { l.capture("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.capture("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.capture("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.capture("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.capture("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.capture("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	derived := *l
	derived.fields = mergeFieldMaps(l.fields, fields)
	return &derived
}

func (l *TestLogger) WithError(err error) Logger {
	derived := *l
	derived.err = err
	return &derived
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.zl }

func (l *TestLogger) capture(level, msg string, fields map[string]interface{}) {
	entry := Entry{
		Level:   level,
		Message: msg,
		Fields:  mergeFieldMaps(l.fields, fields),
		Err:     l.err,
	}
	l.rec.mu.Lock()
	l.rec.entries = append(l.rec.entries, entry)
	l.rec.mu.Unlock()
}

func mergeFieldMaps(bound, call map[string]interface{}) map[string]interface{} {
	if len(bound) == 0 && len(call) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(bound)+len(call))
	for k, v := range bound {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}
	return merged
}

// Entries returns a copy of everything captured so far, oldest first.
func (l *TestLogger) Entries() []Entry {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	out := make([]Entry, len(l.rec.entries))
	copy(out, l.rec.entries)
	return out
}

// EntriesAt returns the captured entries with the given level, such as
// "WARN" or "ERROR".
func (l *TestLogger) EntriesAt(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Logged reports whether any captured entry carries exactly msg.
func (l *TestLogger) Logged(msg string) bool {
	for _, e := range l.Entries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// Reset discards all captured entries.
func (l *TestLogger) Reset() {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.entries = l.rec.entries[:0]
}

// String renders one line per entry, which makes t.Log(tl) useful when
// a test fails.
func (l *TestLogger) String() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "[%s] %s", e.Level, e.Message)
		if len(e.Fields) > 0 {
			fmt.Fprintf(&b, " fields=%v", e.Fields)
		}
		if e.Err != nil {
			fmt.Fprintf(&b, " error=%v", e.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
