package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/catalog/pkg/observability/logger"
)

// MockLogger is a test logger that captures log entries for assertion in tests.
// Loggers derived with With share the captured entries and prepend their fields.
type MockLogger struct {
	once   sync.Once
	sink   *sink
	fields []any
}

type sink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Debug records a debug-level log entry.
func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }

// Info records an info-level log entry.
func (m *MockLogger) Info(msg string, args ...any) { m.record("info", msg, args) }

// Warn records a warn-level log entry.
func (m *MockLogger) Warn(msg string, args ...any) { m.record("warn", msg, args) }

// Error records an error-level log entry.
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a logger that adds args to every entry it records.
func (m *MockLogger) With(args ...any) logger.Logger {
	derived := &MockLogger{sink: m.shared(), fields: append(append([]any{}, m.fields...), args...)}
	derived.once.Do(func() {})
	return derived
}

// WithContext returns the same logger.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	return m
}

// Entries returns the captured entries, optionally filtered by level.
func (m *MockLogger) Entries(level string) []LogEntry {
	s := m.shared()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LogEntry
	for _, e := range s.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether an entry with level and msg was captured.
func (m *MockLogger) Has(level, msg string) bool {
	for _, e := range m.Entries(level) {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

func (m *MockLogger) record(level, msg string, args []any) {
	s := m.shared()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, LogEntry{
		Level:  level,
		Msg:    msg,
		Fields: argsToMap(append(append([]any{}, m.fields...), args...)),
	})
}

func (m *MockLogger) shared() *sink {
	m.once.Do(func() { m.sink = &sink{} })
	return m.sink
}

func argsToMap(args []any) map[string]any {
	fields := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
