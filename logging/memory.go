package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Swind/go-backend-runtime/core"
)

const defaultMemoryCapacity = 1000

// MemoryLogger keeps the most recent formatted log lines in a ring buffer
// so they can be exported on demand (e.g. attached to a bug report). It
// optionally tees every record to an inner core.Logger and notifies a hook
// on each appended line.
type MemoryLogger struct {
	mu       sync.Mutex
	lines    []string
	head     int
	count    int
	inner    core.Logger
	onAppend func(line string)
}

// MemoryOption configures a MemoryLogger.
type MemoryOption func(*MemoryLogger)

// WithInner tees every record to the given logger after buffering.
func WithInner(inner core.Logger) MemoryOption {
	return func(m *MemoryLogger) { m.inner = inner }
}

// WithNotify invokes fn with each formatted line as it is appended. fn runs
// on the logging goroutine and must be fast.
func WithNotify(fn func(line string)) MemoryOption {
	return func(m *MemoryLogger) { m.onAppend = fn }
}

// NewMemoryLogger creates a memory logger keeping up to capacity lines.
// capacity < 1 uses the default of 1000.
func NewMemoryLogger(capacity int, opts ...MemoryOption) *MemoryLogger {
	if capacity < 1 {
		capacity = defaultMemoryCapacity
	}
	m := &MemoryLogger{lines: make([]string, capacity)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLogger) Debug(msg string, fields ...core.Field) { m.append("DEBUG", msg, fields) }
func (m *MemoryLogger) Info(msg string, fields ...core.Field)  { m.append("INFO", msg, fields) }
func (m *MemoryLogger) Warn(msg string, fields ...core.Field)  { m.append("WARN", msg, fields) }
func (m *MemoryLogger) Error(msg string, fields ...core.Field) { m.append("ERROR", msg, fields) }

func (m *MemoryLogger) append(level, msg string, fields []core.Field) {
	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" | ")
	sb.WriteString(level)
	sb.WriteString(" | ")
	sb.WriteString(msg)
	if len(fields) > 0 {
		sb.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", f.Key, f.Value)
		}
		sb.WriteString("}")
	}
	line := sb.String()

	m.mu.Lock()
	m.lines[m.head] = line
	m.head = (m.head + 1) % len(m.lines)
	if m.count < len(m.lines) {
		m.count++
	}
	notify := m.onAppend
	m.mu.Unlock()

	if notify != nil {
		notify(line)
	}
	if m.inner != nil {
		switch level {
		case "DEBUG":
			m.inner.Debug(msg, fields...)
		case "INFO":
			m.inner.Info(msg, fields...)
		case "WARN":
			m.inner.Warn(msg, fields...)
		case "ERROR":
			m.inner.Error(msg, fields...)
		}
	}
}

// Lines returns the buffered lines, oldest first.
func (m *MemoryLogger) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, m.count)
	start := (m.head - m.count + len(m.lines)) % len(m.lines)
	for i := 0; i < m.count; i++ {
		out = append(out, m.lines[(start+i)%len(m.lines)])
	}
	return out
}

// Len returns the number of buffered lines.
func (m *MemoryLogger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Export writes the buffered lines, oldest first, to the given path.
func (m *MemoryLogger) Export(path string) error {
	lines := m.Lines()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log export: %w", err)
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("write log export: %w", err)
		}
	}
	return nil
}
