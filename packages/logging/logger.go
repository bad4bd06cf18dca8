// Package logging provides the small logging surface used by the runner and
// the CLI: a Printf-style Logger, a colored console implementation and a
// capturing implementation for tests.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Level prefixes a console line. Messages starting with "warning:" or
// "error:" are colored accordingly.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type ConsoleLogger struct {
	mu      sync.Mutex
	writer  io.Writer
	quiet   bool
	noColor bool
}

type ConsoleOption func(*ConsoleLogger)

func WithWriter(w io.Writer) ConsoleOption {
	return func(l *ConsoleLogger) {
		l.writer = w
	}
}

// WithQuiet drops everything except warnings and errors.
func WithQuiet(q bool) ConsoleOption {
	return func(l *ConsoleLogger) {
		l.quiet = q
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(l *ConsoleLogger) {
		l.noColor = nc
	}
}

func NewConsoleLogger(opts ...ConsoleOption) *ConsoleLogger {
	l := &ConsoleLogger{writer: os.Stderr}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *ConsoleLogger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	level := levelOf(msg)
	if l.quiet && level == LevelInfo {
		return
	}

	c := color.New(color.Faint)
	switch level {
	case LevelWarning:
		c = color.New(color.FgYellow)
	case LevelError:
		c = color.New(color.FgRed)
	}
	if l.noColor {
		c.DisableColor()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.writer, c.Sprint(msg))
}

func levelOf(msg string) Level {
	switch {
	case strings.HasPrefix(msg, "warning:"):
		return LevelWarning
	case strings.HasPrefix(msg, "error:"):
		return LevelError
	default:
		return LevelInfo
	}
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

// CapturingLogger keeps every message in memory.
type CapturingLogger struct {
	lock   sync.Mutex
	output []CapturedMessage
}

func (l *CapturingLogger) Printf(format string, args ...any) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(format, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() []CapturedMessage {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

// Messages returns only the message texts.
func (l *CapturingLogger) Messages() []string {
	out := l.Output()
	msgs := make([]string, len(out))
	for i, m := range out {
		msgs[i] = m.Message
	}
	return msgs
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...any) {}

// Discard is a Logger that drops every message.
var Discard Logger = nullLogger{}
