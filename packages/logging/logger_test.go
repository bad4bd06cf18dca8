package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(WithWriter(&buf), WithNoColor(true))

	l.Printf("skipping %s", "get-user")
	l.Printf("warning: unresolved variable: %s", "token")

	assert.Equal(t, "skipping get-user\nwarning: unresolved variable: token\n", buf.String())
}

func TestConsoleLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(WithWriter(&buf), WithNoColor(true), WithQuiet(true))

	l.Printf("case started")
	l.Printf("error: boom")

	assert.Equal(t, "error: boom\n", buf.String())
}

func TestCapturingLogger(t *testing.T) {
	l := &CapturingLogger{}
	l.Printf("one %d", 1)
	l.Printf("two")

	assert.Equal(t, []string{"one 1", "two"}, l.Messages())
	assert.Len(t, l.Output(), 2)
}
