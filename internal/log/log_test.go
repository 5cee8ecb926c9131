package log

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingLogger struct {
	lines []string
}

func (c *capturingLogger) Log(level Level, msg string, fields ...Field) {
	c.lines = append(c.lines, msg)
}

func TestSetLoggerRoutesPackageFuncs(t *testing.T) {
	cl := &capturingLogger{}
	SetLogger(cl)
	defer SetLogger(nil)

	Info("hello")
	Warn("world")
	require.Len(t, cl.lines, 2)
	assert.Equal(t, "hello", cl.lines[0])
	assert.Equal(t, "world", cl.lines[1])
}

func TestSetLoggerNilRestoresDefault(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, get())
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	l := NewWriterLogger(w, LevelWarn)
	l.(*writerLogger).now = func() time.Time { return time.Unix(0, 0) }

	l.Log(LevelDebug, "suppressed")
	l.Log(LevelError, "shown", F("count", 3))
	w.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "count=3")
}

func TestLoggerFuncAdapter(t *testing.T) {
	var got string
	var lf LoggerFunc = func(level Level, msg string, fields ...Field) { got = msg }
	lf.Log(LevelInfo, "via-func")
	assert.Equal(t, "via-func", got)
}
