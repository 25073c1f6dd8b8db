package logging

import (
	"bytes"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

var _ asynq.Logger = (*AsynqLogger)(nil)

func TestLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("processor", &buf, "info")

	l.With("document_id", "doc-1").Info("page recognized", "page", 2)
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=processor")
	assert.Contains(t, out, "document_id=doc-1")
	assert.Contains(t, out, "page=2")
	assert.NotContains(t, out, "hidden")
}

func TestAsynqAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("queue", &buf, "debug")

	l.Asynq().Warn("retrying ", "task")

	assert.Contains(t, buf.String(), "retrying task")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}
