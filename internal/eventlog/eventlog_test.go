package eventlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Infof("should not appear")
	l.Warnf("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestLogger_EmitRendersTaskLifecycle(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")

	l.Emit(Event{Kind: TaskStarted, TaskID: "T1"})
	l.Emit(Event{Kind: StageEntered, TaskID: "T1", Stage: "building", Iteration: 1})
	l.Emit(Event{Kind: TaskCompleted, TaskID: "T1"})

	out := buf.String()
	assert.True(t, strings.Contains(out, "T1 started"))
	assert.True(t, strings.Contains(out, "entering building"))
	assert.True(t, strings.Contains(out, "T1 completed"))
}

func TestLogger_NilWriterDiscardsSilently(t *testing.T) {
	l := New(nil, "info")
	assert.NotPanics(t, func() {
		l.Infof("discarded")
		l.Emit(Event{Kind: TaskStarted, TaskID: "T1"})
	})
}

func TestNormalizeLevel_DefaultsToInfo(t *testing.T) {
	assert.Equal(t, "info", normalizeLevel(""))
	assert.Equal(t, "info", normalizeLevel("bogus"))
	assert.Equal(t, "warn", normalizeLevel("WARN"))
}
