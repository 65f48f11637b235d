package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterBestEffort(t *testing.T) {
	t.Run("nil emitter is a no-op", func(t *testing.T) {
		var e *Emitter
		assert.NotPanics(t, func() { e.Emit(ApplyStart) })
	})

	t.Run("sink error is swallowed", func(t *testing.T) {
		e := NewEmitter(SinkFunc(func(Event) error { return errors.New("disk full") }))
		assert.NotPanics(t, func() { e.Emit(ApplyFile, "path", "a.txt") })
	})

	t.Run("sink panic is recovered", func(t *testing.T) {
		e := NewEmitter(SinkFunc(func(Event) error { panic("boom") }))
		assert.NotPanics(t, func() { e.Emit(ApplyFile) })
	})
}

func TestEmitterFields(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec)
	e.Emit(ApplyFile, "path", "a.txt", "error", errors.New("denied"), "count", 2)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, ApplyFile, got[0].Name)
	assert.Equal(t, "a.txt", got[0].Fields["path"])
	assert.Equal(t, "denied", got[0].Fields["error"])
	assert.Equal(t, 2, got[0].Fields["count"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(NewJSONLines(&buf))
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	e.Emit(ParseStart, "bytes", 10)
	e.Emit(ParseComplete, "files", 1)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, ParseStart, first["event"])
	assert.Equal(t, "2026-01-02T03:04:05Z", first["timestamp"])
	assert.Equal(t, float64(10), first["bytes"])
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	failing := SinkFunc(func(Event) error { return errors.New("nope") })
	err := Multi{a, failing, nil, b}.Emit(Event{Name: Rollback})
	assert.Error(t, err)
	assert.Equal(t, []string{Rollback}, a.Names())
	assert.Equal(t, []string{Rollback}, b.Names())
}
