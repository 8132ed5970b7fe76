package emit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogEmitterTextMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{
		RunID:  "run-1",
		Pass:   3,
		NodeID: "sum",
		Msg:    "node_run",
		Meta:   map[string]interface{}{"duration_ms": 2},
	})

	out := buf.String()
	require.Contains(t, out, "node_run")
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "sum")
	require.Contains(t, out, `"duration_ms":2`)
}

func TestLogEmitterJSONMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{RunID: "run-1", Pass: 1, Msg: "pass_complete"})

	out := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(out, "{"))
	require.Contains(t, out, `"msg":"pass_complete"`)
}

func TestLogEmitterEmitBatchPreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	err := e.EmitBatch(context.Background(), []Event{
		{Msg: "a"},
		{Msg: "b"},
		{Msg: "c"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], `"msg":"a"`)
	require.Contains(t, lines[1], `"msg":"b"`)
	require.Contains(t, lines[2], `"msg":"c"`)
}

func TestNullEmitterDiscardsEverything(t *testing.T) {
	e := NewNullEmitter()
	e.Emit(Event{Msg: "ignored"})
	require.NoError(t, e.EmitBatch(context.Background(), []Event{{Msg: "ignored"}}))
	require.NoError(t, e.Flush(context.Background()))
}

func TestDefaultWriterFallsBackToStdout(t *testing.T) {
	e := NewLogEmitter(nil, false)
	require.NotNil(t, e.writer)
}
