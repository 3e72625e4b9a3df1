package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextFormatWritesLevelsAndAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", "debug")
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		kv    string
	}{
		{"DEBUG", "dbg", "a=1"},
		{"INFO", "inf", "b=2"},
		{"WARN", "wrn", "c=3"},
		{"ERROR", "err", "d=4"},
	}
	for _, tc := range tests {
		assert.Contains(t, out, "level="+tc.level)
		assert.Contains(t, out, "msg="+tc.msg)
		assert.Contains(t, out, tc.kv)
	}
}

func TestNew_LevelFiltersLowerMessages(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", "warn")
	ctx := context.Background()

	log.Info(ctx, "hidden")
	log.Warn(ctx, "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestNew_JSONFormatIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "", "")

	log.Info(context.Background(), "hello", "athlete_id", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 42, entry["athlete_id"])
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", "info")

	log.With("run_id", "abc").Info(context.Background(), "refresh started", "credentials", 3)

	out := buf.String()
	for _, s := range []string{"msg=\"refresh started\"", "run_id=abc", "credentials=3"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	log := Discard()
	ctx := context.TODO()
	log.Debug(ctx, "x")
	log.Info(ctx, "x")
	log.Warn(ctx, "x")
	log.Error(ctx, "x")
	log.With("k", "v").Info(ctx, "x")
}
