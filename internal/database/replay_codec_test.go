package database

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayCodec_RoundTrip(t *testing.T) {
	event := map[string]any{
		"type":   "throw",
		"frames": []any{1.0, 2.0, 3.0},
		"hit":    true,
	}

	payload, err := encodeReplay(event)
	require.NoError(t, err)

	got, err := decodeReplay(payload)
	require.NoError(t, err)
	assert.Equal(t, event, got)
}

func TestReplayCodec_CompressesRepetitiveFrames(t *testing.T) {
	frames := make([]map[string]int, 500)
	for i := range frames {
		frames[i] = map[string]int{"x": 10, "y": 20}
	}

	payload, err := encodeReplay(frames)
	require.NoError(t, err)
	assert.Less(t, len(payload), 500)
}

func TestReplayCodec_RejectsGarbage(t *testing.T) {
	_, err := decodeReplay(bytes.Repeat([]byte{0x42}, 32))
	require.Error(t, err)
}

func TestReplayCodec_UnmarshalableEvent(t *testing.T) {
	_, err := encodeReplay(make(chan int))
	require.Error(t, err)
}

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"-- name: SaveRun\n\t\tINSERT INTO run_logs", "SaveRun"},
		{"SELECT pg_advisory_lock($1)", "select"},
		{"\n\tinsert\tinto x", "insert"},
		{"VACUUM", "other"},
		{"   ", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), tt.sql)
	}
}
