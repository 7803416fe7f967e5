package database

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Replay payloads are JSON compressed with zstd. Encoder and decoder are
// safe for concurrent EncodeAll/DecodeAll calls and are shared.
var (
	replayEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	replayDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxReplayPayload))
)

// maxReplayPayload caps the decompressed size of one stored frame.
const maxReplayPayload = 4 << 20

func encodeReplay(event any) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal replay event: %w", err)
	}
	return replayEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func decodeReplay(payload []byte) (any, error) {
	raw, err := replayDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress replay event: %w", err)
	}
	var event any
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("unmarshal replay event: %w", err)
	}
	return event, nil
}
