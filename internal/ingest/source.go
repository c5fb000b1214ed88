// Package ingest feeds detector output into the stream manager. Each source
// decodes the shared JSON frame envelope (one message per frame) and hands
// frames to a FrameHandler; ordering within a stream is the transport's
// responsibility (UDP and Kafka preserve per-sender order, file replay is
// sequential by construction).
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
)

// DefaultFrameRate applies when an envelope does not carry fps.
const DefaultFrameRate = 25.0

// FrameHandler consumes decoded frames. The stream manager implements it;
// tests substitute collectors.
type FrameHandler interface {
	Process(streamID string, frameRate float64, frame traffic.Frame) error
}

// FrameEnvelope is the wire format shared by every ingest transport: one JSON
// object per frame.
type FrameEnvelope struct {
	StreamID   string              `json:"stream_id"`
	FrameIndex int64               `json:"frame_index"`
	FrameRate  float64             `json:"fps,omitempty"`
	TSUnix     float64             `json:"ts_unix,omitempty"`
	Detections []traffic.Detection `json:"detections"`
	Light      traffic.LightState  `json:"light"`
}

// DecodeFrame parses and validates one envelope.
func DecodeFrame(data []byte) (FrameEnvelope, error) {
	var env FrameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to decode frame envelope: %w", err)
	}
	if env.StreamID == "" {
		return env, fmt.Errorf("frame envelope missing stream_id")
	}
	if env.FrameIndex < 0 {
		return env, fmt.Errorf("frame envelope has negative frame_index %d", env.FrameIndex)
	}
	if env.FrameRate < 0 {
		return env, fmt.Errorf("frame envelope has negative fps %v", env.FrameRate)
	}
	if env.FrameRate == 0 {
		env.FrameRate = DefaultFrameRate
	}
	return env, nil
}

// Frame converts the envelope to the pipeline's input type. A zero TSUnix
// leaves the timestamp for the pipeline to derive from the frame index.
func (e FrameEnvelope) Frame() traffic.Frame {
	frame := traffic.Frame{
		Index:      e.FrameIndex,
		Detections: e.Detections,
		Light:      e.Light,
	}
	if e.TSUnix > 0 {
		frame.Timestamp = time.Unix(0, int64(e.TSUnix*1e9)).UTC()
	}
	return frame
}
