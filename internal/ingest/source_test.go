package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
)

// collector is a FrameHandler recording everything delivered to it.
type collector struct {
	mu     sync.Mutex
	frames []traffic.Frame
	reject error
}

func (c *collector) Process(streamID string, frameRate float64, frame traffic.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject != nil {
		return c.reject
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestDecodeFrame(t *testing.T) {
	data := []byte(`{
		"stream_id": "cam-1",
		"frame_index": 42,
		"fps": 30,
		"detections": [
			{"class": "car", "bbox": {"x": 10, "y": 20, "w": 100, "h": 60}, "confidence": 0.9}
		],
		"light": {"color": "red", "confidence": 0.85}
	}`)

	env, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if env.StreamID != "cam-1" || env.FrameIndex != 42 || env.FrameRate != 30 {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if len(env.Detections) != 1 || env.Detections[0].Class != traffic.ClassCar {
		t.Errorf("unexpected detections: %+v", env.Detections)
	}
	if env.Light.Color != traffic.LightRed {
		t.Errorf("light = %+v, want red", env.Light)
	}
}

func TestDecodeFrameDefaultsFrameRate(t *testing.T) {
	env, err := DecodeFrame([]byte(`{"stream_id": "cam-1", "frame_index": 0}`))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if env.FrameRate != DefaultFrameRate {
		t.Errorf("fps = %v, want default %v", env.FrameRate, DefaultFrameRate)
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"missing stream", `{"frame_index": 1}`},
		{"negative frame", `{"stream_id": "cam-1", "frame_index": -1}`},
		{"negative fps", `{"stream_id": "cam-1", "frame_index": 1, "fps": -5}`},
	}
	for _, tc := range cases {
		if _, err := DecodeFrame([]byte(tc.data)); err == nil {
			t.Errorf("%s: DecodeFrame should fail", tc.name)
		}
	}
}

func TestEnvelopeFrameTimestamp(t *testing.T) {
	withTS := FrameEnvelope{StreamID: "cam-1", FrameIndex: 3, TSUnix: 1765000000.5}
	frame := withTS.Frame()
	want := time.Unix(0, int64(1765000000.5*1e9)).UTC()
	if !frame.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", frame.Timestamp, want)
	}

	withoutTS := FrameEnvelope{StreamID: "cam-1", FrameIndex: 3}
	if !withoutTS.Frame().Timestamp.IsZero() {
		t.Error("timestamp should stay zero when the envelope omits ts_unix")
	}
}
