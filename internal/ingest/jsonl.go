package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
)

// ReplaySourceConfig configures JSONL file replay.
type ReplaySourceConfig struct {
	Path     string // file of frame envelopes, one JSON object per line
	Realtime bool   // pace frames at each stream's nominal fps
}

// ReplaySource replays a captured detection log. With Realtime unset it runs
// flat out, which is what the analysis tools want; with it set it approximates
// a live camera for end-to-end rehearsal.
type ReplaySource struct {
	config  ReplaySourceConfig
	handler FrameHandler
}

// NewReplaySource builds a file replay delivering frames to handler.
func NewReplaySource(config ReplaySourceConfig, handler FrameHandler) *ReplaySource {
	return &ReplaySource{config: config, handler: handler}
}

// Run replays the whole file, returning when done or when ctx is cancelled.
// Blank lines are skipped; malformed lines are logged and skipped so a
// truncated capture still replays as far as it goes.
func (s *ReplaySource) Run(ctx context.Context) error {
	f, err := os.Open(s.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var delivered, skipped int64
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		env, err := DecodeFrame(line)
		if err != nil {
			skipped++
			traffic.Diagf("replay %s line %d skipped: %v", s.config.Path, lineNo, err)
			continue
		}
		if err := s.handler.Process(env.StreamID, env.FrameRate, env.Frame()); err != nil {
			skipped++
			traffic.Diagf("replay frame %d on stream %s rejected: %v", env.FrameIndex, env.StreamID, err)
			continue
		}
		delivered++

		if s.config.Realtime {
			interval := time.Duration(float64(time.Second) / env.FrameRate)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read replay file: %w", err)
	}
	traffic.Opsf("replay %s complete: delivered=%d skipped=%d", s.config.Path, delivered, skipped)
	return nil
}
