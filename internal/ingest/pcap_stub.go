//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"
)

// PCAPReplayConfig configures replay of a captured UDP frame feed.
type PCAPReplayConfig struct {
	Path     string
	UDPPort  int
	Realtime bool
}

// ReplayPCAP requires the 'pcap' build tag; this stub keeps default builds
// free of the libpcap dependency.
func ReplayPCAP(ctx context.Context, config PCAPReplayConfig, handler FrameHandler) error {
	return fmt.Errorf("pcap replay not available: rebuild with -tags pcap")
}
