//go:build pcap
// +build pcap

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// PCAPReplayConfig configures replay of a captured UDP frame feed.
type PCAPReplayConfig struct {
	Path     string // capture file
	UDPPort  int    // port the frame feed was captured on
	Realtime bool   // honour capture timestamps instead of replaying flat out
}

// ReplayPCAP replays the UDP frame datagrams in a capture file through the
// handler. Only available when building with the 'pcap' tag.
func ReplayPCAP(ctx context.Context, config PCAPReplayConfig, handler FrameHandler) error {
	handle, err := pcap.OpenOffline(config.Path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", config.Path, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", config.UDPPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var delivered, skipped int64
	var lastCapture time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				traffic.Opsf("pcap replay %s complete: delivered=%d skipped=%d", config.Path, delivered, skipped)
				return nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if config.Realtime {
				captured := packet.Metadata().Timestamp
				if !lastCapture.IsZero() && captured.After(lastCapture) {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(captured.Sub(lastCapture)):
					}
				}
				lastCapture = captured
			}

			env, err := DecodeFrame(udp.Payload)
			if err != nil {
				skipped++
				traffic.Diagf("pcap replay skipping malformed datagram: %v", err)
				continue
			}
			if err := handler.Process(env.StreamID, env.FrameRate, env.Frame()); err != nil {
				skipped++
				traffic.Diagf("pcap frame %d on stream %s rejected: %v", env.FrameIndex, env.StreamID, err)
				continue
			}
			delivered++
		}
	}
}
