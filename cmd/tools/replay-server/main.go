//go:build pcap
// +build pcap

// Command replay-server re-sends a captured UDP frame feed to a running
// violationd instance. It reads a PCAP capture, extracts the UDP frame
// datagrams and re-transmits them, honouring capture pacing by default.
//
// Usage:
//
//	go run -tags pcap ./cmd/tools/replay-server -pcap capture.pcap -target localhost:9101
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	pcapPath := flag.String("pcap", "", "Path to the PCAP capture (required)")
	target := flag.String("target", "localhost:9101", "UDP address of the violationd frame listener")
	port := flag.Int("port", 9101, "UDP port the feed was captured on")
	flat := flag.Bool("flat", false, "Replay as fast as possible instead of honouring capture pacing")
	loop := flag.Bool("loop", false, "Loop playback when reaching the end")
	flag.Parse()

	if *pcapPath == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Replaying %s to %s", *pcapPath, *target)
	for {
		sent, err := replayOnce(*pcapPath, *port, conn, !*flat, sigCh)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		log.Printf("Replay pass complete: %d datagrams sent", sent)
		if !*loop {
			return
		}
		select {
		case <-sigCh:
			log.Printf("Shutting down...")
			return
		default:
		}
	}
}

func replayOnce(path string, port int, conn net.Conn, paced bool, sigCh <-chan os.Signal) (int64, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var sent int64
	var lastCapture time.Time

	for packet := range source.Packets() {
		select {
		case <-sigCh:
			return sent, nil
		default:
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		if paced {
			captured := packet.Metadata().Timestamp
			if !lastCapture.IsZero() && captured.After(lastCapture) {
				time.Sleep(captured.Sub(lastCapture))
			}
			lastCapture = captured
		}

		if _, err := conn.Write(udp.Payload); err != nil {
			return sent, fmt.Errorf("failed to send datagram: %w", err)
		}
		sent++
	}
	return sent, nil
}
