//go:build !pcap
// +build !pcap

package main

import "log"

func main() {
	log.Fatal("replay-server requires libpcap; rebuild with -tags pcap")
}
