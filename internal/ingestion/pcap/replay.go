// Package pcap replays RTP captured in a pcap file into the inspector.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PacketHandler receives the UDP payload of each replayed datagram.
type PacketHandler func(payload []byte, src net.Addr) error

// Stats counts what a replay read and delivered.
type Stats struct {
	Packets   int `json:"packets"`   // records in the file
	Delivered int `json:"delivered"` // UDP payloads passed to the handler
	Skipped   int `json:"skipped"`   // non-UDP or filtered records
	Rejected  int `json:"rejected"`  // payloads the handler returned an error for
}

// Replay reads path and hands every UDP payload addressed to port to
// handler, in file order. Port 0 accepts every UDP datagram. Handler
// errors are counted, not returned.
func Replay(ctx context.Context, path string, port int, handler PacketHandler) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	return ReplayReader(ctx, f, port, handler)
}

// ReplayReader is Replay over an already opened capture.
func ReplayReader(ctx context.Context, r io.Reader, port int, handler PacketHandler) (Stats, error) {
	var stats Stats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read capture header: %w", err)
	}
	linkType := reader.LinkType()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || (port > 0 && int(udp.DstPort) != port) {
			stats.Skipped++
			continue
		}

		if err := handler(udp.Payload, sourceAddr(packet, udp)); err != nil {
			stats.Rejected++
			continue
		}
		stats.Delivered++
	}
}

func sourceAddr(packet gopacket.Packet, udp *layers.UDP) net.Addr {
	addr := &net.UDPAddr{Port: int(udp.SrcPort)}
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		addr.IP = ip.SrcIP
	case *layers.IPv6:
		addr.IP = ip.SrcIP
	}
	return addr
}
