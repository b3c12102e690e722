package pcap

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type datagram struct {
	srcPort, dstPort uint16
	payload          []byte
	tcp              bool
}

func writeCapture(t *testing.T, datagrams []datagram) []byte {
	t.Helper()

	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Unix(1700000000, 0)
	for _, d := range datagrams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version: 4,
			TTL:     64,
			SrcIP:   net.IPv4(10, 0, 0, 1),
			DstIP:   net.IPv4(10, 0, 0, 2),
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if d.tcp {
			ip.Protocol = layers.IPProtocolTCP
			tcp := &layers.TCP{SrcPort: layers.TCPPort(d.srcPort), DstPort: layers.TCPPort(d.dstPort)}
			require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
			require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(d.payload)))
		} else {
			ip.Protocol = layers.IPProtocolUDP
			udp := &layers.UDP{SrcPort: layers.UDPPort(d.srcPort), DstPort: layers.UDPPort(d.dstPort)}
			require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
			require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload)))
		}

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
		ts = ts.Add(33 * time.Millisecond)
	}
	return out.Bytes()
}

func TestReplayReader_FiltersByPort(t *testing.T) {
	capture := writeCapture(t, []datagram{
		{srcPort: 6000, dstPort: 5004, payload: []byte("one")},
		{srcPort: 6000, dstPort: 5006, payload: []byte("other port")},
		{srcPort: 6000, dstPort: 5004, payload: []byte("tcp"), tcp: true},
		{srcPort: 6000, dstPort: 5004, payload: []byte("two")},
	})

	var got []string
	var src net.Addr
	stats, err := ReplayReader(context.Background(), bytes.NewReader(capture), 5004, func(payload []byte, addr net.Addr) error {
		got = append(got, string(payload))
		src = addr
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, "10.0.0.1:6000", src.String())
	assert.Equal(t, Stats{Packets: 4, Delivered: 2, Skipped: 2}, stats)
}

func TestReplayReader_AnyPort(t *testing.T) {
	capture := writeCapture(t, []datagram{
		{srcPort: 1, dstPort: 5004, payload: []byte("a")},
		{srcPort: 1, dstPort: 7000, payload: []byte("b")},
	})

	stats, err := ReplayReader(context.Background(), bytes.NewReader(capture), 0, func([]byte, net.Addr) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Delivered)
}

func TestReplayReader_CountsHandlerErrors(t *testing.T) {
	capture := writeCapture(t, []datagram{
		{srcPort: 1, dstPort: 5004, payload: []byte("bad")},
		{srcPort: 1, dstPort: 5004, payload: []byte("good")},
	})

	stats, err := ReplayReader(context.Background(), bytes.NewReader(capture), 5004, func(p []byte, _ net.Addr) error {
		if string(p) == "bad" {
			return errors.New("rejected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Delivered)
}

func TestReplayReader_Cancelled(t *testing.T) {
	capture := writeCapture(t, []datagram{{srcPort: 1, dstPort: 2, payload: []byte("x")}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReplayReader(ctx, bytes.NewReader(capture), 0, func([]byte, net.Addr) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay_Errors(t *testing.T) {
	_, err := Replay(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), 0, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(path, []byte("not a capture"), 0o644))
	_, err = Replay(context.Background(), path, 0, nil)
	assert.Error(t, err)
}

func TestReplay_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtp.pcap")
	require.NoError(t, os.WriteFile(path, writeCapture(t, []datagram{
		{srcPort: 1, dstPort: 5004, payload: []byte("rtp")},
	}), 0o644))

	stats, err := Replay(context.Background(), path, 5004, func([]byte, net.Addr) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delivered)
}
