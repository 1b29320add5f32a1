package parser

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-classifier/internal/model"
	"flow-classifier/pkg/wellknown"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...)
	require.NoError(t, err)
	return buf.Bytes()
}

func ethernet(etherType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: etherType,
	}
}

func tcpOverIPv4(t *testing.T) []byte {
	return serialize(t,
		ethernet(layers.EthernetTypeIPv4),
		&layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 10, 222, 4),
		},
		&layers.TCP{SrcPort: 40000, DstPort: 22, SYN: true},
	)
}

func udpOverIPv6(t *testing.T) []byte {
	return serialize(t,
		ethernet(layers.EthernetTypeIPv6),
		&layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      net.ParseIP("2001:db8::1"),
			DstIP:      net.ParseIP("1111:2222:0:0:ffff::"),
		},
		&layers.UDP{SrcPort: 5353, DstPort: 53},
	)
}

func arpPacket(t *testing.T) []byte {
	return serialize(t,
		ethernet(layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		},
	)
}

func TestKeyFromPacketIPv4TCP(t *testing.T) {
	packet := gopacket.NewPacket(tcpOverIPv4(t), layers.LayerTypeEthernet, gopacket.Default)
	key, ok := KeyFromPacket(packet)
	require.True(t, ok)
	assert.Equal(t, model.LookupKey{
		Src:      model.MustParseAddr("10.0.0.1"),
		Dst:      model.MustParseAddr("::ffff:10.10.222.4"),
		Protocol: wellknown.TCP,
		SrcPort:  40000,
		DstPort:  22,
	}, key)
}

func TestKeyFromPacketIPv6UDP(t *testing.T) {
	packet := gopacket.NewPacket(udpOverIPv6(t), layers.LayerTypeEthernet, gopacket.Default)
	key, ok := KeyFromPacket(packet)
	require.True(t, ok)
	assert.Equal(t, model.MustParseAddr("1111:2222:0:0:ffff::"), key.Dst)
	assert.Equal(t, wellknown.UDP, key.Protocol)
	assert.Equal(t, uint16(53), key.DstPort)
}

func TestKeyFromPacketSkipsNonIP(t *testing.T) {
	packet := gopacket.NewPacket(arpPacket(t), layers.LayerTypeEthernet, gopacket.Default)
	_, ok := KeyFromPacket(packet)
	assert.False(t, ok)
}

func TestReadPcapKeys(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, data := range [][]byte{tcpOverIPv4(t), arpPacket(t), udpOverIPv6(t)} {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(0, 0), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}

	keys, err := ReadPcapKeys(&buf)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "pkt1", keys[0].Label)
	assert.Equal(t, uint16(22), keys[0].Key.DstPort)
	assert.Equal(t, "pkt3", keys[1].Label)
	assert.Equal(t, uint16(53), keys[1].Key.DstPort)
}

func TestReadPcapKeysRejectsGarbage(t *testing.T) {
	_, err := ReadPcapKeys(bytes.NewReader([]byte("not a pcap file at all")))
	assert.Error(t, err)
}
