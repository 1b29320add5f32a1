package parser

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"flow-classifier/internal/model"
)

// KeyFromPacket extracts the 5-tuple of a decoded packet. It returns false
// for packets without an IPv4 or IPv6 layer. Transports other than TCP, UDP
// and SCTP yield zero ports.
func KeyFromPacket(packet gopacket.Packet) (model.LookupKey, bool) {
	var key model.LookupKey
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		key.Src = addrFromIP(ip.SrcIP)
		key.Dst = addrFromIP(ip.DstIP)
		key.Protocol = uint8(ip.Protocol)
	case *layers.IPv6:
		key.Src = addrFromIP(ip.SrcIP)
		key.Dst = addrFromIP(ip.DstIP)
		key.Protocol = uint8(ip.NextHeader)
	default:
		return key, false
	}

	switch l4 := packet.TransportLayer().(type) {
	case *layers.TCP:
		key.Protocol = uint8(layers.IPProtocolTCP)
		key.SrcPort, key.DstPort = uint16(l4.SrcPort), uint16(l4.DstPort)
	case *layers.UDP:
		key.Protocol = uint8(layers.IPProtocolUDP)
		key.SrcPort, key.DstPort = uint16(l4.SrcPort), uint16(l4.DstPort)
	case *layers.SCTP:
		key.Protocol = uint8(layers.IPProtocolSCTP)
		key.SrcPort, key.DstPort = uint16(l4.SrcPort), uint16(l4.DstPort)
	}
	return key, true
}

func addrFromIP(ip net.IP) model.Addr {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return model.Addr{}
	}
	return model.AddrFrom(a)
}

// ReadPcapKeys decodes every packet of a pcap stream and returns the keys of
// the IP packets, labeled with their 1-based packet index.
func ReadPcapKeys(r io.Reader) ([]model.LabeledKey, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap: %w", err)
	}

	var keys []model.LabeledKey
	index := 0
	for {
		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", index+1, err)
		}
		index++
		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		key, ok := KeyFromPacket(packet)
		if !ok {
			continue
		}
		keys = append(keys, model.LabeledKey{Label: fmt.Sprintf("pkt%d", index), Key: key})
	}
	return keys, nil
}
