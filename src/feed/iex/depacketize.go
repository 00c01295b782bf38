package iex

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Depacketizer extracts UDP payloads from Ethernet frames. It reuses its layer
// buffers and is not safe for concurrent use.
type Depacketizer struct {
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	udp     layers.UDP
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func NewDepacketizer() *Depacketizer {
	d := &Depacketizer{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.dot1q, &d.ip4, &d.udp)
	// Stop quietly at IPv6, ARP, fragments and the UDP application layer.
	d.parser.IgnoreUnsupported = true
	return d
}

// Payload returns the UDP payload of an Ethernet/IPv4/UDP frame, or false for
// any other frame.
func (d *Depacketizer) Payload(frame []byte) ([]byte, bool) {
	if err := d.parser.DecodeLayers(frame, &d.decoded); err != nil {
		return nil, false
	}

	var sawIPv4, sawUDP bool
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			sawIPv4 = true
		case layers.LayerTypeUDP:
			sawUDP = true
		}
	}
	if !sawIPv4 || !sawUDP {
		return nil, false
	}
	return d.udp.Payload, true
}
