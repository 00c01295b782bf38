package iex

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Encoding is the inverse of ParsePayload and Depacketizer. It backs synthetic
// captures and replay tooling.

// EncodeTradeReport returns a length-prefixed trade report message.
func EncodeTradeReport(t TradeReport) []byte {
	b := make([]byte, 2+38)
	le := binary.LittleEndian
	le.PutUint16(b[0:2], 38)
	m := b[2:]
	m[0] = byte(KindTradeReport)
	m[1] = t.Flags
	le.PutUint64(m[2:10], t.Timestamp)
	putSymbol(m[10:18], t.Symbol)
	le.PutUint32(m[18:22], t.Size)
	le.PutUint64(m[22:30], t.Price)
	le.PutUint64(m[30:38], t.TradeID)
	return b
}

// EncodeOfficialPrice returns a length-prefixed official price message.
func EncodeOfficialPrice(p OfficialPrice) []byte {
	b := make([]byte, 2+26)
	le := binary.LittleEndian
	le.PutUint16(b[0:2], 26)
	m := b[2:]
	m[0] = byte(KindOfficialPrice)
	m[1] = p.PriceType
	le.PutUint64(m[2:10], p.Timestamp)
	putSymbol(m[10:18], p.Symbol)
	le.PutUint64(m[18:26], p.Price)
	return b
}

// EncodeOpaque returns a zero-filled, length-prefixed message of a fixed-width kind.
func EncodeOpaque(kind MessageKind) []byte {
	width, ok := kind.Width()
	if !ok {
		width = 1
	}
	b := make([]byte, 2+width)
	binary.LittleEndian.PutUint16(b[0:2], uint16(width))
	b[2] = byte(kind)
	return b
}

func putSymbol(dst []byte, symbol string) {
	for i := range dst {
		dst[i] = ' '
	}
	copy(dst, symbol)
}

// -----------------------------------------------------------------------------

// EncodePayload prefixes messages with a valid segment header.
func EncodePayload(sequence uint64, sendTime uint64, messages ...[]byte) []byte {
	bodyLen := 0
	for _, m := range messages {
		bodyLen += len(m)
	}

	b := make([]byte, HeaderSize, HeaderSize+bodyLen)
	le := binary.LittleEndian
	b[0] = protocolVersion
	le.PutUint16(b[2:4], protocolID)
	le.PutUint32(b[4:8], channelID)
	le.PutUint32(b[8:12], 1)
	le.PutUint16(b[12:14], uint16(bodyLen))
	le.PutUint16(b[14:16], uint16(len(messages)))
	le.PutUint64(b[24:32], sequence)
	le.PutUint64(b[32:40], sendTime)
	for _, m := range messages {
		b = append(b, m...)
	}
	return b
}

// -----------------------------------------------------------------------------

// BuildFrame wraps payload in Ethernet, IPv4 and UDP headers.
func BuildFrame(payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x01, 0, 0x5e, 0, 0, 0x2a},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(233, 215, 21, 4),
	}
	udp := &layers.UDP{SrcPort: 10378, DstPort: 10378}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------

// WriteCapture writes frames as a pcap-ng stream.
func WriteCapture(w io.Writer, start time.Time, frames [][]byte) error {
	ng, err := pcapgo.NewNgWriter(w, layers.LinkTypeEthernet)
	if err != nil {
		return err
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Microsecond),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := ng.WritePacket(ci, f); err != nil {
			return err
		}
	}
	return ng.Flush()
}
