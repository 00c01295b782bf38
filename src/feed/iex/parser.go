package iex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	HeaderSize = 40

	protocolVersion = 0x01
	protocolID      = 0x8003
	channelID       = 1
)

var (
	ErrShortPayload   = errors.New("iex: payload too short")
	ErrBadHeader      = errors.New("iex: header assertion failed")
	ErrUnknownMessage = errors.New("iex: unknown message type")
)

// Header is the IEX-TP segment header that precedes every batch of messages.
type Header struct {
	Version       uint8
	Protocol      uint16
	Channel       uint32
	Session       uint32
	PayloadLength uint16
	MessageCount  uint16
	StreamOffset  uint64
	Sequence      uint64
	SendTime      uint64
}

// -----------------------------------------------------------------------------

// ParseHeader decodes and checks the fixed segment header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d header bytes", ErrShortPayload, len(b))
	}

	le := binary.LittleEndian
	h := Header{
		Version:       b[0],
		Protocol:      le.Uint16(b[2:4]),
		Channel:       le.Uint32(b[4:8]),
		Session:       le.Uint32(b[8:12]),
		PayloadLength: le.Uint16(b[12:14]),
		MessageCount:  le.Uint16(b[14:16]),
		StreamOffset:  le.Uint64(b[16:24]),
		Sequence:      le.Uint64(b[24:32]),
		SendTime:      le.Uint64(b[32:40]),
	}

	switch {
	case h.Version != protocolVersion:
		return h, fmt.Errorf("%w: version 0x%02x", ErrBadHeader, h.Version)
	case h.Protocol != protocolID:
		return h, fmt.Errorf("%w: protocol 0x%04x", ErrBadHeader, h.Protocol)
	case h.Channel != channelID:
		return h, fmt.Errorf("%w: channel %d", ErrBadHeader, h.Channel)
	}
	return h, nil
}

// -----------------------------------------------------------------------------

// ParsePayload decodes a UDP payload into its header and exactly MessageCount
// messages. Any error invalidates the whole payload.
func ParsePayload(b []byte) (Header, []Message, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return h, nil, err
	}

	messages := make([]Message, 0, h.MessageCount)
	pos := HeaderSize
	for i := 0; i < int(h.MessageCount); i++ {
		if pos+3 > len(b) {
			return h, nil, fmt.Errorf("%w: message %d of %d", ErrShortPayload, i+1, h.MessageCount)
		}

		// the 2-byte length prefix is informational; bodies advance by known width
		kind := MessageKind(b[pos+2])
		width, ok := kind.Width()
		if !ok {
			return h, nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessage, byte(kind))
		}

		body := pos + 2
		if body+width > len(b) {
			return h, nil, fmt.Errorf("%w: %s needs %d bytes", ErrShortPayload, kind, width)
		}

		messages = append(messages, decodeMessage(kind, b[body:body+width]))
		pos = body + width
	}

	return h, messages, nil
}

// -----------------------------------------------------------------------------

func decodeMessage(kind MessageKind, b []byte) Message {
	le := binary.LittleEndian
	switch kind {
	case KindTradeReport:
		return TradeReport{
			Flags:     b[1],
			Timestamp: le.Uint64(b[2:10]),
			Symbol:    trimSymbol(b[10:18]),
			Size:      le.Uint32(b[18:22]),
			Price:     le.Uint64(b[22:30]),
			TradeID:   le.Uint64(b[30:38]),
		}
	case KindOfficialPrice:
		return OfficialPrice{
			PriceType: b[1],
			Timestamp: le.Uint64(b[2:10]),
			Symbol:    trimSymbol(b[10:18]),
			Price:     le.Uint64(b[18:26]),
		}
	default:
		return Skipped{Type: kind, Width: len(b)}
	}
}

func trimSymbol(b []byte) string {
	return strings.TrimRight(string(b), " ")
}
