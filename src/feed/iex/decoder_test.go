package iex

import (
	"errors"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeFrame(t *testing.T, symbols ...string) []byte {
	t.Helper()
	var msgs [][]byte
	for i, s := range symbols {
		msgs = append(msgs, EncodeTradeReport(TradeReport{Symbol: s, Price: uint64(10_000 * (i + 1)), Timestamp: 5_000_000}))
	}
	frame, err := BuildFrame(EncodePayload(1, 0, msgs...))
	require.NoError(t, err)
	return frame
}

func TestDepacketizerExtractsUDPPayload(t *testing.T) {
	payload := EncodePayload(9, 0, EncodeOpaque(KindSystemEvent))
	frame, err := BuildFrame(payload)
	require.NoError(t, err)

	got, ok := NewDepacketizer().Payload(frame)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestDepacketizerRejectsNonUDP(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	eth := &layers.Ethernet{
		SrcMAC:       []byte{2, 0, 0, 0, 0, 1},
		DstMAC:       []byte{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{2, 0, 0, 0, 0, 1},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, arp))

	_, ok := NewDepacketizer().Payload(buf.Bytes())
	assert.False(t, ok)

	_, ok = NewDepacketizer().Payload([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestDecoderFlushesAtHighWaterMark(t *testing.T) {
	var batches [][]TradeReport
	d := NewDecoder(3, func(trades []TradeReport) error {
		batches = append(batches, trades)
		return nil
	}, nil)

	require.NoError(t, d.Feed(tradeFrame(t, "A", "B")))
	assert.Empty(t, batches, "below the mark nothing is flushed")

	require.NoError(t, d.Feed(tradeFrame(t, "C")))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)

	require.NoError(t, d.Feed(tradeFrame(t, "D")))
	require.NoError(t, d.Close())
	require.Len(t, batches, 2)
	assert.Equal(t, "D", batches[1][0].Symbol)

	stats := d.Stats()
	assert.Equal(t, 4, stats.Trades)
	assert.Equal(t, 2, stats.Batches)
}

func TestDecoderSkipsBadFramesAndContinues(t *testing.T) {
	var got []TradeReport
	d := NewDecoder(100, func(trades []TradeReport) error {
		got = append(got, trades...)
		return nil
	}, nil)

	bad := EncodePayload(1, 0, EncodeTradeReport(TradeReport{Symbol: "LOST"}), []byte{1, 0, 'Z'})
	badFrame, err := BuildFrame(bad)
	require.NoError(t, err)

	require.NoError(t, d.Feed([]byte("garbage")))
	require.NoError(t, d.Feed(badFrame))
	require.NoError(t, d.Feed(tradeFrame(t, "KEPT")))
	require.NoError(t, d.Close())

	require.Len(t, got, 1)
	assert.Equal(t, "KEPT", got[0].Symbol)
	assert.Equal(t, 1, d.Stats().SkippedFrames)
	assert.Equal(t, 1, d.Stats().FailedPayloads)
}

func TestDecoderForwardsOnlyTrades(t *testing.T) {
	var got []TradeReport
	d := NewDecoder(10, func(trades []TradeReport) error {
		got = append(got, trades...)
		return nil
	}, nil)

	payload := EncodePayload(1, 0,
		EncodeOfficialPrice(OfficialPrice{Symbol: "SPY", Price: 1}),
		EncodeTradeReport(TradeReport{Symbol: "SPY", Price: 2}),
	)
	require.NoError(t, d.FeedPayload(payload))
	require.NoError(t, d.Close())

	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Price)
}

func TestDecoderPropagatesCallbackError(t *testing.T) {
	boom := errors.New("tx closed")
	d := NewDecoder(1, func([]TradeReport) error { return boom }, nil)
	assert.ErrorIs(t, d.Feed(tradeFrame(t, "A")), boom)
}

func TestDecoderCloseWithoutDataDoesNotFlush(t *testing.T) {
	called := false
	d := NewDecoder(1, func([]TradeReport) error { called = true; return nil }, nil)
	require.NoError(t, d.Close())
	assert.False(t, called)
}
