package iex

import (
	"stock-cache/src/logger"
)

// DefaultBatchSize is the number of trades buffered before a flush.
const DefaultBatchSize = 5000

// BatchFunc receives a flushed batch. The slice is not reused afterwards.
// A non-nil error stops the decoder.
type BatchFunc func(trades []TradeReport) error

// DecoderStats counts what happened to the frames fed so far.
type DecoderStats struct {
	Frames         int
	SkippedFrames  int
	FailedPayloads int
	Trades         int
	Batches        int
}

// Decoder turns captured frames into batches of trade reports. A frame that
// does not parse is counted and dropped; the stream continues.
type Decoder struct {
	batchSize int
	onBatch   BatchFunc
	depack    *Depacketizer
	buf       []TradeReport
	stats     DecoderStats
	logger    *logger.Logger
}

func NewDecoder(batchSize int, onBatch BatchFunc, log *logger.Logger) *Decoder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Decoder{
		batchSize: batchSize,
		onBatch:   onBatch,
		depack:    NewDepacketizer(),
		buf:       make([]TradeReport, 0, batchSize),
		logger:    log,
	}
}

// -----------------------------------------------------------------------------

// Feed decodes one captured frame. It only returns errors from the batch callback.
func (d *Decoder) Feed(frame []byte) error {
	d.stats.Frames++

	payload, ok := d.depack.Payload(frame)
	if !ok {
		d.stats.SkippedFrames++
		return nil
	}

	return d.FeedPayload(payload)
}

// FeedPayload decodes an application payload that was already unwrapped.
func (d *Decoder) FeedPayload(payload []byte) error {
	_, messages, err := ParsePayload(payload)
	if err != nil {
		d.stats.FailedPayloads++
		d.logger.Debug("Dropping payload: %v", err)
		return nil
	}

	for _, m := range messages {
		if trade, ok := m.(TradeReport); ok {
			d.buf = append(d.buf, trade)
		}
	}

	if len(d.buf) >= d.batchSize {
		return d.flush()
	}
	return nil
}

// -----------------------------------------------------------------------------

// Close flushes whatever is buffered.
func (d *Decoder) Close() error {
	if len(d.buf) == 0 {
		return nil
	}
	return d.flush()
}

func (d *Decoder) flush() error {
	batch := d.buf
	d.buf = make([]TradeReport, 0, d.batchSize)
	d.stats.Trades += len(batch)
	d.stats.Batches++
	return d.onBatch(batch)
}

// Stats returns the counters accumulated so far.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}
