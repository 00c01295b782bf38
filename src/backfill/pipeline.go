package backfill

import (
	"context"
	"errors"
	"io"
	"time"

	"stock-cache/src/feed/iex"
	"stock-cache/src/helpers"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Pipeline downloads a gzipped feed capture, decodes it and hands the trades
// to the caller in acknowledged batches.
type Pipeline struct {
	Network          interfaces.INetworkManager
	Lock             *FetchLock
	Logger           *logger.Logger
	BatchSize        int
	ProgressInterval time.Duration
}

func NewPipeline(network interfaces.INetworkManager, cfg models.MProviderConfig, log *logger.Logger) *Pipeline {
	interval := time.Duration(cfg.ProgressIntervalSecond) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return &Pipeline{
		Network:          network,
		Lock:             NewFetchLock(cfg.LockDir, time.Duration(cfg.LockPollSeconds)*time.Second, log.Named("lock")),
		Logger:           log,
		BatchSize:        cfg.BatchSize,
		ProgressInterval: interval,
	}
}

// -----------------------------------------------------------------------------

// Run processes one capture. A network or decode failure aborts the whole run.
func (p *Pipeline) Run(ctx context.Context, res models.MCaptureResource, onBatch interfaces.BatchFunc) error {
	return p.Lock.Do(ctx, res.URL, func(ctx context.Context) error {
		jobID := uuid.New()
		started := time.Now()
		p.Logger.Info("Backfill %s started for %s (%s)", jobID, res.Date, humanize.Bytes(uint64(res.SizeBytes())))

		err := runWorker(ctx, func(ctx context.Context, emit EmitFunc) error {
			return p.stream(ctx, res, emit)
		}, onBatch)
		if err != nil {
			p.Logger.Error("Backfill %s failed after %v: %v", jobID, time.Since(started).Round(time.Millisecond), err)
			return err
		}

		p.Logger.Info("Backfill %s finished in %v", jobID, time.Since(started).Round(time.Millisecond))
		return nil
	})
}

// -----------------------------------------------------------------------------

func (p *Pipeline) stream(ctx context.Context, res models.MCaptureResource, emit EmitFunc) error {
	body, size, err := p.Network.Stream(ctx, res.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	if size <= 0 {
		size = res.SizeBytes()
	}
	progress := newProgressReader(body, size, time.Now())
	stop := progress.report(ctx, p.ProgressInterval, p.Logger)
	defer stop()

	gz, err := gzip.NewReader(progress)
	if err != nil {
		return helpers.NewDecodeError("open gzip stream", err)
	}
	defer gz.Close()

	stats, err := DecodeCapture(gz, p.BatchSize, emit, p.Logger)
	if err != nil {
		return err
	}

	p.Logger.Info("Decoded %d frames into %d trades (%d skipped, %d failed payloads)",
		stats.Frames, stats.Trades, stats.SkippedFrames, stats.FailedPayloads)
	return nil
}

// -----------------------------------------------------------------------------

// DecodeCapture reads an uncompressed pcap or pcap-ng stream and emits its
// trades as price observations.
func DecodeCapture(r io.Reader, batchSize int, emit EmitFunc, log *logger.Logger) (iex.DecoderStats, error) {
	frames, err := iex.NewCaptureReader(r)
	if err != nil {
		return iex.DecoderStats{}, helpers.NewDecodeError("open capture", err)
	}

	decoder := iex.NewDecoder(batchSize, func(trades []iex.TradeReport) error {
		return emit(TradesToPrices(trades))
	}, log)

	for {
		data, _, err := frames.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return decoder.Stats(), helpers.NewDecodeError("read capture", err)
		}
		if err := decoder.Feed(data); err != nil {
			return decoder.Stats(), err
		}
	}

	if err := decoder.Close(); err != nil {
		return decoder.Stats(), err
	}
	return decoder.Stats(), nil
}

// TradesToPrices keeps the feed's fixed-point price and converts time to ms.
func TradesToPrices(trades []iex.TradeReport) []models.MStockPrice {
	prices := make([]models.MStockPrice, len(trades))
	for i, t := range trades {
		prices[i] = models.MStockPrice{
			Symbol: t.Symbol,
			Time:   t.TimeMs(),
			Price:  int64(t.Price),
		}
	}
	return prices
}
