package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"

	"github.com/segmentio/kafka-go"
)

const (
	defaultBuffer = 1024
	maxBatch      = 100
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// -----------------------------------------------------------------------------

// TickPublisher mirrors live ticks to a Kafka topic, keyed by symbol.
type TickPublisher struct {
	Symbols []string
	Logger  *logger.Logger

	writer  MessageWriter
	ticks   chan models.MStockPrice
	dropped int64

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ interfaces.IPriceListener = (*TickPublisher)(nil)

// NewKafkaWriter builds the writer for cfg.
func NewKafkaWriter(cfg models.MPublisherConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              maxBatch,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// -----------------------------------------------------------------------------

func NewTickPublisher(cfg models.MPublisherConfig, writer MessageWriter, log *logger.Logger) *TickPublisher {
	size := cfg.Buffer
	if size <= 0 {
		size = defaultBuffer
	}
	if log == nil {
		log = logger.NewNop()
	}

	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	return &TickPublisher{
		Symbols: symbols,
		Logger:  log,
		writer:  writer,
		ticks:   make(chan models.MStockPrice, size),
		done:    make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// OnPrice buffers a tick. A full buffer drops it.
func (p *TickPublisher) OnPrice(price models.MStockPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	select {
	case p.ticks <- price:
	default:
		p.dropped++
		if p.dropped == 1 || p.dropped%1000 == 0 {
			p.Logger.Warning("Tick buffer full, %d ticks dropped", p.dropped)
		}
	}
}

// -----------------------------------------------------------------------------

// Run writes buffered ticks until ctx is done or Close is called.
func (p *TickPublisher) Run(ctx context.Context) {
	defer close(p.done)

	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-p.ticks:
			if !ok {
				return
			}
			batch = append(batch[:0], encode(tick))
		drain:
			for len(batch) < maxBatch {
				select {
				case more, ok := <-p.ticks:
					if !ok {
						break drain
					}
					batch = append(batch, encode(more))
				default:
					break drain
				}
			}
			if err := p.writer.WriteMessages(ctx, batch...); err != nil && !errors.Is(err, context.Canceled) {
				p.Logger.Error("Publishing %d ticks failed: %v", len(batch), err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Close stops accepting ticks, lets Run drain the buffer, then closes the writer.
func (p *TickPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ticks)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
	}
	return p.writer.Close()
}

// Dropped returns how many ticks overflowed the buffer.
func (p *TickPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// -----------------------------------------------------------------------------

func encode(tick models.MStockPrice) kafka.Message {
	value, _ := json.Marshal(models.NewTick(tick))
	return kafka.Message{
		Key:   []byte(tick.Symbol),
		Value: value,
		Time:  time.UnixMilli(tick.Time),
	}
}
