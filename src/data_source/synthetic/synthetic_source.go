package synthetic

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"stock-cache/src/backfill"
	"stock-cache/src/feed/iex"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
	"stock-cache/src/provider"
	"stock-cache/src/utils"
)

const (
	SourceName = "TEST"

	minCents            = 1_000
	maxCents            = 100_000
	tradesPerInstrument = 20
	tradesPerPayload    = 8
)

var (
	namePrefixes = []string{
		"Acme", "Globex", "Initech", "Umbrella", "Stark", "Wayne", "Soylent", "Hooli",
		"Vandelay", "Cyberdyne", "Tyrell", "Wonka", "Oscorp", "Aperture", "Gringotts",
		"Pied Piper", "Dunder Mifflin", "Monarch", "Prestige", "Blue Sun",
	}
	nameSuffixes = []string{"Corp", "Inc.", "Holdings", "Group", "Industries", "Systems", "Labs", "LLC"}
)

// SyntheticSource fabricates instruments and prices. History is generated as
// a TOPS capture and decoded like a real one, deterministically per day.
type SyntheticSource struct {
	Config   models.MSyntheticConfig
	Calendar *utils.TradingCalendar
	Logger   *logger.Logger

	BatchSize int

	mu          sync.Mutex
	rng         *rand.Rand
	instruments []models.MInstrument
	tickers     map[string]context.CancelFunc
	ctx         context.Context
	deliver     interfaces.DeliverFunc
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	now func() time.Time
}

var _ interfaces.IDataSource = (*SyntheticSource)(nil)

// -----------------------------------------------------------------------------

func NewSyntheticSource(cfg models.MProviderConfig, log *logger.Logger) *SyntheticSource {
	if log == nil {
		log = logger.NewNop()
	}
	seed := cfg.Synthetic.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &SyntheticSource{
		Config:    cfg.Synthetic,
		Calendar:  utils.NewTradingCalendar(cfg.IEX.CalendarMIC, log),
		Logger:    log,
		BatchSize: cfg.BatchSize,
		rng:       rand.New(rand.NewSource(seed)),
		tickers:   make(map[string]context.CancelFunc),
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *SyntheticSource) Name() string {
	return SourceName
}

// -----------------------------------------------------------------------------

// ListInstruments generates the instrument universe on first use.
func (s *SyntheticSource) ListInstruments(ctx context.Context) ([]models.MInstrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instrumentsLocked(), nil
}

func (s *SyntheticSource) instrumentsLocked() []models.MInstrument {
	if s.instruments != nil {
		return append([]models.MInstrument(nil), s.instruments...)
	}

	lo, hi := s.Config.MinInstruments, s.Config.MaxInstruments
	if lo <= 0 {
		lo = 50
	}
	if hi <= lo {
		hi = lo + 1
	}
	count := lo + s.rng.Intn(hi-lo)

	seen := make(map[string]struct{}, count)
	s.instruments = make([]models.MInstrument, 0, count)
	for len(s.instruments) < count {
		symbol := s.randomSymbol()
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		s.instruments = append(s.instruments, models.MInstrument{
			Symbol: symbol,
			Name: fmt.Sprintf("%s %s",
				namePrefixes[s.rng.Intn(len(namePrefixes))],
				nameSuffixes[s.rng.Intn(len(nameSuffixes))]),
		})
	}

	s.Logger.Info("Generated %d synthetic instruments", count)
	return append([]models.MInstrument(nil), s.instruments...)
}

// randomSymbol returns 3 to 5 uppercase letters.
func (s *SyntheticSource) randomSymbol() string {
	n := 3 + s.rng.Intn(3)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('A' + s.rng.Intn(26)))
	}
	return b.String()
}

// -----------------------------------------------------------------------------

// CurrentPrices prices every known instrument. Callers filter.
func (s *SyntheticSource) CurrentPrices(ctx context.Context, symbols []string) ([]models.MStockPrice, error) {
	s.mu.Lock()
	instruments := s.instrumentsLocked()
	now := s.now().UnixMilli()
	prices := make([]models.MStockPrice, len(instruments))
	for i, inst := range instruments {
		prices[i] = models.MStockPrice{Symbol: inst.Symbol, Time: now, Price: randomPrice(s.rng)}
	}
	s.mu.Unlock()
	return prices, nil
}

// randomPrice returns a fixed-point price between 10 and 1000 at cent precision.
func randomPrice(rng *rand.Rand) int64 {
	cents := minCents + rng.Int63n(maxCents-minCents+1)
	return cents * (models.PriceScale / 100)
}

// -----------------------------------------------------------------------------

// Location is the timezone of the trading calendar.
func (s *SyntheticSource) Location() *time.Location {
	return s.Calendar.Timezone
}

// HistoricalPrices replays a generated capture of a past trading day. Today
// and later are not available.
func (s *SyntheticSource) HistoricalPrices(ctx context.Context, day time.Time, onBatch interfaces.BatchFunc) error {
	loc := s.Calendar.Timezone
	day = utils.OnDate(day, loc)
	if !day.Before(utils.StartOfDay(s.now(), loc)) {
		return fmt.Errorf("synthetic history for %s: %w", day.Format(time.DateOnly), provider.ErrNotImplemented)
	}
	if !s.Calendar.IsTradingDay(day) {
		return nil
	}

	s.mu.Lock()
	instruments := s.instrumentsLocked()
	s.mu.Unlock()

	capture, err := s.generateCapture(day, instruments)
	if err != nil {
		return err
	}

	stats, err := backfill.DecodeCapture(bytes.NewReader(capture), s.BatchSize, func(prices []models.MStockPrice) error {
		return onBatch(ctx, prices)
	}, s.Logger)
	if err != nil {
		return err
	}

	s.Logger.Debug("Synthetic %s: %d trades in %d frames", day.Format(time.DateOnly), stats.Trades, stats.Frames)
	return nil
}

// -----------------------------------------------------------------------------

// generateCapture builds a pcap-ng capture of random walks through the regular
// session of day. The same day and universe always yield the same bytes.
func (s *SyntheticSource) generateCapture(day time.Time, instruments []models.MInstrument) ([]byte, error) {
	loc := s.Calendar.Timezone
	d := utils.OnDate(day, loc)
	open := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, loc)
	session := int64(6*time.Hour + 30*time.Minute)

	rng := rand.New(rand.NewSource(s.Config.Seed ^ int64(d.Year()*10000+int(d.Month())*100+d.Day())))

	trades := make([]iex.TradeReport, 0, len(instruments)*tradesPerInstrument)
	var tradeID uint64
	for _, inst := range instruments {
		price := randomPrice(rng)
		for i := 0; i < tradesPerInstrument; i++ {
			// ±1% walk, kept in range
			price += price * (rng.Int63n(201) - 100) / 10_000
			price = max(price, minCents*(models.PriceScale/100))
			tradeID++
			trades = append(trades, iex.TradeReport{
				Timestamp: uint64(open.UnixNano() + rng.Int63n(session)),
				Symbol:    inst.Symbol,
				Size:      uint32(1 + rng.Intn(500)),
				Price:     uint64(price),
				TradeID:   tradeID,
			})
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })

	var frames [][]byte
	for start := 0; start < len(trades); start += tradesPerPayload {
		chunk := trades[start:min(start+tradesPerPayload, len(trades))]
		msgs := make([][]byte, 0, len(chunk)+1)
		msgs = append(msgs, iex.EncodeOpaque(iex.KindQuoteUpdate))
		for _, t := range chunk {
			msgs = append(msgs, iex.EncodeTradeReport(t))
		}

		frame, err := iex.BuildFrame(iex.EncodePayload(uint64(start+1), chunk[len(chunk)-1].Timestamp, msgs...))
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	var buf bytes.Buffer
	if err := iex.WriteCapture(&buf, open, frames); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------

// SubscribeSymbol starts a ticker for symbol. Before Start it is only recorded.
func (s *SyntheticSource) SubscribeSymbol(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickers[symbol]; ok {
		return nil
	}
	s.tickers[symbol] = nil
	if s.ctx != nil {
		s.startTickerLocked(symbol)
	}
	return nil
}

func (s *SyntheticSource) UnsubscribeSymbol(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel := s.tickers[symbol]; cancel != nil {
		cancel()
	}
	delete(s.tickers, symbol)
	return nil
}

// -----------------------------------------------------------------------------

func (s *SyntheticSource) Start(ctx context.Context, deliver interfaces.DeliverFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("source %s is already running", s.Name())
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.deliver = deliver
	for symbol := range s.tickers {
		s.startTickerLocked(symbol)
	}
	s.Logger.Info("Started synthetic source")
	return nil
}

func (s *SyntheticSource) startTickerLocked(symbol string) {
	interval := time.Duration(s.Config.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.tickers[symbol] = cancel
	deliver := s.deliver

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				price := models.MStockPrice{Symbol: symbol, Time: s.now().UnixMilli(), Price: randomPrice(s.rng)}
				s.mu.Unlock()
				deliver(symbol, price)
			}
		}
	}()
}

// -----------------------------------------------------------------------------

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}
