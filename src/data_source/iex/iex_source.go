package iex

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"stock-cache/src/backfill"
	tops "stock-cache/src/feed/iex"
	"stock-cache/src/helpers"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
	"stock-cache/src/utils"

	"github.com/shopspring/decimal"
)

const SourceName = "IEX"

// IEXSource reads reference data and quotes from the IEX REST API, replays
// historical days from the TOPS captures and streams live trades over
// socket.io.
type IEXSource struct {
	Config   *models.MConfig
	Network  interfaces.INetworkManager
	Pipeline *backfill.Pipeline
	Calendar *utils.TradingCalendar
	Logger   *logger.Logger

	live *liveClient
	now  func() time.Time
}

var _ interfaces.IDataSource = (*IEXSource)(nil)

// -----------------------------------------------------------------------------

func NewIEXSource(cfg *models.MConfig, network interfaces.INetworkManager, log *logger.Logger) *IEXSource {
	if log == nil {
		log = logger.NewNop()
	}
	iexCfg := cfg.Provider.IEX

	return &IEXSource{
		Config:   cfg,
		Network:  network,
		Pipeline: backfill.NewPipeline(network, cfg.Provider, log.Named("backfill")),
		Calendar: utils.NewTradingCalendar(iexCfg.CalendarMIC, log),
		Logger:   log,
		live: newLiveClient(iexCfg.LiveURL,
			time.Duration(iexCfg.ReconnectMinMs)*time.Millisecond,
			time.Duration(iexCfg.ReconnectMaxMs)*time.Millisecond,
			log.Named("live")),
		now: time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *IEXSource) Name() string {
	return SourceName
}

// -----------------------------------------------------------------------------

type iexSymbol struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	IsEnabled bool   `json:"isEnabled"`
}

// ListInstruments returns the enabled symbols of the reference data.
func (s *IEXSource) ListInstruments(ctx context.Context) ([]models.MInstrument, error) {
	body, err := s.Network.Get(ctx, s.Config.Provider.IEX.SymbolsURL, nil)
	if err != nil {
		return nil, err
	}

	var symbols []iexSymbol
	if err := json.Unmarshal(body, &symbols); err != nil {
		return nil, helpers.NewDataSourceError("decode ref-data symbols", err)
	}

	instruments := make([]models.MInstrument, 0, len(symbols))
	for _, sym := range symbols {
		if !sym.IsEnabled || sym.Symbol == "" {
			continue
		}
		instruments = append(instruments, models.MInstrument{
			Symbol: strings.ToUpper(sym.Symbol),
			Name:   sym.Name,
		})
	}

	s.Logger.Info("IEX: %d enabled instruments out of %d", len(instruments), len(symbols))
	return instruments, nil
}

// -----------------------------------------------------------------------------

type iexLast struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Size   int64           `json:"size"`
	Time   int64           `json:"time"`
}

// CurrentPrices queries tops/last. Large symbol lists are not sent; the full
// market is returned instead.
func (s *IEXSource) CurrentPrices(ctx context.Context, symbols []string) ([]models.MStockPrice, error) {
	var params map[string]string
	if n := len(symbols); n > 0 && n < s.Config.Provider.SymbolBatchLimit {
		params = map[string]string{"symbols": strings.Join(symbols, ",")}
	}

	body, err := s.Network.Get(ctx, s.Config.Provider.IEX.PricesURL, params)
	if err != nil {
		return nil, err
	}

	var quotes []iexLast
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, helpers.NewDataSourceError("decode tops/last", err)
	}

	prices := make([]models.MStockPrice, 0, len(quotes))
	for _, q := range quotes {
		prices = append(prices, models.MStockPrice{
			Symbol: strings.ToUpper(q.Symbol),
			Time:   q.Time,
			Price:  models.FixedFromDecimal(q.Price),
		})
	}
	return prices, nil
}

// -----------------------------------------------------------------------------

// Location is the exchange timezone of the trading calendar.
func (s *IEXSource) Location() *time.Location {
	return s.Calendar.Timezone
}

// -----------------------------------------------------------------------------

// HistoricalPrices replays the largest supported capture of day. Days without
// a published capture (weekends, holidays, today, the future) return nil.
func (s *IEXSource) HistoricalPrices(ctx context.Context, day time.Time, onBatch interfaces.BatchFunc) error {
	loc := s.Calendar.Timezone
	day = utils.OnDate(day, loc)
	today := utils.StartOfDay(s.now(), loc)
	if !day.Before(today) {
		s.Logger.Debug("IEX: no capture published yet for %s", day.Format(time.DateOnly))
		return nil
	}
	if !s.Calendar.IsTradingDay(day) {
		s.Logger.Debug("IEX: %s is not a trading day", day.Format(time.DateOnly))
		return nil
	}

	captures, err := s.listCaptures(ctx, day)
	if err != nil {
		return err
	}

	capture, ok := tops.SelectCapture(captures)
	if !ok {
		s.Logger.Warning("IEX: no supported capture for %s among %d", day.Format(time.DateOnly), len(captures))
		return nil
	}

	return s.Pipeline.Run(ctx, capture, onBatch)
}

// -----------------------------------------------------------------------------

func (s *IEXSource) listCaptures(ctx context.Context, day time.Time) ([]models.MCaptureResource, error) {
	params := map[string]string{"date": day.Format("20060102")}
	body, err := s.Network.Get(ctx, s.Config.Provider.IEX.HistoryURL, params)
	if err != nil {
		return nil, err
	}

	// An unknown date answers with an empty object rather than a list.
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil, nil
	}

	var captures []models.MCaptureResource
	if err := json.Unmarshal(body, &captures); err != nil {
		return nil, helpers.NewDataSourceError("decode hist", err)
	}
	return captures, nil
}

// -----------------------------------------------------------------------------

func (s *IEXSource) SubscribeSymbol(symbol string) error {
	return s.live.Subscribe(symbol)
}

func (s *IEXSource) UnsubscribeSymbol(symbol string) error {
	return s.live.Unsubscribe(symbol)
}

// -----------------------------------------------------------------------------

func (s *IEXSource) Start(ctx context.Context, deliver interfaces.DeliverFunc) error {
	return s.live.Start(ctx, deliver)
}

func (s *IEXSource) Close() error {
	return s.live.Close()
}
