package provider

import (
	"context"
	"errors"
	"time"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
)

// ErrNotImplemented is returned by sources that cannot serve a request kind.
var ErrNotImplemented = errors.New("provider: not implemented")

// Provider composes a data source with its subscription registry and applies
// the error policy: snapshot failures degrade to empty results, historical
// failures propagate.
type Provider struct {
	*Registry
	source interfaces.IDataSource
	logger *logger.Logger
}

func New(source interfaces.IDataSource, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.NewNop()
	}
	return &Provider{
		Registry: NewRegistry(source, log.Named("registry")),
		source:   source,
		logger:   log,
	}
}

// -----------------------------------------------------------------------------

func (p *Provider) Name() string {
	return p.source.Name()
}

// -----------------------------------------------------------------------------

// ListInstruments returns an empty list when the source fails. Empty means
// "try later", not "no instruments".
func (p *Provider) ListInstruments(ctx context.Context) []models.MInstrument {
	instruments, err := p.source.ListInstruments(ctx)
	if err != nil {
		p.logger.Warning("Listing instruments from %s failed: %v", p.source.Name(), err)
		return nil
	}
	return instruments
}

// -----------------------------------------------------------------------------

// CurrentPrices returns an empty list when the source fails.
func (p *Provider) CurrentPrices(ctx context.Context, symbols []string) []models.MStockPrice {
	prices, err := p.source.CurrentPrices(ctx, symbols)
	if err != nil {
		p.logger.Warning("Fetching current prices from %s failed: %v", p.source.Name(), err)
		return nil
	}
	return prices
}

// -----------------------------------------------------------------------------

// Location is the zone that defines the source's calendar days.
func (p *Provider) Location() *time.Location {
	if loc := p.source.Location(); loc != nil {
		return loc
	}
	return time.UTC
}

// -----------------------------------------------------------------------------

// HistoricalPrices streams the day's observations into onBatch.
func (p *Provider) HistoricalPrices(ctx context.Context, day time.Time, onBatch interfaces.BatchFunc) error {
	return p.source.HistoricalPrices(ctx, day, onBatch)
}

// -----------------------------------------------------------------------------

// Start opens the live feed; ticks are fanned out by the registry.
func (p *Provider) Start(ctx context.Context) error {
	return p.source.Start(ctx, p.Registry.Deliver)
}

func (p *Provider) Close() error {
	return p.source.Close()
}
