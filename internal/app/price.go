package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPriceBase         = 0.001
	DefaultPriceTickInterval = 30 * time.Second
	PriceRetention           = 24 * time.Hour

	priceVolatility     = 0.02
	defaultHistoryLimit = 100
	quoteHistoryPoints  = 100
	// 48 ticks at the default interval cover a day.
	marketWindowPoints = 48
)

var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// PriceQuote is the current price with its 24 hour movement.
type PriceQuote struct {
	Price            float64             `json:"price"`
	Currency         string              `json:"currency"`
	Change24h        float64             `json:"change24h"`
	ChangePercent24h float64             `json:"changePercent24h"`
	MarketCap        float64             `json:"marketCap"`
	TotalSupply      int64               `json:"totalSupply"`
	LastUpdated      time.Time           `json:"lastUpdated"`
	PriceHistory     []domain.PricePoint `json:"priceHistory"`
}

type PriceRange struct {
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Average    float64 `json:"average"`
	Current    float64 `json:"current"`
	DataPoints int     `json:"dataPoints"`
}

type PriceHistoryView struct {
	Timeframe   string              `json:"timeframe"`
	History     []domain.PricePoint `json:"history"`
	Stats       PriceRange          `json:"stats"`
	LastUpdated time.Time           `json:"lastUpdated"`
}

type MarketStats struct {
	CurrentPrice    float64 `json:"currentPrice"`
	MarketCap       float64 `json:"marketCap"`
	High24h         float64 `json:"high24h"`
	Low24h          float64 `json:"low24h"`
	TotalSupply     int64   `json:"totalSupply"`
	TotalRuns       int64   `json:"totalRuns"`
	TotalCP         int64   `json:"totalCPGenerated"`
	AvgCPPerRun     float64 `json:"avgCPPerRun"`
	AvgDBPPerRun    float64 `json:"avgDBPPerRun"`
	ConversionRatio float64 `json:"conversionEfficiency"`
}

// PriceTicker simulates the DBP price: every interval it draws a price within
// ±1% of the base, stores it and publishes a price_update.
type PriceTicker struct {
	history   domain.PriceHistory
	stats     domain.StatsStore
	publisher domain.Publisher
	clock     clockwork.Clock
	interval  time.Duration
	base      float64
	random    func() float64
}

func NewPriceTicker(history domain.PriceHistory, stats domain.StatsStore, publisher domain.Publisher, clock clockwork.Clock, interval time.Duration, base float64) *PriceTicker {
	if interval <= 0 {
		interval = DefaultPriceTickInterval
	}
	if base <= 0 {
		base = DefaultPriceBase
	}
	return &PriceTicker{
		history:   history,
		stats:     stats,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		base:      base,
		random:    rand.Float64,
	}
}

// Run ticks once immediately and then on every interval until ctx is done.
func (p *PriceTicker) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.Tick(ctx); err != nil {
		slog.Warn("Price tick failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := p.Tick(ctx); err != nil {
				slog.Warn("Price tick failed", "error", err)
			}
		}
	}
}

// Tick draws, stores and publishes one price point. Change is measured
// against the previous stored point.
func (p *PriceTicker) Tick(ctx context.Context) (domain.PricePoint, error) {
	price := p.base * (1 + (p.random()-0.5)*priceVolatility)
	point := domain.PricePoint{Price: price, Timestamp: p.clock.Now()}

	previous, ok, err := p.history.Latest(ctx)
	if err != nil {
		metrics.PriceTickFailures.Inc()
		return domain.PricePoint{}, fmt.Errorf("load previous price: %w", err)
	}
	if ok && previous.Price > 0 {
		point.Change = price - previous.Price
		point.ChangePercent = point.Change / previous.Price * 100
	}

	if err := p.history.Append(ctx, point); err != nil {
		metrics.PriceTickFailures.Inc()
		return domain.PricePoint{}, fmt.Errorf("append price: %w", err)
	}
	metrics.DBPPrice.Set(price)

	if err := p.publisher.Publish(domain.ChannelPrice, domain.EventPriceUpdate, point); err != nil {
		slog.Warn("Failed to publish price update", "error", err)
	}
	return point, nil
}

func (p *PriceTicker) Current(ctx context.Context) (PriceQuote, error) {
	now := p.clock.Now()
	day, err := p.history.Since(ctx, now.Add(-24*time.Hour), 0)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("load price history: %w", err)
	}
	latest, ok, err := p.history.Latest(ctx)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("load current price: %w", err)
	}
	if !ok {
		latest = domain.PricePoint{Price: p.base, Timestamp: now}
	}

	supply := p.totalSupply(ctx)
	quote := PriceQuote{
		Price:        latest.Price,
		Currency:     "ETH",
		MarketCap:    float64(supply) * latest.Price,
		TotalSupply:  supply,
		LastUpdated:  latest.Timestamp,
		PriceHistory: tail(day, quoteHistoryPoints),
	}
	if len(day) > 0 && day[0].Price > 0 {
		quote.Change24h = latest.Price - day[0].Price
		quote.ChangePercent24h = quote.Change24h / day[0].Price * 100
	}
	return quote, nil
}

// History returns the points inside timeframe (1h, 24h, 7d or 30d; empty
// means 24h) with their range statistics.
func (p *PriceTicker) History(ctx context.Context, timeframe string, limit int) (PriceHistoryView, error) {
	if timeframe == "" {
		timeframe = "24h"
	}
	window, ok := timeframes[timeframe]
	if !ok {
		return PriceHistoryView{}, apperrors.ValidationError("Invalid timeframe").
			WithContext("validTimeframes", []string{"1h", "24h", "7d", "30d"})
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	now := p.clock.Now()
	points, err := p.history.Since(ctx, now.Add(-window), limit)
	if err != nil {
		return PriceHistoryView{}, fmt.Errorf("load price history: %w", err)
	}
	if points == nil {
		points = []domain.PricePoint{}
	}

	view := PriceHistoryView{Timeframe: timeframe, History: points, Stats: summarize(points), LastUpdated: now}
	if latest, ok, err := p.history.Latest(ctx); err == nil && ok {
		view.Stats.Current = latest.Price
		view.LastUpdated = latest.Timestamp
	}
	return view, nil
}

func (p *PriceTicker) MarketStats(ctx context.Context) (MarketStats, error) {
	day, err := p.history.Since(ctx, p.clock.Now().Add(-24*time.Hour), marketWindowPoints)
	if err != nil {
		return MarketStats{}, fmt.Errorf("load price history: %w", err)
	}
	global, err := p.stats.Global(ctx)
	if err != nil {
		return MarketStats{}, fmt.Errorf("%w: global stats: %w", domain.ErrPersistence, err)
	}

	current := p.base
	if latest, ok, err := p.history.Latest(ctx); err == nil && ok {
		current = latest.Price
	}
	r := summarize(day)
	if len(day) == 0 {
		r.High, r.Low = current, current
	}

	out := MarketStats{
		CurrentPrice:    current,
		MarketCap:       float64(global.TotalDBP) * current,
		High24h:         r.High,
		Low24h:          r.Low,
		TotalSupply:     global.TotalDBP,
		TotalRuns:       global.TotalRuns,
		TotalCP:         global.TotalCP,
		ConversionRatio: 100,
	}
	if global.TotalRuns > 0 {
		out.AvgCPPerRun = float64(global.TotalCP) / float64(global.TotalRuns)
		out.AvgDBPPerRun = float64(global.TotalDBP) / float64(global.TotalRuns)
	}
	if out.AvgCPPerRun > 0 {
		out.ConversionRatio = out.AvgDBPPerRun / (out.AvgCPPerRun / cpPerDBP) * 100
	}
	return out, nil
}

func (p *PriceTicker) totalSupply(ctx context.Context) int64 {
	global, err := p.stats.Global(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load global stats for market cap", "error", err)
		return 0
	}
	return global.TotalDBP
}

func summarize(points []domain.PricePoint) PriceRange {
	r := PriceRange{DataPoints: len(points)}
	if len(points) == 0 {
		return r
	}
	r.High, r.Low = points[0].Price, points[0].Price
	var sum float64
	for _, pt := range points {
		r.High = max(r.High, pt.Price)
		r.Low = min(r.Low, pt.Price)
		sum += pt.Price
	}
	r.Average = sum / float64(len(points))
	r.Current = points[len(points)-1].Price
	return r
}

func tail[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	if items == nil {
		return []T{}
	}
	return items
}
