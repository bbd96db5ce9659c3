package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"certtrader/internal/model"
)

// cacheMetadata is the sidecar describing one cached pull.
type cacheMetadata struct {
	Ticker   string    `json:"ticker"`
	Interval string    `json:"interval"`
	PullDate time.Time `json:"pull_date"`
	Days     int       `json:"days"`
	BarCount int       `json:"bar_count"`
}

type cachedBar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// CachedProvider fronts a Provider with a local append-only JSON cache
// keyed by ticker and interval. A cache file from today covering at
// least the requested window is served without hitting the network.
type CachedProvider struct {
	logger *slog.Logger
	inner  Provider
	dir    string
}

// NewCachedProvider wraps a provider with a file cache under dir.
func NewCachedProvider(logger *slog.Logger, inner Provider, dir string) *CachedProvider {
	if dir == "" {
		dir = "data/cache"
	}
	return &CachedProvider{logger: logger, inner: inner, dir: dir}
}

func (c *CachedProvider) dataPath(ticker, interval string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", ticker, interval))
}

func (c *CachedProvider) metaPath(ticker, interval string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s_metadata.json", ticker, interval))
}

// Bars serves from the cache when it is fresh, otherwise fetches and
// rewrites the cache.
func (c *CachedProvider) Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error) {
	if bars := c.load(ticker, interval, days); bars != nil {
		c.logger.Debug("bars served from cache", "ticker", ticker, "count", len(bars))
		return bars, nil
	}
	bars, err := c.inner.Bars(ctx, ticker, interval, days)
	if err != nil {
		return nil, err
	}
	c.store(ticker, interval, days, bars)
	return bars, nil
}

func (c *CachedProvider) load(ticker, interval string, days int) []model.Bar {
	metaBytes, err := os.ReadFile(c.metaPath(ticker, interval))
	if err != nil {
		return nil
	}
	var meta cacheMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil
	}
	today := time.Now().Truncate(24 * time.Hour)
	if !meta.PullDate.Truncate(24 * time.Hour).Equal(today) || meta.Days < days {
		return nil
	}
	dataBytes, err := os.ReadFile(c.dataPath(ticker, interval))
	if err != nil {
		return nil
	}
	var cached []cachedBar
	if err := json.Unmarshal(dataBytes, &cached); err != nil {
		return nil
	}
	bars := make([]model.Bar, len(cached))
	for i, cb := range cached {
		bars[i] = model.Bar{
			Time:   cb.Time,
			Open:   cb.Open,
			High:   cb.High,
			Low:    cb.Low,
			Close:  cb.Close,
			Volume: cb.Volume,
		}
	}
	return bars
}

func (c *CachedProvider) store(ticker, interval string, days int, bars []model.Bar) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("cannot create cache directory", "dir", c.dir, "error", err)
		return
	}
	cached := make([]cachedBar, len(bars))
	for i, b := range bars {
		cached[i] = cachedBar{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		c.logger.Warn("cannot encode cache", "error", err)
		return
	}
	meta, err := json.Marshal(cacheMetadata{
		Ticker:   ticker,
		Interval: interval,
		PullDate: time.Now(),
		Days:     days,
		BarCount: len(bars),
	})
	if err != nil {
		return
	}
	if err := os.WriteFile(c.dataPath(ticker, interval), data, 0o644); err != nil {
		c.logger.Warn("cannot write cache", "error", err)
		return
	}
	if err := os.WriteFile(c.metaPath(ticker, interval), meta, 0o644); err != nil {
		c.logger.Warn("cannot write cache metadata", "error", err)
	}
}
