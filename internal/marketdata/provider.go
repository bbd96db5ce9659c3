package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"certtrader/internal/model"
)

// Provider returns OHLCV bars for a ticker over a trailing window.
type Provider interface {
	Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error)
}

// HTTPProvider fetches bars from the market-data API.
type HTTPProvider struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
}

// NewHTTPProvider creates a provider against the given base URL.
func NewHTTPProvider(logger *slog.Logger, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		logger:  logger,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type barResponse struct {
	Time   int64   `json:"time"` // unix millis
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Bars fetches the trailing window of bars, oldest first.
func (p *HTTPProvider) Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error) {
	if days <= 0 {
		days = 1
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("interval", interval)
	q.Set("from", fmt.Sprint(from.UnixMilli()))
	q.Set("to", fmt.Sprint(to.UnixMilli()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bars for %s: status %d", ticker, resp.StatusCode)
	}
	var raw []barResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bars for %s: %w", ticker, err)
	}
	bars := make([]model.Bar, len(raw))
	for i, r := range raw {
		bars[i] = model.Bar{
			Time:   time.UnixMilli(r.Time),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	p.logger.Debug("bars fetched", "ticker", ticker, "interval", interval, "count", len(bars))
	return bars, nil
}
