package marketdata

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certtrader/internal/model"
)

// countingProvider records how many times the network path was taken.
type countingProvider struct {
	calls int
	bars  []model.Bar
	err   error
}

func (p *countingProvider) Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error) {
	p.calls++
	return p.bars, p.err
}

func sampleBars(n int) []model.Bar {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 1000,
		}
	}
	return bars
}

func newCachedProvider(t *testing.T, inner Provider) *CachedProvider {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewCachedProvider(logger, inner, t.TempDir())
}

func TestBarsCachesSameDayPull(t *testing.T) {
	inner := &countingProvider{bars: sampleBars(3)}
	cp := newCachedProvider(t, inner)
	ctx := context.Background()

	first, err := cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, inner.calls)

	// The second same-day request for the same window never hits the
	// network and round-trips the bars intact.
	second, err := cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
}

func TestBarsRefetchesForWiderWindow(t *testing.T) {
	inner := &countingProvider{bars: sampleBars(3)}
	cp := newCachedProvider(t, inner)
	ctx := context.Background()

	_, err := cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)

	// A wider lookback invalidates the cached pull.
	_, err = cp.Bars(ctx, "^OMX", "1m", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// A narrower one is covered by the 10-day pull.
	_, err = cp.Bars(ctx, "^OMX", "1m", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestBarsCacheIsKeyedByTickerAndInterval(t *testing.T) {
	inner := &countingProvider{bars: sampleBars(3)}
	cp := newCachedProvider(t, inner)
	ctx := context.Background()

	_, err := cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)
	_, err = cp.Bars(ctx, "^OMX", "5m", 5)
	require.NoError(t, err)
	_, err = cp.Bars(ctx, "^DAX", "1m", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestBarsStaleMetadataIsIgnored(t *testing.T) {
	inner := &countingProvider{bars: sampleBars(3)}
	cp := newCachedProvider(t, inner)
	ctx := context.Background()

	_, err := cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)

	// Backdate the sidecar to yesterday; the cache must be bypassed.
	meta := []byte(`{"ticker":"^OMX","interval":"1m","pull_date":"2020-01-01T10:00:00Z","days":5,"bar_count":3}`)
	require.NoError(t, os.WriteFile(cp.metaPath("^OMX", "1m"), meta, 0o644))

	_, err = cp.Bars(ctx, "^OMX", "1m", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
