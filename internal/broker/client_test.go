package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certtrader/internal/model"
)

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewClient(logger, baseURL, "", "test-token", nil)
}

func quoteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"buy":    100.4,
			"sell":   100.0,
			"spread": 0.4,
			"position": map[string]any{
				"volume":    9.0,
				"avg_price": 99.5,
			},
			"order": map[string]any{
				"id":     "o-1",
				"side":   "SELL",
				"price":  101.0,
				"volume": 9.0,
			},
		})
	}
}

func TestGetQuoteMapsSnapshot(t *testing.T) {
	srv := httptest.NewServer(quoteHandler())
	defer srv.Close()
	c := newTestClient(srv.URL)

	q, err := c.GetQuote(context.Background(), "CERT-L")
	require.NoError(t, err)
	assert.Equal(t, 100.4, q.Buy)
	assert.Equal(t, 100.0, q.Sell)
	require.NotNil(t, q.Position)
	assert.Equal(t, 9.0, q.Position.Volume)
	require.NotNil(t, q.Order)
	assert.Equal(t, model.SignalSell, q.Order.Side)
	assert.Equal(t, "o-1", q.Order.ID)
}

func TestGetQuotePrefersRecentStreamTick(t *testing.T) {
	srv := httptest.NewServer(quoteHandler())
	defer srv.Close()
	c := newTestClient(srv.URL)

	c.onTick("CERT-L", 101.4, 101, 0.4)

	q, err := c.GetQuote(context.Background(), "CERT-L")
	require.NoError(t, err)
	assert.Equal(t, 101.4, q.Buy)
	assert.Equal(t, 101.0, q.Sell)
	// Position and order still come from the REST snapshot.
	require.NotNil(t, q.Position)
}

func TestGetQuoteIgnoresStaleStreamTick(t *testing.T) {
	srv := httptest.NewServer(quoteHandler())
	defer srv.Close()
	c := newTestClient(srv.URL)

	c.latest["CERT-L"] = priceTick{Buy: 999, Sell: 998, Spread: 1, Time: time.Now().Add(-time.Minute)}

	q, err := c.GetQuote(context.Background(), "CERT-L")
	require.NoError(t, err)
	assert.Equal(t, 100.4, q.Buy)
	assert.Equal(t, 100.0, q.Sell)
}

func TestDoMapsServerErrorsToTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	_, err := c.GetPortfolio(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestDoMapsClientErrorsToBusiness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	err := c.PlaceOrder(context.Background(), "CERT-L", model.SignalBuy, 100, 10)
	require.Error(t, err)
	assert.False(t, IsTransport(err))
}
