package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"certtrader/internal/model"
)

// Client implements Session against the brokerage's REST API, with a
// websocket stream keeping quote prices fresh between polls.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client

	stream *QuoteStream
	cancel context.CancelFunc

	mu     sync.Mutex
	latest map[string]priceTick
}

type priceTick struct {
	Buy    float64
	Sell   float64
	Spread float64
	Time   time.Time
}

// NewClient creates a brokerage session and starts its quote stream.
func NewClient(logger *slog.Logger, baseURL, streamURL, token string, instrumentIDs []string) *Client {
	c := &Client{
		logger:  logger,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		latest:  make(map[string]priceTick),
	}
	if streamURL != "" {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.stream = NewQuoteStream(logger, streamURL, instrumentIDs, c.onTick)
		go c.stream.Run(ctx)
	}
	return c
}

func (c *Client) onTick(id string, buy, sell, spread float64) {
	c.mu.Lock()
	c.latest[id] = priceTick{Buy: buy, Sell: sell, Spread: spread, Time: time.Now()}
	c.mu.Unlock()
}

type quoteResponse struct {
	Buy      float64 `json:"buy"`
	Sell     float64 `json:"sell"`
	Spread   float64 `json:"spread"`
	Position *struct {
		Volume   float64 `json:"volume"`
		AvgPrice float64 `json:"avg_price"`
	} `json:"position"`
	Order *struct {
		ID     string  `json:"id"`
		Side   string  `json:"side"`
		Price  float64 `json:"price"`
		Volume float64 `json:"volume"`
	} `json:"order"`
}

// GetQuote fetches position and order state over REST. Stream prices
// replace the snapshot's when the websocket has ticked within the last
// five seconds.
func (c *Client) GetQuote(ctx context.Context, instrumentID string) (model.Quote, error) {
	var resp quoteResponse
	if err := c.get(ctx, "/instruments/"+instrumentID+"/quote", &resp); err != nil {
		return model.Quote{}, err
	}
	q := model.Quote{
		Buy:    resp.Buy,
		Sell:   resp.Sell,
		Spread: resp.Spread,
		Time:   time.Now(),
	}
	if resp.Position != nil {
		q.Position = &model.Position{Volume: resp.Position.Volume, AvgPrice: resp.Position.AvgPrice}
	}
	if resp.Order != nil {
		side := model.SignalBuy
		if resp.Order.Side == "SELL" {
			side = model.SignalSell
		}
		q.Order = &model.Order{
			ID:     resp.Order.ID,
			Side:   side,
			Price:  resp.Order.Price,
			Volume: resp.Order.Volume,
		}
	}
	c.mu.Lock()
	if tick, ok := c.latest[instrumentID]; ok && tick.Time.After(q.Time.Add(-5*time.Second)) {
		q.Buy, q.Sell, q.Spread = tick.Buy, tick.Sell, tick.Spread
	}
	c.mu.Unlock()
	return q, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, instrumentID string, side model.Signal, price, volume float64) error {
	body := map[string]any{
		"instrument": instrumentID,
		"side":       side.String(),
		"price":      price,
		"volume":     volume,
	}
	return c.do(ctx, http.MethodPost, "/orders", body, nil)
}

// UpdateOrder reprices a pending order.
func (c *Client) UpdateOrder(ctx context.Context, instrumentID, orderID string, price float64) error {
	body := map[string]any{
		"instrument": instrumentID,
		"price":      price,
	}
	return c.do(ctx, http.MethodPut, "/orders/"+orderID, body, nil)
}

// DeleteOrders cancels all pending orders on the account.
func (c *Client) DeleteOrders(ctx context.Context, account string) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+account+"/orders", nil, nil)
}

// GetPortfolio returns the account snapshot.
func (c *Client) GetPortfolio(ctx context.Context) (model.Portfolio, error) {
	var resp struct {
		BuyingPower float64 `json:"buying_power"`
		OwnCapital  float64 `json:"own_capital"`
	}
	if err := c.get(ctx, "/portfolio", &resp); err != nil {
		return model.Portfolio{}, err
	}
	return model.Portfolio{BuyingPower: resp.BuyingPower, OwnCapital: resp.OwnCapital}, nil
}

// Close stops the quote stream.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("broker rejected %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
