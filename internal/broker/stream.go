package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// TickFunc receives each price update from the stream.
type TickFunc func(instrumentID string, buy, sell, spread float64)

// QuoteStream keeps a websocket subscription to the brokerage's price
// feed alive, reconnecting with capped exponential backoff.
type QuoteStream struct {
	logger        *slog.Logger
	url           string
	instrumentIDs []string
	onTick        TickFunc
}

// NewQuoteStream creates a stream for the given instruments.
func NewQuoteStream(logger *slog.Logger, url string, instrumentIDs []string, onTick TickFunc) *QuoteStream {
	return &QuoteStream{logger: logger, url: url, instrumentIDs: instrumentIDs, onTick: onTick}
}

type streamMessage struct {
	Instrument string  `json:"instrument"`
	Buy        float64 `json:"buy"`
	Sell       float64 `json:"sell"`
	Spread     float64 `json:"spread"`
}

// Run connects and consumes the stream until the context is cancelled.
func (s *QuoteStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("QuoteStream: context cancelled, shutting down")
			return
		default:
			s.logger.Info("QuoteStream: connecting", "url", s.url, "backoff", backoff)
			c, _, err := websocket.DefaultDialer.Dial(s.url, nil)
			if err != nil {
				s.logger.Error("QuoteStream: connection failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
					backoff *= 2
					if backoff > 16*time.Second {
						backoff = 16 * time.Second
					}
				}
				continue
			}
			backoff = time.Second

			subscription := map[string]any{
				"event":       "subscribe",
				"instruments": s.instrumentIDs,
				"channel":     "quotes",
			}
			if err := c.WriteJSON(subscription); err != nil {
				s.logger.Error("QuoteStream: failed to subscribe", "error", err)
				c.Close()
				continue
			}
			s.logger.Info("QuoteStream: subscribed", "instruments", s.instrumentIDs)

			s.consume(ctx, c)
			c.Close()
		}
	}
}

func (s *QuoteStream) consume(ctx context.Context, c *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.ReadMessage()
			if err != nil {
				s.logger.Error("QuoteStream: failed to read message", "error", err)
				return
			}
			var msg streamMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				s.logger.Warn("QuoteStream: failed to parse message", "error", err)
				continue
			}
			if msg.Instrument == "" {
				continue
			}
			s.onTick(msg.Instrument, msg.Buy, msg.Sell, msg.Spread)
		}
	}
}
