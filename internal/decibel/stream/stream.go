package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"alphaflow-backend/internal/decibel"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// PriceCache keeps the most recent exchange price per market from the
// websocket feed. Consumers fall back to REST when a market has no entry.
type PriceCache struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[string]decibel.Price
}

func New(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *PriceCache {
	return &PriceCache{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		prices:         make(map[string]decibel.Price),
	}
}

func (c *PriceCache) Latest(marketAddr string) (decibel.Price, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[marketAddr]
	return price, ok
}

func (c *PriceCache) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("price stream connect failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *PriceCache) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	if err := writeJSON(ctx, conn, subscribeMessage); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		return err
	}
	c.conn = conn
	return nil
}

func (c *PriceCache) readLoop(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("price stream not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handle(data)
	}
}

func (c *PriceCache) handle(data []byte) {
	var msg struct {
		Channel string            `json:"channel"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Channel != "prices" {
		return
	}
	for _, raw := range msg.Data {
		var price decibel.Price
		if err := json.Unmarshal(raw, &price); err != nil || price.Market == "" {
			continue
		}
		c.mu.Lock()
		c.prices[price.Market] = price
		c.mu.Unlock()
	}
}

func (c *PriceCache) pingLoop(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.RUnlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (c *PriceCache) logReadLoopError(err error) {
	if c.log == nil || err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info("price stream closed", zap.Error(err))
		return
	}
	c.log.Warn("price stream read failed", zap.Error(err))
}

func (c *PriceCache) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var (
	subscribeMessage = map[string]any{"method": "subscribe", "channel": "prices"}
	pingMessage      = map[string]any{"method": "ping"}
)
