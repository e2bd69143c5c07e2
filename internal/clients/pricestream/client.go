// Package pricestream provides the WebSocket adapter for the push price source.
//
// The client keeps one logical connection. Subscribe and Unsubscribe enqueue
// commands without waiting for the socket; after a reconnect the client
// replays the symbols it was last told to subscribe. Updates are delivered to
// the single registered handler from one read goroutine, so handler calls
// follow socket arrival order.
package pricestream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

const (
	DefaultSendBuffer   = 256
	DefaultMinBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff   = 30 * time.Second
	DefaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// command is an outbound subscribe/unsubscribe message.
type command struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// inboundMessage accepts both single price_update messages and
// Finnhub-style trade batches.
type inboundMessage struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol"`
	Price  *float64    `json:"price"`
	Data   []tradeData `json:"data"`
}

type tradeData struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
}

// StateHandler is told when the connection comes up or drops.
type StateHandler func(connected bool, err error)

// Client implements PriceTransport over a WebSocket connection.
type Client struct {
	url          string
	dialer       *websocket.Dialer
	logger       *common.Logger
	minBackoff   time.Duration
	maxBackoff   time.Duration
	pingInterval time.Duration
	now          func() time.Time

	send chan command

	mu        sync.RWMutex
	handler   models.PriceHandler
	onState   StateHandler
	active    map[string]struct{}
	connected bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBackoff sets the reconnect delay bounds
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		if min > 0 {
			c.minBackoff = min
		}
		if max >= c.minBackoff {
			c.maxBackoff = max
		}
	}
}

// WithSendBuffer sets how many commands may queue while disconnected
func WithSendBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.send = make(chan command, n)
		}
	}
}

// WithPingInterval sets the keepalive ping interval
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithStateHandler registers a callback for connection up/down transitions
func WithStateHandler(h StateHandler) Option {
	return func(c *Client) {
		c.onState = h
	}
}

// NewClient creates a price stream client for the given ws:// or wss:// URL.
// Call Start to begin connecting.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		dialer:       websocket.DefaultDialer,
		logger:       common.NewSilentLogger(),
		minBackoff:   DefaultMinBackoff,
		maxBackoff:   DefaultMaxBackoff,
		pingInterval: DefaultPingInterval,
		now:          time.Now,
		send:         make(chan command, DefaultSendBuffer),
		active:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe requests updates for symbol. It never blocks.
func (c *Client) Subscribe(symbol string) {
	symbol = normaliseSymbol(symbol)
	if symbol == "" {
		return
	}
	c.mu.Lock()
	c.active[symbol] = struct{}{}
	c.mu.Unlock()
	c.enqueue(command{Type: "subscribe", Symbol: symbol})
}

// Unsubscribe stops updates for symbol. It never blocks.
func (c *Client) Unsubscribe(symbol string) {
	symbol = normaliseSymbol(symbol)
	if symbol == "" {
		return
	}
	c.mu.Lock()
	delete(c.active, symbol)
	c.mu.Unlock()
	c.enqueue(command{Type: "unsubscribe", Symbol: symbol})
}

// OnUpdate registers the update handler, replacing any previous one.
func (c *Client) OnUpdate(handler models.PriceHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// OffUpdate clears the update handler.
func (c *Client) OffUpdate() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ActiveSymbols returns the symbols the client will replay on reconnect.
func (c *Client) ActiveSymbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.active))
	for s := range c.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Client) enqueue(cmd command) {
	select {
	case c.send <- cmd:
	default:
		// Dropped commands are recovered by the replay on the next reconnect
		c.logger.Warn().Str("type", cmd.Type).Str("symbol", cmd.Symbol).Msg("Price stream send buffer full, dropping command")
	}
}

// Start launches the connect/reconnect loop. Safe to call once.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop closes the connection and waits for the loop to exit.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Client) run(ctx context.Context) {
	backoff := c.minBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("url", c.url).Dur("retry_in", backoff).Msg("Price stream dial failed")
		} else {
			backoff = c.minBackoff
			c.setConnected(true, nil)
			c.logger.Info().Str("url", c.url).Msg("Price stream connected")

			err = c.serve(ctx, conn)
			conn.Close()
			if ctx.Err() != nil {
				c.setConnected(false, nil)
				return
			}
			c.setConnected(false, err)
			c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Price stream dropped")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) setConnected(up bool, err error) {
	c.mu.Lock()
	changed := c.connected != up
	c.connected = up
	h := c.onState
	c.mu.Unlock()
	if changed && h != nil {
		h(up, err)
	}
}

// serve runs one connection until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	// Queued commands predate the connection; the active set supersedes them
	c.drainQueue()
	for _, symbol := range c.ActiveSymbols() {
		if err := c.write(conn, command{Type: "subscribe", Symbol: symbol}); err != nil {
			return err
		}
	}

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErr:
			return err
		case cmd := <-c.send:
			if err := c.write(conn, cmd); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (c *Client) drainQueue() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func (c *Client) write(conn *websocket.Conn, cmd command) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write %s %s: %w", cmd.Type, cmd.Symbol, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, upd := range c.decode(data) {
			c.deliver(upd)
		}
	}
}

// decode turns one frame into zero or more updates. Malformed frames are
// logged and skipped; the stream is best-effort.
func (c *Client) decode(data []byte) []models.PriceUpdate {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring malformed price frame")
		return nil
	}

	now := c.now()
	switch msg.Type {
	case "price_update", "price", "":
		if msg.Price == nil || msg.Symbol == "" {
			return nil
		}
		return []models.PriceUpdate{{Symbol: normaliseSymbol(msg.Symbol), Price: *msg.Price, ReceivedAt: now}}
	case "trade":
		out := make([]models.PriceUpdate, 0, len(msg.Data))
		for _, t := range msg.Data {
			if t.Symbol == "" {
				continue
			}
			out = append(out, models.PriceUpdate{Symbol: normaliseSymbol(t.Symbol), Price: t.Price, ReceivedAt: now})
		}
		return out
	default:
		return nil
	}
}

func (c *Client) deliver(upd models.PriceUpdate) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return
	}
	h(upd)
}

func normaliseSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Ensure Client implements PriceTransport
var _ interfaces.PriceTransport = (*Client)(nil)
