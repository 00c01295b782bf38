package iex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"stock-cache/src/helpers"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Engine.io v3 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.io v2 packet types, carried inside an engine.io message.
const (
	sioConnect    = '0'
	sioDisconnect = '1'
	sioEvent      = '2'
	sioError      = '4'
)

const defaultPingInterval = 25 * time.Second

var errAlreadyStarted = errors.New("live feed already started")

// liveClient speaks the socket.io dialect of the IEX last-trade stream.
// Symbols survive reconnects and are replayed on every new session.
type liveClient struct {
	wsURL      string
	namespace  string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *logger.Logger

	mu      sync.Mutex
	symbols map[string]struct{}
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

func newLiveClient(rawURL string, minBackoff, maxBackoff time.Duration, log *logger.Logger) *liveClient {
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}

	c := &liveClient{
		dialer:     websocket.DefaultDialer,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logger:     log,
		symbols:    make(map[string]struct{}),
	}

	wsURL, ns, err := socketURL(rawURL)
	if err != nil {
		log.Error("Invalid live URL %q: %v", rawURL, err)
	}
	c.wsURL, c.namespace = wsURL, ns
	return c
}

// -----------------------------------------------------------------------------

// socketURL maps an http(s) socket.io endpoint onto its engine.io websocket
// transport. The path becomes the namespace.
func socketURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	ns := strings.TrimSuffix(u.Path, "/")
	u.Path = "/socket.io/"
	u.RawQuery = "EIO=3&transport=websocket"
	return u.String(), ns, nil
}

// -----------------------------------------------------------------------------

func (c *liveClient) Subscribe(symbol string) error {
	return c.update(symbol, true)
}

func (c *liveClient) Unsubscribe(symbol string) error {
	return c.update(symbol, false)
}

func (c *liveClient) update(symbol string, add bool) error {
	c.mu.Lock()
	if add {
		c.symbols[symbol] = struct{}{}
	} else {
		delete(c.symbols, symbol)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	event := "unsubscribe"
	if add {
		event = "subscribe"
	}
	return c.emit(conn, event, symbol)
}

// -----------------------------------------------------------------------------

func (c *liveClient) Start(ctx context.Context, deliver interfaces.DeliverFunc) error {
	if c.wsURL == "" {
		return helpers.NewConfigurationError("live feed URL is not usable", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, deliver)
	return nil
}

// -----------------------------------------------------------------------------

func (c *liveClient) Close() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	return nil
}

// -----------------------------------------------------------------------------

func (c *liveClient) run(ctx context.Context, deliver interfaces.DeliverFunc) {
	defer close(c.done)

	attempt := 0
	for {
		connected, err := c.session(ctx, deliver)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}

		delay := c.backoff(attempt)
		attempt++
		c.logger.Warning("Live feed disconnected (%v), reconnecting in %v", err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff doubles per attempt up to maxBackoff, jittered into [d/2, d].
func (c *liveClient) backoff(attempt int) time.Duration {
	d := c.minBackoff
	for i := 0; i < attempt && d < c.maxBackoff; i++ {
		d *= 2
	}
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// -----------------------------------------------------------------------------

// session runs one websocket connection until it fails. connected reports
// whether the namespace handshake completed.
func (c *liveClient) session(ctx context.Context, deliver interfaces.DeliverFunc) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	pingInterval := defaultPingInterval
	pingDone := make(chan struct{})
	defer close(pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return connected, err
		}
		packet := string(data)
		if packet == "" {
			continue
		}

		switch packet[0] {
		case eioOpen:
			var handshake struct {
				SID          string `json:"sid"`
				PingInterval int64  `json:"pingInterval"`
			}
			if err := json.Unmarshal([]byte(packet[1:]), &handshake); err == nil && handshake.PingInterval > 0 {
				pingInterval = time.Duration(handshake.PingInterval) * time.Millisecond
			}
			go c.pingLoop(conn, pingInterval, pingDone)
			if c.namespace != "" {
				if err := c.write(conn, string(eioMessage)+string(sioConnect)+c.namespace+","); err != nil {
					return connected, err
				}
			}

		case eioPing:
			if err := c.write(conn, string(eioPong)+packet[1:]); err != nil {
				return connected, err
			}

		case eioPong:

		case eioClose:
			return connected, errors.New("server closed the session")

		case eioMessage:
			if len(packet) < 2 {
				continue
			}
			ns, body := splitNamespace(packet[2:])
			if ns != c.namespace {
				continue
			}

			switch packet[1] {
			case sioConnect:
				if connected {
					continue
				}
				connected = true
				if err := c.attach(conn); err != nil {
					return connected, err
				}
				c.logger.Info("Live feed connected to %s%s", c.wsURL, c.namespace)

			case sioDisconnect:
				return connected, errors.New("namespace disconnected")

			case sioError:
				return connected, fmt.Errorf("socket.io error: %s", body)

			case sioEvent:
				c.handleEvent(body, deliver)
			}
		}
	}
}

// attach publishes conn for subscription calls and replays every known symbol.
func (c *liveClient) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	c.mu.Unlock()

	for _, s := range symbols {
		if err := c.emit(conn, "subscribe", s); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *liveClient) pingLoop(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, string(eioPing)); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

type liveTrade struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Size   int64           `json:"size"`
	Time   int64           `json:"time"`
}

// handleEvent decodes ["message", payload] where payload is a trade object or
// a JSON string holding one.
func (c *liveClient) handleEvent(body string, deliver interfaces.DeliverFunc) {
	// drop an ack id prefix
	body = strings.TrimLeft(body, "0123456789")

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil || len(args) < 2 {
		c.logger.Warning("Unparseable live event: %.120s", body)
		return
	}

	var name string
	if err := json.Unmarshal(args[0], &name); err != nil || name != "message" {
		return
	}

	raw := []byte(args[1])
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = []byte(inner)
	}

	var trade liveTrade
	if err := json.Unmarshal(raw, &trade); err != nil || trade.Symbol == "" {
		c.logger.Warning("Failed to parse live trade: %.120s", string(raw))
		return
	}

	symbol := strings.ToUpper(trade.Symbol)
	deliver(symbol, models.MStockPrice{
		Symbol: symbol,
		Time:   trade.Time,
		Price:  models.FixedFromDecimal(trade.Price),
	})
}

// -----------------------------------------------------------------------------

func (c *liveClient) emit(conn *websocket.Conn, event, symbol string) error {
	args, err := json.Marshal([]string{event, symbol})
	if err != nil {
		return err
	}
	prefix := string(eioMessage) + string(sioEvent)
	if c.namespace != "" {
		prefix += c.namespace + ","
	}
	return c.write(conn, prefix+string(args))
}

func (c *liveClient) write(conn *websocket.Conn, packet string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(packet))
}

// -----------------------------------------------------------------------------

// splitNamespace separates "/ns,rest" into its parts. Packets for the default
// namespace carry no prefix.
func splitNamespace(s string) (string, string) {
	if !strings.HasPrefix(s, "/") {
		return "", s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
