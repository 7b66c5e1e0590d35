// Package wsengine drives a capture engine host over a JSON-RPC websocket.
//
// Every call is a request envelope {id, method, params} answered by a
// response {id, result, error}. The host pushes output signals as
// {event: "signal", data} frames. Inputs and scenes live in the host and are
// addressed by name.
package wsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// DefaultRequestTimeout bounds a single call when none is configured.
const DefaultRequestTimeout = 10 * time.Second

// EventSignal is the event name of output signal frames.
const EventSignal = "signal"

// Request is an outgoing call.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// RPCError is an error reported by the host.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Message is any incoming frame: a response when ID is set, an event otherwise.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Config configures the client.
type Config struct {
	URL            string
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
}

// Client implements engine.Engine against a remote host.
type Client struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex // guards conn, pending, signals
	conn    *websocket.Conn
	pending map[string]chan Message
	signals func(engine.Signal)
	done    chan struct{}

	writeMu sync.Mutex
}

var _ engine.Engine = (*Client)(nil)

// New creates a client. Nothing is dialed until Host.
func New(cfg Config, log logger.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = logger.Global().Module("engine")
	}
	return &Client{cfg: cfg, log: log, pending: make(map[string]chan Message)}
}

// Host dials the engine host for channel. It is a no-op when already connected.
func (c *Client) Host(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return errors.New(fmt.Errorf("invalid engine URL: %w", err)).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Context("url", c.cfg.URL).
			Build()
	}
	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, u.String(), http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.New(fmt.Errorf("failed to connect to engine host: %w", err)).
			Component("engine").
			Category(errors.CategoryTransport).
			Context("url", u.Redacted()).
			Timing("dial", time.Since(start)).
			Build()
	}

	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)

	c.log.Info("connected to engine host",
		logger.String("channel", channel),
		logger.Duration("dial_time", time.Since(start)))
	return nil
}

// Disconnect asks the host to shut down and closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	callErr := c.call("disconnect", nil, nil)

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	closeErr := conn.Close()
	<-done

	if callErr != nil {
		return callErr
	}
	if closeErr != nil {
		return errors.New(closeErr).
			Component("engine").
			Category(errors.CategoryTransport).
			Build()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer c.dropConnection(conn)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("engine connection closed", logger.Error(err))
			}
			return
		}

		if msg.ID == "" {
			c.dispatchEvent(msg)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.log.Debug("response for unknown request", logger.String("id", msg.ID))
			continue
		}
		ch <- msg
	}
}

func (c *Client) dispatchEvent(msg Message) {
	if msg.Event != EventSignal {
		c.log.Debug("ignoring engine event", logger.String("event", msg.Event))
		return
	}
	var sig engine.Signal
	if err := json.Unmarshal(msg.Data, &sig); err != nil {
		c.log.Warn("malformed signal event", logger.Error(err))
		return
	}
	c.mu.Lock()
	cb := c.signals
	c.mu.Unlock()
	if cb != nil {
		cb(sig)
	}
}

// dropConnection fails every pending call and forgets conn.
func (c *Client) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		ch <- Message{ID: id, Error: &RPCError{Code: -1, Message: "connection closed"}}
		delete(c.pending, id)
	}
}

// call sends method and decodes the result into out, which may be nil.
func (c *Client) call(method string, params, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return errors.New(engine.ErrNotConnected).
			Component("engine").
			Category(errors.CategoryTransport).
			Context("method", method).
			Build()
	}
	id := uuid.NewString()
	ch := make(chan Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	err := conn.WriteJSON(Request{ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return errors.New(fmt.Errorf("failed to send %s: %w", method, err)).
			Component("engine").
			Category(errors.CategoryTransport).
			Context("method", method).
			Build()
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return errors.New(fmt.Errorf("%s: %w", method, msg.Error)).
				Component("engine").
				Category(errors.CategoryEngine).
				Context("method", method).
				Build()
		}
		if out == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return errors.New(fmt.Errorf("decoding %s result: %w", method, err)).
				Component("engine").
				Category(errors.CategoryEngine).
				Context("method", method).
				Build()
		}
		return nil
	case <-timer.C:
		c.forget(id)
		return errors.Newf("%s timed out after %s", method, c.cfg.RequestTimeout).
			Component("engine").
			Category(errors.CategoryTimeout).
			Context("method", method).
			Build()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
