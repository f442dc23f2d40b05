package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrConnClosed the websocket connection is gone; outstanding and future
// calls fail with this error.
var ErrConnClosed = errors.New("cdp: connection closed")

// Handler receives an event's payload together with the session id the
// browser tagged it with ("" for the default session).
type Handler func(sessionID, method string, params json.RawMessage)

// API is the narrow surface threads and proxies program against: issue a
// command on behalf of a session, or subscribe to events by name. One
// Subscribe call with several event names observes them in arrival order,
// which the pause/parse sequencing depends on.
type API interface {
	Call(ctx context.Context, sessionID, method string, params, result any) error
	Subscribe(h Handler, events ...string) (cancel func())
}

type request struct {
	ID        uint64 `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

type response struct {
	ID        uint64          `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *callError      `json:"error,omitempty"`
}

type callError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *callError) Error() string {
	return fmt.Sprintf("cdp: code %d: %s", e.Code, e.Message)
}

type subscriber struct {
	events map[string]bool
	queue  chan response
	handle Handler
	done   chan struct{}
}

// Conn a CDP connection. One Conn multiplexes commands and events for every
// attached target; per-target views are carved out with Session.
//
// Events are dispatched to each subscriber on its own goroutine in arrival
// order, so a handler may issue further calls without stalling the read pump
// or reordering its own event stream.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan response
	subs    map[*subscriber]struct{}
	closed  bool
	readErr error

	done chan struct{}
}

// Dial connects to a CDP websocket endpoint, e.g. the webSocketDebuggerUrl
// advertised by /json/list.
func Dial(ctx context.Context, url string, logger *log.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", url, err)
	}
	c := &Conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[uint64]chan response),
		subs:    make(map[*subscriber]struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the transport. Outstanding calls fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

// Wait blocks until the connection terminates and reports the read error, if
// any beyond a normal close.
func (c *Conn) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Call issues one command and decodes its result into result (may be nil).
func (c *Conn) Call(ctx context.Context, sessionID, method string, params, result any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := request{ID: id, SessionID: sessionID, Method: method, Params: params}
	if err := c.writeJSON(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrConnClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, result)
	}
}

// Subscribe registers h for every occurrence of the named events. All of
// one subscriber's events flow through a single ordered queue, so a handler
// sees them in arrival order even across event types. The returned cancel
// detaches the handler.
func (c *Conn) Subscribe(h Handler, events ...string) (cancel func()) {
	sub := &subscriber{
		events: map[string]bool{},
		queue:  make(chan response, 64),
		handle: h,
		done:   make(chan struct{}),
	}
	for _, ev := range events {
		sub.events[ev] = true
	}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.queue:
				sub.handle(ev.SessionID, ev.Method, ev.Params)
			}
		}
	}()

	return func() {
		c.mu.Lock()
		_, ok := c.subs[sub]
		delete(c.subs, sub)
		c.mu.Unlock()
		if ok {
			close(sub.done)
		}
	}
}

func (c *Conn) writeJSON(v any) error {
	// gorilla allows one concurrent writer only
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.ws.WriteJSON(v)
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		var msg response
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.readErr = err
			if c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.readErr = nil
			}
			c.closed = true
			for id, ch := range c.pending {
				delete(c.pending, id)
				close(ch)
			}
			c.mu.Unlock()
			c.ws.Close()
			return
		}

		if msg.Method == "" {
			// command response
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		// event: fan out to matching subscribers, keeping per-subscriber order
		c.mu.Lock()
		for sub := range c.subs {
			if !sub.events[msg.Method] {
				continue
			}
			select {
			case sub.queue <- msg:
			default:
				if c.logger != nil {
					c.logger.Printf("cdp: dropping %s, slow subscriber", msg.Method)
				}
			}
		}
		c.mu.Unlock()
	}
}
