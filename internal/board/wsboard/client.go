// Package wsboard implements the board capability surface over a websocket
// connection to the host platform gateway. Calls are correlated JSON
// request/response frames; UI events and domain broadcasts arrive as
// server-pushed frames on the same connection.
package wsboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/officeboard/panel/internal/board"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	kindCall      = "call"
	kindResult    = "result"
	kindError     = "error"
	kindUIEvent   = "ui"
	kindEvent     = "event"
	kindBroadcast = "broadcast"
)

// message is the frame envelope exchanged with the gateway.
type message struct {
	ID      string          `json:"id,omitempty"`
	Kind    string          `json:"kind"`
	Method  string          `json:"method,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is a websocket-backed board.Board.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	send chan []byte

	mu         sync.Mutex
	pending    map[string]chan message
	uiHandlers map[string][]*subscription
	evHandlers map[string][]*subscription
	closed     bool

	done chan struct{}
}

var _ board.Board = (*Client)(nil)

// Dial connects to the board gateway. The token authenticates the panel
// against the gateway, not against the backend.
func Dial(ctx context.Context, gatewayURL, token string, log *slog.Logger) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, header)
	if err != nil {
		return nil, fmt.Errorf("wsboard: dial %s: %w", gatewayURL, err)
	}

	c := &Client{
		conn:       conn,
		log:        log,
		send:       make(chan []byte, 256),
		pending:    make(map[string]chan message),
		uiHandlers: make(map[string][]*subscription),
		evHandlers: make(map[string][]*subscription),
		done:       make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Close tears down the connection. Pending calls fail; handlers are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}

func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("wsboard: read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("wsboard: malformed frame", slog.String("error", err.Error()))
			continue
		}

		switch msg.Kind {
		case kindResult, kindError:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case kindUIEvent:
			c.dispatch(c.uiHandlers, msg)
		case kindEvent:
			c.dispatch(c.evHandlers, msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) dispatch(table map[string][]*subscription, msg message) {
	c.mu.Lock()
	subs := append([]*subscription(nil), table[msg.Event]...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.h(msg.Payload)
	}
}

// call performs one correlated request/response round-trip. The result
// payload is decoded into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	var payload json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("wsboard: encode %s params: %w", method, err)
		}
		payload = raw
	}

	id := uuid.NewString()
	msg := message{ID: id, Kind: kindCall, Method: method, Payload: payload}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	reply := make(chan message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("wsboard: connection closed")
	}
	c.pending[id] = reply
	c.mu.Unlock()

	select {
	case c.send <- raw:
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return errors.New("wsboard: connection closed")
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return errors.New("wsboard: connection closed")
		}
		if resp.Kind == kindError {
			return fmt.Errorf("wsboard: %s: %s", method, resp.Error)
		}
		if out != nil && len(resp.Payload) > 0 {
			if err := json.Unmarshal(resp.Payload, out); err != nil {
				return fmt.Errorf("wsboard: decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) UserInfo(ctx context.Context) (board.UserInfo, error) {
	var out board.UserInfo
	err := c.call(ctx, "user.info", nil, &out)
	return out, err
}

func (c *Client) Info(ctx context.Context) (board.Info, error) {
	var out board.Info
	err := c.call(ctx, "board.info", nil, &out)
	return out, err
}

func (c *Client) IDToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, "board.idToken", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*board.Item, error) {
	var out board.Item
	if err := c.call(ctx, "item.get", map[string]string{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveItem(ctx context.Context, id string) error {
	return c.call(ctx, "item.remove", map[string]string{"id": id}, nil)
}

func (c *Client) Select(ctx context.Context, id string) error {
	return c.call(ctx, "selection.select", map[string]string{"id": id}, nil)
}

func (c *Client) Deselect(ctx context.Context) error {
	return c.call(ctx, "selection.deselect", nil, nil)
}

func (c *Client) ZoomTo(ctx context.Context, id string) error {
	return c.call(ctx, "viewport.zoomTo", map[string]string{"id": id}, nil)
}

func (c *Client) OpenURL(ctx context.Context, url string) error {
	return c.call(ctx, "url.open", map[string]string{"url": url}, nil)
}

func (c *Client) AppData(ctx context.Context, key string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	if err := c.call(ctx, "appData.get", map[string]string{"key": key}, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (c *Client) SetAppData(ctx context.Context, key, value string) error {
	return c.call(ctx, "appData.set", map[string]string{"key": key, "value": value}, nil)
}

func (c *Client) ShowInfo(ctx context.Context, msg string) error {
	return c.call(ctx, "notifications.showInfo", map[string]string{"message": msg}, nil)
}

func (c *Client) ShowError(ctx context.Context, msg string) error {
	return c.call(ctx, "notifications.showError", map[string]string{"message": msg}, nil)
}

func (c *Client) Broadcast(ctx context.Context, event string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wsboard: encode broadcast %s: %w", event, err)
		}
		raw = encoded
	}
	msg := message{Kind: kindBroadcast, Event: event, Payload: raw}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("wsboard: connection closed")
	}
}

type subscription struct {
	owner *Client
	table map[string][]*subscription
	event string
	h     board.Handler
}

func (s *subscription) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	subs := s.table[s.event]
	for i, sub := range subs {
		if sub == s {
			s.table[s.event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Client) OnUIEvent(event string, h board.Handler) (board.Subscription, error) {
	return c.subscribe(c.uiHandlers, event, h)
}

func (c *Client) OnEvent(event string, h board.Handler) (board.Subscription, error) {
	return c.subscribe(c.evHandlers, event, h)
}

func (c *Client) subscribe(table map[string][]*subscription, event string, h board.Handler) (board.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("wsboard: connection closed")
	}
	sub := &subscription{owner: c, table: table, event: event, h: h}
	table[event] = append(table[event], sub)
	return sub, nil
}
