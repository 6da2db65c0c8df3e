// Package boardtest provides an in-memory fake of the board capability
// surface for tests.
package boardtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/officeboard/panel/internal/board"
)

// Broadcast records one domain event sent to peers.
type Broadcast struct {
	Event   string
	Payload json.RawMessage
}

// Notification records one shown notification.
type Notification struct {
	Message string
	IsError bool
}

// Board is a fake board.Board. The zero value is not usable; call New.
type Board struct {
	mu sync.Mutex

	User   board.UserInfo
	Board  board.Info
	Token  string
	// TokenErr, when set, is returned by IDToken.
	TokenErr error

	items      map[string]*board.Item
	appData    map[string]string
	selected   string
	uiHandlers map[string][]*subscription
	evHandlers map[string][]*subscription

	broadcasts    []Broadcast
	notifications []Notification
	openedURLs    []string
	removedItems  []string
}

// New creates a fake board with a default user, board id and token.
func New() *Board {
	return &Board{
		User:       board.UserInfo{ID: "user-1"},
		Board:      board.Info{ID: "board-1", Locale: "en"},
		Token:      "test-token",
		items:      make(map[string]*board.Item),
		appData:    make(map[string]string),
		uiHandlers: make(map[string][]*subscription),
		evHandlers: make(map[string][]*subscription),
	}
}

type subscription struct {
	owner *Board
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

func (b *Board) UserInfo(context.Context) (board.UserInfo, error) { return b.User, nil }
func (b *Board) Info(context.Context) (board.Info, error)         { return b.Board, nil }

func (b *Board) IDToken(context.Context) (string, error) {
	if b.TokenErr != nil {
		return "", b.TokenErr
	}
	return b.Token, nil
}

// AddItem registers a native item so GetItem can find it.
func (b *Board) AddItem(item board.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[item.ID] = &item
}

func (b *Board) GetItem(_ context.Context, id string) (*board.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	copied := *item
	return &copied, nil
}

func (b *Board) RemoveItem(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return fmt.Errorf("item %s not found", id)
	}
	delete(b.items, id)
	b.removedItems = append(b.removedItems, id)
	return nil
}

func (b *Board) Select(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = id
	return nil
}

func (b *Board) Deselect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = ""
	return nil
}

func (b *Board) ZoomTo(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return fmt.Errorf("item %s not found", id)
	}
	return nil
}

func (b *Board) OpenURL(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openedURLs = append(b.openedURLs, url)
	return nil
}

func (b *Board) AppData(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appData[key], nil
}

func (b *Board) SetAppData(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appData[key] = value
	return nil
}

func (b *Board) OnUIEvent(event string, h board.Handler) (board.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{owner: b, table: b.uiHandlers, event: event, h: h}
	b.uiHandlers[event] = append(b.uiHandlers[event], sub)
	return sub, nil
}

func (b *Board) OnEvent(event string, h board.Handler) (board.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{owner: b, table: b.evHandlers, event: event, h: h}
	b.evHandlers[event] = append(b.evHandlers[event], sub)
	return sub, nil
}

func (b *Board) Broadcast(_ context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, Broadcast{Event: event, Payload: raw})
	return nil
}

func (b *Board) ShowInfo(_ context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, Notification{Message: message})
	return nil
}

func (b *Board) ShowError(_ context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, Notification{Message: message, IsError: true})
	return nil
}

// EmitUI delivers a native UI event to registered handlers, as the platform
// would on the acting client.
func (b *Board) EmitUI(event string, payload any) {
	b.emit(b.uiHandlers, event, payload)
}

// EmitEvent delivers an inbound domain broadcast, as the platform would on
// a peer client.
func (b *Board) EmitEvent(event string, payload any) {
	b.emit(b.evHandlers, event, payload)
}

func (b *Board) emit(table map[string][]*subscription, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	subs := append([]*subscription(nil), table[event]...)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.h(raw)
	}
}

// Broadcasts returns the recorded outbound domain events.
func (b *Board) Broadcasts() []Broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Broadcast(nil), b.broadcasts...)
}

// Notifications returns the recorded notifications.
func (b *Board) Notifications() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notification(nil), b.notifications...)
}

// OpenedURLs returns the URLs passed to OpenURL.
func (b *Board) OpenedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.openedURLs...)
}

// RemovedItems returns the ids passed to RemoveItem, in order.
func (b *Board) RemovedItems() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removedItems...)
}

// Selected returns the currently selected item id, empty after Deselect.
func (b *Board) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// HandlerCount returns the number of registered handlers across both event
// tables. Used to verify symmetric release.
func (b *Board) HandlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.uiHandlers {
		n += len(subs)
	}
	for _, subs := range b.evHandlers {
		n += len(subs)
	}
	return n
}
