// Package board abstracts the host whiteboard platform behind a narrow
// capability interface so the panel core never reaches for an ambient
// global. The production implementation lives in wsboard; tests use
// boardtest.
package board

import (
	"context"
	"encoding/json"
)

// ItemTypeDocument is the board item type backing panel documents.
const ItemTypeDocument = "document"

// Native UI event names. These fire only on the client that performed the
// action, never on peers.
const (
	UIItemsCreated = "items:create"
	UIItemsDeleted = "items:delete"
	UIItemsUpdated = "experimental:items:update"
)

// UserInfo identifies the current user.
type UserInfo struct {
	ID string `json:"id"`
}

// Info describes the board the panel is attached to.
type Info struct {
	ID     string `json:"id"`
	Locale string `json:"locale"`
}

// Item is a native board object.
type Item struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	CreatedAt  string `json:"createdAt"`
	ModifiedAt string `json:"modifiedAt"`
	SelfLink   string `json:"selfLink"`
}

// ItemsEvent is the payload of the items:create / items:delete /
// items:update UI events.
type ItemsEvent struct {
	Items []Item `json:"items"`
}

// Handler consumes a raw event payload.
type Handler func(payload json.RawMessage)

// Subscription is the release half of an event registration. Handlers must
// be released symmetrically to avoid duplicate delivery across rebinds.
type Subscription interface {
	Close() error
}

// Board is the host-platform capability surface consumed by the panel.
type Board interface {
	// Identity and context.
	UserInfo(ctx context.Context) (UserInfo, error)
	Info(ctx context.Context) (Info, error)
	// IDToken returns a short-lived signed identity token attached to
	// every backend request.
	IDToken(ctx context.Context) (string, error)

	// Item interactions.
	GetItem(ctx context.Context, id string) (*Item, error)
	RemoveItem(ctx context.Context, id string) error
	Select(ctx context.Context, id string) error
	Deselect(ctx context.Context) error
	ZoomTo(ctx context.Context, id string) error
	OpenURL(ctx context.Context, url string) error

	// Small per-board app metadata.
	AppData(ctx context.Context, key string) (string, error)
	SetAppData(ctx context.Context, key, value string) error

	// Events. OnUIEvent subscribes to native UI events; OnEvent to domain
	// broadcasts from peers; Broadcast sends a domain event to peers.
	OnUIEvent(event string, h Handler) (Subscription, error)
	OnEvent(event string, h Handler) (Subscription, error)
	Broadcast(ctx context.Context, event string, payload any) error

	// Notifications.
	ShowInfo(ctx context.Context, message string) error
	ShowError(ctx context.Context, message string) error
}
