package bridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/officeboard/panel/internal/board"
	"github.com/officeboard/panel/internal/documents"
	"github.com/officeboard/panel/internal/models"
	"github.com/officeboard/panel/internal/sse"
)

// notifyDocumentsAdded is the toast shown when documents land on the board.
const notifyDocumentsAdded = "Documents were added to the board"

// Bridge is the inbound half: it subscribes to native UI events and peer
// broadcasts, normalizes both into DocumentEvents, and applies them through
// one reducer. Bind and Close form an explicit acquire/release pair.
type Bridge struct {
	board   board.Board
	docs    *documents.Store
	emitter *Emitter
	broker  *sse.Broker
	log     *slog.Logger

	subs []board.Subscription
}

// New creates an unbound bridge.
func New(b board.Board, docs *documents.Store, emitter *Emitter, broker *sse.Broker, log *slog.Logger) *Bridge {
	return &Bridge{board: b, docs: docs, emitter: emitter, broker: broker, log: log}
}

// Bind registers every handler. On any registration failure the already
// registered handlers are released so a retry starts clean.
func (b *Bridge) Bind(ctx context.Context) error {
	type reg struct {
		ui    bool
		event string
		h     board.Handler
	}
	regs := []reg{
		{ui: true, event: board.UIItemsCreated, h: func(p json.RawMessage) { b.onUICreated(ctx, p) }},
		{ui: true, event: board.UIItemsDeleted, h: func(p json.RawMessage) { b.onUIDeleted(ctx, p) }},
		{ui: true, event: board.UIItemsUpdated, h: func(p json.RawMessage) { b.onUIUpdated(p) }},
		{event: EventDocumentCreated, h: b.onPeerCreated},
		{event: EventDocumentDeleted, h: b.onPeerDeleted},
		{event: EventDocumentsAdded, h: func(p json.RawMessage) { b.onPeerAdded(ctx, p) }},
		{event: EventDocumentsDeleted, h: b.onPeerDeleted},
		{event: EventRefreshDocuments, h: func(json.RawMessage) { b.docs.Refresh(ctx) }},
	}

	for _, r := range regs {
		var (
			sub board.Subscription
			err error
		)
		if r.ui {
			sub, err = b.board.OnUIEvent(r.event, r.h)
		} else {
			sub, err = b.board.OnEvent(r.event, r.h)
		}
		if err != nil {
			b.Close()
			return err
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

// Close releases every registered handler, symmetrically to Bind.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		if err := sub.Close(); err != nil {
			b.log.Warn("bridge: unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	b.subs = nil
}

// apply is the single reducer every channel converges into. The store's
// mutations are idempotent and commutative, so arrival order across
// channels does not matter.
func (b *Bridge) apply(ev DocumentEvent) {
	switch ev.Kind {
	case KindCreated:
		b.docs.UpdateOnCreate(ev.Documents)
	case KindUpdated:
		b.docs.UpdateOnUpdate(ev.Documents)
	case KindDeleted:
		b.docs.UpdateOnDelete(ev.IDs)
	}
	if b.broker != nil {
		ids := ev.IDs
		if ids == nil {
			for _, doc := range ev.Documents {
				ids = append(ids, doc.ID)
			}
		}
		b.broker.PublishDocumentEvent(string(ev.Kind), ids)
	}
}

// onUICreated handles the native items-created event on the acting client:
// document items are normalized into creation records, rebroadcast as a
// documents_added event and announced with a toast. The collection itself
// is updated by the document_created broadcast from the creation flow.
func (b *Bridge) onUICreated(ctx context.Context, payload json.RawMessage) {
	items := b.documentItems(payload)
	if len(items) == 0 {
		return
	}
	files := make([]models.FileInfo, 0, len(items))
	for _, item := range items {
		files = append(files, models.FileInfo{
			ID:         item.ID,
			Name:       item.Name,
			CreatedAt:  item.CreatedAt,
			ModifiedAt: item.ModifiedAt,
			Links:      models.Links{Self: item.SelfLink},
		})
	}
	if err := b.emitter.DocumentsAdded(ctx, files); err != nil {
		b.log.Warn("bridge: documents_added broadcast failed", slog.String("error", err.Error()))
	}
	b.emitter.Notify(ctx, notifyDocumentsAdded, false)
}

// onUIDeleted rebroadcasts natively deleted ids and applies the deletion
// locally.
func (b *Bridge) onUIDeleted(ctx context.Context, payload json.RawMessage) {
	var ev board.ItemsEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.log.Warn("bridge: malformed items:delete payload", slog.String("error", err.Error()))
		return
	}
	ids := make([]string, 0, len(ev.Items))
	for _, item := range ev.Items {
		ids = append(ids, item.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := b.emitter.DocumentsDeleted(ctx, ids); err != nil {
		b.log.Warn("bridge: documents_deleted broadcast failed", slog.String("error", err.Error()))
	}
	b.apply(DocumentEvent{Kind: KindDeleted, IDs: ids})
}

// onUIUpdated refreshes timestamps of natively updated document items.
func (b *Bridge) onUIUpdated(payload json.RawMessage) {
	items := b.documentItems(payload)
	if len(items) == 0 {
		return
	}
	docs := make([]models.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, models.Document{
			ID:         item.ID,
			CreatedAt:  item.CreatedAt,
			ModifiedAt: item.ModifiedAt,
		})
	}
	b.apply(DocumentEvent{Kind: KindUpdated, Documents: docs})
}

// onPeerCreated applies a peer's document_created broadcast.
func (b *Bridge) onPeerCreated(payload json.RawMessage) {
	var file models.FileInfo
	if err := json.Unmarshal(payload, &file); err != nil {
		b.log.Warn("bridge: malformed document_created payload", slog.String("error", err.Error()))
		return
	}
	b.apply(DocumentEvent{Kind: KindCreated, Documents: []models.Document{file.Document()}})
}

// onPeerAdded only shows the toast: the acting client already applied the
// mutation through its own event path.
func (b *Bridge) onPeerAdded(ctx context.Context, _ json.RawMessage) {
	b.emitter.Notify(ctx, notifyDocumentsAdded, false)
}

// onPeerDeleted applies inbound deletion ids.
func (b *Bridge) onPeerDeleted(payload json.RawMessage) {
	var ev DeletedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.log.Warn("bridge: malformed deletion payload", slog.String("error", err.Error()))
		return
	}
	if len(ev.IDs) == 0 {
		return
	}
	b.apply(DocumentEvent{Kind: KindDeleted, IDs: ev.IDs})
}

// documentItems decodes an items event and keeps only document items.
func (b *Bridge) documentItems(payload json.RawMessage) []board.Item {
	var ev board.ItemsEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.log.Warn("bridge: malformed items payload", slog.String("error", err.Error()))
		return nil
	}
	items := make([]board.Item, 0, len(ev.Items))
	for _, item := range ev.Items {
		if item.Type == board.ItemTypeDocument {
			items = append(items, item)
		}
	}
	return items
}
