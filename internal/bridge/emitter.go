package bridge

import (
	"context"
	"log/slog"

	"github.com/officeboard/panel/internal/board"
	"github.com/officeboard/panel/internal/documents"
	"github.com/officeboard/panel/internal/models"
	"github.com/officeboard/panel/internal/sse"
)

// Emitter is the outbound half of the bridge: it applies local mutations
// and broadcasts the matching domain events to peers.
type Emitter struct {
	board  board.Board
	docs   *documents.Store
	broker *sse.Broker
	log    *slog.Logger
}

// NewEmitter creates an emitter. broker may be nil when no local consumers
// listen.
func NewEmitter(b board.Board, docs *documents.Store, broker *sse.Broker, log *slog.Logger) *Emitter {
	return &Emitter{board: b, docs: docs, broker: broker, log: log}
}

// DocumentCreated applies a locally created file to the collection and
// broadcasts it to peers. Local apply happens first so the acting client
// never waits on the event transport.
func (e *Emitter) DocumentCreated(ctx context.Context, file models.FileInfo) error {
	e.docs.UpdateOnCreate([]models.Document{file.Document()})
	e.publishDoc(KindCreated, []string{file.ID})
	return e.board.Broadcast(ctx, EventDocumentCreated, file)
}

// DocumentDeleted broadcasts a single deletion to peers. Local removal is
// the document store's job; see documents.Store.Delete for the ordering.
func (e *Emitter) DocumentDeleted(ctx context.Context, id string) error {
	return e.board.Broadcast(ctx, EventDocumentDeleted, DeletedEvent{IDs: []string{id}})
}

// DocumentsAdded announces files that appeared through a native UI event.
func (e *Emitter) DocumentsAdded(ctx context.Context, files []models.FileInfo) error {
	return e.board.Broadcast(ctx, EventDocumentsAdded, AddedEvent{Files: files})
}

// DocumentsDeleted announces ids removed through a native UI event.
func (e *Emitter) DocumentsDeleted(ctx context.Context, ids []string) error {
	return e.board.Broadcast(ctx, EventDocumentsDeleted, DeletedEvent{IDs: ids})
}

// RefreshDocuments refreshes the local listing and asks peers to do the
// same.
func (e *Emitter) RefreshDocuments(ctx context.Context) error {
	e.docs.Refresh(ctx)
	return e.board.Broadcast(ctx, EventRefreshDocuments, nil)
}

// Notify shows a notification on the acting client.
func (e *Emitter) Notify(ctx context.Context, message string, isError bool) {
	var err error
	if isError {
		err = e.board.ShowError(ctx, message)
	} else {
		err = e.board.ShowInfo(ctx, message)
	}
	if err != nil {
		e.log.Warn("bridge: notification failed", slog.String("error", err.Error()))
	}
}

func (e *Emitter) publishDoc(kind EventKind, ids []string) {
	if e.broker != nil {
		e.broker.PublishDocumentEvent(string(kind), ids)
	}
}
