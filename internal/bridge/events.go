// Package bridge translates the three event channels (native board UI
// events, peer domain broadcasts, and local mutations) into one idempotent
// reducer over the document store, and owns the subscription lifecycle.
package bridge

import "github.com/officeboard/panel/internal/models"

// Domain broadcast event names exchanged between clients.
const (
	EventDocumentCreated  = "document_created"
	EventDocumentDeleted  = "document_deleted"
	EventDocumentsAdded   = "documents_added"
	EventDocumentsDeleted = "documents_deleted"
	EventRefreshDocuments = "refresh_documents"
)

// EventKind is the variant tag of a normalized document event.
type EventKind string

const (
	KindCreated EventKind = "created"
	KindUpdated EventKind = "updated"
	KindDeleted EventKind = "deleted"
)

// DocumentEvent is the single normalized shape every channel reduces to.
// Created/Updated carry documents; Deleted carries ids only.
type DocumentEvent struct {
	Kind      EventKind
	Documents []models.Document
	IDs       []string
}

// DeletedEvent is the wire payload of document_deleted / documents_deleted.
type DeletedEvent struct {
	IDs []string `json:"ids"`
}

// AddedEvent is the wire payload of documents_added.
type AddedEvent struct {
	Files []models.FileInfo `json:"files"`
}
