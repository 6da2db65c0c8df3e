// Package documents owns the authoritative, de-duplicated, cursor-paginated
// and searchable document collection for one board. It is the single source
// of truth for the listing; create/update/delete mutations from local
// actions, native board events and peer broadcasts all converge here.
package documents

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/board"
	"github.com/officeboard/panel/internal/models"
)

// Fetcher is the slice of the transport the store needs.
type Fetcher interface {
	FetchDocuments(ctx context.Context, cursor string) (*models.Pageable, error)
	RequestConversion(ctx context.Context, fileID string) (*models.ConvertTicket, error)
	Convert(ctx context.Context, ticket *models.ConvertTicket) (string, error)
	OpenEditor(ctx context.Context, fileID string) error
}

// Session guards the editor handoff; the editor authenticates with the
// backend session cookie, not the identity token.
type Session interface {
	ShouldRefreshCookie() bool
	EnsureFreshCookie(ctx context.Context) error
}

// Peers broadcasts local deletions so other clients converge.
type Peers interface {
	DocumentDeleted(ctx context.Context, id string) error
}

// Snapshot persists the last-known-good collection across restarts. A nil
// snapshot disables persistence.
type Snapshot interface {
	Load() ([]models.Document, error)
	Replace(docs []models.Document) error
}

// Store is the document collection store.
type Store struct {
	fetcher Fetcher
	board   board.Board
	log     *slog.Logger

	snap    Snapshot
	peers   Peers
	session Session

	mu             sync.Mutex
	documents      []models.Document
	filtered       []models.Document
	activeDropdown string
	cursor         string
	searchQuery    string
	initialized    bool
	loading        bool
	converting     bool

	authError         bool
	serverConfigError bool
}

// New creates a document store. When a snapshot is given, its contents are
// preloaded so the panel can show stale-but-available data before the first
// fetch; the store still counts as uninitialized until Refresh succeeds.
func New(fetcher Fetcher, b board.Board, snap Snapshot, log *slog.Logger) *Store {
	s := &Store{fetcher: fetcher, board: b, snap: snap, log: log}
	if snap != nil {
		docs, err := snap.Load()
		if err != nil {
			log.Warn("documents: snapshot load failed", slog.String("error", err.Error()))
		} else if len(docs) > 0 {
			s.documents = docs
			s.filtered = docs
		}
	}
	return s
}

// SetPeers wires the deletion broadcaster. Must be called before Delete.
func (s *Store) SetPeers(p Peers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = p
}

// SetSession wires the cookie guard for Open. A nil session skips the
// freshness check.
func (s *Store) SetSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
}

// filterDocuments applies the case-insensitive substring title match. An
// all-whitespace query means no filter.
func filterDocuments(docs []models.Document, query string) []models.Document {
	if strings.TrimSpace(query) == "" {
		return docs
	}
	lower := strings.ToLower(query)
	filtered := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.Contains(strings.ToLower(doc.Title()), lower) {
			filtered = append(filtered, doc)
		}
	}
	return filtered
}

// Refresh fetches the first listing page. It is a no-op while another fetch
// is in flight. On the first successful load the document set is replaced
// and remaining pages are drained; when a cursor from a prior pagination
// still exists, fresh results are merged ahead of the loaded list instead,
// de-duplicated by id.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.authError = false
	s.serverConfigError = false
	replace := !s.initialized || s.cursor == ""
	s.mu.Unlock()

	page, err := s.fetcher.FetchDocuments(ctx, "")
	if err != nil {
		s.finishWithError(err)
		return
	}

	s.mu.Lock()
	if replace {
		s.documents = append([]models.Document(nil), page.Data...)
		s.cursor = page.Cursor
		s.initialized = true
	} else {
		seen := make(map[string]struct{}, len(page.Data))
		merged := make([]models.Document, 0, len(page.Data)+len(s.documents))
		for _, doc := range page.Data {
			seen[doc.ID] = struct{}{}
			merged = append(merged, doc)
		}
		for _, doc := range s.documents {
			if _, ok := seen[doc.ID]; !ok {
				merged = append(merged, doc)
			}
		}
		s.documents = merged
		if page.Cursor != "" {
			s.cursor = page.Cursor
		}
	}
	s.refilterLocked()
	s.loading = false
	drain := replace && s.cursor != ""
	docs := s.copyLocked()
	s.mu.Unlock()

	s.persist(docs)
	if drain {
		s.LoadMore(ctx)
	}
}

// LoadMore drains the remaining pages behind the stored cursor. It is a
// no-op while loading, without a cursor, or before the first page
// completed. Pages are fetched and appended strictly in sequence; an empty
// page ends the stream even when the server returned a cursor token.
func (s *Store) LoadMore(ctx context.Context) {
	s.mu.Lock()
	if s.loading || s.cursor == "" || !s.initialized {
		s.mu.Unlock()
		return
	}
	s.loading = true
	cursor := s.cursor
	s.mu.Unlock()

	for cursor != "" {
		page, err := s.fetcher.FetchDocuments(ctx, cursor)
		if err != nil {
			s.finishWithError(err)
			return
		}

		s.mu.Lock()
		if len(page.Data) == 0 {
			s.cursor = ""
			s.loading = false
			s.mu.Unlock()
			return
		}
		s.documents = append(s.documents, page.Data...)
		s.cursor = page.Cursor
		s.refilterLocked()
		cursor = page.Cursor
		docs := s.copyLocked()
		s.mu.Unlock()

		s.persist(docs)
	}

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// finishWithError clears the loading flag and maps the error kind onto the
// sticky view flags. Unclassified failures keep the last-known-good list
// and stay silent.
func (s *Store) finishWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	switch apperr.KindOf(err) {
	case apperr.KindNotAuthorized, apperr.KindAccessDenied:
		s.authError = true
	case apperr.KindServerMisconfigured:
		s.serverConfigError = true
	default:
		s.log.Warn("documents: fetch failed", slog.String("error", err.Error()))
	}
}

// SetSearchQuery stores the raw query and recomputes the filtered view
// synchronously. Debouncing, if any, belongs to the input widget.
func (s *Store) SetSearchQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = query
	s.refilterLocked()
}

// Search applies the title filter to the current collection without
// touching the store's own query state.
func (s *Store) Search(query string) []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document(nil), filterDocuments(s.documents, query)...)
}

// ToggleDropdown selects the given dropdown, or clears the selection when
// it is already active. At most one dropdown is open at a time.
func (s *Store) ToggleDropdown(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDropdown == id {
		s.activeDropdown = ""
	} else {
		s.activeDropdown = id
	}
}

// UpdateOnCreate appends documents whose ids are not yet present. Local
// creations and peer broadcasts converge through this one path, which makes
// duplicate delivery harmless.
func (s *Store) UpdateOnCreate(docs []models.Document) {
	s.mu.Lock()
	existing := make(map[string]struct{}, len(s.documents))
	for _, doc := range s.documents {
		existing[doc.ID] = struct{}{}
	}
	added := false
	for _, doc := range docs {
		if _, ok := existing[doc.ID]; ok {
			continue
		}
		existing[doc.ID] = struct{}{}
		s.documents = append(s.documents, doc)
		added = true
	}
	if !added {
		s.mu.Unlock()
		return
	}
	s.refilterLocked()
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// UpdateOnUpdate overwrites createdAt/modifiedAt of matching documents when
// the incoming value is non-empty. Title and URL are never resynced here;
// unknown ids are ignored.
func (s *Store) UpdateOnUpdate(docs []models.Document) {
	byID := make(map[string]models.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	s.mu.Lock()
	for i := range s.documents {
		update, ok := byID[s.documents[i].ID]
		if !ok {
			continue
		}
		if update.CreatedAt != "" {
			s.documents[i].CreatedAt = update.CreatedAt
		}
		if update.ModifiedAt != "" {
			s.documents[i].ModifiedAt = update.ModifiedAt
		}
	}
	s.refilterLocked()
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// UpdateOnDelete removes the documents with the given ids. Absent ids are
// a no-op.
func (s *Store) UpdateOnDelete(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := s.documents[:0]
	for _, doc := range s.documents {
		if _, ok := drop[doc.ID]; !ok {
			kept = append(kept, doc)
		}
	}
	s.documents = kept
	s.refilterLocked()
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// Navigate brings the backing board item into view: deselect, locate,
// zoom, then select. A failed lookup aborts the rest.
func (s *Store) Navigate(ctx context.Context, doc models.Document) error {
	if err := s.board.Deselect(ctx); err != nil {
		return err
	}
	item, err := s.board.GetItem(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := s.board.ZoomTo(ctx, item.ID); err != nil {
		return err
	}
	return s.board.Select(ctx, item.ID)
}

// Open launches the backend editor for the document. The editor rides on
// the session cookie, so a stale cookie is refreshed first; when the
// refresh still leaves no usable cookie the handoff is aborted.
func (s *Store) Open(ctx context.Context, doc models.Document) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess != nil && sess.ShouldRefreshCookie() {
		if err := sess.EnsureFreshCookie(ctx); err != nil {
			return err
		}
		if sess.ShouldRefreshCookie() {
			return apperr.New(apperr.KindNotAuthorized, "not authorized")
		}
	}
	return s.fetcher.OpenEditor(ctx, doc.ID)
}

// DownloadPDF runs the conversion chain: request the handoff, post the
// one-time token to the converter, open the resulting file. Any failure
// only clears the converting flag; the collection itself is never touched
// by a conversion.
func (s *Store) DownloadPDF(ctx context.Context, doc models.Document) (string, error) {
	s.mu.Lock()
	s.converting = true
	s.mu.Unlock()

	fileURL, err := s.convert(ctx, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.converting = false
	if err != nil {
		return "", err
	}
	s.activeDropdown = ""
	return fileURL, nil
}

func (s *Store) convert(ctx context.Context, doc models.Document) (string, error) {
	ticket, err := s.fetcher.RequestConversion(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	fileURL, err := s.fetcher.Convert(ctx, ticket)
	if err != nil {
		return "", err
	}
	if err := s.board.OpenURL(ctx, fileURL); err != nil {
		return "", err
	}
	return fileURL, nil
}

// Delete removes the backing board item, broadcasts the deletion to peers,
// closes the dropdown and drops the document locally, in that order, so
// peers and self converge even when the broadcast races local removal.
func (s *Store) Delete(ctx context.Context, doc models.Document) error {
	if item, err := s.board.GetItem(ctx, doc.ID); err == nil {
		if err := s.board.RemoveItem(ctx, item.ID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	peers := s.peers
	s.mu.Unlock()
	if peers != nil {
		if err := peers.DocumentDeleted(ctx, doc.ID); err != nil {
			s.log.Warn("documents: delete broadcast failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.activeDropdown = ""
	s.mu.Unlock()

	s.UpdateOnDelete([]string{doc.ID})
	return nil
}

func (s *Store) refilterLocked() {
	s.filtered = filterDocuments(s.documents, s.searchQuery)
}

func (s *Store) copyLocked() []models.Document {
	return append([]models.Document(nil), s.documents...)
}

func (s *Store) persist(docs []models.Document) {
	if s.snap == nil {
		return
	}
	if err := s.snap.Replace(docs); err != nil {
		s.log.Warn("documents: snapshot write failed", slog.String("error", err.Error()))
	}
}

// Documents returns a copy of the full collection in server order.
func (s *Store) Documents() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Filtered returns a copy of the collection after the search filter.
func (s *Store) Filtered() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document(nil), s.filtered...)
}

// Get returns the document with the given id.
func (s *Store) Get(id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.documents {
		if doc.ID == id {
			return doc, true
		}
	}
	return models.Document{}, false
}

// Cursor returns the pagination continuation token, empty at end of stream.
func (s *Store) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Initialized reports whether the first page ever completed.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Loading reports whether a listing fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Converting reports whether a PDF conversion is in flight.
func (s *Store) Converting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.converting
}

// AuthError reports the sticky authorization-failure flag.
func (s *Store) AuthError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authError
}

// ServerConfigError reports the sticky misconfiguration flag.
func (s *Store) ServerConfigError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverConfigError
}

// ActiveDropdown returns the open dropdown id, empty when none.
func (s *Store) ActiveDropdown() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDropdown
}

// SearchQuery returns the raw stored query.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}
