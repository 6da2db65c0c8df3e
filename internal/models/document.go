// Package models defines the wire types shared with the panel backend and
// the board platform.
package models

// DocumentData is the display payload attached to a document. It may be
// absent on items discovered through raw board events; the panel renders a
// fallback icon in that case.
type DocumentData struct {
	Title       string `json:"title"`
	DocumentURL string `json:"documentUrl"`
}

// Document represents one office file bound to a board item. ID is the
// stable board item identifier and is unique within a collection.
type Document struct {
	ID         string        `json:"id"`
	Data       *DocumentData `json:"data,omitempty"`
	CreatedAt  string        `json:"createdAt"`
	ModifiedAt string        `json:"modifiedAt"`
}

// Title returns the display name, or empty when the payload is missing.
func (d Document) Title() string {
	if d.Data == nil {
		return ""
	}
	return d.Data.Title
}

// DocumentURL returns the resource locator, or empty when missing.
func (d Document) DocumentURL() string {
	if d.Data == nil {
		return ""
	}
	return d.Data.DocumentURL
}

// Pageable is the server pagination envelope. Data keeps the server-defined
// order; an empty Cursor signals the end of the stream.
type Pageable struct {
	Size   int        `json:"size"`
	Limit  int        `json:"limit"`
	Total  int        `json:"total"`
	Data   []Document `json:"data"`
	Cursor string     `json:"cursor,omitempty"`
}

// Links holds the self link of a created file.
type Links struct {
	Self string `json:"self"`
}

// FileInfo is the normalized creation record exchanged between clients and
// returned by the create endpoint.
type FileInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatedAt  string `json:"createdAt"`
	ModifiedAt string `json:"modifiedAt"`
	Links      Links  `json:"links"`
}

// Document converts the creation record into the collection entry shape.
func (f FileInfo) Document() Document {
	return Document{
		ID: f.ID,
		Data: &DocumentData{
			Title:       f.Name,
			DocumentURL: f.Links.Self,
		},
		CreatedAt:  f.CreatedAt,
		ModifiedAt: f.ModifiedAt,
	}
}

// ConvertTicket is the conversion handoff returned by the backend: the
// converter endpoint plus a one-time token.
type ConvertTicket struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}
