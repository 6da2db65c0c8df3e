// Package creator holds the new-document form state and drives the create
// call against the backend.
package creator

import (
	"context"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/models"
)

// Backend is the slice of the transport the creator needs.
type Backend interface {
	CreateFile(ctx context.Context, fileName, fileType string) (*models.FileInfo, error)
}

// SupportedTypes lists the office formats a new document can take.
func SupportedTypes() []string {
	return []string{"docx", "xlsx", "pptx"}
}

// Creator is the new-document form store.
type Creator struct {
	backend Backend

	mu           sync.Mutex
	selectedName string
	selectedType string
	loading      bool
	failed       bool
}

// New creates a creator.
func New(backend Backend) *Creator {
	return &Creator{backend: backend}
}

// SetName updates the selected file name.
func (c *Creator) SetName(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedName = v
}

// SetType updates the selected file type.
func (c *Creator) SetType(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedType = v
}

// Reset clears the form.
func (c *Creator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedName = ""
	c.selectedType = ""
}

// Validate checks the form input. The returned error carries the
// validation kind and never leaves the form/API layer.
func (c *Creator) Validate() error {
	c.mu.Lock()
	name, fileType := c.selectedName, c.selectedType
	c.mu.Unlock()

	types := SupportedTypes()
	in := make([]any, len(types))
	for i, t := range types {
		in[i] = t
	}
	err := validation.Errors{
		"name": validation.Validate(name, validation.Required, validation.Length(1, 255)),
		"type": validation.Validate(fileType, validation.Required, validation.In(in...)),
	}.Filter()
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid document form", err)
	}
	return nil
}

// Create validates the form and creates the document. The failure flag
// stays set until the next attempt.
func (c *Creator) Create(ctx context.Context) (*models.FileInfo, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.loading = true
	c.failed = false
	name, fileType := c.selectedName, c.selectedType
	c.mu.Unlock()

	file, err := c.backend.CreateFile(ctx, name, fileType)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.failed = true
		return nil, err
	}
	return file, nil
}

// Loading reports whether a create call is in flight.
func (c *Creator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Failed reports whether the last create attempt failed.
func (c *Creator) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}
