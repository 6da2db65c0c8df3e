package creator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/models"
)

type fakeBackend struct {
	file *models.FileInfo
	err  error

	gotName string
	gotType string
}

func (f *fakeBackend) CreateFile(_ context.Context, name, fileType string) (*models.FileInfo, error) {
	f.gotName, f.gotType = name, fileType
	return f.file, f.err
}

func TestSupportedTypes(t *testing.T) {
	types := SupportedTypes()
	want := []string{"docx", "xlsx", "pptx"}
	if len(types) != len(want) {
		t.Fatalf("types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types = %v, want %v", types, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		fileType string
		ok       bool
	}{
		{"valid docx", "report", "docx", true},
		{"valid pptx", "slides", "pptx", true},
		{"empty name", "", "docx", false},
		{"empty type", "report", "", false},
		{"unsupported type", "report", "pdf", false},
		{"name too long", strings.Repeat("x", 256), "docx", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(&fakeBackend{})
			c.SetName(tc.fileName)
			c.SetType(tc.fileType)

			err := c.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok {
				if apperr.KindOf(err) != apperr.KindValidation {
					t.Errorf("kind = %v, want validation", apperr.KindOf(err))
				}
			}
		})
	}
}

func TestCreate(t *testing.T) {
	b := &fakeBackend{file: &models.FileInfo{ID: "f1", Name: "report.docx"}}
	c := New(b)
	c.SetName("report")
	c.SetType("docx")

	file, err := c.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if file.ID != "f1" {
		t.Errorf("id = %q", file.ID)
	}
	if b.gotName != "report" || b.gotType != "docx" {
		t.Errorf("backend got %q %q", b.gotName, b.gotType)
	}
	if c.Failed() || c.Loading() {
		t.Error("flags must clear on success")
	}
}

func TestCreateInvalidFormSkipsBackend(t *testing.T) {
	b := &fakeBackend{}
	c := New(b)

	if _, err := c.Create(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if b.gotName != "" || b.gotType != "" {
		t.Error("backend must not be called with an invalid form")
	}
}

func TestCreateFailureSetsFlag(t *testing.T) {
	b := &fakeBackend{err: errors.New("boom")}
	c := New(b)
	c.SetName("report")
	c.SetType("docx")

	if _, err := c.Create(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !c.Failed() {
		t.Error("expected failed flag")
	}
	if c.Loading() {
		t.Error("loading must clear")
	}

	// The next attempt clears the flag.
	b.err = nil
	b.file = &models.FileInfo{ID: "f1"}
	if _, err := c.Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Failed() {
		t.Error("failed flag must clear on the next success")
	}
}

func TestReset(t *testing.T) {
	c := New(&fakeBackend{})
	c.SetName("report")
	c.SetType("docx")
	c.Reset()

	if err := c.Validate(); apperr.KindOf(err) != apperr.KindValidation {
		t.Error("expected validation failure after reset")
	}
}
