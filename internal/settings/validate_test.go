package settings

import (
	"testing"

	"github.com/officeboard/panel/internal/apperr"
)

func TestValidateForm(t *testing.T) {
	cases := []struct {
		name    string
		address string
		header  string
		secret  string
		ok      bool
	}{
		{"valid https", "https://docs.example", "Authorization", "s3cret", true},
		{"valid http with port", "http://10.0.0.5:8080", "Authorization", "s3cret", true},
		{"empty address", "", "Authorization", "s3cret", false},
		{"trailing slash", "https://docs.example/", "Authorization", "s3cret", false},
		{"relative address", "docs.example", "Authorization", "s3cret", false},
		{"wrong scheme", "ftp://docs.example", "Authorization", "s3cret", false},
		{"empty header", "https://docs.example", "", "s3cret", false},
		{"empty secret", "https://docs.example", "Authorization", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateForm(tc.address, tc.header, tc.secret)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("kind = %v, want validation", apperr.KindOf(err))
			}
		})
	}
}
