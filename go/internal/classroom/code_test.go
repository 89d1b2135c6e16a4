package classroom

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseSessionCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", `"ABC123"`, "ABC123", false},
		{"trimmed", `"  ABC123 "`, "ABC123", false},
		{"number", `123`, "", true},
		{"empty string", `""`, "", true},
		{"whitespace", `"   "`, "", true},
		{"null", `null`, "", true},
		{"missing", ``, "", true},
		{"object", `{"code":"A"}`, "", true},
		{"too long", `"` + strings.Repeat("X", 65) + `"`, "", true},
		{"max length", `"` + strings.Repeat("X", 64) + `"`, strings.Repeat("X", 64), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSessionCode(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSessionCode) {
					t.Fatalf("expected ErrInvalidSessionCode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
