package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/models"
)

func TestCheckSizeBoundary(t *testing.T) {
	if err := CheckSize(make([]byte, MaxDocumentBytes), MaxDocumentBytes); err != nil {
		t.Errorf("exactly at limit should pass: %v", err)
	}
	err := CheckSize(make([]byte, MaxDocumentBytes+1), MaxDocumentBytes)
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
	if err := CheckSize(make([]byte, 10), 0); err != nil {
		t.Errorf("zero limit disables the check: %v", err)
	}
}

func TestMarshalAppliesLimit(t *testing.T) {
	big := map[string]string{"body": strings.Repeat("x", 100)}
	if _, err := Marshal(big, 50); !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
	if _, err := Marshal(big, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDesignFileRoundTrip(t *testing.T) {
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := models.Design{
		ID:          "d1",
		ProjectName: "Spring webinar",
		TemplateKey: "webinar-invite",
		FieldValues: map[string]string{"headline": "Hello"},
		ImageSlots:  map[string]string{"hero": "https://cdn/x.png"},
	}
	data, err := EncodeDesignFile(in, saved, MaxDocumentBytes)
	if err != nil {
		t.Fatalf("EncodeDesignFile: %v", err)
	}
	if !strings.Contains(string(data), `"savedDate": "2026-03-01T12:00:00Z"`) {
		t.Errorf("savedDate missing in %s", data)
	}
	out, err := DecodeDesignFile(data)
	if err != nil {
		t.Fatalf("DecodeDesignFile: %v", err)
	}
	if out.ProjectName != in.ProjectName || out.FieldValues["headline"] != "Hello" || out.ImageSlots["hero"] == "" {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if !out.SavedAt.Equal(saved) {
		t.Errorf("SavedAt = %v, want %v from savedDate", out.SavedAt, saved)
	}
}

func TestDesignFileLimitCountsWrittenBytes(t *testing.T) {
	in := models.Design{ProjectName: "Edge", TemplateKey: "newsletter"}
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	full, err := EncodeDesignFile(in, saved, MaxDocumentBytes)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := EncodeDesignFile(in, saved, len(full)); err != nil {
		t.Errorf("file of exactly %d bytes should pass: %v", len(full), err)
	}
	_, err = EncodeDesignFile(in, saved, len(full)-1)
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Errorf("limit %d: err = %v, want ErrPayloadTooLarge", len(full)-1, err)
	}
}

func TestDecodeDesignFileRequiresTemplate(t *testing.T) {
	if _, err := DecodeDesignFile([]byte(`{"projectName":"x"}`)); err == nil {
		t.Error("expected error without templateKey")
	}
	if _, err := DecodeDesignFile([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseShareAddress(t *testing.T) {
	snap := models.ShareSnapshot{TemplateKey: "newsletter", FieldValues: map[string]string{"title": "Hi"}}
	payload, err := EncodeLegacyShare(snap)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		raw     string
		wantID  string
		payload bool
	}{
		{"bare id", "3f1c9a1e-2b7d-4c55-9a0e-111111111111", "3f1c9a1e-2b7d-4c55-9a0e-111111111111", false},
		{"url with share", "https://app.example.com/view?share=abc123", "abc123", false},
		{"bare payload", payload, "", true},
		{"url with data", "https://app.example.com/view?data=" + payload, "", true},
		{"query only", "data=" + payload, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseShareAddress(tc.raw)
			if err != nil {
				t.Fatalf("ParseShareAddress: %v", err)
			}
			if addr.ID != tc.wantID {
				t.Errorf("ID = %q, want %q", addr.ID, tc.wantID)
			}
			if tc.payload {
				if addr.Payload == nil || addr.Payload.FieldValues["title"] != "Hi" {
					t.Fatalf("payload = %+v", addr.Payload)
				}
				if addr.Payload.SchemaVersion != "1" {
					t.Errorf("legacy schema version = %q, want 1", addr.Payload.SchemaVersion)
				}
			}
		})
	}

	if _, err := ParseShareAddress("  "); err == nil {
		t.Error("expected error for empty address")
	}
}
