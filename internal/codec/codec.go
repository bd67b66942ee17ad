// Package codec serializes designs for the store and the local file format,
// enforces the document size ceiling, and parses share addresses.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/models"
)

// MaxDocumentBytes is the largest serialized document the store accepts.
const MaxDocumentBytes = 950_000

// legacySchemaVersion is assumed for share payloads that predate versioning.
const legacySchemaVersion = "1"

// CheckSize rejects data longer than limit. A limit <= 0 disables the check.
func CheckSize(data []byte, limit int) error {
	if limit > 0 && len(data) > limit {
		return &apperr.PayloadTooLargeError{Size: len(data), Limit: limit}
	}
	return nil
}

// Marshal encodes v as JSON and applies the size ceiling.
func Marshal(v any, limit int) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	if err := CheckSize(data, limit); err != nil {
		return nil, err
	}
	return data, nil
}

// EncodeDesignFile renders the local file export format.
func EncodeDesignFile(d models.Design, savedAt time.Time, limit int) ([]byte, error) {
	f := models.DesignFile{Design: d, SavedDate: savedAt.UTC().Format(time.RFC3339)}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: marshal design file: %w", err)
	}
	data = append(data, '\n')
	if err := CheckSize(data, limit); err != nil {
		return nil, err
	}
	return data, nil
}

// DecodeDesignFile parses a local design file. Files written before
// savedAt existed fall back to savedDate.
func DecodeDesignFile(data []byte) (models.Design, error) {
	var f models.DesignFile
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Design{}, fmt.Errorf("codec: parse design file: %w", err)
	}
	if f.TemplateKey == "" {
		return models.Design{}, fmt.Errorf("codec: design file has no templateKey")
	}
	d := f.Design
	if d.SavedAt.IsZero() && f.SavedDate != "" {
		if ts, err := time.Parse(time.RFC3339, f.SavedDate); err == nil {
			d.SavedAt = ts
		}
	}
	nonNilMaps(&d.FieldValues, &d.ImageSlots)
	return d, nil
}

// ShareAddress is a parsed share link: either an opaque snapshot id or an
// inline legacy payload.
type ShareAddress struct {
	ID      string
	Payload *models.ShareSnapshot
}

// ParseShareAddress accepts a bare id, a bare base64 payload, or a URL
// carrying a share= (id) or data= (payload) query parameter.
func ParseShareAddress(raw string) (ShareAddress, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ShareAddress{}, fmt.Errorf("codec: empty share address")
	}

	if strings.Contains(raw, "://") || strings.Contains(raw, "?") ||
		strings.HasPrefix(raw, "share=") || strings.HasPrefix(raw, "data=") {
		if addr, ok := fromQuery(raw); ok {
			return addr, nil
		}
	}

	if snap, err := DecodeLegacyShare(raw); err == nil {
		return ShareAddress{Payload: snap}, nil
	}
	if strings.ContainsAny(raw, "/?&# ") {
		return ShareAddress{}, fmt.Errorf("codec: unrecognised share address")
	}
	return ShareAddress{ID: raw}, nil
}

func fromQuery(raw string) (ShareAddress, bool) {
	query := raw
	if i := strings.Index(raw, "?"); i >= 0 {
		query = raw[i+1:]
	}
	if i := strings.Index(query, "#"); i >= 0 {
		query = query[:i]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ShareAddress{}, false
	}
	if id := values.Get("share"); id != "" {
		return ShareAddress{ID: id}, true
	}
	if data := values.Get("data"); data != "" {
		snap, err := DecodeLegacyShare(data)
		if err != nil {
			return ShareAddress{}, false
		}
		return ShareAddress{Payload: snap}, true
	}
	return ShareAddress{}, false
}

// EncodeLegacyShare embeds a snapshot in a URL-safe base64 string.
func EncodeLegacyShare(s models.ShareSnapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("codec: marshal share: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeLegacyShare decodes an inline share payload. Both standard and
// URL-safe alphabets, padded or not, are accepted.
func DecodeLegacyShare(encoded string) (*models.ShareSnapshot, error) {
	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding,
	} {
		data, err = enc.DecodeString(encoded)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("codec: share payload is not base64: %w", err)
	}

	var snap models.ShareSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("codec: share payload is not JSON: %w", err)
	}
	if snap.TemplateKey == "" {
		return nil, fmt.Errorf("codec: share payload has no templateKey")
	}
	if snap.SchemaVersion == "" {
		snap.SchemaVersion = legacySchemaVersion
	}
	nonNilMaps(&snap.FieldValues, &snap.ImageSlots)
	return &snap, nil
}

func nonNilMaps(ms ...*map[string]string) {
	for _, m := range ms {
		if *m == nil {
			*m = map[string]string{}
		}
	}
}
