package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// Supabase stores images in a public Supabase Storage bucket.
type Supabase struct {
	client  *storage.Client
	bucket  string
	prefix  string
	baseURL string
}

// NewSupabase creates a client for the project at supabaseURL using a
// service-role key.
func NewSupabase(supabaseURL, serviceRoleKey, bucket, prefix string) *Supabase {
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &Supabase{
		client:  storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		bucket:  bucket,
		prefix:  prefix,
		baseURL: baseURL,
	}
}

func (s *Supabase) Upload(_ context.Context, name string, data []byte, contentType string) (string, error) {
	key := objectKey(s.prefix, name)
	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("blob: supabase upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *Supabase) Delete(_ context.Context, name string) error {
	key := objectKey(s.prefix, name)
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("blob: supabase delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the public object URL for key.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
