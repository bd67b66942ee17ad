package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestFSUploadAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store, err := NewFS(dir, "http://localhost:8080/images/")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()

	url, err := store.Upload(ctx, "hero.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "http://localhost:8080/images/hero.png"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "hero.png")); err != nil {
		t.Errorf("file not written: %v", err)
	}
	if err := store.Delete(ctx, "hero.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Upload(ctx, "../escape.png", []byte("x"), "image/png"); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

type fakeS3 struct {
	puts    map[string][]byte
	deleted []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.puts[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3UploadUsesPrefixAndPublicURL(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	store := &S3{client: fake, bucket: "assets", prefix: "/images/", publicURL: "https://cdn.example.com"}

	url, err := store.Upload(context.Background(), "a.png", []byte("data"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "https://cdn.example.com/images/a.png"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if string(fake.puts["images/a.png"]) != "data" {
		t.Errorf("object not written under prefixed key: %v", fake.puts)
	}
	if err := store.Delete(context.Background(), "a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "images/a.png" {
		t.Errorf("deleted = %v", fake.deleted)
	}
}

func TestS3UploadError(t *testing.T) {
	store := &S3{client: &fakeS3{err: errors.New("denied")}, bucket: "b"}
	if _, err := store.Upload(context.Background(), "a.png", nil, "image/png"); err == nil {
		t.Error("expected error")
	}
}

func TestSupabasePublicURL(t *testing.T) {
	s := NewSupabase("https://proj.supabase.co/", "key", "designs", "img")
	if got, want := s.PublicURL(objectKey(s.prefix, "x.png")), "https://proj.supabase.co/storage/v1/object/public/designs/img/x.png"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "ftp"}); err == nil {
		t.Error("expected error")
	}
}
