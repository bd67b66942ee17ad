// Package blob hosts uploaded images and returns the URLs designs refer to.
package blob

import (
	"context"
	"fmt"
	"strings"
)

// Store uploads image bytes and returns a publicly reachable URL.
type Store interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
}

// Drivers accepted by Open.
const (
	DriverFS       = "fs"
	DriverSupabase = "supabase"
	DriverS3       = "s3"
)

// Options configures Open.
type Options struct {
	Driver string

	// fs
	Dir     string
	BaseURL string

	// supabase
	SupabaseURL string
	SupabaseKey string

	// s3
	Region    string
	Endpoint  string
	PublicURL string

	Bucket string
	Prefix string
}

// Open builds the configured image store.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Driver {
	case DriverFS, "":
		return NewFS(o.Dir, o.BaseURL)
	case DriverSupabase:
		return NewSupabase(o.SupabaseURL, o.SupabaseKey, o.Bucket, o.Prefix), nil
	case DriverS3:
		return NewS3(ctx, o.Region, o.Endpoint, o.Bucket, o.Prefix, o.PublicURL)
	default:
		return nil, fmt.Errorf("blob: unknown driver %q", o.Driver)
	}
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
