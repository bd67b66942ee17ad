// Package imagesrc turns user-supplied image input (raw bytes, data URIs,
// remote URLs) into validated image payloads ready for hosting.
package imagesrc

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mailwright/internal/apperr"
)

// DefaultMaxBytes caps a single image.
const DefaultMaxBytes = 10 << 20 // 10 MB

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true,
	}

	mimeToExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}

	extToMime = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".svg":  "image/svg+xml",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Errors from Prepare and Resolve match apperr.ErrValidation when the input
// itself is rejected and apperr.ErrIO when a remote image could not be
// downloaded.

// Image is a validated image ready for upload.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Loader validates and fetches images.
type Loader struct {
	maxBytes  int
	client    *http.Client
	checkHost func(host string) error
}

// NewLoader returns a Loader enforcing maxBytes per image (<= 0 uses
// DefaultMaxBytes).
func NewLoader(maxBytes int) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	l := &Loader{maxBytes: maxBytes, checkHost: checkBlockedHost}
	l.client = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return l.checkHost(req.URL.Hostname())
		},
	}
	return l
}

// Prepare validates raw bytes under filename. An empty filename gets a
// generated one based on the sniffed content type.
func (l *Loader) Prepare(data []byte, filename string) (Image, error) {
	if len(data) == 0 {
		return Image{}, rejected(fmt.Errorf("imagesrc: empty image"))
	}
	if len(data) > l.maxBytes {
		return Image{}, rejected(fmt.Errorf("imagesrc: file too large: %d bytes (max %d)", len(data), l.maxBytes))
	}
	if filename == "" {
		ext := mimeToExt[strings.Split(http.DetectContentType(data), ";")[0]]
		if ext == "" {
			ext = ".bin"
		}
		filename = uuid.New().String() + ext
	}
	filename = sanitizeFilename(filename)

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return Image{}, rejected(fmt.Errorf("imagesrc: unsupported file extension: %s (allowed: png, jpg, jpeg, gif, webp, svg)", ext))
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return Image{}, rejected(err)
	}
	return Image{Data: data, Filename: filename, ContentType: extToMime[ext]}, nil
}

// Resolve loads src, which is either a base64 data URI or an http(s) URL,
// and validates the result.
func (l *Loader) Resolve(ctx context.Context, src, filename string) (Image, error) {
	var (
		data []byte
		ext  string
		err  error
	)
	if strings.HasPrefix(src, "data:") {
		data, ext, err = decodeDataURI(src)
	} else {
		data, ext, err = l.fetch(ctx, src)
	}
	if err != nil {
		return Image{}, rejected(err)
	}
	if filename == "" {
		filename = filenameFromURL(src, ext)
	}
	return l.Prepare(data, filename)
}

// rejected tags err as a validation failure unless it already has a kind.
func rejected(err error) error {
	if err == nil || apperr.Known(err) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrValidation, err)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("imagesrc: invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("imagesrc: only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("imagesrc: invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("imagesrc: unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetch downloads an image over http(s), refusing internal hosts.
func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("imagesrc: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("imagesrc: unsupported scheme: %q (only http/https)", parsed.Scheme)
	}
	if err := l.checkHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagesrc: build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagesrc: download failed: %w: %v", apperr.ErrIO, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagesrc: download failed: %w: HTTP %d", apperr.ErrIO, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(l.maxBytes)+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagesrc: read body failed: %w: %v", apperr.ErrIO, err)
	}
	if len(data) > l.maxBytes {
		return nil, "", fmt.Errorf("imagesrc: file too large: exceeds %d bytes", l.maxBytes)
	}

	ext := mimeToExt[strings.Split(resp.Header.Get("Content-Type"), ";")[0]]
	return data, ext, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("imagesrc: blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("imagesrc: blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("imagesrc: blocked host: cloud metadata address %s", host)
	}
	return nil
}

// filenameFromURL takes the last path segment of a URL, falling back to a
// random name with the detected extension.
func filenameFromURL(rawURL string, fallbackExt string) string {
	if fallbackExt == "" {
		fallbackExt = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.New().String() + fallbackExt
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.New().String() + fallbackExt
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("imagesrc: content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	got := mimeToExt[strings.Split(detected, ";")[0]]

	switch ext {
	case ".jpg", ".jpeg":
		if got != ".jpg" {
			return fmt.Errorf("imagesrc: content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if got != ext {
			return fmt.Errorf("imagesrc: content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
