package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Fetcher loads an export file by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// URIFetcher reads local paths and gs://bucket/object URIs. The storage
// client is created on the first GCS fetch.
type URIFetcher struct {
	storage *storage.Client
	opts    []option.ClientOption
}

// NewURIFetcher creates a fetcher. opts are passed to the storage client.
func NewURIFetcher(opts ...option.ClientOption) *URIFetcher {
	return &URIFetcher{opts: opts}
}

// Fetch returns the bytes behind uri.
func (f *URIFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "gs://") {
		data, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("Fetch: %w", err)
		}
		return data, nil
	}

	bucket, object, err := SplitGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	if f.storage == nil {
		client, err := storage.NewClient(ctx, f.opts...)
		if err != nil {
			return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
		}
		f.storage = client
	}

	rc, err := f.storage.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Close releases the storage client if one was created.
func (f *URIFetcher) Close() error {
	if f.storage != nil {
		return f.storage.Close()
	}
	return nil
}

// SplitGCSURI splits "gs://bucket/path/to/file.csv" into bucket and object.
func SplitGCSURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name of a local path or GCS URI.
func BaseName(uri string) string {
	if _, object, err := SplitGCSURI(uri); err == nil {
		return path.Base(object)
	}
	return path.Base(uri)
}
