package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectTooLarge is returned by ReadObject when the object exceeds the limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// StagedObject is an uploaded object read fully into memory.
type StagedObject struct {
	Data        []byte
	ContentType string
	Size        int64
}

// ObjectStore reads and removes staged uploads.
type ObjectStore struct {
	client *storage.Client
}

// NewObjectStore creates a Storage client using application default credentials.
func NewObjectStore(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// Read loads gs://bucket/name into memory, refusing anything above limit bytes.
// A non-positive limit disables the check.
func (s *ObjectStore) Read(ctx context.Context, bucket, name string, limit int64) (*StagedObject, error) {
	r, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, name, err)
	}
	defer r.Close()

	if limit > 0 && r.Attrs.Size > limit {
		return nil, fmt.Errorf("gs://%s/%s is %d bytes: %w", bucket, name, r.Attrs.Size, ErrObjectTooLarge)
	}
	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, ErrObjectTooLarge)
	}
	return &StagedObject{Data: data, ContentType: r.Attrs.ContentType, Size: int64(len(data))}, nil
}

// Delete removes gs://bucket/name. An object that is already gone is not an error.
func (s *ObjectStore) Delete(ctx context.Context, bucket, name string) error {
	err := s.client.Bucket(bucket).Object(name).Delete(ctx)
	if err == nil || IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, name, err)
}

// Close releases the Storage client.
func (s *ObjectStore) Close() error {
	return s.client.Close()
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
