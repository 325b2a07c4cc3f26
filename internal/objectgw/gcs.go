package objectgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is a Google Cloud Storage-backed Store, adapted from the
// teacher's internal/storage/gcs package: same client-per-store shape,
// same errors.Is(err, storage.ErrObjectNotExist) existence check, now
// serving the gateway's PutJSON/GetJSON/PutText/Exists operations
// instead of TodoList CRUD.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS-backed store. It assumes the client is
// authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewGCSStore(ctx context.Context, bucketName string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectgw: failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucketName}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCSStore) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("objectgw: marshal %s: %w", key, err)
	}
	return s.putBytes(ctx, key, data, "application/json")
}

func (s *GCSStore) PutText(ctx context.Context, key, contents, contentType string) error {
	return s.putBytes(ctx, key, []byte(contents), contentType)
}

func (s *GCSStore) putBytes(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("objectgw: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectgw: close writer for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) GetJSON(ctx context.Context, key string, v any) error {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("objectgw: object not found: %s: %w", key, err)
		}
		return fmt.Errorf("objectgw: read %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("objectgw: read body %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("objectgw: unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("objectgw: exists %s: %w", key, err)
}
