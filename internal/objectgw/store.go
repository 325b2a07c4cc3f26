// Package objectgw is the Object Store Gateway (spec.md §4.3):
// get/put JSON and text blobs with retry. Both the GCS and filesystem
// implementations are adapted from the teacher's internal/storage/{gcs,fs}
// split; the operations themselves (PutJSON/GetJSON/PutText/Exists) are
// new, shaped around spec.md's object-store vocabulary rather than the
// teacher's TodoList CRUD.
package objectgw

import "context"

// Store is implemented by every object-store backend this module ships.
type Store interface {
	// PutJSON marshals v and writes it to key.
	PutJSON(ctx context.Context, key string, v any) error

	// PutText writes contents to key with the given content type.
	PutText(ctx context.Context, key, contents, contentType string) error

	// GetJSON reads key and unmarshals it into v.
	GetJSON(ctx context.Context, key string, v any) error

	// Exists reports whether key is present. A definitive "not found"
	// response short-circuits the retry harness and returns (false,
	// nil); any other error retries (spec.md §4.3).
	Exists(ctx context.Context, key string) (bool, error)
}
