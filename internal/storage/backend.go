// Package storage defines the Backend interface for post storage and the
// Adapter that derives nested namespaces (a post, a post's media) from a
// parent backend without knowing which concrete backend it wraps.
package storage

import "context"

// Backend is the interface for storage backends.
// Every backend instance is scoped to a root (a key prefix or a directory)
// and all filenames are resolved relative to that root. Instances are
// immutable: a new root always yields a new instance.
type Backend interface {
	// Root returns the namespace this backend is scoped to. A non-empty root
	// always ends with the backend's separator.
	Root() string

	// GetJSON decodes the JSON document stored under filename into v.
	GetJSON(ctx context.Context, filename string, v any) error

	// SaveJSON encodes body and stores it under filename, overwriting any
	// existing document.
	SaveJSON(ctx context.Context, body any, filename string) error

	// GetBytes returns the raw bytes stored under filename.
	GetBytes(ctx context.Context, filename string) ([]byte, error)

	// SaveBytes stores data under filename, overwriting any existing object.
	SaveBytes(ctx context.Context, data []byte, filename string) error

	// DeleteFile removes filename. Deleting a missing file is not an error.
	DeleteFile(ctx context.Context, filename string) error

	// ListFiles returns every file under the root as names relative to the
	// root, recursively. Ordering is backend-defined.
	ListFiles(ctx context.Context) ([]string, error)

	// Derive returns a backend of the same kind rooted at Root()+relativeRoot
	// and sharing the same underlying client.
	Derive(relativeRoot string) Backend

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// DirectoryRemover is implemented by backends with a native recursive delete.
// Backends without one are cleared by listing and deleting each file.
type DirectoryRemover interface {
	// DeleteDirectory removes the backend's whole root.
	DeleteDirectory(ctx context.Context) error
}
