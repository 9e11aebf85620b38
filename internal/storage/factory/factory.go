// Package factory instantiates storage backends from a type string and a
// JSON config blob.
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
	"github.com/subaquatic-pierre/postmanager/internal/storage/local"
	"github.com/subaquatic-pierre/postmanager/internal/storage/memory"
	s3backend "github.com/subaquatic-pierre/postmanager/internal/storage/s3"
)

// Backend types understood by NewBackend.
const (
	TypeS3     = "s3"
	TypeLocal  = "local"
	TypeMemory = "memory"
)

// NewBackend creates a Backend from a backend type string and JSON config.
func NewBackend(ctx context.Context, backendType string, config json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case TypeS3:
		return s3backend.NewBackendFromJSON(ctx, config)
	case TypeLocal:
		return local.NewFromJSON(config)
	case TypeMemory:
		return memory.NewFromJSON(config)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, backendType)
	}
}
