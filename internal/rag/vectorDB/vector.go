package vectorDB

import (
	"context"
)

// Payload fields every backend stores next to a vector and can filter on.
const (
	PayloadKey          = "key"
	PayloadJobID        = "job_id"
	PayloadDocumentName = "document_name"
)

// Match is a similarity hit. Distance is cosine distance, lower is closer.
type Match struct {
	Key      string
	Distance float64
}

// Index is a named collection of vectors addressed by string keys.
type Index interface {
	EnsureIndex(ctx context.Context, name string) error
	Upsert(ctx context.Context, name, key string, vector []float32, payload map[string]string) error
	// Query returns at most topK matches ordered by ascending distance. filter is
	// an equality match on payload fields; nil matches everything.
	Query(ctx context.Context, name string, vector []float32, topK int, filter map[string]string) ([]Match, error)
	ListKeys(ctx context.Context, name string, filter map[string]string) ([]string, error)
	DeleteKeys(ctx context.Context, name string, keys []string) error
}
