package engine

import (
	"context"

	"dossiersync/pkg/progress"
	"dossiersync/pkg/provider"
	"dossiersync/pkg/store"
)

// Fetcher performs bounded remote fetches against the paginated provider
type Fetcher interface {
	// FetchRange returns the records for the 1-based inclusive range [from, to]
	FetchRange(ctx context.Context, from, to int) ([]provider.Record, error)
	// TotalRecords returns the provider's declared dataset size
	TotalRecords(ctx context.Context) (int, error)
	// TestConnection reports whether the provider is reachable
	TestConnection(ctx context.Context) bool
}

// DocumentStore persists records by their unique identifier
type DocumentStore interface {
	// BulkUpsert idempotently writes one page of records
	BulkUpsert(ctx context.Context, records []provider.Record) (store.UpsertResult, error)
	// Count returns the number of stored documents
	Count(ctx context.Context) (int64, error)
	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error
}

// ProgressStore durably persists the resumption snapshot
type ProgressStore interface {
	Load() (*progress.Snapshot, error)
	Commit(*progress.Snapshot) error
	Reset() error
}
