package domain

import (
	"context"
	"io"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are stored as JSON and decoded into dest on Get.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogLookup returns candidate records using a cheap case-insensitive
// substring pre-filter. Callers re-score the candidates; they do not re-filter.
type CatalogLookup interface {
	SearchCandidates(ctx context.Context, consolePattern, productPattern string, limit int) ([]CatalogRecord, error)
}

// CatalogSampler returns a few arbitrary catalog records
type CatalogSampler interface {
	Sample(ctx context.Context, limit int) ([]CatalogRecord, error)
}

// PriceSnapshotter loads the stored prices for a set of feed keys
type PriceSnapshotter interface {
	ExistingPrices(ctx context.Context, keys []RecordKey) ([]ExternalPriceRecord, error)
}

// BulkUpserter inserts or updates a batch of price records. Re-submitting
// the same batch must be safe.
type BulkUpserter interface {
	UpsertPrices(ctx context.Context, batch []ExternalPriceRecord) error
}

// PriceStore is the storage a reconciliation run needs
type PriceStore interface {
	PriceSnapshotter
	BulkUpserter
}

// FeedSource yields the raw external price feed (CSV, header row first)
type FeedSource interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}
