package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned when a console or product name is missing
	ErrInvalidQuery = errors.New("invalid query: console and product name are required")

	// ErrInvalidBatch is returned when a batch request is empty or malformed
	ErrInvalidBatch = errors.New("invalid batch: at least one query is required")

	// ErrLookupFailure is returned when the catalog lookup fails
	ErrLookupFailure = errors.New("catalog lookup failed")

	// ErrNoMatch marks a query with no candidate within the similarity threshold.
	// It is reported as a reason, not returned from FindBestMatch.
	ErrNoMatch = errors.New("no matching product found")

	// ErrReconciliation is matched by every *ReconciliationError
	ErrReconciliation = errors.New("reconciliation batch failed")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the cache backend cannot be reached
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrFeedUnavailable is returned when the external price feed cannot be fetched
	ErrFeedUnavailable = errors.New("price feed unavailable")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ReconciliationError identifies the upsert batch that failed. Batches
// before BatchIndex were applied and are not rolled back.
type ReconciliationError struct {
	BatchIndex int
	FirstKey   RecordKey
	LastKey    RecordKey
	Size       int
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("upsert batch %d (%d records, %s .. %s) failed: %v",
		e.BatchIndex, e.Size, e.FirstKey, e.LastKey, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

func (e *ReconciliationError) Is(target error) bool { return target == ErrReconciliation }
