package domain

import (
	"fmt"
	"strings"
	"time"
)

// CatalogRecord is one product's pricing on one platform
type CatalogRecord struct {
	ConsoleName string `json:"consoleName"`
	ProductName string `json:"productName"`
	LoosePrice  Money  `json:"loosePrice"`
	CIBPrice    Money  `json:"cibPrice"`
	SalesVolume *int64 `json:"salesVolume"`
	// Extra carries columns the catalog exposes that have no typed field
	Extra map[string]any `json:"extra,omitempty"`
}

// MatchQuery is a noisy (console, product) pair supplied by a caller
type MatchQuery struct {
	ConsoleType string `json:"consoleType"`
	ProductName string `json:"productName"`
}

// Normalized returns the query lower-cased and trimmed
func (q MatchQuery) Normalized() MatchQuery {
	return MatchQuery{
		ConsoleType: strings.ToLower(strings.TrimSpace(q.ConsoleType)),
		ProductName: strings.ToLower(strings.TrimSpace(q.ProductName)),
	}
}

// Validate reports ErrInvalidQuery when either field is blank
func (q MatchQuery) Validate() error {
	if strings.TrimSpace(q.ConsoleType) == "" || strings.TrimSpace(q.ProductName) == "" {
		return ErrInvalidQuery
	}
	return nil
}

// MatchResult is either a found record with its score, or a not-found
// reason. A result is never modified after it is returned.
type MatchResult struct {
	Record     *CatalogRecord `json:"record,omitempty"`
	Confidence int            `json:"confidence"`
	Distance   int            `json:"distance"`
	Reason     string         `json:"reason,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Found reports whether the result carries a matched record
func (r MatchResult) Found() bool { return r.Record != nil }

// NotFound builds a result for a query with no acceptable candidate
func NotFound(reason, suggestion string) MatchResult {
	return MatchResult{Reason: reason, Suggestion: suggestion}
}

// BatchSummary aggregates prices over the found results of a batch
type BatchSummary struct {
	TotalCIBPrice   string `json:"totalCibPrice"`
	AvgCIBPrice     string `json:"avgCibPrice"`
	TotalLoosePrice string `json:"totalLoosePrice"`
	AvgLoosePrice   string `json:"avgLoosePrice"`
}

// BatchMiss records a batch query that produced no match
type BatchMiss struct {
	Query  MatchQuery `json:"query"`
	Reason string     `json:"reason"`
}

// BatchResult is the outcome of a batch lookup
type BatchResult struct {
	Summary  BatchSummary  `json:"summary"`
	Matches  []MatchResult `json:"matches"`
	NotFound []BatchMiss   `json:"notFound"`
}

// RecordKey identifies a price record in the external feed
type RecordKey struct {
	Title   string
	Console string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%q/%q", k.Console, k.Title)
}

// ExternalPriceRecord is one row of the external price feed
type ExternalPriceRecord struct {
	Title      string `json:"title"`
	Console    string `json:"console"`
	LoosePrice Money  `json:"loosePrice"`
	CIBPrice   Money  `json:"cibPrice"`
	NewPrice   Money  `json:"newPrice"`
}

// Key returns the record's (Title, Console) identity
func (r ExternalPriceRecord) Key() RecordKey {
	return RecordKey{Title: r.Title, Console: r.Console}
}

// SamePrices reports whether all three prices are numerically equal
func (r ExternalPriceRecord) SamePrices(other ExternalPriceRecord) bool {
	return MoneyEqual(r.LoosePrice, other.LoosePrice) &&
		MoneyEqual(r.CIBPrice, other.CIBPrice) &&
		MoneyEqual(r.NewPrice, other.NewPrice)
}

// ReconcileReport summarizes one reconciliation run
type ReconcileReport struct {
	RunID     string        `json:"runId"`
	DryRun    bool          `json:"dryRun"`
	Chunks    int           `json:"chunks"`
	Parsed    int           `json:"parsed"`
	Skipped   int           `json:"skipped"`
	Changed   int           `json:"changed"`
	Applied   int           `json:"applied"`
	Batches   int           `json:"batches"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
