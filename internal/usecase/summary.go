package usecase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pricelens/backend/internal/domain"
)

// ZeroSummary is the summary of a batch with no matches
func ZeroSummary() domain.BatchSummary {
	zero := domain.FormatCurrency(decimal.Zero)
	return domain.BatchSummary{
		TotalCIBPrice:   zero,
		AvgCIBPrice:     zero,
		TotalLoosePrice: zero,
		AvgLoosePrice:   zero,
	}
}

// Summarize totals and averages the loose and CIB prices of found results.
// Absent prices count as zero and still count towards the average.
func Summarize(matches []domain.MatchResult) domain.BatchSummary {
	if len(matches) == 0 {
		return ZeroSummary()
	}

	totalCIB := decimal.Zero
	totalLoose := decimal.Zero
	for _, m := range matches {
		totalCIB = totalCIB.Add(domain.MoneyOrZero(m.Record.CIBPrice))
		totalLoose = totalLoose.Add(domain.MoneyOrZero(m.Record.LoosePrice))
	}

	count := decimal.NewFromInt(int64(len(matches)))
	return domain.BatchSummary{
		TotalCIBPrice:   domain.FormatCurrency(totalCIB),
		AvgCIBPrice:     domain.FormatCurrency(totalCIB.Div(count)),
		TotalLoosePrice: domain.FormatCurrency(totalLoose),
		AvgLoosePrice:   domain.FormatCurrency(totalLoose.Div(count)),
	}
}

// SortByCIBDesc orders found results by CIB price, highest first. Missing
// prices sort as zero and equal prices keep their input order.
func SortByCIBDesc(matches []domain.MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		return domain.MoneyOrZero(matches[i].Record.CIBPrice).
			GreaterThan(domain.MoneyOrZero(matches[j].Record.CIBPrice))
	})
}

// BuildBatchResult partitions per-query outcomes into matches and misses,
// keeping each miss tied to the query that produced it.
func BuildBatchResult(queries []domain.MatchQuery, results []domain.MatchResult, errs []error) *domain.BatchResult {
	batch := &domain.BatchResult{
		Matches:  []domain.MatchResult{},
		NotFound: []domain.BatchMiss{},
	}

	for i, query := range queries {
		switch {
		case errs[i] != nil:
			batch.NotFound = append(batch.NotFound, domain.BatchMiss{Query: query, Reason: errs[i].Error()})
		case !results[i].Found():
			batch.NotFound = append(batch.NotFound, domain.BatchMiss{Query: query, Reason: results[i].Reason})
		default:
			batch.Matches = append(batch.Matches, results[i])
		}
	}

	batch.Summary = Summarize(batch.Matches)
	SortByCIBDesc(batch.Matches)
	return batch
}
