package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pricelens/backend/internal/domain"
)

// Package-level compiled regex pattern for performance
var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9\s]`)

const (
	// SimilarityThreshold is the largest edit distance accepted as a match
	SimilarityThreshold = 5

	// confidencePerEdit is subtracted from 100 for every edit
	confidencePerEdit = 20
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	EnableDebugLogging bool
	Logger             *zap.Logger
}

// MatchingService resolves a noisy product name against catalog candidates
// by edit distance. It holds no per-call state and is safe for concurrent use.
type MatchingService struct {
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchingService{
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger,
	}
}

// FindBestMatch scores every candidate against the query's product name and
// returns the closest one within SimilarityThreshold. Ties keep the
// candidate seen first. An empty pool or no candidate in range yields a
// not-found result, not an error; only an incomplete query is an error.
func (s *MatchingService) FindBestMatch(
	query domain.MatchQuery,
	candidates []domain.CatalogRecord,
) (domain.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return domain.MatchResult{}, err
	}

	if len(candidates) == 0 {
		return domain.NotFound(domain.ErrNoMatch.Error(), ""), nil
	}

	target := Normalize(query.ProductName)
	if s.enableDebugLogging {
		s.logger.Debug("match.search", zap.String("console", query.ConsoleType), zap.String("product", target))
	}

	bestIdx, bestDist := -1, SimilarityThreshold+1
	nearestIdx, nearestDist := -1, 0

	for i := range candidates {
		dist := LevenshteinDistance(target, Normalize(candidates[i].ProductName))

		if s.enableDebugLogging {
			s.logger.Debug("match.candidate",
				zap.String("candidate", candidates[i].ProductName),
				zap.Int("distance", dist))
		}

		if nearestIdx < 0 || dist < nearestDist {
			nearestIdx, nearestDist = i, dist
		}
		if dist < bestDist {
			bestIdx, bestDist = i, dist
		}
	}

	if bestIdx < 0 {
		return domain.NotFound(
			fmt.Sprintf("%s: closest candidate is %d edits away (max %d)", domain.ErrNoMatch, nearestDist, SimilarityThreshold),
			candidates[nearestIdx].ProductName,
		), nil
	}

	record := candidates[bestIdx]
	result := domain.MatchResult{
		Record:     &record,
		Confidence: Confidence(bestDist),
		Distance:   bestDist,
	}

	if s.enableDebugLogging {
		s.logger.Debug("match.best",
			zap.String("product", record.ProductName),
			zap.Int("distance", bestDist),
			zap.Int("confidence", result.Confidence))
	}

	return result, nil
}

// Confidence maps an edit distance to a 0-100 score: 100 at distance 0,
// 20 points off per edit, floored at 0.
func Confidence(distance int) int {
	if distance < 0 {
		distance = 0
	}
	score := 100 - distance*confidencePerEdit
	if score < 0 {
		return 0
	}
	return score
}

// Normalize canonicalizes a name for comparison: accents are folded,
// the result is lower-cased, anything outside [a-z0-9\s] is dropped and the
// ends are trimmed.
func Normalize(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.TrimSpace(nonAlphanumericRegex.ReplaceAllString(folded, ""))
}

// LevenshteinDistance calculates the edit distance between two strings
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Keep the shorter string on the inner loop
	if len(r2) > len(r1) {
		r1, r2 = r2, r1
	}
	m := len(r1)
	n := len(r2)

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
