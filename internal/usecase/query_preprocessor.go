package usecase

import (
	"strings"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// minPatternTokenLen drops short tokens ("x", "ii", "10") from the product
// pre-filter. Roman and arabic numbering disagree across catalogs, so such
// tokens are left to the edit-distance scoring.
const minPatternTokenLen = 3

// queryNoiseWords never narrow a catalog search usefully
var queryNoiseWords = map[string]bool{
	"the":      true,
	"and":      true,
	"for":      true,
	"game":     true,
	"video":    true,
	"edition":  true,
	"version":  true,
	"complete": true,
	"loose":    true,
	"cib":      true,
	"new":      true,
	"sealed":   true,
}

// QueryPreprocessor turns a match query into the substring patterns used to
// pre-filter catalog candidates
type QueryPreprocessor struct {
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(enableDebugLogging bool, logger *zap.Logger) *QueryPreprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPreprocessor{
		enableDebugLogging: enableDebugLogging,
		logger:             logger,
	}
}

// SearchPatterns builds case-insensitive LIKE patterns for the console and
// product of a query. Normalized tokens contain only [a-z0-9], so no LIKE
// metacharacters need escaping.
func (p *QueryPreprocessor) SearchPatterns(query domain.MatchQuery) (consolePattern, productPattern string) {
	consolePattern = likePattern(strings.Fields(Normalize(query.ConsoleType)))
	productPattern = likePattern(productTokens(Normalize(query.ProductName)))

	if p.enableDebugLogging {
		p.logger.Debug("preprocess.patterns",
			zap.String("console_in", query.ConsoleType),
			zap.String("product_in", query.ProductName),
			zap.String("console_pattern", consolePattern),
			zap.String("product_pattern", productPattern))
	}

	return consolePattern, productPattern
}

// productTokens keeps the tokens that make a good substring filter. If the
// filtering removes everything, the original tokens are used as-is.
func productTokens(normalized string) []string {
	words := strings.Fields(normalized)

	kept := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < minPatternTokenLen || queryNoiseWords[word] {
			continue
		}
		kept = append(kept, word)
	}

	if len(kept) == 0 {
		return words
	}
	return kept
}

// likePattern joins tokens as an ordered substring pattern: "%a%b%"
func likePattern(tokens []string) string {
	if len(tokens) == 0 {
		return "%"
	}
	return "%" + strings.Join(tokens, "%") + "%"
}

// cacheKeyFor builds the cache key for a normalized query.
// Format: "price:{console}:{product}"
func cacheKeyFor(query domain.MatchQuery) string {
	return "price:" + Normalize(query.ConsoleType) + ":" + Normalize(query.ProductName)
}
