package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

const (
	defaultCacheTTL         = 24 * time.Hour
	defaultCandidateLimit   = 50
	defaultBatchConcurrency = 8
)

// PriceServiceConfig holds configuration for the price service
type PriceServiceConfig struct {
	CacheTTL           time.Duration
	CandidateLimit     int
	BatchConcurrency   int
	EnableDebugLogging bool
}

// PriceService resolves console/product queries to catalog prices
type PriceService struct {
	cache            domain.CacheRepository
	catalog          domain.CatalogLookup
	matchingService  *MatchingService
	preprocessor     *QueryPreprocessor
	cacheTTL         time.Duration
	candidateLimit   int
	batchConcurrency int
	logger           *zap.Logger
}

// NewPriceService creates a new price service with dependencies.
// cache may be nil, in which case every lookup goes to the catalog.
func NewPriceService(
	cache domain.CacheRepository,
	catalog domain.CatalogLookup,
	config PriceServiceConfig,
	logger *zap.Logger,
) *PriceService {
	if logger == nil {
		logger = zap.NewNop()
	}

	cacheTTL := config.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	limit := config.CandidateLimit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	concurrency := config.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	return &PriceService{
		cache:   cache,
		catalog: catalog,
		matchingService: NewMatchingService(MatchConfig{
			EnableDebugLogging: config.EnableDebugLogging,
			Logger:             logger,
		}),
		preprocessor:     NewQueryPreprocessor(config.EnableDebugLogging, logger),
		cacheTTL:         cacheTTL,
		candidateLimit:   limit,
		batchConcurrency: concurrency,
		logger:           logger,
	}
}

// LookupPrice resolves a single query.
// Flow: validate -> check cache -> fetch candidates -> best match -> cache -> return.
// A missing match is a not-found result with a nil error; a failed catalog
// lookup is returned as ErrLookupFailure.
func (s *PriceService) LookupPrice(ctx context.Context, query domain.MatchQuery) (domain.MatchResult, error) {
	result, err := s.lookup(ctx, query)
	metrics.MatchRequestsTotal.WithLabelValues("single", resultLabel(result, err)).Inc()
	return result, err
}

// LookupBatch resolves every query independently and concurrently. A query
// that fails or finds nothing is listed in NotFound with its reason and does
// not affect the others. Matches are ordered by CIB price, highest first.
func (s *PriceService) LookupBatch(ctx context.Context, queries []domain.MatchQuery) (*domain.BatchResult, error) {
	if len(queries) == 0 {
		return nil, domain.ErrInvalidBatch
	}

	results := make([]domain.MatchResult, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i := range queries {
		g.Go(func() error {
			results[i], errs[i] = s.lookup(ctx, queries[i])
			metrics.MatchRequestsTotal.WithLabelValues("batch", resultLabel(results[i], errs[i])).Inc()
			return nil
		})
	}
	_ = g.Wait()

	batch := BuildBatchResult(queries, results, errs)

	s.logger.Info("price.batch_lookup",
		zap.Int("queries", len(queries)),
		zap.Int("found", len(batch.Matches)),
		zap.Int("not_found", len(batch.NotFound)))

	return batch, nil
}

func (s *PriceService) lookup(ctx context.Context, query domain.MatchQuery) (domain.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return domain.MatchResult{}, err
	}
	query = query.Normalized()

	cacheKey := cacheKeyFor(query)
	if cached, ok := s.getFromCache(ctx, cacheKey); ok {
		return cached, nil
	}

	consolePattern, productPattern := s.preprocessor.SearchPatterns(query)

	start := time.Now()
	candidates, err := s.catalog.SearchCandidates(ctx, consolePattern, productPattern, s.candidateLimit)
	metrics.CatalogLookupDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("price.lookup_failed",
			zap.String("console", query.ConsoleType),
			zap.String("product", query.ProductName),
			zap.Error(err))
		return domain.MatchResult{}, fmt.Errorf("%w: %v", domain.ErrLookupFailure, err)
	}

	result, err := s.matchingService.FindBestMatch(query, candidates)
	if err != nil {
		return domain.MatchResult{}, err
	}

	// Only found results are cached; a miss may be filled by the next feed run
	if result.Found() {
		s.setInCache(ctx, cacheKey, result)
	}

	return result, nil
}

// getFromCache returns a cached found result. Cache failures are logged and
// treated as a miss.
func (s *PriceService) getFromCache(ctx context.Context, key string) (domain.MatchResult, bool) {
	if s.cache == nil {
		return domain.MatchResult{}, false
	}

	start := time.Now()
	var cached domain.MatchResult
	err := s.cache.Get(ctx, key, &cached)
	metrics.CatalogLookupDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("price.cache_get_failed", zap.String("key", key), zap.Error(err))
		}
		return domain.MatchResult{}, false
	}
	return cached, cached.Found()
}

func (s *PriceService) setInCache(ctx context.Context, key string, result domain.MatchResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("price.cache_set_failed", zap.String("key", key), zap.Error(err))
	}
}

func resultLabel(result domain.MatchResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.Found():
		return "found"
	default:
		return "not_found"
	}
}
