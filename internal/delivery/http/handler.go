package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const (
	serviceName        = "pricelens-backend"
	serviceVersion     = "1.0.0"
	maxBatchQueries    = 100
	defaultSampleLimit = 2
	maxSampleLimit     = 50
	healthPingTimeout  = 2 * time.Second
)

// PriceLookup resolves console/product queries to catalog prices
type PriceLookup interface {
	LookupPrice(ctx context.Context, query domain.MatchQuery) (domain.MatchResult, error)
	LookupBatch(ctx context.Context, queries []domain.MatchQuery) (*domain.BatchResult, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	prices  PriceLookup
	sampler domain.CatalogSampler
	db      Pinger
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler. sampler and db may be nil.
func NewHandler(prices PriceLookup, sampler domain.CatalogSampler, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		prices:  prices,
		sampler: sampler,
		db:      db,
		logger:  logger,
	}
}

// SearchRequest is the body of a single price lookup
type SearchRequest struct {
	ConsoleType string `json:"consoleType"`
	ProductName string `json:"productName"`
}

// BatchRequest is the body of a batch price lookup
type BatchRequest struct {
	Games []SearchRequest `json:"games"`
}

// RecordResponse is a catalog record with currency-formatted prices
type RecordResponse struct {
	ConsoleName string  `json:"consoleName"`
	ProductName string  `json:"productName"`
	LoosePrice  *string `json:"loosePrice"`
	CIBPrice    *string `json:"cibPrice"`
	SalesVolume *int64  `json:"salesVolume"`
}

// PriceResponse is a matched record with its match quality
type PriceResponse struct {
	RecordResponse
	MatchConfidence int `json:"matchConfidence"`
	SearchDistance  int `json:"searchDistance"`
}

// NotFoundEntry describes a batch query that produced no match
type NotFoundEntry struct {
	Console string `json:"console"`
	Game    string `json:"game"`
	Error   string `json:"error"`
}

// BatchResponse is the outcome of a batch lookup
type BatchResponse struct {
	Summary  domain.BatchSummary `json:"summary"`
	Games    []PriceResponse     `json:"games"`
	NotFound []NotFoundEntry     `json:"notFound"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health.db_unreachable", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": serviceName,
		"version": serviceVersion,
	})
}

// SearchPrice handles a single console/product lookup
func (h *Handler) SearchPrice(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.prices.LookupPrice(c.Request.Context(), req.toQuery())
	if err != nil {
		h.writeError(c, err)
		return
	}

	if !result.Found() {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: result.Reason, Suggestion: result.Suggestion})
		return
	}

	c.JSON(http.StatusOK, toPriceResponse(result))
}

// SearchBatch handles a batch of lookups. Individual misses and failures
// are reported in notFound; they never fail the request.
func (h *Handler) SearchBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if len(req.Games) > maxBatchQueries {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: domain.ErrInvalidBatch.Error() + ": at most " + strconv.Itoa(maxBatchQueries) + " queries",
		})
		return
	}

	queries := make([]domain.MatchQuery, len(req.Games))
	for i, g := range req.Games {
		queries[i] = g.toQuery()
	}

	batch, err := h.prices.LookupBatch(c.Request.Context(), queries)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBatchResponse(batch))
}

// SamplePrices returns a few raw catalog rows
func (h *Handler) SamplePrices(c *gin.Context) {
	if h.sampler == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "sampling is not configured"})
		return
	}

	limit := defaultSampleLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSampleLimit)
	}

	records, err := h.sampler.Sample(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("sample.failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch price charting data"})
		return
	}

	out := make([]RecordResponse, len(records))
	for i := range records {
		out[i] = toRecordResponse(&records[i])
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps domain errors to status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrLookupFailure):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: domain.ErrLookupFailure.Error()})
	default:
		h.logger.Error("http.unhandled_error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (r SearchRequest) toQuery() domain.MatchQuery {
	return domain.MatchQuery{ConsoleType: r.ConsoleType, ProductName: r.ProductName}
}

func toRecordResponse(rec *domain.CatalogRecord) RecordResponse {
	return RecordResponse{
		ConsoleName: rec.ConsoleName,
		ProductName: rec.ProductName,
		LoosePrice:  domain.FormatMoney(rec.LoosePrice),
		CIBPrice:    domain.FormatMoney(rec.CIBPrice),
		SalesVolume: rec.SalesVolume,
	}
}

func toPriceResponse(result domain.MatchResult) PriceResponse {
	return PriceResponse{
		RecordResponse:  toRecordResponse(result.Record),
		MatchConfidence: result.Confidence,
		SearchDistance:  result.Distance,
	}
}

func toBatchResponse(batch *domain.BatchResult) BatchResponse {
	resp := BatchResponse{
		Summary:  batch.Summary,
		Games:    make([]PriceResponse, 0, len(batch.Matches)),
		NotFound: make([]NotFoundEntry, 0, len(batch.NotFound)),
	}
	for _, m := range batch.Matches {
		resp.Games = append(resp.Games, toPriceResponse(m))
	}
	for _, miss := range batch.NotFound {
		resp.NotFound = append(resp.NotFound, NotFoundEntry{
			Console: miss.Query.ConsoleType,
			Game:    miss.Query.ProductName,
			Error:   miss.Reason,
		})
	}
	return resp
}
