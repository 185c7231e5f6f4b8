// Package api exposes the search service over HTTP: ranking, match
// explanations (including the streamed form), explanation cache
// administration, and the security report.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/config"
	"github.com/propmatch/propmatch/pkg/explain"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/security"
)

// SearchService runs the ranking pipeline.
type SearchService interface {
	Rank(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// ExplanationService produces and administers match explanations.
type ExplanationService interface {
	Generate(ctx context.Context, query string, listingKey int64) (*models.Explanation, error)
	Stream(ctx context.Context, query string, listingKey int64) (<-chan explain.StreamEvent, error)
	InvalidateListing(ctx context.Context, listingKey int64) (int, error)
	ClearAll(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (*explain.Stats, error)
}

// SecurityService serves the operator surface of the security ledger.
type SecurityService interface {
	Report(ctx context.Context) (*models.SecurityReport, error)
	UnblockIP(ctx context.Context, ip string) error
}

// AdmissionGate decides whether a request may proceed.
type AdmissionGate interface {
	Check(ctx context.Context, info security.RequestInfo) error
}

// Server holds the handler dependencies.
type Server struct {
	search      SearchService
	explanation ExplanationService
	securitySvc SecurityService
	gate        AdmissionGate
	cfg         config.SecurityConfig
	logger      observability.Logger
	started     time.Time
}

// NewServer wires the HTTP layer.
func NewServer(searchSvc SearchService, explanationSvc ExplanationService,
	securitySvc SecurityService, gate AdmissionGate, cfg config.SecurityConfig,
	logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Server{
		search:      searchSvc,
		explanation: explanationSvc,
		securitySvc: securitySvc,
		gate:        gate,
		cfg:         cfg,
		logger:      logger.WithPrefix("api"),
		started:     time.Now(),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())

	r.GET("/api/v1/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/explanations/generate", s.handleExplanationGenerate)
	v1.POST("/explanations/stream", s.handleExplanationStream)
	v1.GET("/explanations/stats", s.handleExplanationStats)
	v1.DELETE("/explanations/cache", s.handleExplanationClear)
	v1.DELETE("/explanations/listings/:key", s.handleExplanationInvalidate)
	v1.GET("/security/report", s.handleSecurityReport)
	v1.POST("/security/unblock", s.handleSecurityUnblock)
	return r
}

// requestID tags every request so log lines and error responses can be
// correlated.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// admit runs the security gate for one request; on rejection it writes
// the error response and reports false.
func (s *Server) admit(c *gin.Context, tier security.Tier, query string) bool {
	err := s.gate.Check(c.Request.Context(), security.RequestInfo{
		IP:          c.ClientIP(),
		Endpoint:    c.FullPath(),
		UserAgent:   c.Request.UserAgent(),
		Query:       query,
		PayloadSize: c.Request.ContentLength,
		Tier:        tier,
	})
	if err != nil {
		s.respondError(c, err)
		return false
	}
	return true
}

// respondError maps a classified error onto a status code and a safe
// message.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindRateLimited:
		status = http.StatusTooManyRequests
		if retry := apperrors.RetryAfterOf(err); retry > 0 {
			c.Header("Retry-After", formatSeconds(retry))
		}
	case apperrors.KindAccessDenied:
		status = http.StatusForbidden
	case apperrors.KindUpstreamUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		s.logger.Error("request failed", map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
			"error":      err.Error(),
		})
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      apperrors.SafeMessage(err),
		"request_id": c.GetString("request_id"),
	})
}

func formatSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}
