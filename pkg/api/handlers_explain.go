package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/explain"
	"github.com/propmatch/propmatch/pkg/security"
)

type explanationRequest struct {
	SearchQuery string `json:"search_query"`
	ListingKey  int64  `json:"listing_key"`
}

func (s *Server) bindExplanationRequest(c *gin.Context) (*explanationRequest, bool) {
	var req explanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.Invalid("malformed explanation request"))
		return nil, false
	}
	query, err := security.SanitizeQuery(req.SearchQuery, s.cfg.QueryMaxChars)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	req.SearchQuery = query
	if req.ListingKey <= 0 {
		s.respondError(c, apperrors.Invalid("listing_key is required"))
		return nil, false
	}
	return &req, true
}

func (s *Server) handleExplanationGenerate(c *gin.Context) {
	req, ok := s.bindExplanationRequest(c)
	if !ok {
		return
	}
	if !s.admit(c, security.TierExplanation, req.SearchQuery) {
		return
	}

	expl, err := s.explanation.Generate(c.Request.Context(), req.SearchQuery, req.ListingKey)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expl)
}

// handleExplanationStream serves the explanation as server-sent events:
// a cached marker followed by complete, or start and chunk events closed
// by complete or error, then a [DONE] sentinel.
func (s *Server) handleExplanationStream(c *gin.Context) {
	req, ok := s.bindExplanationRequest(c)
	if !ok {
		return
	}
	if !s.admit(c, security.TierExplanation, req.SearchQuery) {
		return
	}

	events, err := s.explanation.Stream(c.Request.Context(), req.SearchQuery, req.ListingKey)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	for ev := range events {
		writeSSE(c, ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
	c.Writer.WriteString("data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeSSE(c *gin.Context, ev explain.StreamEvent) {
	payload := gin.H{"type": string(ev.Type)}
	switch ev.Type {
	case explain.EventCached:
		payload["cached"] = true
	case explain.EventComplete:
		payload["explanation"] = ev.Explanation
	case explain.EventChunk:
		payload["content"] = ev.Content
	case explain.EventError:
		payload["message"] = apperrors.SafeMessage(ev.Err)
	}
	if ev.Model != "" {
		payload["model"] = ev.Model
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: ")
	c.Writer.Write(data)
	c.Writer.WriteString("\n\n")
}

func (s *Server) handleExplanationStats(c *gin.Context) {
	if !s.admit(c, security.TierGeneral, "") {
		return
	}
	stats, err := s.explanation.CacheStats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleExplanationClear(c *gin.Context) {
	if !s.admit(c, security.TierStrict, "") {
		return
	}
	dropped, err := s.explanation.ClearAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": dropped})
}

func (s *Server) handleExplanationInvalidate(c *gin.Context) {
	if !s.admit(c, security.TierStrict, "") {
		return
	}
	key, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil || key <= 0 {
		s.respondError(c, apperrors.Invalid("listing key must be a positive integer"))
		return
	}
	dropped, err := s.explanation.InvalidateListing(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing_key": key, "cleared": dropped})
}
