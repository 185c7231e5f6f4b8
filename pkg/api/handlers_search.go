package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/security"
)

func (s *Server) handleSearch(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.Invalid("malformed search request"))
		return
	}

	query, err := security.SanitizeQuery(req.Query, s.cfg.QueryMaxChars)
	if err != nil {
		s.respondError(c, err)
		return
	}
	req.Query = query

	if !s.admit(c, security.TierSearch, req.Query) {
		return
	}

	req.Normalize()
	resp, err := s.search.Rank(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
