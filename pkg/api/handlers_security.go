package api

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/security"
)

func (s *Server) handleSecurityReport(c *gin.Context) {
	if !s.admit(c, security.TierStrict, "") {
		return
	}
	report, err := s.securitySvc.Report(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type unblockRequest struct {
	IP string `json:"ip"`
}

func (s *Server) handleSecurityUnblock(c *gin.Context) {
	if !s.admit(c, security.TierStrict, "") {
		return
	}
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.Invalid("malformed unblock request"))
		return
	}
	if net.ParseIP(req.IP) == nil {
		s.respondError(c, apperrors.Invalid("ip must be a valid address"))
		return
	}
	if err := s.securitySvc.UnblockIP(c.Request.Context(), req.IP); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": req.IP})
}
