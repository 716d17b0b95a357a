package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/gin-gonic/gin"
)

type DecisionHandler struct {
	audit *service.DecisionAudit
}

func NewDecisionHandler(audit *service.DecisionAudit) *DecisionHandler {
	return &DecisionHandler{audit: audit}
}

func (h *DecisionHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	records, err := h.audit.List(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
