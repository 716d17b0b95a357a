package handler

import (
	"net/http"

	"github.com/GoPolymarket/riskgate/internal/exchange"
	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/gin-gonic/gin"
)

type SizingHandler struct {
	validator *exchange.Validator
	sizer     *service.PositionSizer
}

func NewSizingHandler(validator *exchange.Validator, sizer *service.PositionSizer) *SizingHandler {
	return &SizingHandler{validator: validator, sizer: sizer}
}

func (h *SizingHandler) ValidateOrder(c *gin.Context) {
	var req model.OrderValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	params, err := h.validator.ValidateOrderParams(req.Symbol, req.Qty, req.Price)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, params)
}

func (h *SizingHandler) PositionSize(c *gin.Context) {
	var req model.PositionSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	params, err := h.sizer.CalculatePositionSize(req.Symbol, req.RiskAmount, req.EntryPrice, req.StopLossPrice)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, params)
}

func (h *SizingHandler) ValidateQty(c *gin.Context) {
	var req model.SizingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	qty, err := h.sizer.ValidateAndRoundQty(req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.SizeResponse{Symbol: req.Symbol, Qty: qty})
}
