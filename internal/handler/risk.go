package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/gin-gonic/gin"
)

type RiskHandler struct {
	engine *service.RiskEngine
	fills  service.FillLog
}

func NewRiskHandler(engine *service.RiskEngine, fills service.FillLog) *RiskHandler {
	return &RiskHandler{engine: engine, fills: fills}
}

// CheckEntry answers whether a new entry may be opened. When the day state
// cannot be read the deny decision is still returned, with a 503.
func (h *RiskHandler) CheckEntry(c *gin.Context) {
	var req model.EntryCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	now := h.engine.Now()
	if req.Now != nil {
		now = req.Now.UTC()
	}

	dec, err := h.engine.AllowEntry(c.Request.Context(), now, req.Symbol, model.AccountState{Positions: req.Positions})
	if err != nil {
		appErr := apperrors.Wrap(err)
		c.JSON(appErr.HTTPStatus, gin.H{"decision": dec, "error": appErr})
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dec)
}

func (h *RiskHandler) RecordFill(c *gin.Context) {
	var req model.FillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	st, err := h.engine.RecordFill(c.Request.Context(), req.ToFill())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"day_state": st})
}

func (h *RiskHandler) ListFills(c *gin.Context) {
	if h.fills == nil {
		c.Error(apperrors.New(apperrors.ErrNotFound, "fill history is not available on this backend", nil))
		return
	}
	q := model.FillQuery{
		DateUTC: c.Query("date"),
		Symbol:  c.Query("symbol"),
	}
	if q.DateUTC != "" {
		if _, err := model.ParseDateUTC(q.DateUTC); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("limit must be an integer"))
			return
		}
		q.Limit = parsed
	}

	fills, err := h.fills.ListFills(c.Request.Context(), q)
	if err != nil {
		c.Error(apperrors.StateUnavailable("list_fills", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills, "count": len(fills)})
}

func (h *RiskHandler) GetDayState(c *gin.Context) {
	now, ok := h.dayParam(c)
	if !ok {
		return
	}
	st, err := h.engine.GetDayState(c.Request.Context(), now)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day_state": st,
		"drawdown":  st.Drawdown(),
		"config":    h.engine.Config(),
	})
}

func (h *RiskHandler) ResetDayState(c *gin.Context) {
	date, err := h.engine.ResetDayState(c.Request.Context(), c.Query("date"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": date})
}

// dayParam resolves ?date=YYYY-MM-DD, defaulting to the engine clock.
func (h *RiskHandler) dayParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return h.engine.Now(), true
	}
	t, err := model.ParseDateUTC(raw)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return time.Time{}, false
	}
	return t, true
}
