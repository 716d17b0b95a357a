package handler

import (
	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Risk      *RiskHandler
	Sizing    *SizingHandler
	Decisions *DecisionHandler
}

// RegisterRoutes mounts the /v1 API. Only fill reports honour idempotency
// keys; only the day state reset needs the admin key.
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers, adminKey string, idem middleware.IdempotencyStore) {
	v1.POST("/entries/check", h.Risk.CheckEntry)
	v1.POST("/fills", middleware.IdempotencyMiddleware(idem), h.Risk.RecordFill)
	v1.GET("/fills", h.Risk.ListFills)
	v1.GET("/day-state", h.Risk.GetDayState)
	v1.DELETE("/day-state", middleware.AdminMiddleware(adminKey), h.Risk.ResetDayState)

	v1.POST("/orders/validate", h.Sizing.ValidateOrder)
	v1.POST("/sizing/position", h.Sizing.PositionSize)
	v1.POST("/sizing/validate", h.Sizing.ValidateQty)

	if h.Decisions != nil {
		v1.GET("/decisions", h.Decisions.List)
	}
}
