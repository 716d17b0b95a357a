package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormFillHistory is the read model over the fills table, sharing the
// connection pool of the sqlx store that writes it.
type GormFillHistory struct {
	db *gorm.DB
}

func NewGormFillHistory(conn *sql.DB) (*GormFillHistory, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &GormFillHistory{db: gdb}, nil
}

func (h *GormFillHistory) ListFills(ctx context.Context, q model.FillQuery) ([]model.Fill, error) {
	tx := h.db.WithContext(ctx).Model(&model.Fill{})
	if q.DateUTC != "" {
		tx = tx.Where("date_utc = ?", q.DateUTC)
	}
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", strings.ToUpper(q.Symbol))
	}

	fills := []model.Fill{}
	if err := tx.Order("ts DESC").Limit(service.ClampFillLimit(q.Limit)).Find(&fills).Error; err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	return fills, nil
}
