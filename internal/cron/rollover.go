package cronrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

const DefaultRolloverSchedule = "0 0 * * *"

// DayStateReader is satisfied by *service.RiskEngine.
type DayStateReader interface {
	Now() time.Time
	GetDayState(ctx context.Context, now time.Time) (model.DayState, error)
}

// Rollover creates the new UTC day's row at midnight so the first entry
// check of the day does not pay for it, and logs how the previous day closed.
type Rollover struct {
	days DayStateReader
	log  *slog.Logger
}

func NewRollover(days DayStateReader, log *slog.Logger) *Rollover {
	return &Rollover{days: days, log: logger.OrDefault(log)}
}

// Register adds the rollover job to r. An empty spec uses midnight UTC.
func (j *Rollover) Register(r *Runner, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultRolloverSchedule
	}
	return r.Add(spec, func(ctx context.Context) { _ = j.Run(ctx) })
}

func (j *Rollover) Run(ctx context.Context) error {
	now := j.days.Now()

	prev, err := j.days.GetDayState(ctx, now.AddDate(0, 0, -1))
	if err != nil {
		j.log.Error("Day rollover could not read previous day", "error", err)
	} else {
		j.log.Info("Day closed",
			"date", prev.DateUTC,
			"day_pnl", prev.DayPnL.String(),
			"max_day_pnl", prev.MaxDayPnL.String(),
			"trades", prev.TradesToday,
			"consecutive_losses", prev.ConsecutiveLosses,
		)
	}

	cur, err := j.days.GetDayState(ctx, now)
	if err != nil {
		j.log.Error("Day rollover could not open new day", "error", err)
		return err
	}
	j.log.Info("Day opened", "date", cur.DateUTC)
	return nil
}
