package cronrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Runner schedules jobs on five-field cron specs evaluated in UTC, the
// timezone risk days are keyed by.
type Runner struct {
	cron    *cron.Cron
	log     *slog.Logger
	baseCtx context.Context
}

func New(log *slog.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		log:     logger.OrDefault(log),
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Next reports when the given entry fires next.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

func (r *Runner) Start() {
	r.log.Info("cron started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("cron stopped")
}
