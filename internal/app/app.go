// Package app assembles the risk engine and its stores from configuration.
// The HTTP server and the ops CLI share it so both see the same state.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoPolymarket/riskgate/internal/config"
	"github.com/GoPolymarket/riskgate/internal/exchange"
	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/GoPolymarket/riskgate/internal/pkg/clock"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/repository"
	"github.com/GoPolymarket/riskgate/internal/service"
)

type App struct {
	Config      *config.Config
	Log         *slog.Logger
	Engine      *service.RiskEngine
	Fills       service.FillLog
	Validator   *exchange.Validator
	Sizer       *service.PositionSizer
	Audit       *service.DecisionAudit
	Idempotency middleware.IdempotencyStore

	closers []func()
}

type stores struct {
	days      service.DayStateStore
	fills     service.FillLog
	decisions service.DecisionRepo
	idem      middleware.IdempotencyStore
}

// Build connects the configured backend. Unlike the optional caches of a
// gateway, a risk store that cannot be reached is a startup error: running
// on a fresh in-memory day would silently reset the limits.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrDefault(log)
	a := &App{Config: cfg, Log: log}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	days := st.days
	if cfg.Store.Backend != config.BackendMemory && cfg.Store.Breaker.Enabled {
		days = repository.NewBreakerStore(days, repository.BreakerSettings{
			Name:                cfg.Store.Backend + "_day_state",
			ConsecutiveFailures: uint32(max(cfg.Store.Breaker.ConsecutiveFailures, 0)),
			OpenTimeout:         time.Duration(cfg.Store.Breaker.OpenTimeoutSeconds) * time.Second,
		}, log)
	}

	filters, err := cfg.ExchangeFilters()
	if err != nil {
		a.Close()
		return nil, err
	}
	table, err := exchange.NewFilterTable(cfg.Exchange.DefaultSymbol, append(exchange.BuiltinFilters(), filters...), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("exchange filters: %w", err)
	}
	a.Validator = exchange.NewValidator(table, log)
	a.Sizer = service.NewPositionSizer(a.Validator, cfg.RiskPerTrade(), log)

	a.Audit, err = service.NewDecisionAudit(cfg.Audit.Dir, cfg.Audit.Buffer, st.decisions, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("decision audit: %w", err)
	}
	a.closers = append(a.closers, a.Audit.Close)

	a.Engine = service.NewRiskEngine(days, cfg.RiskConfig(log), clock.System{},
		service.WithLogger(log),
		service.WithDecisionRecorder(a.Audit),
	)
	a.Fills = st.fills
	a.Idempotency = st.idem
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case "", config.BackendMemory:
		mem := service.NewMemoryDayStateStore()
		a.Log.Warn("Using in-memory risk store; day state is lost on restart")
		return stores{days: mem, fills: mem, idem: middleware.NewInMemIdempotencyStore()}, nil

	case config.BackendPostgres:
		db, err := repository.NewDB(cfg.Database)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.Log.Info("Connected to PostgreSQL")

		days, err := repository.NewPostgresDayStateStore(ctx, db, cfg.Database.QueryTimeout())
		if err != nil {
			return stores{}, err
		}
		history, err := repository.NewGormFillHistory(db.DB)
		if err != nil {
			return stores{}, err
		}
		decisions, err := repository.NewPostgresDecisionRepo(ctx, db)
		if err != nil {
			return stores{}, err
		}
		return stores{
			days:      days,
			fills:     history,
			decisions: decisions,
			idem:      repository.NewPostgresIdempotencyStore(ctx, db),
		}, nil

	case config.BackendRedis:
		client, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Log.Info("Connected to Redis", "addr", cfg.Redis.Addr)

		days := repository.NewRedisDayStateStore(client, cfg.Redis.Prefix)
		ttl := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
		return stores{
			days:      days,
			fills:     days,
			decisions: repository.NewRedisDecisionRepo(client, cfg.Redis.Prefix, cfg.Audit.Buffer),
			idem:      repository.NewRedisIdempotencyStore(client, cfg.Redis.Prefix, ttl),
		}, nil

	default:
		return stores{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
