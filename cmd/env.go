package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/confidence"
	"github.com/floodwatch-fl/floodwatch/internal/db"
	"github.com/floodwatch-fl/floodwatch/internal/geofence"
	"github.com/floodwatch-fl/floodwatch/internal/observability"
	"github.com/floodwatch-fl/floodwatch/internal/ratelimit"
	"github.com/floodwatch-fl/floodwatch/internal/report"
	"github.com/floodwatch-fl/floodwatch/internal/rotation"
)

// env bundles the wired application components shared by the commands.
type env struct {
	Store   report.Store
	Manager *report.Manager
	Rotator *rotation.Rotator
	Sched   confidence.Schedule
	Clock   clockwork.Clock
	Metrics *observability.Metrics
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}

// initEnv builds the store for the configured driver and wires the
// lifecycle manager and rotator on top of it.
func initEnv(ctx context.Context) (*env, error) {
	sched, err := cfg.Rotation.Schedule()
	if err != nil {
		return nil, err
	}

	validator, err := geofence.NewValidator(cfg.Regions)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	metrics := observability.New(prometheus.DefaultRegisterer)

	var (
		store   report.Store
		counter ratelimit.CounterStore
		purger  rotation.CounterPurger
	)
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		store = report.NewPostgresStore(pool)
		pgCounter := ratelimit.NewPostgresCounterStore(pool)
		counter, purger = pgCounter, pgCounter
	case "sqlite":
		st, err := report.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = st
		sqCounter := ratelimit.NewSQLiteCounterStore(st.DB(), clock)
		counter, purger = sqCounter, sqCounter
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	limiter := ratelimit.NewLimiter(counter, cfg.Quota, sched.Location, clock, metrics)
	agg := confidence.NewAggregator(store, cfg.Confidence.AggregatorConfig())
	manager := report.NewManager(validator, agg, store, limiter, sched, clock)
	rotator := rotation.NewRotator(store, purger, clock, metrics)

	return &env{
		Store:   store,
		Manager: manager,
		Rotator: rotator,
		Sched:   sched,
		Clock:   clock,
		Metrics: metrics,
	}, nil
}
