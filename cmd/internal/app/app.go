// Package app wires the Vox server runtime: config, logging, persistence,
// the intake service, and HTTP routes.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"vox/cmd/internal/intake"
	intakeapi "vox/cmd/internal/intake/api"
	"vox/cmd/internal/survey"
	"vox/cmd/security/seal"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Vox server runtime: it owns HTTP server wiring and the intake
// service dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	svc     *intake.Service
	handler *intakeapi.Handler
	sweeper *intake.Sweeper
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	codec, err := seal.NewCodec(cfg.AnswersSecret)
	if err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, intakeStore, catalog, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	metrics := intake.NewMetrics(prometheus.DefaultRegisterer)

	svc, err := intake.NewService(intake.Config{}, intakeStore, catalog, codec,
		intake.WithLogger(log),
		intake.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	handler, err := intakeapi.NewHandler(log, svc, intakeapi.LoadConfigFromEnv())
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		svc:       svc,
		handler:   handler,
		sweeper:   intake.NewSweeper(svc, cfg.SweepInterval, log),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.handler)

	handler := WithSecurityHeaders(mux)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweeper.Run(sweepCtx)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and the in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, intake.Store, survey.Catalog, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		cat := survey.NewMemoryCatalog()
		if cfg.SeedDemo {
			seedDemoSurvey(cat)
			log.Info("catalog.demo_seeded", "survey_id", demoSurveyID)
		}
		return nopStore{}, nil, false, intake.NewMemoryStore(), cat, nil
	}

	pool, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	if err := MigrateUp(pool, log); err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	st, err := intake.NewPostgresStore(pool, intake.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}
	cat, err := survey.NewPostgresCatalog(pool, survey.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	return dbStore{pool: pool}, pool, true, st, cat, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const demoSurveyID = "demo-wellbeing"

// seedDemoSurvey loads a small active survey so the full invitation flow
// works out of the box without a database.
func seedDemoSurvey(cat *survey.MemoryCatalog) {
	maxName := 120
	cat.Add(
		survey.Survey{
			ID:        demoSurveyID,
			Title:     "Employee Wellbeing Check-in",
			Status:    survey.StatusActive,
			CreatedAt: time.Now().UTC(),
		},
		[]survey.Question{
			{
				Code:     "full_name",
				Prompt:   "What is your full name?",
				Type:     survey.QuestionText,
				Required: true,
				Constraints: survey.Constraints{
					MaxLength: &maxName,
				},
				Position: 1,
			},
			{
				Code:     "birth_date",
				Prompt:   "What is your date of birth?",
				Type:     survey.QuestionDate,
				Position: 2,
			},
			{
				Code:     "mood",
				Prompt:   "How have you felt this week?",
				Type:     survey.QuestionRadio,
				Required: true,
				Options:  []string{"great", "okay", "stressed", "struggling"},
				Position: 3,
			},
			{
				Code:      "health_notes",
				Prompt:    "Anything health-related you want to share?",
				Type:      survey.QuestionText,
				Sensitive: true,
				Position:  4,
			},
		},
	)
}
