package cli

import (
	"context"
	"fmt"

	"sayu-ops/internal/config"
	"sayu-ops/internal/database"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

func poolOptions(c config.DatabaseConfig) database.PoolOptions {
	return database.PoolOptions{
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

func (a *app) sourcePool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.cfg.Source.URL == "" {
		return nil, fmt.Errorf("source database: %w (set SOURCE_DATABASE_URL)", database.ErrMissingURL)
	}
	return database.Connect(ctx, a.cfg.Source.URL, poolOptions(a.cfg.Source), a.log.With().Str("db", "source").Logger())
}

// targetPool connects to the target and makes sure the ops tables exist.
func (a *app) targetPool(ctx context.Context) (*pgxpool.Pool, error) {
	return a.connectTarget(ctx, true)
}

// connectTarget connects to the target. With opsTables unset nothing is created, which
// keeps read-only and dry-run commands free of DDL.
func (a *app) connectTarget(ctx context.Context, opsTables bool) (*pgxpool.Pool, error) {
	if a.cfg.Target.URL == "" {
		return nil, fmt.Errorf("target database: %w (set TARGET_DATABASE_URL)", database.ErrMissingURL)
	}
	pool, err := database.Connect(ctx, a.cfg.Target.URL, poolOptions(a.cfg.Target), a.log.With().Str("db", "target").Logger())
	if err != nil {
		return nil, err
	}
	if !opsTables {
		return pool, nil
	}
	if err := database.RunMigrations(ctx, pool, a.log); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// ledger records one command execution in ops_runs. A nil ledger records nothing.
type ledger struct {
	db    *gorm.DB
	repo  *repositories.RunRepository
	run   *models.Run
	owned *pgxpool.Pool
	a     *app
}

// startRun records the start of a command. pool is the command's target pool, already
// holding the ops tables; when nil a pool is opened for the ledger alone.
func (a *app) startRun(ctx context.Context, pool *pgxpool.Pool, enabled bool, kind, runKey string) *ledger {
	if !enabled {
		return nil
	}
	var owned *pgxpool.Pool
	if pool == nil {
		if a.cfg.Target.URL == "" {
			a.log.Warn().Str("kind", kind).Msg("no target database configured, run is not recorded")
			return nil
		}
		p, err := a.targetPool(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("run ledger unavailable")
			return nil
		}
		pool, owned = p, p
	}

	l := &ledger{owned: owned, a: a}
	db, err := database.OpenGorm(pool)
	if err != nil {
		a.log.Warn().Err(err).Msg("run ledger unavailable")
		l.close()
		return nil
	}
	l.db = db
	l.repo = repositories.NewRunRepository(db)
	run, err := l.repo.Start(ctx, kind, runKey)
	if err != nil {
		a.log.Warn().Err(err).Msg("run ledger unavailable")
		l.close()
		return nil
	}
	l.run = run
	a.log.Debug().Str("run_id", run.ID.String()).Str("kind", kind).Msg("run recorded")
	return l
}

// finish stores the outcome. The status follows err: ErrPartial means partial.
func (l *ledger) finish(ctx context.Context, summary any, err error) {
	if l == nil {
		return
	}
	status := models.RunSucceeded
	switch ExitCode(err) {
	case ExitPartial:
		status = models.RunPartial
	case ExitFailed:
		status = models.RunFailed
	}
	// ctx may already be cancelled when the run was interrupted.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if ferr := l.repo.Finish(ctx, l.run, status, summary, err); ferr != nil {
		l.a.log.Warn().Err(ferr).Msg("failed to record run outcome")
	}
	l.close()
}

func (l *ledger) close() {
	if l.db != nil {
		closeGorm(l.db)
	}
	if l.owned != nil {
		l.owned.Close()
	}
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
