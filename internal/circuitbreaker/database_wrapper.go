package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps a sqlx connection pool with a circuit breaker. The
// history store goes through this so a sick Postgres fails fast instead of
// queueing requests behind pool exhaustion.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	cb := NewCircuitBreaker("postgres", GetDatabaseConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("postgres", "history-store", cb)

	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// ExecContext wraps sqlx ExecContext with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := dw.cb.Execute(ctx, func() error {
		var err2 error
		result, err2 = dw.db.ExecContext(ctx, query, args...)
		return err2
	})

	GlobalMetricsCollector.RecordRequest("postgres", "history-store", dw.cb.State(), err == nil)
	return result, err
}

// GetContext wraps sqlx GetContext with circuit breaker. sql.ErrNoRows is a
// caller concern, not a breaker failure.
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var opErr error
	err := dw.cb.Execute(ctx, func() error {
		opErr = dw.db.GetContext(ctx, dest, query, args...)
		if opErr == sql.ErrNoRows {
			return nil
		}
		return opErr
	})

	GlobalMetricsCollector.RecordRequest("postgres", "history-store", dw.cb.State(), err == nil)
	if err != nil {
		return err
	}
	return opErr
}

// SelectContext wraps sqlx SelectContext with circuit breaker
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.SelectContext(ctx, dest, query, args...)
	})

	GlobalMetricsCollector.RecordRequest("postgres", "history-store", dw.cb.State(), err == nil)
	return err
}

// PingContext wraps PingContext with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})

	GlobalMetricsCollector.RecordRequest("postgres", "history-store", dw.cb.State(), err == nil)
	return err
}

// Close closes the underlying pool
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}
