package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	apperrors "stash-backend/pkg/errors"
)

// BreakerConfig holds circuit breaker tuning for the write path.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default write-path breaker settings.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerUnitOfWork wraps a UnitOfWork with a circuit breaker so a struggling
// table sheds write load instead of queueing timeouts. Conflicts and other
// caller errors count as successes; only infrastructure failures trip it.
type BreakerUnitOfWork struct {
	inner   ports.UnitOfWork
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerUnitOfWork wraps inner with a circuit breaker.
func NewBreakerUnitOfWork(inner ports.UnitOfWork, config BreakerConfig, logger *zap.Logger) *BreakerUnitOfWork {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err)
		},
	})
	return &BreakerUnitOfWork{inner: inner, breaker: cb, logger: logger}
}

// CommitEntityWrite delegates through the breaker.
func (b *BreakerUnitOfWork) CommitEntityWrite(ctx context.Context, write ports.EntityWrite) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.CommitEntityWrite(ctx, write)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("Write rejected by open circuit breaker",
			zap.String("entityID", write.Entity.ID),
		)
		return apperrors.NewUnavailableError("storage")
	}
	return err
}

// isCallerError reports whether the failure was the caller's, not the
// table's. A burst of stale tokens must not open the breaker.
func isCallerError(err error) bool {
	return apperrors.IsConflict(err) ||
		apperrors.IsNotFound(err) ||
		apperrors.IsGone(err) ||
		apperrors.IsValidation(err)
}

var _ ports.UnitOfWork = (*BreakerUnitOfWork)(nil)
