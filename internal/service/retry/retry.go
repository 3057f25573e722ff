package retry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
)

// Config конфигурация для retry логики.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Retrier повторяет единицу работы целиком, если она завершилась конфликтом конкурентного доступа.
type Retrier struct {
	config  Config
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
}

// New создаёт Retrier. Нулевые поля конфигурации заменяются значениями по умолчанию.
func New(config Config, logger *log.Entry, m *metrics.FulfillmentMetrics) *Retrier {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if logger == nil {
		logger = log.WithField("component", "retry")
	}

	return &Retrier{config: config, logger: logger, metrics: m}
}

// Do выполняет fn, повторяя её при domain.ErrConcurrencyConflict.
// Прочие ошибки возвращаются сразу.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}
		if !domain.IsConcurrencyConflict(err) {
			return err
		}

		lastErr = err
		if attempt == r.config.MaxAttempts {
			break
		}

		r.metrics.RecordConcurrencyRetry(operation)
		r.logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).WithError(err).Debug("concurrency conflict, retrying")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		// Экспоненциальная задержка с ограничением
		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	r.logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": r.config.MaxAttempts,
	}).WithError(lastErr).Warn("operation failed after all retry attempts")
	return lastErr
}
