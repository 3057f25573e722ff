package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Fatalf("unexpected MaxAttempts: %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay <= 0 || cfg.MaxDelay <= 0 {
		t.Fatalf("delays must be positive: %+v", cfg)
	}
	if cfg.BackoffFactor <= 1 {
		t.Fatalf("backoff factor should be > 1: %f", cfg.BackoffFactor)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(Config{}, nil, nil)
	if r.logger == nil {
		t.Fatal("expected default logger")
	}
	if r.config.MaxAttempts != 3 || r.config.BackoffFactor != 2 {
		t.Fatalf("defaults not applied: %+v", r.config)
	}
}

func TestRetrierDo(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}, nil, nil)
	ctx := context.Background()

	t.Run("retry then success", func(t *testing.T) {
		attempts := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("save sku: %w", domain.ErrConcurrencyConflict)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("non-retryable", func(t *testing.T) {
		attempts := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			attempts++
			return domain.ErrInsufficientStock
		})
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if attempts != 1 {
			t.Fatalf("expected single attempt, got %d", attempts)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		attempts := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			attempts++
			return domain.ErrConcurrencyConflict
		})
		if !domain.IsConcurrencyConflict(err) {
			t.Fatalf("expected conflict after retries, got %v", err)
		}
		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})
}

func TestRetrierDoStopsOnCanceledContext(t *testing.T) {
	r := New(Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return domain.ErrConcurrencyConflict
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}
