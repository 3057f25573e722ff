// Package redisseq выдаёт номера счетов через Redis INCR.
package redisseq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	defaultKeyPrefix = "invoice:seq"
	defaultTimeout   = 2 * time.Second
)

// Sequence — счётчик номеров счетов по годам. Номер, выданный транзакции,
// которая потом откатилась, не возвращается, поэтому в нумерации бывают пропуски.
type Sequence struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
}

// Option настраивает Sequence.
type Option func(*Sequence)

// WithKeyPrefix задаёт префикс ключей счётчика.
func WithKeyPrefix(prefix string) Option {
	return func(s *Sequence) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTimeout ограничивает время одного INCR.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sequence) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// New создаёт последовательность поверх готового клиента.
func New(client redis.Cmdable, opts ...Option) (*Sequence, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &Sequence{client: client, prefix: defaultKeyPrefix, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dial подключается к Redis по адресу и проверяет доступность через PING.
func Dial(ctx context.Context, addr string, opts ...Option) (*Sequence, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  defaultTimeout,
		ReadTimeout:  defaultTimeout,
		WriteTimeout: defaultTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	seq, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return seq, client, nil
}

// Key возвращает ключ счётчика для года.
func (s *Sequence) Key(year int) string {
	return fmt.Sprintf("%s:%04d", s.prefix, year)
}

// Next атомарно увеличивает счётчик года и возвращает новое значение.
func (s *Sequence) Next(ctx context.Context, year int) (int64, error) {
	if year <= 0 {
		return 0, domain.Invalidf("invoice year must be positive, got %d", year)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.client.Incr(ctx, s.Key(year)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", s.Key(year), err)
	}
	return value, nil
}

var _ domain.InvoiceSequence = (*Sequence)(nil)
