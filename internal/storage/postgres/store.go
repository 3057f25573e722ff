package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// querier — общий интерфейс *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует единицу работы.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Do выполняет fn в одной транзакции READ COMMITTED. Строки, прочитанные через
// GetForUpdate, блокируются до commit; Save дополнительно сверяет version.
// Ошибка fn откатывает транзакцию и возвращается как есть.
func (s *Store) Do(ctx context.Context, fn func(r domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(s.repositories(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

func (s *Store) repositories(ctx context.Context, q querier) domain.Repositories {
	base := conn{ctx: ctx, q: q}
	return domain.Repositories{
		SKUs:            &skuRepository{conn: base},
		Carts:           &cartRepository{conn: base},
		Orders:          &orderRepository{conn: base},
		PartsRequests:   &partsRequestRepository{conn: base},
		Bookings:        &bookingRepository{conn: base},
		Services:        &serviceRepository{conn: base},
		Invoices:        &invoiceRepository{conn: base},
		InvoicePayments: &invoicePaymentRepository{conn: base},
		Outbox:          &outboxWriter{conn: base},
		Timeline:        &timelineRepository{conn: base},
	}
}

// Next выдаёт следующий номер счёта за год отдельным запросом вне текущей транзакции,
// поэтому откат транзакции оставляет пропуск в нумерации.
func (s *Store) Next(ctx context.Context, year int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`, year).Scan(&value)
	if err != nil {
		return 0, mapError("next invoice number", err)
	}
	return value, nil
}

// conn связывает репозиторий с контекстом и транзакцией единицы работы.
type conn struct {
	ctx context.Context
	q   querier
}

var (
	_ domain.UnitOfWork      = (*Store)(nil)
	_ domain.InvoiceSequence = (*Store)(nil)
)
