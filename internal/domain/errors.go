package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — идентификатор SKU/корзины/заказа/заявки/брони/счёта не найден.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock — запрошенное количество превышает доступный остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidVariationSelection — выбор вариации не соответствует схеме SKU.
	ErrInvalidVariationSelection = errors.New("invalid variation selection")
	// ErrDuplicateRequest — для пары (бронь, SKU) уже есть заявка в статусе PENDING.
	ErrDuplicateRequest = errors.New("duplicate pending parts request")
	// ErrInvalidStateTransition — операция запрещена в текущем статусе сущности.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrNotAuthorized — актор действует над чужим ресурсом.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrConcurrencyConflict — конфликт блокировки/версии, операцию нужно повторить целиком.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrEmptyCart — попытка оформить заказ из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidArgument — некорректные входные данные команды.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists — нарушение уникальности (код/название SKU, номер счёта).
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidAllocation — распределение остатка по вариациям нарушает инвариант.
	ErrInvalidAllocation = errors.New("invalid stock allocation")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyInProgress          = errors.New("request with the same idempotency key is already processing")
)

// Имена сущностей для NotFoundError.
const (
	EntitySKU            = "sku"
	EntityCart           = "cart"
	EntityCartLine       = "cart line"
	EntityOrder          = "order"
	EntityPartsRequest   = "parts request"
	EntityBooking        = "booking"
	EntityService        = "service"
	EntityInvoice        = "invoice"
	EntityInvoicePayment = "invoice payment"
)

// NotFoundError уточняет, какая именно сущность не найдена.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFound создаёт ошибку отсутствия сущности.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is позволяет сравнивать через errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError несёт доступный и запрошенный остаток для отображения клиенту.
type InsufficientStockError struct {
	SKUID        string
	VariationKey string
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	if e.VariationKey != "" {
		return fmt.Sprintf("insufficient stock for sku %s [%s]: available %d, requested %d",
			e.SKUID, e.VariationKey, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for sku %s: available %d, requested %d",
		e.SKUID, e.Available, e.Requested)
}

// Is позволяет сравнивать через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Invalidf оборачивает ErrInvalidArgument сообщением.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsNotFound проверяет, относится ли ошибка к отсутствию сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConcurrencyConflict проверяет, является ли ошибка конфликтом версии/блокировки.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsInsufficientStock проверяет нехватку остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
