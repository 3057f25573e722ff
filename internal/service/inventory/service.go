package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
	"github.com/vladislavdragonenkov/workshop/internal/service/events"
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
)

// Service — складской учёт: каталог SKU, остатки и их распределение по вариациям.
type Service struct {
	uow     domain.UnitOfWork
	retrier *retry.Retrier
	emitter *events.Emitter
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
	now     func() time.Time

	retryConfig retry.Config
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryConfig задаёт политику повторов при конфликтах.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Service) {
		s.retryConfig = cfg
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис складского учёта.
func NewService(uow domain.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		uow:         uow,
		logger:      log.WithField("component", "inventory"),
		now:         func() time.Time { return time.Now().UTC() },
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retrier = retry.New(s.retryConfig, s.logger, s.metrics)
	s.emitter = events.NewEmitter(s.metrics)
	return s
}

// CreateSKUInput — атрибуты нового SKU. Allocations допустимы только при наличии схемы вариаций.
type CreateSKUInput struct {
	Code            string
	Name            string
	Description     string
	Category        string
	Brand           string
	ImageURL        string
	UnitPriceMinor  int64
	TotalQty        int
	MinStockLevel   *int
	VariationSchema []domain.VariationOption
	Allocations     map[string]int
}

// UpdateSKUInput — частичное обновление атрибутов каталога. nil-поля не меняются.
// Смена схемы вариаций сбрасывает распределение: весь остаток возвращается в общий пул.
type UpdateSKUInput struct {
	Code            *string
	Name            *string
	Description     *string
	Category        *string
	Brand           *string
	ImageURL        *string
	UnitPriceMinor  *int64
	MinStockLevel   *int
	Active          *bool
	VariationSchema *[]domain.VariationOption
}

// CreateSKU заводит новую позицию каталога.
func (s *Service) CreateSKU(ctx context.Context, in CreateSKUInput) (domain.SKU, error) {
	now := s.now()
	minStock := domain.DefaultMinStockLevel
	if in.MinStockLevel != nil {
		minStock = *in.MinStockLevel
	}
	if in.TotalQty < 0 {
		return domain.SKU{}, domain.Invalidf("total quantity must be non-negative, got %d", in.TotalQty)
	}

	sku := domain.SKU{
		ID:              uuid.NewString(),
		Code:            strings.TrimSpace(in.Code),
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Category:        in.Category,
		Brand:           in.Brand,
		ImageURL:        in.ImageURL,
		UnitPriceMinor:  in.UnitPriceMinor,
		TotalQty:        in.TotalQty,
		MinStockLevel:   minStock,
		VariationSchema: in.VariationSchema,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if sku.HasVariations() {
		sku.VariationStock = &domain.VariationStock{Allocations: map[string]int{}, Unallocated: sku.TotalQty}
		if len(in.Allocations) > 0 {
			if err := sku.Reallocate(in.Allocations); err != nil {
				return domain.SKU{}, err
			}
		}
	} else if len(in.Allocations) > 0 {
		return domain.SKU{}, fmt.Errorf("%w: allocations require a variation schema", domain.ErrInvalidAllocation)
	}
	if err := sku.Validate(); err != nil {
		return domain.SKU{}, err
	}

	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		if err := r.SKUs.Create(sku); err != nil {
			return fmt.Errorf("create sku %s: %w", sku.Code, err)
		}
		return s.emitter.Record(r, domain.AggregateSKU, sku.ID, domain.TimelineSKUCreated,
			fmt.Sprintf("qty=%d", sku.TotalQty), now)
	})
	if err != nil {
		s.logger.WithError(err).WithField("code", sku.Code).Warn("create sku failed")
		return domain.SKU{}, err
	}

	s.logger.WithFields(log.Fields{"sku_id": sku.ID, "code": sku.Code}).Info("sku created")
	return sku, nil
}

// UpdateSKU меняет атрибуты каталога, не затрагивая количество.
func (s *Service) UpdateSKU(ctx context.Context, id string, in UpdateSKUInput) (domain.SKU, error) {
	return s.mutate(ctx, "update_sku", id, domain.TimelineSKUUpdated, func(sku *domain.SKU) (string, error) {
		applyUpdate(sku, in)
		if in.VariationSchema != nil {
			sku.VariationSchema = *in.VariationSchema
			sku.VariationStock = nil
			if sku.HasVariations() {
				sku.VariationStock = &domain.VariationStock{Allocations: map[string]int{}, Unallocated: sku.TotalQty}
			}
		}
		return "catalog attributes", sku.Validate()
	})
}

// UpdateStock задаёт общий остаток по результату инвентаризации.
func (s *Service) UpdateStock(ctx context.Context, id string, newQty int) (domain.SKU, error) {
	return s.mutate(ctx, "update_stock", id, domain.TimelineStockSet, func(sku *domain.SKU) (string, error) {
		previous := sku.TotalQty
		if err := sku.SetTotalQty(newQty); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d -> %d", previous, newQty), nil
	})
}

// Restock добавляет поступление на склад.
func (s *Service) Restock(ctx context.Context, id string, qty int) (domain.SKU, error) {
	return s.mutate(ctx, "restock", id, domain.TimelineStockAdded, func(sku *domain.SKU) (string, error) {
		if err := sku.Add(qty); err != nil {
			return "", err
		}
		return fmt.Sprintf("+%d", qty), nil
	})
}

// Reallocate заменяет распределение остатка по вариациям.
func (s *Service) Reallocate(ctx context.Context, id string, allocations map[string]int) (domain.SKU, error) {
	return s.mutate(ctx, "reallocate", id, domain.TimelineStockReallocated, func(sku *domain.SKU) (string, error) {
		if err := sku.Reallocate(allocations); err != nil {
			return "", err
		}
		return fmt.Sprintf("allocated=%d unallocated=%d", sku.VariationStock.Allocated(), sku.VariationStock.Unallocated), nil
	})
}

// AllocateToVariation задаёт пул одной вариации без передачи всего распределения.
func (s *Service) AllocateToVariation(ctx context.Context, id, variationKey string, qty int) (domain.SKU, error) {
	return s.mutate(ctx, "allocate_variation", id, domain.TimelineStockReallocated, func(sku *domain.SKU) (string, error) {
		if err := sku.AllocateVariation(variationKey, qty); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s=%d unallocated=%d", variationKey, qty, sku.VariationStock.Unallocated), nil
	})
}

// SoftDelete помечает SKU удалённым. Исторические ссылки на него остаются валидными.
func (s *Service) SoftDelete(ctx context.Context, id string) (domain.SKU, error) {
	return s.transition(ctx, "soft_delete", id, domain.TimelineSKUDeleted, (*domain.SKU).MarkDeleted)
}

// Restore возвращает удалённый SKU в каталог.
func (s *Service) Restore(ctx context.Context, id string) (domain.SKU, error) {
	return s.transition(ctx, "restore", id, domain.TimelineSKURestored, (*domain.SKU).Restore)
}

// CheckDependencies считает исторические ссылки на SKU.
func (s *Service) CheckDependencies(ctx context.Context, id string) (domain.SKUDependencies, error) {
	var deps domain.SKUDependencies
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		deps, err = r.SKUs.CountReferences(id)
		return err
	})
	return deps, err
}

// GetSKU возвращает SKU каталога. Удалённые SKU не возвращаются.
func (s *Service) GetSKU(ctx context.Context, id string) (domain.SKU, error) {
	var sku domain.SKU
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		sku, err = r.SKUs.Get(id)
		if err != nil {
			return err
		}
		if sku.Deleted {
			return domain.NewNotFound(domain.EntitySKU, id)
		}
		return nil
	})
	return sku, err
}

// ListSKUs возвращает неудалённые SKU.
func (s *Service) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	return s.list(ctx, domain.SKUFilter{}, nil)
}

// ListDeleted возвращает удалённые SKU.
func (s *Service) ListDeleted(ctx context.Context) ([]domain.SKU, error) {
	return s.list(ctx, domain.SKUFilter{OnlyDeleted: true}, nil)
}

// ListLowStock возвращает неудалённые SKU с низким остатком.
func (s *Service) ListLowStock(ctx context.Context) ([]domain.SKU, error) {
	return s.list(ctx, domain.SKUFilter{}, func(sku domain.SKU) bool {
		return sku.IsLowStock()
	})
}

// StockSummary возвращает срез остатка SKU по вариациям.
func (s *Service) StockSummary(ctx context.Context, id string) (domain.StockSummary, error) {
	sku, err := s.GetSKU(ctx, id)
	if err != nil {
		return domain.StockSummary{}, err
	}
	return sku.Summary(), nil
}

// Timeline возвращает журнал изменений SKU.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	var entries []domain.TimelineEvent
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		if _, err := r.SKUs.Get(id); err != nil {
			return err
		}
		var err error
		entries, err = r.Timeline.List(domain.AggregateSKU, id)
		return err
	})
	return entries, err
}

func (s *Service) list(ctx context.Context, filter domain.SKUFilter, keep func(domain.SKU) bool) ([]domain.SKU, error) {
	var result []domain.SKU
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		skus, err := r.SKUs.List(filter)
		if err != nil {
			return err
		}
		result = make([]domain.SKU, 0, len(skus))
		for _, sku := range skus {
			if keep == nil || keep(sku) {
				result = append(result, sku)
			}
		}
		return nil
	})
	return result, err
}

// mutate блокирует неудалённый SKU, применяет fn и сохраняет результат с записью в журнал.
func (s *Service) mutate(ctx context.Context, operation, id, timelineType string, fn func(sku *domain.SKU) (string, error)) (domain.SKU, error) {
	defer s.metrics.TrackOperation(operation)()

	var result domain.SKU
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			sku, err := r.SKUs.GetForUpdate(id)
			if err != nil {
				return err
			}
			if sku.Deleted {
				return domain.NewNotFound(domain.EntitySKU, id)
			}

			reason, err := fn(&sku)
			if err != nil {
				return err
			}
			return s.save(r, &sku, timelineType, reason, &result)
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"sku_id": id, "operation": operation}).Warn("sku mutation failed")
		return domain.SKU{}, err
	}
	return result, nil
}

// transition выполняет смену состояния tombstone. Удалённый SKU доступен только здесь.
func (s *Service) transition(ctx context.Context, operation, id, timelineType string, fn func(sku *domain.SKU) error) (domain.SKU, error) {
	defer s.metrics.TrackOperation(operation)()

	var result domain.SKU
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			sku, err := r.SKUs.GetForUpdate(id)
			if err != nil {
				return err
			}
			if err := fn(&sku); err != nil {
				return err
			}
			return s.save(r, &sku, timelineType, "", &result)
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"sku_id": id, "operation": operation}).Warn("sku transition failed")
		return domain.SKU{}, err
	}
	s.logger.WithFields(log.Fields{"sku_id": id, "operation": operation}).Info("sku state changed")
	return result, nil
}

func (s *Service) save(r domain.Repositories, sku *domain.SKU, timelineType, reason string, out *domain.SKU) error {
	now := s.now()
	sku.UpdatedAt = now
	if err := r.SKUs.Save(*sku); err != nil {
		return fmt.Errorf("save sku %s: %w", sku.ID, err)
	}
	sku.Version++
	if err := s.emitter.Record(r, domain.AggregateSKU, sku.ID, timelineType, reason, now); err != nil {
		return err
	}
	*out = *sku
	return nil
}

func applyUpdate(sku *domain.SKU, in UpdateSKUInput) {
	if in.Code != nil {
		sku.Code = strings.TrimSpace(*in.Code)
	}
	if in.Name != nil {
		sku.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		sku.Description = *in.Description
	}
	if in.Category != nil {
		sku.Category = *in.Category
	}
	if in.Brand != nil {
		sku.Brand = *in.Brand
	}
	if in.ImageURL != nil {
		sku.ImageURL = *in.ImageURL
	}
	if in.UnitPriceMinor != nil {
		sku.UnitPriceMinor = *in.UnitPriceMinor
	}
	if in.MinStockLevel != nil {
		sku.MinStockLevel = *in.MinStockLevel
	}
	if in.Active != nil {
		sku.Active = *in.Active
	}
}
