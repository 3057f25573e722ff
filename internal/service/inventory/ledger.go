package inventory

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// Deduction — одна строка списания с SKU.
type Deduction struct {
	VariationKey string
	Qty          int
}

// Lookup читает SKU, доступный для продажи и заявок. Удалённые и неактивные позиции
// считаются отсутствующими.
func Lookup(r domain.Repositories, skuID string) (domain.SKU, error) {
	sku, err := r.SKUs.Get(skuID)
	if err != nil {
		return domain.SKU{}, err
	}
	if sku.Deleted || !sku.Active {
		return domain.SKU{}, domain.NewNotFound(domain.EntitySKU, skuID)
	}
	return sku, nil
}

// Lock совпадает с Lookup, но удерживает блокировку SKU до конца единицы работы.
func Lock(r domain.Repositories, skuID string) (domain.SKU, error) {
	sku, err := r.SKUs.GetForUpdate(skuID)
	if err != nil {
		return domain.SKU{}, err
	}
	if sku.Deleted || !sku.Active {
		return domain.SKU{}, domain.NewNotFound(domain.EntitySKU, skuID)
	}
	return sku, nil
}

// SortedIDs возвращает уникальные идентификаторы SKU в порядке захвата блокировок.
func SortedIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Deducted — итог списания с одного SKU. Он учитывается в метриках и логах через
// RecordDeducted только после фиксации единицы работы.
type Deducted struct {
	SKUID      string
	Source     string
	Units      int
	TotalQty   int
	ReachedLow bool
}

// Deduct списывает все строки с заблокированного SKU и сохраняет его один раз.
// Это единственный путь списания остатка для заказов и заявок механиков.
// При нехватке по любой строке SKU не сохраняется, ошибка откатывает единицу работы.
func (s *Service) Deduct(r domain.Repositories, sku *domain.SKU, lines []Deduction, source, reason string) (Deducted, error) {
	wasLow := sku.IsLowStock()
	now := s.now()

	total := 0
	for _, line := range lines {
		if err := sku.TryDeduct(line.VariationKey, line.Qty); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				s.metrics.RecordInsufficientStock(source)
				s.logger.WithError(err).WithFields(log.Fields{
					"sku_id":    sku.ID,
					"variation": line.VariationKey,
					"source":    source,
				}).Warn("insufficient stock")
			}
			return Deducted{}, err
		}
		total += line.Qty
	}

	sku.UpdatedAt = now
	if err := r.SKUs.Save(*sku); err != nil {
		return Deducted{}, fmt.Errorf("save sku %s: %w", sku.ID, err)
	}
	sku.Version++

	if err := s.emitter.Record(r, domain.AggregateSKU, sku.ID, domain.TimelineStockDeducted,
		fmt.Sprintf("%s: -%d (%s)", source, total, reason), now); err != nil {
		return Deducted{}, err
	}

	result := Deducted{SKUID: sku.ID, Source: source, Units: total, TotalQty: sku.TotalQty}
	if !wasLow && sku.IsLowStock() {
		summary := sku.Summary()
		if err := s.emitter.Enqueue(r, domain.AggregateSKU, sku.ID, domain.EventStockLow, map[string]interface{}{
			"code":            sku.Code,
			"total_qty":       sku.TotalQty,
			"min_stock_level": sku.MinStockLevel,
			"allocations":     summary.Allocations,
			"unallocated":     summary.Unallocated,
		}, now); err != nil {
			return Deducted{}, err
		}
		result.ReachedLow = true
	}
	return result, nil
}

// RecordDeducted учитывает зафиксированные списания.
func (s *Service) RecordDeducted(items ...Deducted) {
	for _, d := range items {
		s.metrics.RecordDeduction(d.Source, d.Units)
		if d.ReachedLow {
			s.metrics.RecordLowStock()
			s.logger.WithFields(log.Fields{
				"sku_id":    d.SKUID,
				"total_qty": d.TotalQty,
			}).Info("sku reached low stock")
		}
	}
}
