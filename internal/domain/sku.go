package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMinStockLevel — порог низкого остатка, если он не задан при создании SKU.
const DefaultMinStockLevel = 5

// VariationStock хранит распределение остатка по вариациям и общий нераспределённый пул.
// Инвариант: sum(Allocations) + Unallocated == SKU.TotalQty.
type VariationStock struct {
	Allocations map[string]int `json:"allocations"`
	Unallocated int            `json:"unallocated"`
}

// Allocated возвращает сумму всех выделенных под вариации единиц.
func (s *VariationStock) Allocated() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, qty := range s.Allocations {
		total += qty
	}
	return total
}

func (s *VariationStock) clone() *VariationStock {
	if s == nil {
		return nil
	}
	out := &VariationStock{
		Allocations: make(map[string]int, len(s.Allocations)),
		Unallocated: s.Unallocated,
	}
	for k, v := range s.Allocations {
		out.Allocations[k] = v
	}
	return out
}

// SKU — складская позиция (запчасть) и её учётный остаток.
type SKU struct {
	ID              string
	Code            string
	Name            string
	Description     string
	Category        string
	Brand           string
	ImageURL        string
	UnitPriceMinor  int64
	TotalQty        int
	MinStockLevel   int
	VariationSchema []VariationOption
	VariationStock  *VariationStock
	Active          bool
	Deleted         bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockSummary — срез остатка SKU по вариациям для административного интерфейса.
type StockSummary struct {
	SKUID       string
	Allocations map[string]int
	Allocated   int
	Unallocated int
	Total       int
	LowStock    bool
}

// HasVariations сообщает, объявлена ли у SKU схема вариаций.
func (s *SKU) HasVariations() bool {
	return len(s.VariationSchema) > 0
}

// SelectionKey валидирует выбор покупателя и возвращает канонический ключ вариации.
// Для вариативного SKU выбор обязателен.
func (s *SKU) SelectionKey(selection map[string]string) (string, error) {
	if !s.HasVariations() {
		if len(CanonicalSelection(selection)) != 0 {
			return "", fmt.Errorf("%w: sku %s has no variations", ErrInvalidVariationSelection, s.ID)
		}
		return "", nil
	}

	known := knownSelection(s.VariationSchema, selection)
	if len(known) == 0 {
		return "", fmt.Errorf("%w: sku %s requires a variation selection", ErrInvalidVariationSelection, s.ID)
	}
	if !ValidateSelection(s.VariationSchema, known) {
		return "", fmt.Errorf("%w: selection %q is not allowed for sku %s",
			ErrInvalidVariationSelection, BuildVariationKey(selection), s.ID)
	}
	return BuildVariationKey(known), nil
}

// AvailableFor возвращает доступный для вариации остаток: собственный пул плюс общий.
// Без данных о распределении весь остаток считается нераспределённым.
func (s *SKU) AvailableFor(variationKey string) int {
	if !s.HasVariations() || s.VariationStock == nil {
		return s.TotalQty
	}
	return s.VariationStock.Allocations[variationKey] + s.VariationStock.Unallocated
}

// CheckAvailable проверяет остаток без изменения SKU.
func (s *SKU) CheckAvailable(variationKey string, qty int) error {
	if qty < 1 {
		return Invalidf("quantity must be at least 1, got %d", qty)
	}
	if available := s.AvailableFor(variationKey); qty > available {
		return &InsufficientStockError{
			SKUID:        s.ID,
			VariationKey: variationKey,
			Available:    available,
			Requested:    qty,
		}
	}
	return nil
}

// TryDeduct списывает qty единиц. Для вариативного SKU сначала расходуется пул вариации,
// остаток добирается из нераспределённого пула.
func (s *SKU) TryDeduct(variationKey string, qty int) error {
	if err := s.CheckAvailable(variationKey, qty); err != nil {
		return err
	}

	if s.HasVariations() {
		stock := s.ensureVariationStock()
		fromAllocation := stock.Allocations[variationKey]
		if fromAllocation > qty {
			fromAllocation = qty
		}
		if fromAllocation > 0 {
			stock.Allocations[variationKey] -= fromAllocation
		}
		stock.Unallocated -= qty - fromAllocation
	}
	s.TotalQty -= qty
	return nil
}

// Add пополняет остаток. Для вариативного SKU приход попадает в нераспределённый пул.
func (s *SKU) Add(qty int) error {
	if qty < 1 {
		return Invalidf("restock quantity must be at least 1, got %d", qty)
	}
	if s.HasVariations() {
		s.ensureVariationStock().Unallocated += qty
	}
	s.TotalQty += qty
	return nil
}

// SetTotalQty задаёт новый общий остаток (ручная инвентаризация).
// Для вариативного SKU новое значение не может быть меньше уже распределённого.
func (s *SKU) SetTotalQty(newQty int) error {
	if newQty < 0 {
		return Invalidf("quantity must be non-negative, got %d", newQty)
	}
	if s.HasVariations() {
		stock := s.ensureVariationStock()
		allocated := stock.Allocated()
		if newQty < allocated {
			return fmt.Errorf("%w: new quantity %d is below allocated %d", ErrInvalidAllocation, newQty, allocated)
		}
		stock.Unallocated = newQty - allocated
	}
	s.TotalQty = newQty
	return nil
}

// Reallocate заменяет распределение по вариациям и пересчитывает нераспределённый пул.
func (s *SKU) Reallocate(allocations map[string]int) error {
	if !s.HasVariations() {
		return fmt.Errorf("%w: sku %s has no variations", ErrInvalidAllocation, s.ID)
	}

	normalized, err := s.normalizeAllocations(allocations)
	if err != nil {
		return err
	}

	sum := 0
	for _, qty := range normalized {
		sum += qty
	}
	if sum > s.TotalQty {
		return fmt.Errorf("%w: allocated %d exceeds total %d", ErrInvalidAllocation, sum, s.TotalQty)
	}

	s.VariationStock = &VariationStock{
		Allocations: normalized,
		Unallocated: s.TotalQty - sum,
	}
	return nil
}

// AllocateVariation задаёт пул одной вариации, остальные распределения сохраняются.
func (s *SKU) AllocateVariation(variationKey string, qty int) error {
	if !s.HasVariations() {
		return fmt.Errorf("%w: sku %s has no variations", ErrInvalidAllocation, s.ID)
	}
	single, err := s.normalizeAllocations(map[string]int{variationKey: qty})
	if err != nil {
		return err
	}

	allocations := make(map[string]int)
	if s.VariationStock != nil {
		for key, current := range s.VariationStock.Allocations {
			allocations[key] = current
		}
	}
	for key, value := range single {
		allocations[key] = value
	}
	return s.Reallocate(allocations)
}

// IsLowStock оценивает низкий остаток. Для вариативного SKU низким считается любой пул
// (вариации или нераспределённый), не превышающий max(1, MinStockLevel / число вариаций).
func (s *SKU) IsLowStock() bool {
	if !s.HasVariations() || s.VariationStock == nil {
		return s.TotalQty <= s.MinStockLevel
	}

	buckets := len(s.VariationStock.Allocations)
	if buckets < 1 {
		buckets = 1
	}
	threshold := s.MinStockLevel / buckets
	if threshold < 1 {
		threshold = 1
	}

	for _, qty := range s.VariationStock.Allocations {
		if qty <= threshold {
			return true
		}
	}
	return s.VariationStock.Unallocated <= threshold
}

// MarkDeleted помечает SKU удалённым (tombstone) и снимает с продажи.
func (s *SKU) MarkDeleted() error {
	if s.Deleted {
		return fmt.Errorf("%w: sku %s is already deleted", ErrInvalidStateTransition, s.ID)
	}
	s.Deleted = true
	s.Active = false
	return nil
}

// Restore возвращает удалённый SKU в каталог.
func (s *SKU) Restore() error {
	if !s.Deleted {
		return fmt.Errorf("%w: sku %s is not deleted", ErrInvalidStateTransition, s.ID)
	}
	s.Deleted = false
	s.Active = true
	return nil
}

// Summary возвращает срез остатка по вариациям.
func (s *SKU) Summary() StockSummary {
	summary := StockSummary{
		SKUID:       s.ID,
		Allocations: map[string]int{},
		Unallocated: s.TotalQty,
		Total:       s.TotalQty,
		LowStock:    s.IsLowStock(),
	}
	if stock := s.VariationStock; stock != nil {
		for k, v := range stock.Allocations {
			summary.Allocations[k] = v
		}
		summary.Allocated = stock.Allocated()
		summary.Unallocated = stock.Unallocated
	}
	return summary
}

// Validate проверяет атрибуты каталога и учётные инварианты SKU.
func (s *SKU) Validate() error {
	if strings.TrimSpace(s.Code) == "" {
		return Invalidf("sku code is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return Invalidf("sku name is required")
	}
	if s.UnitPriceMinor < 0 {
		return Invalidf("unit price must be non-negative")
	}
	if s.MinStockLevel < 0 {
		return Invalidf("min stock level must be non-negative")
	}
	if err := validateSchema(s.VariationSchema); err != nil {
		return err
	}
	return s.CheckInvariants()
}

// CheckInvariants проверяет сохранение остатка: sum(allocations) + unallocated == total.
func (s *SKU) CheckInvariants() error {
	if s.TotalQty < 0 {
		return fmt.Errorf("%w: total quantity %d is negative", ErrInvalidAllocation, s.TotalQty)
	}
	if s.VariationStock == nil {
		return nil
	}
	if !s.HasVariations() {
		return fmt.Errorf("%w: variation stock without variation schema", ErrInvalidAllocation)
	}
	if s.VariationStock.Unallocated < 0 {
		return fmt.Errorf("%w: unallocated %d is negative", ErrInvalidAllocation, s.VariationStock.Unallocated)
	}
	for key, qty := range s.VariationStock.Allocations {
		if qty < 0 {
			return fmt.Errorf("%w: allocation %q is negative", ErrInvalidAllocation, key)
		}
	}
	if sum := s.VariationStock.Allocated() + s.VariationStock.Unallocated; sum != s.TotalQty {
		return fmt.Errorf("%w: allocated+unallocated=%d, total=%d", ErrInvalidAllocation, sum, s.TotalQty)
	}
	return nil
}

// Clone возвращает глубокую копию SKU.
func (s SKU) Clone() SKU {
	out := s
	out.VariationSchema = cloneSchema(s.VariationSchema)
	out.VariationStock = s.VariationStock.clone()
	return out
}

func (s *SKU) ensureVariationStock() *VariationStock {
	if s.VariationStock == nil {
		s.VariationStock = &VariationStock{Allocations: map[string]int{}, Unallocated: s.TotalQty}
	}
	if s.VariationStock.Allocations == nil {
		s.VariationStock.Allocations = map[string]int{}
	}
	return s.VariationStock
}

// normalizeAllocations приводит ключи распределения к каноническому виду и проверяет их по схеме.
func (s *SKU) normalizeAllocations(allocations map[string]int) (map[string]int, error) {
	normalized := make(map[string]int, len(allocations))
	for key, qty := range allocations {
		if qty < 0 {
			return nil, fmt.Errorf("%w: allocation %q is negative", ErrInvalidAllocation, key)
		}
		parsed := ParseVariationKey(key)
		canonical, err := s.SelectionKey(parsed)
		if err != nil || canonical == "" {
			return nil, fmt.Errorf("%w: allocation key %q does not match variation schema", ErrInvalidAllocation, key)
		}
		if len(knownSelection(s.VariationSchema, parsed)) != len(parsed) {
			return nil, fmt.Errorf("%w: allocation key %q has unknown variations", ErrInvalidAllocation, key)
		}
		normalized[canonical] += qty
	}
	return normalized, nil
}

func validateSchema(schema []VariationOption) error {
	seen := make(map[string]struct{}, len(schema))
	for _, option := range schema {
		id := strings.TrimSpace(option.ID)
		if id == "" || id != option.ID {
			return Invalidf("variation id %q is empty or padded", option.ID)
		}
		if strings.ContainsAny(id, variationPairSeparator+variationValueSeparator) {
			return Invalidf("variation id %q contains reserved characters", id)
		}
		if _, dup := seen[id]; dup {
			return Invalidf("duplicate variation id %q", id)
		}
		seen[id] = struct{}{}
		if len(option.AllowedValues) == 0 {
			return Invalidf("variation %q has no allowed values", id)
		}
		for _, value := range option.AllowedValues {
			v := strings.TrimSpace(value)
			if v == "" || v != value || strings.ContainsAny(v, variationPairSeparator+variationValueSeparator) {
				return Invalidf("variation %q has invalid value %q", id, value)
			}
		}
	}
	return nil
}
