package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

func brakePads() domain.SKU {
	return domain.SKU{
		ID:             "sku-brk",
		Code:           "BRK-PAD",
		Name:           "Brake pad",
		UnitPriceMinor: 2500,
		TotalQty:       10,
		MinStockLevel:  4,
		VariationSchema: []domain.VariationOption{
			{ID: "color", Name: "Color", Type: "select", AllowedValues: []string{"red", "blue"}, Required: true},
		},
		VariationStock: &domain.VariationStock{
			Allocations: map[string]int{"color:red": 4, "color:blue": 3},
			Unallocated: 3,
		},
		Active: true,
	}
}

func plainSKU(qty int) domain.SKU {
	return domain.SKU{ID: "sku-oil", Code: "OIL-5W30", Name: "Oil 5W30", UnitPriceMinor: 900, TotalQty: qty, MinStockLevel: 2, Active: true}
}

func TestSKUTryDeduct_BrakePadScenario(t *testing.T) {
	sku := brakePads()

	if err := sku.TryDeduct("color:red", 5); err != nil {
		t.Fatalf("first deduction failed: %v", err)
	}
	if got := sku.VariationStock.Allocations["color:red"]; got != 0 {
		t.Fatalf("red allocation = %d, want 0", got)
	}
	if got := sku.VariationStock.Allocations["color:blue"]; got != 3 {
		t.Fatalf("blue allocation = %d, want 3", got)
	}
	if sku.VariationStock.Unallocated != 2 {
		t.Fatalf("unallocated = %d, want 2", sku.VariationStock.Unallocated)
	}
	if sku.TotalQty != 5 {
		t.Fatalf("total = %d, want 5", sku.TotalQty)
	}

	err := sku.TryDeduct("color:red", 3)
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ise.Available != 2 || ise.Requested != 3 {
		t.Fatalf("unexpected gap: available=%d requested=%d", ise.Available, ise.Requested)
	}
	if sku.TotalQty != 5 || sku.VariationStock.Unallocated != 2 {
		t.Fatal("failed deduction must not change stock")
	}
	if err := sku.CheckInvariants(); err != nil {
		t.Fatalf("conservation broken: %v", err)
	}
}

func TestSKUTryDeduct_Plain(t *testing.T) {
	sku := plainSKU(3)

	if err := sku.TryDeduct("", 3); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if sku.TotalQty != 0 {
		t.Fatalf("total = %d, want 0", sku.TotalQty)
	}
	if err := sku.TryDeduct("", 1); !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := sku.TryDeduct("", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero qty, got %v", err)
	}
}

func TestSKUAvailableFor(t *testing.T) {
	sku := brakePads()
	cases := map[string]int{
		"color:red":   7,
		"color:blue":  6,
		"color:green": 3,
	}
	for key, want := range cases {
		if got := sku.AvailableFor(key); got != want {
			t.Errorf("AvailableFor(%q) = %d, want %d", key, got, want)
		}
	}

	sku.VariationStock = nil
	if got := sku.AvailableFor("color:red"); got != 10 {
		t.Fatalf("missing variation stock should expose total, got %d", got)
	}
}

func TestSKUTryDeduct_MissingVariationStockTreatsAllAsUnallocated(t *testing.T) {
	sku := brakePads()
	sku.VariationStock = nil

	if err := sku.TryDeduct("color:blue", 4); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if sku.VariationStock == nil || sku.VariationStock.Unallocated != 6 || sku.TotalQty != 6 {
		t.Fatalf("unexpected stock %+v total=%d", sku.VariationStock, sku.TotalQty)
	}
	if err := sku.CheckInvariants(); err != nil {
		t.Fatalf("conservation broken: %v", err)
	}
}

func TestSKUAdd(t *testing.T) {
	sku := brakePads()
	if err := sku.Add(5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if sku.TotalQty != 15 || sku.VariationStock.Unallocated != 8 {
		t.Fatalf("unexpected stock total=%d unallocated=%d", sku.TotalQty, sku.VariationStock.Unallocated)
	}
	if sku.VariationStock.Allocations["color:red"] != 4 {
		t.Fatal("restock must not change allocations")
	}
	if err := sku.Add(0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSKUReallocate(t *testing.T) {
	tests := []struct {
		name        string
		allocations map[string]int
		wantErr     error
		unallocated int
	}{
		{name: "within total", allocations: map[string]int{"color:red": 5, "color:blue": 5}, unallocated: 0},
		{name: "partial", allocations: map[string]int{"color:red": 2}, unallocated: 8},
		{name: "exceeds total", allocations: map[string]int{"color:red": 6, "color:blue": 5}, wantErr: domain.ErrInvalidAllocation},
		{name: "unknown value", allocations: map[string]int{"color:green": 1}, wantErr: domain.ErrInvalidAllocation},
		{name: "unknown axis", allocations: map[string]int{"color:red,size:M": 1}, wantErr: domain.ErrInvalidAllocation},
		{name: "negative", allocations: map[string]int{"color:red": -1}, wantErr: domain.ErrInvalidAllocation},
		{name: "empty clears", allocations: map[string]int{}, unallocated: 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sku := brakePads()
			err := sku.Reallocate(tc.allocations)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if sku.VariationStock.Unallocated != 3 {
					t.Fatal("failed reallocation must keep previous state")
				}
				return
			}
			if err != nil {
				t.Fatalf("reallocate: %v", err)
			}
			if sku.VariationStock.Unallocated != tc.unallocated {
				t.Fatalf("unallocated = %d, want %d", sku.VariationStock.Unallocated, tc.unallocated)
			}
			if err := sku.CheckInvariants(); err != nil {
				t.Fatalf("conservation broken: %v", err)
			}
		})
	}

	plain := plainSKU(3)
	if err := plain.Reallocate(map[string]int{}); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Fatalf("expected invalid allocation for plain sku, got %v", err)
	}
}

func TestSKUAllocateVariation(t *testing.T) {
	sku := brakePads()

	if err := sku.AllocateVariation("color:blue", 5); err != nil {
		t.Fatalf("allocate blue: %v", err)
	}
	if got := sku.VariationStock.Allocations; got["color:red"] != 4 || got["color:blue"] != 5 {
		t.Fatalf("unexpected allocations: %v", got)
	}
	if sku.VariationStock.Unallocated != 1 {
		t.Fatalf("unallocated = %d, want 1", sku.VariationStock.Unallocated)
	}

	if err := sku.AllocateVariation("color:blue", 7); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Fatalf("expected ErrInvalidAllocation for over-allocation, got %v", err)
	}
	if err := sku.AllocateVariation("color:green", 1); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Fatalf("expected ErrInvalidAllocation for unknown value, got %v", err)
	}
	if sku.VariationStock.Allocations["color:blue"] != 5 {
		t.Fatal("failed allocation must not change stock")
	}

	plain := plainSKU(5)
	if err := plain.AllocateVariation("color:red", 1); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Fatalf("expected ErrInvalidAllocation for plain sku, got %v", err)
	}
}

func TestSKUSetTotalQty(t *testing.T) {
	sku := brakePads()
	if err := sku.SetTotalQty(6); !errors.Is(err, domain.ErrInvalidAllocation) {
		t.Fatalf("expected invalid allocation below allocated, got %v", err)
	}
	if err := sku.SetTotalQty(12); err != nil {
		t.Fatalf("set total: %v", err)
	}
	if sku.VariationStock.Unallocated != 5 {
		t.Fatalf("unallocated = %d, want 5", sku.VariationStock.Unallocated)
	}
	if err := sku.SetTotalQty(-1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	plain := plainSKU(3)
	if err := plain.SetTotalQty(0); err != nil || plain.TotalQty != 0 {
		t.Fatalf("plain set total: err=%v total=%d", err, plain.TotalQty)
	}
}

func TestSKUIsLowStock(t *testing.T) {
	tests := []struct {
		name string
		sku  func() domain.SKU
		want bool
	}{
		{
			name: "plain above threshold",
			sku:  func() domain.SKU { return plainSKU(3) },
			want: false,
		},
		{
			name: "plain at threshold",
			sku:  func() domain.SKU { return plainSKU(2) },
			want: true,
		},
		{
			// threshold = max(1, 4/2) = 2; buckets 4, 3, 3.
			name: "varied above per-bucket threshold",
			sku:  brakePads,
			want: false,
		},
		{
			name: "varied one bucket at threshold",
			sku: func() domain.SKU {
				s := brakePads()
				s.VariationStock.Allocations["color:blue"] = 2
				s.VariationStock.Unallocated = 4
				return s
			},
			want: true,
		},
		{
			name: "varied unallocated pool low",
			sku: func() domain.SKU {
				s := brakePads()
				s.VariationStock.Allocations = map[string]int{"color:red": 5, "color:blue": 4}
				s.VariationStock.Unallocated = 1
				return s
			},
			want: true,
		},
		{
			name: "varied without stock data degrades to plain rule",
			sku: func() domain.SKU {
				s := brakePads()
				s.VariationStock = nil
				return s
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sku := tc.sku()
			if got := sku.IsLowStock(); got != tc.want {
				t.Fatalf("IsLowStock() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSKUSelectionKey(t *testing.T) {
	sku := brakePads()

	key, err := sku.SelectionKey(map[string]string{"color": "red", "finish": "matte"})
	if err != nil {
		t.Fatalf("selection key: %v", err)
	}
	if key != "color:red" {
		t.Fatalf("unknown axes must be ignored, got %q", key)
	}

	if _, err := sku.SelectionKey(nil); !errors.Is(err, domain.ErrInvalidVariationSelection) {
		t.Fatalf("varied sku requires selection, got %v", err)
	}
	if _, err := sku.SelectionKey(map[string]string{"color": "green"}); !errors.Is(err, domain.ErrInvalidVariationSelection) {
		t.Fatalf("disallowed value must fail, got %v", err)
	}

	plain := plainSKU(1)
	if _, err := plain.SelectionKey(map[string]string{"color": "red"}); !errors.Is(err, domain.ErrInvalidVariationSelection) {
		t.Fatalf("plain sku must reject selection, got %v", err)
	}
	if key, err := plain.SelectionKey(map[string]string{}); err != nil || key != "" {
		t.Fatalf("plain sku empty selection: key=%q err=%v", key, err)
	}
}

func TestSKUSoftDeleteRestore(t *testing.T) {
	sku := plainSKU(1)

	if err := sku.Restore(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("restore of live sku must fail, got %v", err)
	}
	if err := sku.MarkDeleted(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !sku.Deleted || sku.Active {
		t.Fatalf("unexpected flags deleted=%v active=%v", sku.Deleted, sku.Active)
	}
	if err := sku.MarkDeleted(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("double delete must fail, got %v", err)
	}
	if err := sku.Restore(); err != nil || sku.Deleted || !sku.Active {
		t.Fatalf("restore: err=%v deleted=%v active=%v", err, sku.Deleted, sku.Active)
	}
}

func TestSKUValidate(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(s *domain.SKU)
		wantErr error
	}{
		{name: "ok", mut: func(*domain.SKU) {}},
		{name: "no code", mut: func(s *domain.SKU) { s.Code = " " }, wantErr: domain.ErrInvalidArgument},
		{name: "negative price", mut: func(s *domain.SKU) { s.UnitPriceMinor = -1 }, wantErr: domain.ErrInvalidArgument},
		{name: "broken conservation", mut: func(s *domain.SKU) { s.VariationStock.Unallocated = 9 }, wantErr: domain.ErrInvalidAllocation},
		{
			name:    "duplicate variation",
			mut:     func(s *domain.SKU) { s.VariationSchema = append(s.VariationSchema, s.VariationSchema[0]) },
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "reserved character in value",
			mut:     func(s *domain.SKU) { s.VariationSchema[0].AllowedValues = []string{"red,blue"} },
			wantErr: domain.ErrInvalidArgument,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sku := brakePads()
			tc.mut(&sku)
			err := sku.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSKUCloneIsDeep(t *testing.T) {
	sku := brakePads()
	clone := sku.Clone()

	clone.VariationStock.Allocations["color:red"] = 0
	clone.VariationSchema[0].AllowedValues[0] = "black"

	if sku.VariationStock.Allocations["color:red"] != 4 {
		t.Fatal("clone shares allocations map")
	}
	if sku.VariationSchema[0].AllowedValues[0] != "red" {
		t.Fatal("clone shares schema slice")
	}
}

func TestSKUSummary(t *testing.T) {
	sku := brakePads()
	summary := sku.Summary()
	if summary.Allocated != 7 || summary.Unallocated != 3 || summary.Total != 10 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Allocations["color:blue"] != 3 {
		t.Fatalf("unexpected allocations %+v", summary.Allocations)
	}
}
