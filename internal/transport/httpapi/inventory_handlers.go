package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
)

type createSKURequest struct {
	Code            string                   `json:"code"`
	Name            string                   `json:"name"`
	Description     string                   `json:"description"`
	Category        string                   `json:"category"`
	Brand           string                   `json:"brand"`
	ImageURL        string                   `json:"image_url"`
	UnitPriceMinor  int64                    `json:"unit_price_minor"`
	TotalQty        int                      `json:"total_qty"`
	MinStockLevel   *int                     `json:"min_stock_level"`
	VariationSchema []domain.VariationOption `json:"variation_schema"`
	Allocations     map[string]int           `json:"allocations"`
}

type updateSKURequest struct {
	Code            *string                   `json:"code"`
	Name            *string                   `json:"name"`
	Description     *string                   `json:"description"`
	Category        *string                   `json:"category"`
	Brand           *string                   `json:"brand"`
	ImageURL        *string                   `json:"image_url"`
	UnitPriceMinor  *int64                    `json:"unit_price_minor"`
	MinStockLevel   *int                      `json:"min_stock_level"`
	Active          *bool                     `json:"active"`
	VariationSchema *[]domain.VariationOption `json:"variation_schema"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type allocationsRequest struct {
	Allocations map[string]int `json:"allocations"`
}

type variationAllocationRequest struct {
	VariationKey string `json:"variation_key"`
	Quantity     int    `json:"quantity"`
}

func (h *handler) skuRoutes(r chi.Router) {
	admin := h.requireRole(domain.RoleAdmin)

	r.Get("/", h.listSKUs)
	r.With(admin).Post("/", h.createSKU)
	r.With(admin).Get("/low-stock", h.listLowStock)
	r.With(admin).Get("/deleted", h.listDeletedSKUs)

	r.Route("/{skuID}", func(r chi.Router) {
		r.Get("/", h.getSKU)
		r.Get("/stock-summary", h.stockSummary)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Patch("/", h.updateSKU)
			r.Delete("/", h.softDeleteSKU)
			r.Post("/restore", h.restoreSKU)
			r.Put("/stock", h.updateStock)
			r.Post("/restock", h.restock)
			r.Put("/allocations", h.reallocate)
			r.Patch("/allocations", h.allocateVariation)
			r.Get("/dependencies", h.checkDependencies)
			r.Get("/timeline", h.skuTimeline)
		})
	})
}

func (h *handler) createSKU(w http.ResponseWriter, r *http.Request) {
	var req createSKURequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.CreateSKU(r.Context(), inventory.CreateSKUInput{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Brand:           req.Brand,
		ImageURL:        req.ImageURL,
		UnitPriceMinor:  req.UnitPriceMinor,
		TotalQty:        req.TotalQty,
		MinStockLevel:   req.MinStockLevel,
		VariationSchema: req.VariationSchema,
		Allocations:     req.Allocations,
	})
	h.respond(w, r, http.StatusCreated, toSKU(sku), err)
}

func (h *handler) updateSKU(w http.ResponseWriter, r *http.Request) {
	var req updateSKURequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.UpdateSKU(r.Context(), chi.URLParam(r, "skuID"), inventory.UpdateSKUInput{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Brand:           req.Brand,
		ImageURL:        req.ImageURL,
		UnitPriceMinor:  req.UnitPriceMinor,
		MinStockLevel:   req.MinStockLevel,
		Active:          req.Active,
		VariationSchema: req.VariationSchema,
	})
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) getSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := h.Inventory.GetSKU(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) listSKUs(w http.ResponseWriter, r *http.Request) {
	items, err := h.Inventory.ListSKUs(r.Context())
	h.respond(w, r, http.StatusOK, toSKUs(items), err)
}

func (h *handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.Inventory.ListLowStock(r.Context())
	h.respond(w, r, http.StatusOK, toSKUs(items), err)
}

func (h *handler) listDeletedSKUs(w http.ResponseWriter, r *http.Request) {
	items, err := h.Inventory.ListDeleted(r.Context())
	h.respond(w, r, http.StatusOK, toSKUs(items), err)
}

func (h *handler) updateStock(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.UpdateStock(r.Context(), chi.URLParam(r, "skuID"), req.Quantity)
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) restock(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.Restock(r.Context(), chi.URLParam(r, "skuID"), req.Quantity)
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) reallocate(w http.ResponseWriter, r *http.Request) {
	var req allocationsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.Reallocate(r.Context(), chi.URLParam(r, "skuID"), req.Allocations)
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) allocateVariation(w http.ResponseWriter, r *http.Request) {
	var req variationAllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sku, err := h.Inventory.AllocateToVariation(r.Context(), chi.URLParam(r, "skuID"), req.VariationKey, req.Quantity)
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) softDeleteSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := h.Inventory.SoftDelete(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) restoreSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := h.Inventory.Restore(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, toSKU(sku), err)
}

func (h *handler) checkDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := h.Inventory.CheckDependencies(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, dependenciesResponse{
		OrderLines:    deps.OrderLines,
		CartLines:     deps.CartLines,
		PartsRequests: deps.PartsRequests,
		Total:         deps.Total(),
		SafeToDelete:  deps.Total() == 0,
	}, err)
}

func (h *handler) stockSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Inventory.StockSummary(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, stockSummaryResponse{
		SKUID:       s.SKUID,
		Allocations: s.Allocations,
		Allocated:   s.Allocated,
		Unallocated: s.Unallocated,
		Total:       s.Total,
		LowStock:    s.LowStock,
	}, err)
}

func (h *handler) skuTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Inventory.Timeline(r.Context(), chi.URLParam(r, "skuID"))
	h.respond(w, r, http.StatusOK, toTimeline(entries), err)
}
