package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
)

// Handler exposes the catalog over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/drugs", h.handleCreate)
	r.Get("/drugs", h.handleList)
	r.Get("/drugs/{drugID}", h.handleGet)
	r.Patch("/drugs/{drugID}", h.handleUpdate)
	r.Delete("/drugs/{drugID}", h.handleDeactivate)
	r.Post("/catalog/seed", h.handleSeed)
}

type drugRequest struct {
	GenericName  string          `json:"generic_name" validate:"required,max=200"`
	BrandName    string          `json:"brand_name" validate:"max=200"`
	Category     string          `json:"category" validate:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	PackSize     int64           `json:"pack_size" validate:"gte=0"`
	ReorderLevel int64           `json:"reorder_level" validate:"gte=0"`
}

type drugPatch struct {
	GenericName  *string          `json:"generic_name"`
	BrandName    *string          `json:"brand_name"`
	Category     *string          `json:"category"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	PackSize     *int64           `json:"pack_size"`
	ReorderLevel *int64           `json:"reorder_level"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req drugRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, _ := ParseCategory(req.Category)
	drug, err := h.service.AddDrug(r.Context(), p.PharmacyID, DrugInput{
		GenericName:  req.GenericName,
		BrandName:    req.BrandName,
		Category:     category,
		UnitPrice:    req.UnitPrice,
		PackSize:     req.PackSize,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, drug)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	filter := DrugFilter{
		Query:      q.Get("q"),
		Category:   Category(q.Get("category")),
		ActiveOnly: activeOnly,
		Page:       httpx.PageFromQuery(r),
	}
	drugs, err := h.service.ListDrugs(r.Context(), p.PharmacyID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, drugs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	drug, err := h.service.GetDrug(r.Context(), p.PharmacyID, chi.URLParam(r, "drugID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, drug)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req drugPatch
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	update := DrugUpdate{
		GenericName:  req.GenericName,
		BrandName:    req.BrandName,
		UnitPrice:    req.UnitPrice,
		PackSize:     req.PackSize,
		ReorderLevel: req.ReorderLevel,
	}
	if req.Category != nil {
		category, _ := ParseCategory(*req.Category)
		update.Category = &category
	}
	drug, err := h.service.UpdateDrug(r.Context(), p.PharmacyID, chi.URLParam(r, "drugID"), update)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, drug)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateDrug(r.Context(), p.PharmacyID, chi.URLParam(r, "drugID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	refs, err := LoadReference(r.Body)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Reference List", err.Error())
		return
	}
	report, err := h.service.SeedFromReference(r.Context(), p.PharmacyID, refs)
	if err != nil {
		h.logger.Error("seed catalog", slog.String("pharmacy_id", p.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"created": report.Created, "skipped": report.Skipped})
}
