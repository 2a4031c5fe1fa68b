package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/drugs/{drugID}/batches", h.handleReceive)
	r.Get("/drugs/{drugID}/batches", h.handleListBatches)
	r.Post("/sales", h.handleSell)
	r.Get("/sales", h.handleListSales)
	r.Get("/sales/{saleID}", h.handleGetSale)
	r.Patch("/sales/{saleID}/payment", h.handlePayment)
	r.Post("/inventory/reconcile", h.handleReconcile)
}

type receiveRequest struct {
	BatchNumber  string          `json:"batch_number" validate:"required"`
	Quantity     int64           `json:"quantity" validate:"gt=0"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ExpiryDate   string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Supplier     string          `json:"supplier"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	expiry, _ := time.Parse("2006-01-02", req.ExpiryDate)
	batch, err := h.service.Receive(r.Context(), ReceiveInput{
		PharmacyID:   p.PharmacyID,
		DrugID:       chi.URLParam(r, "drugID"),
		BatchNumber:  req.BatchNumber,
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		ExpiryDate:   expiry,
		Supplier:     req.Supplier,
	})
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	includeDepleted, _ := strconv.ParseBool(r.URL.Query().Get("include_depleted"))
	batches, err := h.service.ListBatches(r.Context(), p.PharmacyID, chi.URLParam(r, "drugID"), includeDepleted)
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

type saleLineRequest struct {
	DrugID    string          `json:"drug_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type saleRequest struct {
	SaleType       SaleType          `json:"sale_type" validate:"required"`
	PaymentMethod  PaymentMethod     `json:"payment_method" validate:"required"`
	Lines          []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
	CustomerRef    string            `json:"customer_ref"`
	Paid           bool              `json:"paid"`
	IdempotencyKey string            `json:"idempotency_key"`
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req saleRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := SellInput{
		PharmacyID:     p.PharmacyID,
		SaleType:       req.SaleType,
		PaymentMethod:  req.PaymentMethod,
		CustomerRef:    req.CustomerRef,
		Paid:           req.Paid,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		input.IdempotencyKey = key
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput(line))
	}
	sale, err := h.service.Sell(r.Context(), input)
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	sales, err := h.service.ListSales(r.Context(), p.PharmacyID, httpx.PageFromQuery(r))
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), p.PharmacyID, chi.URLParam(r, "saleID"))
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type paymentRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status" validate:"required"`
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.UpdatePaymentStatus(r.Context(), p.PharmacyID, chi.URLParam(r, "saleID"), req.PaymentStatus)
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	drifts, err := h.service.Reconcile(r.Context(), p.PharmacyID, repair)
	if err != nil {
		h.respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drifts": drifts, "repaired": repair})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
