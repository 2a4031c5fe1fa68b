package supply

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
)

// Handler exposes supply requests over HTTP. The calling pharmacy always comes
// from the verified principal, never from the body.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers supply request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/supply-requests", h.handleCreate)
	r.Get("/supply-requests", h.handleList)
	r.Get("/supply-requests/{requestID}", h.handleGet)
	r.Post("/supply-requests/{requestID}/respond", h.handleRespond)
	r.Post("/supply-requests/{requestID}/fulfill", h.handleFulfill)
	r.Post("/supply-requests/{requestID}/cancel", h.handleCancel)
}

type itemRequest struct {
	DrugName string  `json:"drug_name" validate:"required"`
	Quantity int64   `json:"quantity" validate:"gt=0"`
	Urgency  Urgency `json:"urgency"`
}

type createRequest struct {
	TargetPharmacyID string        `json:"target_pharmacy_id" validate:"required"`
	Items            []itemRequest `json:"items" validate:"required,min=1,dive"`
	Notes            string        `json:"notes"`
}

type respondRequest struct {
	Decision       Status        `json:"decision" validate:"required"`
	AvailableItems []itemRequest `json:"available_items" validate:"dive"`
	Reason         string        `json:"reason"`
}

type fulfillRequest struct {
	DeliveryMethod string `json:"delivery_method" validate:"required"`
	Notes          string `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func toItems(in []itemRequest) []Item {
	out := make([]Item, 0, len(in))
	for _, it := range in {
		out = append(out, Item(it))
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		RequestingPharmacyID: p.PharmacyID,
		TargetPharmacyID:     req.TargetPharmacyID,
		Items:                toItems(req.Items),
		Notes:                req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	page := httpx.PageFromQuery(r)
	q := r.URL.Query()
	list, err := h.service.List(r.Context(), p.PharmacyID, ListFilter{
		Role:   Role(q.Get("role")),
		Status: Status(q.Get("status")),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), p.PharmacyID, chi.URLParam(r, "requestID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Respond(r.Context(), RespondInput{
		PharmacyID:     p.PharmacyID,
		RequestID:      chi.URLParam(r, "requestID"),
		Decision:       req.Decision,
		AvailableItems: toItems(req.AvailableItems),
		Reason:         req.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req fulfillRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Fulfill(r.Context(), FulfillInput{
		PharmacyID:     p.PharmacyID,
		RequestID:      chi.URLParam(r, "requestID"),
		DeliveryMethod: req.DeliveryMethod,
		Notes:          req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeValid(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	updated, err := h.service.Cancel(r.Context(), p.PharmacyID, chi.URLParam(r, "requestID"), req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}
