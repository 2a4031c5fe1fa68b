package prescriptions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
)

// Handler exposes the prescription workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers prescription routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/prescriptions", h.handleReceive)
	r.Get("/prescriptions", h.handleList)
	r.Get("/prescriptions/{rxID}", h.handleGet)
	r.Post("/prescriptions/{rxID}/{action}", h.handleAdvance)
}

type medicationRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
	Dosage   string `json:"dosage"`
}

type receiveRequest struct {
	RxNumber      string              `json:"rx_number" validate:"required"`
	PatientRef    string              `json:"patient_ref" validate:"required"`
	PrescriberRef string              `json:"prescriber_ref"`
	HospitalRef   string              `json:"hospital_ref"`
	Medications   []medicationRequest `json:"medications" validate:"required,min=1,dive"`
	Priority      Priority            `json:"priority"`
	Notes         string              `json:"notes"`
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
	meds := make([]Medication, 0, len(req.Medications))
	for _, m := range req.Medications {
		meds = append(meds, Medication(m))
	}
	rx, created, err := h.service.Receive(r.Context(), ReceiveInput{
		PharmacyID:    p.PharmacyID,
		RxNumber:      req.RxNumber,
		PatientRef:    req.PatientRef,
		PrescriberRef: req.PrescriberRef,
		HospitalRef:   req.HospitalRef,
		Medications:   meds,
		Priority:      req.Priority,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, rx)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	page := httpx.PageFromQuery(r)
	list, err := h.service.List(r.Context(), p.PharmacyID, ListFilter{
		Status: Status(r.URL.Query().Get("status")),
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
	rx, err := h.service.Get(r.Context(), p.PharmacyID, chi.URLParam(r, "rxID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rx)
}

type advanceRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Writer(w, r)
	if !ok {
		return
	}
	var req advanceRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeValid(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	rx, err := h.service.Advance(r.Context(), AdvanceInput{
		PharmacyID: p.PharmacyID,
		RxID:       chi.URLParam(r, "rxID"),
		Action:     Action(chi.URLParam(r, "action")),
		Reason:     req.Reason,
	})
	if err != nil {
		h.logger.Debug("prescription transition rejected", slog.String("rx_id", chi.URLParam(r, "rxID")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rx)
}
