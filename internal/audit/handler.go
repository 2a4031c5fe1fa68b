package audit

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Handler serves the audit timeline of the calling pharmacy.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit-events", h.handleTimeline)
	r.Get("/audit-events/export.csv", h.handleExport)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	filters, err := h.parseFilters(r, p.PharmacyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.String("pharmacy_id", p.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	filters, err := h.parseFilters(r, p.PharmacyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	events, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.String("pharmacy_id", p.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"at", "actor_id", "action", "entity", "entity_id", "meta"})
	for _, e := range events {
		_ = cw.Write([]string{e.At.UTC().Format(time.RFC3339), e.ActorID, e.Action, e.Entity, e.EntityID, string(e.Meta)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("audit export write", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request, pharmacyID string) (TimelineFilters, error) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, shared.Validationf("audit: to must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.Add(-DefaultRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, shared.Validationf("audit: from must be YYYY-MM-DD")
		}
		from = parsed
	}
	page, err := positiveInt(q.Get("page"))
	if err != nil {
		return TimelineFilters{}, shared.Validationf("audit: page must be a positive integer")
	}
	pageSize, err := positiveInt(q.Get("page_size"))
	if err != nil {
		return TimelineFilters{}, shared.Validationf("audit: page_size must be a positive integer")
	}
	return TimelineFilters{
		PharmacyID: pharmacyID,
		From:       from,
		To:         to,
		Actor:      q.Get("actor"),
		Entity:     q.Get("entity"),
		Action:     q.Get("action"),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func positiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
