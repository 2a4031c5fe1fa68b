package reorder

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
)

// Handler exposes reorder suggestions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reorder routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reorder-suggestions", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	suggestions, err := h.service.Suggestions(r.Context(), p.PharmacyID)
	if err != nil {
		h.logger.Error("reorder suggestions", slog.String("pharmacy_id", p.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}
