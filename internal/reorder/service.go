package reorder

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// DrugSource lists a pharmacy's active drugs.
type DrugSource interface {
	ActiveDrugs(ctx context.Context, pharmacyID string) ([]catalog.Drug, error)
}

// Service serves reorder suggestions from the cache, rebuilding at most once per
// pharmacy version at a time.
type Service struct {
	drugs  DrugSource
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds Service. A nil cache computes every call.
func NewService(drugs DrugSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{drugs: drugs, cache: cache, logger: logger}
}

// Suggestions returns the pharmacy's current reorder suggestions.
func (s *Service) Suggestions(ctx context.Context, pharmacyID string) ([]Suggestion, error) {
	if pharmacyID == "" {
		return nil, shared.Validationf("reorder: pharmacy required")
	}
	version, err := s.cache.Version(ctx, pharmacyID)
	if err != nil {
		s.logger.Warn("reorder cache version", slog.String("pharmacy_id", pharmacyID), slog.Any("error", err))
		return s.compute(ctx, pharmacyID)
	}
	key := pharmacyID + ":" + strconv.FormatInt(version, 10)
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Coalesced callers share this rebuild, so the first caller's cancellation must not end it.
		rctx := context.WithoutCancel(ctx)
		loaded := false
		out, _, err := s.cache.Fetch(rctx, pharmacyID, version, func(ctx context.Context) ([]Suggestion, error) {
			loaded = true
			return s.compute(ctx, pharmacyID)
		})
		if errors.Is(err, ErrCacheUnavailable) {
			s.logger.Warn("reorder cache", slog.String("pharmacy_id", pharmacyID), slog.Any("error", err))
			if loaded {
				return out, nil
			}
			return s.compute(rctx, pharmacyID)
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]Suggestion), nil
}

// Invalidate drops cached suggestions of the pharmacy.
func (s *Service) Invalidate(ctx context.Context, pharmacyID string) error {
	return s.cache.Bump(ctx, pharmacyID)
}

// HandleStockChanged invalidates on committed stock movements.
func (s *Service) HandleStockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	return s.Invalidate(ctx, evt.PharmacyID)
}

// HandleCatalogChanged invalidates when reorder levels or activation change.
func (s *Service) HandleCatalogChanged(ctx context.Context, pharmacyID string) error {
	return s.Invalidate(ctx, pharmacyID)
}

func (s *Service) compute(ctx context.Context, pharmacyID string) ([]Suggestion, error) {
	drugs, err := s.drugs.ActiveDrugs(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	return Suggest(drugs), nil
}
