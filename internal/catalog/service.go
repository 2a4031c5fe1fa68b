package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDrug(ctx context.Context, pharmacyID, drugID string) (Drug, error)
	ListDrugs(ctx context.Context, pharmacyID string, filter DrugFilter) ([]Drug, error)
	ListPharmacies(ctx context.Context) ([]string, error)
}

// ChangeHook is told when drugs of a pharmacy were added or edited.
type ChangeHook interface {
	HandleCatalogChanged(ctx context.Context, pharmacyID string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains the per-pharmacy drug catalog.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	hooks  []ChangeHook
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// OnChange registers a hook run after committed catalog changes.
func (s *Service) OnChange(hook ChangeHook) {
	s.hooks = append(s.hooks, hook)
}

// Pharmacies lists every pharmacy owning at least one drug.
func (s *Service) Pharmacies(ctx context.Context) ([]string, error) {
	return s.repo.ListPharmacies(ctx)
}

func (s *Service) changed(ctx context.Context, pharmacyID string) {
	for _, hook := range s.hooks {
		if err := hook.HandleCatalogChanged(ctx, pharmacyID); err != nil {
			s.logger.Warn("catalog change hook", slog.String("pharmacy_id", pharmacyID), slog.Any("error", err))
		}
	}
}

// AddDrug registers a new drug with zero stock.
func (s *Service) AddDrug(ctx context.Context, pharmacyID string, input DrugInput) (Drug, error) {
	if pharmacyID == "" {
		return Drug{}, shared.Validationf("catalog: pharmacy required")
	}
	drug := Drug{
		PharmacyID:   pharmacyID,
		GenericName:  strings.TrimSpace(input.GenericName),
		BrandName:    strings.TrimSpace(input.BrandName),
		Category:     input.Category,
		UnitPrice:    input.UnitPrice,
		PackSize:     input.PackSize,
		ReorderLevel: input.ReorderLevel,
	}
	if drug.PackSize == 0 {
		drug.PackSize = 1
	}
	if err := validateDrug(drug); err != nil {
		return Drug{}, err
	}
	now := time.Now().UTC()
	drug.ID = uuid.NewString()
	drug.IsActive = true
	drug.CreatedAt = now
	drug.UpdatedAt = now
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertDrug(ctx, drug)
	})
	if err != nil {
		return Drug{}, err
	}
	s.recordAudit(ctx, "DRUG_CREATE", drug.ID, map[string]any{"generic_name": drug.GenericName, "brand_name": drug.BrandName})
	s.changed(ctx, pharmacyID)
	return drug, nil
}

// UpdateDrug applies a partial update. Stock is never changed here.
func (s *Service) UpdateDrug(ctx context.Context, pharmacyID, drugID string, update DrugUpdate) (Drug, error) {
	var updated Drug
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		drug, err := tx.GetDrugForUpdate(ctx, pharmacyID, drugID)
		if err != nil {
			return err
		}
		if update.GenericName != nil {
			drug.GenericName = strings.TrimSpace(*update.GenericName)
		}
		if update.BrandName != nil {
			drug.BrandName = strings.TrimSpace(*update.BrandName)
		}
		if update.Category != nil {
			drug.Category = *update.Category
		}
		if update.UnitPrice != nil {
			drug.UnitPrice = *update.UnitPrice
		}
		if update.PackSize != nil {
			drug.PackSize = *update.PackSize
		}
		if update.ReorderLevel != nil {
			drug.ReorderLevel = *update.ReorderLevel
		}
		if err := validateDrug(drug); err != nil {
			return err
		}
		drug.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateDrug(ctx, drug); err != nil {
			return err
		}
		updated = drug
		return nil
	})
	if err != nil {
		return Drug{}, err
	}
	s.recordAudit(ctx, "DRUG_UPDATE", drugID, nil)
	s.changed(ctx, pharmacyID)
	return updated, nil
}

// DeactivateDrug soft-deletes a drug. Its batches are kept for traceability.
func (s *Service) DeactivateDrug(ctx context.Context, pharmacyID, drugID string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		drug, err := tx.GetDrugForUpdate(ctx, pharmacyID, drugID)
		if err != nil {
			return err
		}
		if !drug.IsActive {
			return nil
		}
		drug.IsActive = false
		drug.UpdatedAt = time.Now().UTC()
		return tx.UpdateDrug(ctx, drug)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "DRUG_DEACTIVATE", drugID, nil)
	s.changed(ctx, pharmacyID)
	return nil
}

// GetDrug returns one drug of the pharmacy, active or not.
func (s *Service) GetDrug(ctx context.Context, pharmacyID, drugID string) (Drug, error) {
	return s.repo.GetDrug(ctx, pharmacyID, drugID)
}

// ListDrugs lists catalog entries.
func (s *Service) ListDrugs(ctx context.Context, pharmacyID string, filter DrugFilter) ([]Drug, error) {
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, shared.Validationf("catalog: unknown category %q", filter.Category)
	}
	filter.Page = filter.Page.Normalize()
	return s.repo.ListDrugs(ctx, pharmacyID, filter)
}

// ActiveDrugs lists every active drug of a pharmacy, unpaginated.
func (s *Service) ActiveDrugs(ctx context.Context, pharmacyID string) ([]Drug, error) {
	return s.repo.ListDrugs(ctx, pharmacyID, DrugFilter{ActiveOnly: true})
}

// SeedFromReference creates one drug per brand name of each reference record.
// Records that already exist in the catalog are counted as skipped.
func (s *Service) SeedFromReference(ctx context.Context, pharmacyID string, refs []ReferenceMedication) (SeedReport, error) {
	if pharmacyID == "" {
		return SeedReport{}, shared.Validationf("catalog: pharmacy required")
	}
	var report SeedReport
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report = SeedReport{}
		for _, ref := range refs {
			generic := strings.TrimSpace(ref.GenericName)
			if generic == "" {
				report.Skipped++
				continue
			}
			category, ok := ParseCategory(ref.Category)
			if !ok {
				category = CategoryPrescriptionOnly
			}
			brands := ref.BrandNames
			if len(brands) == 0 {
				brands = []string{""}
			}
			for _, brand := range brands {
				drug := Drug{
					ID:           uuid.NewString(),
					PharmacyID:   pharmacyID,
					GenericName:  generic,
					BrandName:    strings.TrimSpace(brand),
					Category:     category,
					UnitPrice:    decimal.Zero,
					PackSize:     DefaultSeedPackSize,
					ReorderLevel: DefaultSeedReorderLevel,
					IsActive:     true,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				err := tx.InsertDrug(ctx, drug)
				if errors.Is(err, shared.ErrDuplicate) {
					report.Skipped++
					continue
				}
				if err != nil {
					return err
				}
				report.Created++
				report.Drugs = append(report.Drugs, drug)
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	s.logger.Info("catalog seeded", slog.String("pharmacy_id", pharmacyID), slog.Int("created", report.Created), slog.Int("skipped", report.Skipped))
	s.recordAudit(ctx, "CATALOG_SEED", pharmacyID, map[string]any{"created": report.Created, "skipped": report.Skipped})
	if report.Created > 0 {
		s.changed(ctx, pharmacyID)
	}
	return report, nil
}

func validateDrug(d Drug) error {
	if d.GenericName == "" {
		return shared.Validationf("catalog: generic name required")
	}
	if !d.Category.IsValid() {
		return shared.Validationf("catalog: unknown category %q", d.Category)
	}
	if d.UnitPrice.IsNegative() {
		return shared.Validationf("catalog: unit price must be >= 0")
	}
	if d.PackSize < 1 {
		return shared.Validationf("catalog: pack size must be >= 1")
	}
	if d.ReorderLevel < 0 {
		return shared.Validationf("catalog: reorder level must be >= 0")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actor string
	if p, ok := shared.PrincipalFromContext(ctx); ok {
		actor = p.ActorID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: "pharmacy_drug", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", fmt.Errorf("catalog: %w", err)))
	}
}
