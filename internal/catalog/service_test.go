package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type memoryRepo struct {
	drugs map[string]Drug
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{drugs: make(map[string]Drug)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]Drug, len(r.drugs))
	for k, v := range r.drugs {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.drugs = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetDrug(ctx context.Context, pharmacyID, drugID string) (Drug, error) {
	d, ok := r.drugs[drugID]
	if !ok || d.PharmacyID != pharmacyID {
		return Drug{}, shared.ErrDrugNotFound
	}
	return d, nil
}

func (r *memoryRepo) ListDrugs(ctx context.Context, pharmacyID string, filter DrugFilter) ([]Drug, error) {
	var out []Drug
	for _, d := range r.drugs {
		if d.PharmacyID != pharmacyID || (filter.ActiveOnly && !d.IsActive) {
			continue
		}
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(d.GenericName+" "+d.BrandName), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GenericName+out[i].BrandName < out[j].GenericName+out[j].BrandName })
	return out, nil
}

func (r *memoryRepo) ListPharmacies(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, d := range r.drugs {
		if !seen[d.PharmacyID] {
			seen[d.PharmacyID] = true
			out = append(out, d.PharmacyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type recordingHook struct {
	pharmacies []string
}

func (h *recordingHook) HandleCatalogChanged(ctx context.Context, pharmacyID string) error {
	h.pharmacies = append(h.pharmacies, pharmacyID)
	return nil
}

// checkUnique mirrors the (pharmacy_id, lower(generic), lower(brand)) index.
func (tx *memoryTx) checkUnique(drug Drug) error {
	for _, d := range tx.repo.drugs {
		if d.ID == drug.ID {
			continue
		}
		if d.PharmacyID == drug.PharmacyID && strings.EqualFold(d.GenericName, drug.GenericName) && strings.EqualFold(d.BrandName, drug.BrandName) {
			return fmt.Errorf("memory: %w", shared.ErrDuplicate)
		}
	}
	return nil
}

func (tx *memoryTx) InsertDrug(ctx context.Context, drug Drug) error {
	if err := tx.checkUnique(drug); err != nil {
		return err
	}
	tx.repo.drugs[drug.ID] = drug
	return nil
}

func (tx *memoryTx) GetDrugForUpdate(ctx context.Context, pharmacyID, drugID string) (Drug, error) {
	return tx.repo.GetDrug(ctx, pharmacyID, drugID)
}

func (tx *memoryTx) UpdateDrug(ctx context.Context, drug Drug) error {
	if err := tx.checkUnique(drug); err != nil {
		return err
	}
	tx.repo.drugs[drug.ID] = drug
	return nil
}

func TestAddDrugDefaultsAndValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	drug, err := svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: " Paracetamol ", BrandName: "Panadol", Category: CategoryOverTheCounter, UnitPrice: decimal.RequireFromString("2.50"), ReorderLevel: 10})
	require.NoError(t, err)
	require.Equal(t, "Paracetamol", drug.GenericName)
	require.Equal(t, int64(1), drug.PackSize)
	require.True(t, drug.IsActive)
	require.Zero(t, drug.CurrentStock)

	_, err = svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "paracetamol", BrandName: "PANADOL", Category: CategoryOverTheCounter})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "X", Category: "herbal"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "X", Category: CategoryGeneralSale, UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateAndDeactivate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	hook := &recordingHook{}
	svc.OnChange(hook)
	ctx := context.Background()

	drug, err := svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "Amoxicillin", Category: CategoryPrescriptionOnly, PackSize: 21})
	require.NoError(t, err)

	level := int64(30)
	updated, err := svc.UpdateDrug(ctx, "ph-1", drug.ID, DrugUpdate{ReorderLevel: &level})
	require.NoError(t, err)
	require.Equal(t, int64(30), updated.ReorderLevel)
	require.Equal(t, int64(21), updated.PackSize)

	_, err = svc.UpdateDrug(ctx, "ph-2", drug.ID, DrugUpdate{ReorderLevel: &level})
	require.ErrorIs(t, err, shared.ErrDrugNotFound)

	require.NoError(t, svc.DeactivateDrug(ctx, "ph-1", drug.ID))
	got, err := svc.GetDrug(ctx, "ph-1", drug.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	active, err := svc.ActiveDrugs(ctx, "ph-1")
	require.NoError(t, err)
	require.Empty(t, active)
	require.Equal(t, []string{"ph-1", "ph-1", "ph-1"}, hook.pharmacies)

	pharmacies, err := svc.Pharmacies(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ph-1"}, pharmacies)
}

func TestRenameOntoExistingNamesIsDuplicate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "Paracetamol", BrandName: "Panadol", Category: CategoryGeneralSale})
	require.NoError(t, err)
	other, err := svc.AddDrug(ctx, "ph-1", DrugInput{GenericName: "Paracetamol", BrandName: "Calpol", Category: CategoryGeneralSale})
	require.NoError(t, err)

	brand := "PANADOL"
	_, err = svc.UpdateDrug(ctx, "ph-1", other.ID, DrugUpdate{BrandName: &brand})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	got, err := svc.GetDrug(ctx, "ph-1", other.ID)
	require.NoError(t, err)
	require.Equal(t, "Calpol", got.BrandName)

	same := "Calpol"
	_, err = svc.UpdateDrug(ctx, "ph-1", other.ID, DrugUpdate{BrandName: &same})
	require.NoError(t, err)
}

func TestSeedFromReference(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	refs, err := LoadReference(strings.NewReader(`[
		{"genericName": "Ibuprofen", "brandNames": ["Brufen", "Nurofen"], "category": "OTC", "dosageForms": ["tablet"], "strengths": ["200mg"]},
		{"genericName": "Morphine", "category": "controlled"},
		{"genericName": "", "brandNames": ["Nameless"]}
	]`))
	require.NoError(t, err)

	report, err := svc.SeedFromReference(ctx, "ph-1", refs)
	require.NoError(t, err)
	require.Equal(t, 3, report.Created)
	require.Equal(t, 1, report.Skipped)

	again, err := svc.SeedFromReference(ctx, "ph-1", refs)
	require.NoError(t, err)
	require.Zero(t, again.Created)
	require.Equal(t, 4, again.Skipped)

	drugs, err := svc.ListDrugs(ctx, "ph-1", DrugFilter{Category: CategoryControlled})
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	require.Equal(t, "Morphine", drugs[0].GenericName)
	require.Equal(t, DefaultSeedReorderLevel, drugs[0].ReorderLevel)
}

func TestParseCategory(t *testing.T) {
	for raw, want := range map[string]Category{
		"POM":              CategoryPrescriptionOnly,
		"Over-the-counter": CategoryOverTheCounter,
		"GSL":              CategoryGeneralSale,
		"pharmacy only":    CategoryPharmacyOnly,
		"Controlled":       CategoryControlled,
	} {
		got, ok := ParseCategory(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := ParseCategory("herbal")
	require.False(t, ok)
}
