package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchMedication(t *testing.T) {
	drugs := []Drug{
		{ID: "c", GenericName: "Amoxicillin", BrandName: "Amoxil", IsActive: true},
		{ID: "b", GenericName: "Amoxicillin + Clavulanic acid", BrandName: "Augmentin", IsActive: true},
		{ID: "a", GenericName: "Paracetamol", BrandName: "Panadol", IsActive: true},
		{ID: "z", GenericName: "Ibuprofen", IsActive: false},
	}

	res, ok := MatchMedication(drugs, "amoxicillin")
	require.True(t, ok)
	require.Equal(t, "c", res.Drug.ID)
	require.True(t, res.Exact)
	require.Equal(t, 2, res.Candidates)
	require.True(t, res.Ambiguous())

	res, ok = MatchMedication(drugs, "AMOX")
	require.True(t, ok)
	require.Equal(t, "c", res.Drug.ID, "shorter name wins without an exact match")

	res, ok = MatchMedication(drugs, "panadol")
	require.True(t, ok)
	require.Equal(t, "a", res.Drug.ID)
	require.False(t, res.Ambiguous())

	_, ok = MatchMedication(drugs, "ibuprofen")
	require.False(t, ok, "inactive drugs never match")

	_, ok = MatchMedication(drugs, "  ")
	require.False(t, ok)
}

func TestMatchMedicationFoldsUnicode(t *testing.T) {
	drugs := []Drug{{ID: "1", GenericName: "Straße Tonic", IsActive: true}}
	_, ok := MatchMedication(drugs, "STRASSE")
	require.True(t, ok)
}
