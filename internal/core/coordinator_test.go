package core

import (
	"testing"
	"time"

	"agritrace/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainFixture() (Lot, Transformation, Logistics) {
	lot := fixtureLot()
	lot.ID = "lot-1"
	tr := fixtureTransformation(lot.ID)
	tr.ID = "tr-1"
	lg := fixtureLogistics(tr.ID, "GUIA-0001")
	lg.ID = "lg-1"
	return lot, tr, lg
}

func requireChainRule(t *testing.T, err error, rule domain.RuleID) *domain.ValidationFailure {
	t.Helper()
	require.Error(t, err)
	vf, ok := domain.AsValidationFailure(err)
	require.True(t, ok)
	assert.Equal(t, rule, vf.Rule)
	return vf
}

func TestValidateChainAcceptsConsistentChain(t *testing.T) {
	lot, tr, lg := chainFixture()
	require.NoError(t, ValidateChain(lot, tr, lg))

	// wash on the harvest day and departure exactly at QC are on the boundary
	tr.WashedAt = time.Date(2024, 5, 30, 0, 0, 1, 0, time.UTC)
	lg.DepartedAt = tr.QualityCheckedAt
	require.NoError(t, ValidateChain(lot, tr, lg))
}

func TestValidateChainReferentialBeforeTemporal(t *testing.T) {
	lot, tr, lg := chainFixture()
	tr.LotID = "other-lot"
	tr.WashedAt = lot.HarvestDate.Add(-48 * time.Hour)
	lg.DepartedAt = tr.QualityCheckedAt.Add(-time.Hour)

	vf := requireChainRule(t, ValidateChain(lot, tr, lg), domain.RuleChainLotReference)
	assert.Equal(t, domain.EntityTransformation, vf.Entity)
	assert.Equal(t, []string{"lot_id"}, vf.Fields)

	tr.LotID = lot.ID
	lg.TransformationID = "other-transformation"
	vf = requireChainRule(t, ValidateChain(lot, tr, lg), domain.RuleChainTransformationReference)
	assert.Equal(t, domain.EntityLogistics, vf.Entity)
}

func TestValidateChainTemporalOrder(t *testing.T) {
	lot, tr, lg := chainFixture()
	tr.WashedAt = time.Date(2024, 5, 29, 23, 59, 0, 0, time.UTC)
	lg.DepartedAt = tr.QualityCheckedAt.Add(-time.Minute)
	requireChainRule(t, ValidateChain(lot, tr, lg), domain.RuleChainWashAfterHarvest)

	_, tr, _ = chainFixture()
	requireChainRule(t, ValidateChain(lot, tr, lg), domain.RuleChainDepartureAfterQC)
}

func TestDiagnoseLotCollectsOnlyInconsistentPairings(t *testing.T) {
	lot, good, goodLogistics := chainFixture()
	bad := fixtureTransformation(lot.ID)
	bad.ID = "tr-2"
	bad.WashedAt = lot.HarvestDate.Add(-24 * time.Hour)
	badLogistics := fixtureLogistics(bad.ID, "GUIA-0002")
	badLogistics.ID = "lg-2"

	diagnosis := DiagnoseLot(lot, []Transformation{good, bad}, []Logistics{goodLogistics, badLogistics})
	require.Len(t, diagnosis.Violations, 1)
	assert.Equal(t, domain.RuleChainWashAfterHarvest, diagnosis.Violations[0].Rule)
	assert.Equal(t, "tr-2", diagnosis.Violations[0].EntityID)
	assert.Equal(t, 2, diagnosis.Pairings)
	assert.False(t, diagnosis.Valid())
	assert.True(t, diagnosis.Result().HasBlocking())
}

func TestDiagnoseLotCollectsEveryPairingWithoutStopping(t *testing.T) {
	lot, tr, lg := chainFixture()
	tr.WashedAt = lot.HarvestDate.Add(-24 * time.Hour)
	second := lg
	second.ID = "lg-2"
	second.GuideNumber = "GUIA-0002"
	second.DepartedAt = tr.QualityCheckedAt.Add(-time.Hour)

	diagnosis := DiagnoseLot(lot, []Transformation{tr}, []Logistics{lg, second})
	assert.Equal(t, 2, diagnosis.Pairings)
	assert.Len(t, diagnosis.Violations, 2)
}

func TestDiagnoseLotSkipsTransformationsWithoutLogistics(t *testing.T) {
	lot, tr, _ := chainFixture()
	tr.WashedAt = lot.HarvestDate.Add(-72 * time.Hour)

	diagnosis := DiagnoseLot(lot, []Transformation{tr}, nil)
	assert.True(t, diagnosis.Valid())
	assert.Equal(t, 0, diagnosis.Pairings)
	assert.Equal(t, 1, diagnosis.Unpaired)
	assert.NotNil(t, diagnosis.Violations)
}
