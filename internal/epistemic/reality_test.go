package epistemic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidUnit(t *testing.T) {
	assert.True(t, ValidUnit("kg"))
	assert.True(t, ValidUnit("m/s²"))
	assert.True(t, ValidUnit(" Pa "))
	assert.True(t, ValidUnit("custom:widgets"))
	assert.False(t, ValidUnit("custom:"))
	assert.False(t, ValidUnit("furlongs"))
	assert.False(t, ValidUnit(""))
}

func TestCombineUnits(t *testing.T) {
	u, err := CombineUnits("add", "kg", "kg")
	require.NoError(t, err)
	assert.Equal(t, "kg", u)

	_, err = CombineUnits("subtract", "kg", "m")
	assert.Error(t, err)

	u, err = CombineUnits("multiply", "kg", "m")
	require.NoError(t, err)
	assert.Equal(t, "kg*m", u)

	u, err = CombineUnits("divide", "m", "s")
	require.NoError(t, err)
	assert.Equal(t, "m/s", u)

	_, err = CombineUnits("modulo", "m", "s")
	assert.Error(t, err)
}

func TestRealityCheck_Clean(t *testing.T) {
	res := RealityCheck([]string{"the probe accelerates at 9.8 m/s² carrying 120 kg"})
	assert.False(t, res.BlockPromotion)
	assert.Empty(t, res.Violations)
}

func TestRealityCheck_UnknownUnit(t *testing.T) {
	res := RealityCheck([]string{"the field measures 40 furlongs"})
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "unknown_unit", res.Violations[0].Kind)
	assert.True(t, res.BlockPromotion)
}

func TestRealityCheck_CustomUnitAllowed(t *testing.T) {
	res := RealityCheck([]string{"throughput reached 500 custom:widgets"})
	assert.False(t, res.BlockPromotion)
}

func TestRealityCheck_DimensionalMismatch(t *testing.T) {
	res := RealityCheck([]string{"total load is 5 kg + 3 m"})
	require.NotEmpty(t, res.Violations)
	found := false
	for _, v := range res.Violations {
		if v.Kind == "dimensional_mismatch" {
			found = true
		}
	}
	assert.True(t, found)
	assert.True(t, res.BlockPromotion)
}

func TestRealityCheck_MatchedUnitsAddFine(t *testing.T) {
	res := RealityCheck([]string{"total load is 5 kg + 3 kg"})
	assert.False(t, res.BlockPromotion)
}

func TestRealityCheck_ContradictoryBounds(t *testing.T) {
	res := RealityCheck([]string{
		"we know latency > 200",
		"and also latency < 100",
	})
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "contradictory_bounds", res.Violations[0].Kind)
	assert.True(t, res.BlockPromotion)
}

func TestRealityCheck_ConsistentBounds(t *testing.T) {
	res := RealityCheck([]string{"latency > 100", "latency < 200"})
	assert.False(t, res.BlockPromotion)
}
