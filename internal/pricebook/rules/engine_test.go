package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	facts := Facts{
		ProductID:       "42",
		Quantity:        120,
		Quantities:      map[string]float64{"seats": 120},
		DiscountPercent: 15,
	}

	matched, err := engine.Match(`quantities["seats"] > 100.0 && discount_percent >= 10.0`, facts)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = engine.Match(`product_id == "7"`, facts)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = engine.Match("", facts)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestCompileRejectsBadConditions(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	assert.ErrorIs(t, engine.Compile("quantity +"), ErrInvalidCondition)
	assert.ErrorIs(t, engine.Compile("quantity * 2.0"), ErrInvalidCondition)
	assert.ErrorIs(t, engine.Compile("unknown_var > 1.0"), ErrInvalidCondition)
	assert.NoError(t, engine.Compile("quantity > 10.0"))
}

func TestMissingMapKeyIsEvaluationError(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	_, err = engine.Match(`quantities["storage"] > 1.0`, Facts{})
	assert.ErrorIs(t, err, ErrEvaluation)
}
