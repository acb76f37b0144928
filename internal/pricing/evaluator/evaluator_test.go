package evaluator

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formulaPtr(s string) *string { return &s }

func TestFormulaOverEarlierRow(t *testing.T) {
	rows := []domain.Row{
		{Key: "base", IsInputColumn: true},
		{Key: "total", Formula: formulaPtr("base * 2"), IsOutputColumn: true},
	}

	values, err := Evaluate(rows, Input{Quantities: map[string]decimal.Decimal{"base": decimal.NewFromInt(10)}})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.True(t, decimal.NewFromInt(20).Equal(values[1].Value))
	assert.Equal(t, []string{domain.TagOutput}, values[1].Tags)
	assert.True(t, decimal.NewFromInt(20).Equal(Result(values)))
}

func TestResolutionOrder(t *testing.T) {
	metric := "users"
	rows := []domain.Row{
		{Key: "seats", Metric: &metric, IsMetricColumn: true},
		{Key: "storage"},
		{Key: "list_price"},
		{Key: "addon_total"},
		{Key: "addon_units"},
		{Key: "unknown"},
		{Key: "total", Formula: formulaPtr("seats * list_price + addon_total"), IsOutputColumn: true},
	}
	in := Input{
		Quantities: map[string]decimal.Decimal{
			"users":   decimal.NewFromInt(3),
			"seats":   decimal.NewFromInt(99),
			"storage": decimal.NewFromInt(50),
		},
		ListPrice:  decimal.NewFromInt(100),
		AddonTotal: decimal.NewFromInt(25),
		AddonUnits: decimal.NewFromInt(5),
	}

	values, err := Evaluate(rows, in)
	require.NoError(t, err)

	got := map[string]string{}
	for _, v := range values {
		got[v.Key] = v.Value.String()
	}
	assert.Equal(t, "3", got["seats"])
	assert.Equal(t, "50", got["storage"])
	assert.Equal(t, "100", got["list_price"])
	assert.Equal(t, "25", got["addon_total"])
	assert.Equal(t, "5", got["addon_units"])
	assert.Equal(t, "0", got["unknown"])
	assert.Equal(t, "325", got["total"])
	assert.Equal(t, []string{domain.TagMetric}, values[0].Tags)
}

func TestFormulaReferenceErrors(t *testing.T) {
	later := []domain.Row{
		{Key: "total", Formula: formulaPtr("base * 2")},
		{Key: "base"},
	}
	_, err := Evaluate(later, Input{})
	assert.ErrorIs(t, err, domain.ErrFormulaReference)
	assert.ErrorIs(t, Validate(later), domain.ErrFormulaReference)

	undeclared := []domain.Row{
		{Key: "total", Formula: formulaPtr("missing + 1")},
	}
	assert.ErrorIs(t, Validate(undeclared), domain.ErrFormulaReference)

	self := []domain.Row{
		{Key: "total", Formula: formulaPtr("total + 1")},
	}
	assert.ErrorIs(t, Validate(self), domain.ErrFormulaReference)
}

func TestValidateRejectsBadRows(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), domain.ErrEmptyStructure)
	assert.ErrorIs(t, Validate([]domain.Row{{Key: "a b"}}), domain.ErrInvalidRowKey)
	assert.ErrorIs(t, Validate([]domain.Row{{Key: "a"}, {Key: "a"}}), domain.ErrDuplicateRowKey)
	assert.ErrorIs(t, Validate([]domain.Row{{Key: "a"}, {Key: "b", Formula: formulaPtr("a *")}}), domain.ErrFormulaSyntax)
}

func TestEvaluationErrors(t *testing.T) {
	divide := []domain.Row{
		{Key: "a"},
		{Key: "b", Formula: formulaPtr("10 / a")},
	}
	_, err := Evaluate(divide, Input{})
	assert.ErrorIs(t, err, domain.ErrFormulaEvaluation)

	boolean := []domain.Row{
		{Key: "a"},
		{Key: "b", Formula: formulaPtr("a > 1")},
	}
	_, err = Evaluate(boolean, Input{})
	assert.ErrorIs(t, err, domain.ErrFormulaEvaluation)
}

func TestFunctions(t *testing.T) {
	rows := []domain.Row{
		{Key: "seats"},
		{Key: "billable", Formula: formulaPtr("max(seats, 5)")},
		{Key: "blocks", Formula: formulaPtr("ceil(billable / 2)")},
	}
	values, err := Evaluate(rows, Input{Quantities: map[string]decimal.Decimal{"seats": decimal.NewFromInt(3)}})
	require.NoError(t, err)
	assert.Equal(t, "5", values[1].Value.String())
	assert.Equal(t, "3", values[2].Value.String())
}

func TestAddonUnitsDecoding(t *testing.T) {
	var flat domain.AddonSelection
	require.NoError(t, json.Unmarshal([]byte(`{"addon_id":"1","addon_units":5}`), &flat))
	assert.Equal(t, domain.Flat{Quantity: 5}, flat.Units.Value)

	var graduated domain.AddonSelection
	require.NoError(t, json.Unmarshal([]byte(`{"addon_id":"1","addon_units":{"0-10":1,"11+":2}}`), &graduated))
	g, ok := graduated.Units.Value.(domain.Graduated)
	require.True(t, ok)
	require.Len(t, g.Bands, 2)
	assert.Equal(t, "1", g.Resolve(decimal.NewFromInt(10)).String())
	assert.Equal(t, "2", g.Resolve(decimal.NewFromInt(11)).String())
	assert.Equal(t, "2", g.Resolve(decimal.NewFromInt(500)).String())

	for _, raw := range []string{
		`"5"`, `5.5`, `-1`, `null`, `[1]`, `{}`,
		`{"0-10":1,"5+":2}`, `{"10-0":1}`, `{"a-b":1}`, `{"0-10":"1"}`, `{"0-10":1,"11+":2,"20+":3}`,
	} {
		var sel domain.AddonSelection
		err := json.Unmarshal([]byte(`{"addon_id":"1","addon_units":`+raw+`}`), &sel)
		assert.ErrorIs(t, err, domain.ErrInvalidAddonUnits, raw)
	}
}

func TestAddonUnitsRoundTripShape(t *testing.T) {
	var sel domain.AddonSelection
	require.NoError(t, json.Unmarshal([]byte(`{"addon_id":"1","addon_units":{"0-10":1,"11+":2}}`), &sel))
	out, err := json.Marshal(sel)
	require.NoError(t, err)
	assert.JSONEq(t, `{"addon_id":"1","addon_units":{"0-10":1,"11+":2}}`, string(out))
}

func TestSharedFormulaTextStillCheckedPerStructure(t *testing.T) {
	valid := []domain.Row{
		{Key: "seats", IsInputColumn: true},
		{Key: "total", Formula: formulaPtr("seats * 10")},
	}
	require.NoError(t, Validate(valid))

	invalid := []domain.Row{
		{Key: "total", Formula: formulaPtr("seats * 10")},
	}
	assert.ErrorIs(t, Validate(invalid), domain.ErrFormulaReference)
}

func TestFormulaArithmeticIsExact(t *testing.T) {
	rows := []domain.Row{
		{Key: "a"},
		{Key: "b"},
		{Key: "sum", Formula: formulaPtr("a + b")},
	}
	in := Input{Quantities: map[string]decimal.Decimal{
		"a": decimal.RequireFromString("0.1"),
		"b": decimal.RequireFromString("0.2"),
	}}

	values, err := Evaluate(rows, in)
	require.NoError(t, err)
	assert.Equal(t, "0.3", values[2].Value.String())

	large := []domain.Row{
		{Key: "a"},
		{Key: "total", Formula: formulaPtr("a + 0")},
	}
	values, err = Evaluate(large, Input{Quantities: map[string]decimal.Decimal{
		"a": decimal.RequireFromString("12345678901234567.01"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567.01", values[1].Value.String())
}

func TestFormulaOperators(t *testing.T) {
	rows := []domain.Row{
		{Key: "a"},
		{Key: "precedence", Formula: formulaPtr("1 + a * 2 - 4 / 2")},
		{Key: "grouped", Formula: formulaPtr("(1 + a) * 2")},
		{Key: "negated", Formula: formulaPtr("-a + 10")},
		{Key: "power", Formula: formulaPtr("a ** 2")},
		{Key: "modulo", Formula: formulaPtr("a % 2")},
		{Key: "rounded", Formula: formulaPtr("round(a / 2)")},
		{Key: "lowest", Formula: formulaPtr("min(a, 1.5, 4)")},
	}

	values, err := Evaluate(rows, Input{Quantities: map[string]decimal.Decimal{"a": decimal.NewFromInt(3)}})
	require.NoError(t, err)

	got := map[string]string{}
	for _, v := range values {
		got[v.Key] = v.Value.String()
	}
	assert.Equal(t, "5", got["precedence"])
	assert.Equal(t, "8", got["grouped"])
	assert.Equal(t, "7", got["negated"])
	assert.Equal(t, "9", got["power"])
	assert.Equal(t, "1", got["modulo"])
	assert.Equal(t, "2", got["rounded"])
	assert.Equal(t, "1.5", got["lowest"])
}

func TestFormulaRejectsNonAmounts(t *testing.T) {
	for _, text := range []string{"a == 1", "a > 1 && a < 5", "'text'", "a | 1"} {
		rows := []domain.Row{{Key: "a"}, {Key: "b", Formula: formulaPtr(text)}}
		assert.ErrorIs(t, Validate(rows), domain.ErrFormulaEvaluation, text)
	}

	fractional := []domain.Row{{Key: "a"}, {Key: "b", Formula: formulaPtr("a ** 0.5")}}
	_, err := Evaluate(fractional, Input{Quantities: map[string]decimal.Decimal{"a": decimal.NewFromInt(4)}})
	assert.ErrorIs(t, err, domain.ErrFormulaEvaluation)
}
