// Package evaluator computes the rows of a pricing structure.
//
// Rows are resolved in declaration order. A row without a formula takes
// its value from the selection quantities, then from the price context,
// then defaults to zero. A formula may only reference rows declared before
// it, which makes declaration order a valid evaluation order.
package evaluator

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/casbin/govaluate"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/internal/cache"
	"github.com/smallbiznis/pricedesk/internal/pricing/domain"
)

var rowKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parsed memoizes formula text to its compiled form. Compiled formulas
// hold no evaluation state and are shared across calls.
var parsed = cache.NewLRU[string, *formula](2048, 0)

type formula struct {
	vars []string
	root node
}

// Input is everything a structure can read besides its own rows.
type Input struct {
	Quantities map[string]decimal.Decimal
	ListPrice  decimal.Decimal
	AddonTotal decimal.Decimal
	AddonUnits decimal.Decimal
}

func (in Input) context(key string) (decimal.Decimal, bool) {
	switch key {
	case domain.ContextListPrice:
		return in.ListPrice, true
	case domain.ContextAddonTotal:
		return in.AddonTotal, true
	case domain.ContextAddonUnits:
		return in.AddonUnits, true
	default:
		return decimal.Zero, false
	}
}

// functions take and return decimal.Decimal. They are only ever called
// from the decimal tree in expr.go.
var functions = map[string]govaluate.ExpressionFunction{
	"min": func(args ...any) (any, error) {
		return reduce(args, decimal.Min)
	},
	"max": func(args ...any) (any, error) {
		return reduce(args, decimal.Max)
	},
	"ceil": func(args ...any) (any, error) {
		return unary(args, decimal.Decimal.Ceil)
	},
	"floor": func(args ...any) (any, error) {
		return unary(args, decimal.Decimal.Floor)
	},
	"round": func(args ...any) (any, error) {
		return unary(args, func(d decimal.Decimal) decimal.Decimal { return d.Round(0) })
	},
}

// Validate checks row keys and formulas without evaluating anything. Every
// formula variable must name a row declared earlier.
func Validate(rows []domain.Row) error {
	_, err := compile(rows)
	return err
}

// Evaluate resolves every row and returns the values in declaration order.
func Evaluate(rows []domain.Row, in Input) ([]domain.RowValue, error) {
	compiled, err := compile(rows)
	if err != nil {
		return nil, err
	}

	params := make(map[string]decimal.Decimal, len(rows))
	out := make([]domain.RowValue, 0, len(rows))

	for i, row := range rows {
		var value decimal.Decimal
		if f := compiled[i]; f != nil {
			value, err = evaluate(row.Key, f, params)
			if err != nil {
				return nil, err
			}
		} else {
			value = resolve(row, in)
		}

		params[row.Key] = value
		out = append(out, domain.RowValue{
			Key:         row.Key,
			DisplayName: row.DisplayName,
			Value:       value,
			Tags:        tags(row),
		})
	}
	return out, nil
}

// Result picks the row that prices the line: the last output row, or the
// last row when none is flagged.
func Result(values []domain.RowValue) decimal.Decimal {
	for i := len(values) - 1; i >= 0; i-- {
		for _, tag := range values[i].Tags {
			if tag == domain.TagOutput {
				return values[i].Value
			}
		}
	}
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[len(values)-1].Value
}

func compile(rows []domain.Row) ([]*formula, error) {
	if len(rows) == 0 {
		return nil, domain.ErrEmptyStructure
	}

	declared := make(map[string]int, len(rows))
	for i, row := range rows {
		if !rowKeyPattern.MatchString(row.Key) {
			return nil, fmt.Errorf("%w: row %d", domain.ErrInvalidRowKey, i)
		}
		if _, dup := declared[row.Key]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRowKey, row.Key)
		}
		declared[row.Key] = i
	}

	compiled := make([]*formula, len(rows))
	for i, row := range rows {
		if !row.HasFormula() {
			continue
		}
		f, err := parse(*row.Formula)
		if errors.Is(err, errNotNumeric) {
			return nil, fmt.Errorf("%w: %s is not numeric: %v", domain.ErrFormulaEvaluation, row.Key, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrFormulaSyntax, row.Key, err)
		}
		for _, name := range f.vars {
			at, ok := declared[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s references undeclared %q", domain.ErrFormulaReference, row.Key, name)
			}
			if at >= i {
				return nil, fmt.Errorf("%w: %s references %q declared later", domain.ErrFormulaReference, row.Key, name)
			}
		}
		compiled[i] = f
	}
	return compiled, nil
}

func parse(text string) (*formula, error) {
	if f, ok := parsed.Get(text); ok {
		return f, nil
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(text, functions)
	if err != nil {
		return nil, err
	}
	root, err := build(expr.Tokens())
	if err != nil {
		return nil, err
	}
	f := &formula{vars: expr.Vars(), root: root}
	parsed.Set(text, f)
	return f, nil
}

func resolve(row domain.Row, in Input) decimal.Decimal {
	if row.Metric != nil && *row.Metric != "" {
		if v, ok := in.Quantities[*row.Metric]; ok {
			return v
		}
	}
	if v, ok := in.Quantities[row.Key]; ok {
		return v
	}
	if v, ok := in.context(row.Key); ok {
		return v
	}
	return decimal.Zero
}

func evaluate(key string, f *formula, params map[string]decimal.Decimal) (decimal.Decimal, error) {
	value, err := f.root.eval(params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrFormulaEvaluation, key, err)
	}
	return value, nil
}

func tags(row domain.Row) []string {
	var out []string
	if row.IsInputColumn {
		out = append(out, domain.TagInput)
	}
	if row.IsOutputColumn {
		out = append(out, domain.TagOutput)
	}
	if row.IsMetricColumn {
		out = append(out, domain.TagMetric)
	}
	return out
}

var errArgs = errors.New("expects numeric arguments")

func decimals(args []any) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(args))
	for _, arg := range args {
		d, ok := arg.(decimal.Decimal)
		if !ok {
			return nil, errArgs
		}
		out = append(out, d)
	}
	return out, nil
}

func reduce(args []any, fn func(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal) (any, error) {
	ds, err := decimals(args)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, errArgs
	}
	return fn(ds[0], ds[1:]...), nil
}

func unary(args []any, fn func(decimal.Decimal) decimal.Decimal) (any, error) {
	ds, err := decimals(args)
	if err != nil {
		return nil, err
	}
	if len(ds) != 1 {
		return nil, errArgs
	}
	return fn(ds[0]), nil
}
