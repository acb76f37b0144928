// Package rules compiles and evaluates price book rule conditions written
// in CEL.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	ErrInvalidCondition = errors.New("invalid_condition")
	ErrEvaluation       = errors.New("condition_evaluation")
)

// Facts are the variables a condition can read for one quote line.
type Facts struct {
	ProductID       string
	TierID          string
	Quantity        float64
	Quantities      map[string]float64
	ListPrice       float64
	Subtotal        float64
	DiscountPercent float64
	QuoteTotal      float64
}

func (f Facts) activation() map[string]any {
	quantities := f.Quantities
	if quantities == nil {
		quantities = map[string]float64{}
	}
	return map[string]any{
		"product_id":       f.ProductID,
		"tier_id":          f.TierID,
		"quantity":         f.Quantity,
		"quantities":       quantities,
		"list_price":       f.ListPrice,
		"subtotal":         f.Subtotal,
		"discount_percent": f.DiscountPercent,
		"quote_total":      f.QuoteTotal,
	}
}

// Engine caches compiled programs by expression text.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("product_id", cel.StringType),
		cel.Variable("tier_id", cel.StringType),
		cel.Variable("quantity", cel.DoubleType),
		cel.Variable("quantities", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("list_price", cel.DoubleType),
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("discount_percent", cel.DoubleType),
		cel.Variable("quote_total", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &Engine{env: env, cache: make(map[string]cel.Program)}, nil
}

// Compile checks that expr is a boolean condition. An empty condition
// always matches.
func (e *Engine) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Engine) Match(expr string, facts Facts) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(facts.activation())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is not bool", ErrEvaluation)
	}
	return matched, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = "true"
	}

	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: condition must be boolean", ErrInvalidCondition)
	}
	prg, err := e.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	e.cache[expr] = prg
	return prg, nil
}
