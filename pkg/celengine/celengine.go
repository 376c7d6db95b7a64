package celengine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Variables an eligibility expression may reference.
const (
	VarBalance         = "balance"
	VarCompletedOrders = "completed_orders"
	VarTier            = "tier"
	VarPrice           = "price"
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error

	programs = sync.Map{}

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "celengine_program_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "celengine_program_cache_miss_total"})
)

// Env returns the shared environment for eligibility expressions, e.g.
// `balance >= 100.0 && completed_orders < 20 && tier != "bronze"`.
func Env() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable(VarBalance, cel.DoubleType),
			cel.Variable(VarCompletedOrders, cel.IntType),
			cel.Variable(VarTier, cel.StringType),
			cel.Variable(VarPrice, cel.DoubleType),
		)
	})
	return env, envErr
}

// ValidateExpression compiles expr and checks that it yields a bool.
func ValidateExpression(expr string) error {
	_, err := program(expr)
	return err
}

// Evaluate runs expr against attrs. Compiled programs are cached by expression.
func Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func program(expr string) (cel.Program, error) {
	if v, ok := programs.Load(expr); ok {
		cacheHits.Inc()
		return v.(cel.Program), nil
	}
	cacheMiss.Inc()

	e, err := Env()
	if err != nil {
		return nil, err
	}

	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := e.Program(ast)
	if err != nil {
		return nil, err
	}

	programs.Store(expr, prg)
	return prg, nil
}
