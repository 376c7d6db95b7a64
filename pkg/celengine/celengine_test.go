package celengine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestValidateExpression(t *testing.T) {
	require.NoError(t, ValidateExpression(`balance >= 100.0 && tier != "bronze"`))
	require.Error(t, ValidateExpression(`balance +`))
	require.Error(t, ValidateExpression(`unknown_var > 1`))
	require.Error(t, ValidateExpression(`balance * 2.0`))
}

func TestEvaluate(t *testing.T) {
	attrs := map[string]any{
		VarBalance:         150.0,
		VarCompletedOrders: int64(3),
		VarTier:            "silver",
		VarPrice:           30.0,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `balance >= 100.0`, want: true},
		{expr: `completed_orders < 3`, want: false},
		{expr: `tier in ["silver", "gold"] && price <= balance`, want: true},
		{expr: `true`, want: true},
	}

	for _, tt := range tests {
		got, err := Evaluate(tt.expr, attrs)
		require.NoError(t, err, tt.expr)
		require.Equal(t, tt.want, got, tt.expr)
	}

	_, err := Evaluate(`balance >`, attrs)
	require.Error(t, err)
}

func TestProgramCacheCounters(t *testing.T) {
	expr := `price < 12.5 && completed_orders >= 0`
	hits, miss := testutil.ToFloat64(cacheHits), testutil.ToFloat64(cacheMiss)

	require.NoError(t, ValidateExpression(expr))
	_, err := Evaluate(expr, map[string]any{VarPrice: 10.0, VarCompletedOrders: int64(1), VarBalance: 0.0, VarTier: ""})
	require.NoError(t, err)

	require.Equal(t, miss+1, testutil.ToFloat64(cacheMiss))
	require.Equal(t, hits+1, testutil.ToFloat64(cacheHits))
}
