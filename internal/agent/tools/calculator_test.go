package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/pkg/errors"
)

func TestEvaluate(t *testing.T) {
	cases := map[string]float64{
		"12*(3+4)":        84,
		"1 + 2 * 3":       7,
		"(1 + 2) * 3":     9,
		"2^3^2":           512,
		"2**3":            8,
		"-2^2":            -4,
		"(-2)^2":          4,
		"10 / 4":          2.5,
		"7 - 2 - 1":       4,
		"--3":             3,
		"2^-1":            0.5,
		"1.5e3 + .5":      1500.5,
		" 42 ":            42,
		"((((1))))":       1,
		"3 * -(2 + 1)":    -9,
		"6.02214076e23/1": 6.02214076e23,
	}
	for expr, want := range cases {
		got, err := Evaluate(expr)
		require.NoError(t, err, expr)
		assert.InDelta(t, want, got, 1e-9*(1+abs(want)), expr)
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	for _, expr := range []string{"1/0", "5 / (2 - 2)", "0^-1"} {
		_, err := Evaluate(expr)
		assert.Equal(t, errors.CodeDivisionByZero, errors.CodeOf(err), expr)
	}
}

func TestEvaluate_RejectsNonArithmetic(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"2 +",
		"(1 + 2",
		"1 + 2)",
		"abs(-1)",
		"__import__('os').system('ls')",
		"x + 1",
		"1; 2",
		"1 2",
		"1..2",
		"2e",
		"1 % 2",
		"pi",
	}
	for _, in := range inputs {
		_, err := Evaluate(in)
		assert.Equal(t, errors.CodeMalformedExpression, errors.CodeOf(err), "input %q", in)
		assert.False(t, errors.IsRetryable(err))
	}
}

func TestEvaluate_Limits(t *testing.T) {
	deep := ""
	for i := 0; i < maxNestingDepth+1; i++ {
		deep += "("
	}
	deep += "1"
	for i := 0; i < maxNestingDepth+1; i++ {
		deep += ")"
	}
	_, err := Evaluate(deep)
	assert.Equal(t, errors.CodeMalformedExpression, errors.CodeOf(err))

	_, err = Evaluate("10^400")
	assert.Equal(t, errors.CodeMalformedExpression, errors.CodeOf(err))
}

func TestCalculator_ViaRegistry(t *testing.T) {
	r := NewBuiltinRegistry()
	res, err := r.Invoke(context.Background(), Invocation{
		ToolName:  CalculatorName,
		Arguments: map[string]any{"expression": "12*(3+4)"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	v := res.Value.(map[string]any)
	assert.Equal(t, 84.0, v["result"])
	assert.Equal(t, "84", v["formatted"])
	assert.Equal(t, []string{
		"Start with the expression: 12*(3+4)",
		"Take the first factor: 12",
		"Multiply by 7",
		"Result: 84",
	}, v["steps"])

	res, err = r.Invoke(context.Background(), Invocation{
		ToolName:  CalculatorName,
		Arguments: map[string]any{"expression": "1/0"},
	})
	assert.Equal(t, errors.CodeDivisionByZero, errors.CodeOf(err))
	assert.False(t, res.Success)
	assert.Equal(t, errors.CodeDivisionByZero, res.Code)
}

func TestEvaluateSteps(t *testing.T) {
	cases := map[string][]string{
		"42":        {"Start with the expression: 42", "Result: 42"},
		"1 + 2 - 3": {"Start with the expression: 1 + 2 - 3", "Take the first term: 1", "+ 2", "- 3", "Result: 0"},
		"2*3 + 4*5": {"Start with the expression: 2*3 + 4*5", "Take the first term: 6", "+ 20", "Result: 26"},
		"(1+2)*3":   {"Start with the expression: (1+2)*3", "Take the first factor: 3", "Multiply by 3", "Result: 9"},
		"10 / 4":    {"Start with the expression: 10 / 4", "Take the first factor: 10", "Divide by 4", "Result: 2.5"},
		"2^3^2":     {"Start with the expression: 2^3^2", "Take the base: 2", "Raise to the power of 9", "Result: 512"},
		" (7 - 2) ": {"Start with the expression: (7 - 2)", "Result: 5"},
	}
	for expr, want := range cases {
		_, steps, err := EvaluateSteps(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, want, steps, expr)
	}

	_, steps, err := EvaluateSteps("1/0")
	assert.Equal(t, errors.CodeDivisionByZero, errors.CodeOf(err))
	assert.Nil(t, steps)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0.3", FormatNumber(0.1+0.2))
	assert.Equal(t, "299792458", FormatNumber(299792458))
	assert.Equal(t, "6.6743e-11", FormatNumber(6.67430e-11))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
