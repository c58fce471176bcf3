package rule

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plate = map[string]any{
	"largo":                300.0,
	"ancho":                200.0,
	"espesor":              12.0,
	"diametro_perforacion": 18.0,
	"margen_perforacion":   30.0,
	"tiene_ranuras":        false,
	"largo_ranura":         40.0,
	"material":             "ASTM_A36",
}

func TestEvaluateCatalogExpressions(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"espesor >= 4.0", true},
		{"max(largo, ancho) / min(largo, ancho) <= 10.0", true},
		{"margen_perforacion >= diametro_perforacion * 1.5", true},
		{"largo >= 2 * margen_perforacion + diametro_perforacion", true},
		{"not tiene_ranuras or largo_ranura <= largo * 0.6", true},
		{"material == 'ASTM_A36'", true},
		{`material != "ASTM_A572"`, true},
		{"0 < espesor <= 12", true},
		{"0 < espesor < 12", false},
		{"abs(-3) == 3", true},
		{"round(2.5) == 2 and round(3.5) == 4", true},
		{"round(3.14159, 2) == 3.14", true},
		{"sqrt(16) == 4", true},
		{"pi > 3.14 and pi < 3.15", true},
		{"-2 ** 2 == -4", true},
		{"2 ** 3 ** 2 == 512", true},
		{"7 // 2 == 3 and -7 // 2 == -4", true},
		{"-7 % 3 == 2", true},
		{"True and not False", true},
		{"tiene_ranuras", false},
		{"largo - ancho", true},
		{"1e3 == 1000", true},
		{".5 + .5 == 1", true},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr, plate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateFaultsBecomeExpressionErrors(t *testing.T) {
	cases := map[string]string{
		"undefined_variable > 0":  "name 'undefined_variable' is not defined",
		"largo / 0 > 1":           "division by zero",
		"largo % 0 > 1":           "modulo by zero",
		"sqrt(-1) > 0":            "math domain error",
		"material < 3":            "'<' not supported between instances of 'str' and 'float'",
		"material * 2":            "unsupported operand type(s) for *: 'str' and 'float'",
		"open('x')":               "name 'open' is not defined",
		"largo.real > 0":          "invalid syntax: unexpected character",
		"espesor >= ":             "invalid syntax: unexpected end of expression",
		"(espesor > 1":            "invalid syntax: expected ')'",
		"max(largo)":              "max() expected at least 2 arguments, got 1",
		"largo(1)":                "'float' object is not callable",
		"__import__('os')":        "name '__import__' is not defined",
		"espesor = 4":             "invalid syntax",
		"'unterminated":           "invalid syntax: unterminated string",
		"":                        "invalid syntax: empty expression",
		"min > 0":                 "function 'min' cannot be used as a value",
		"10 ** 400 > 0":           "numerical result out of range",
	}
	for expr, reason := range cases {
		t.Run(expr, func(t *testing.T) {
			ok, err := Evaluate(expr, plate)
			require.Error(t, err)
			assert.False(t, ok)

			var exprErr *ExpressionError
			require.True(t, errors.As(err, &exprErr))
			assert.Equal(t, expr, exprErr.Expression)
			assert.Contains(t, exprErr.Reason, reason)
		})
	}
}

func TestRoundExtremeDigits(t *testing.T) {
	cases := []string{
		"round(largo, 400) == largo",
		"round(3.14159, 400) == 3.14159",
		"round(largo, -400) == 0",
		"round(-largo, -400) == 0",
		"round(1e308, 10) == 1e308",
		"round(1234.5, -2) == 1200",
	}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			ok, err := Evaluate(expr, plate)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestNonFiniteFunctionResultIsFault(t *testing.T) {
	ns := map[string]any{"x": math.Inf(1), "y": math.NaN()}
	for expr, reason := range map[string]string{
		"abs(x) > 0":    "abs() result out of range",
		"max(x, 1) > 0": "max() result out of range",
		"round(y) == 0": "round() result out of range",
	} {
		t.Run(expr, func(t *testing.T) {
			ok, err := Evaluate(expr, ns)
			assert.False(t, ok)
			var exprErr *ExpressionError
			require.ErrorAs(t, err, &exprErr)
			assert.Contains(t, exprErr.Reason, reason)
		})
	}
}

func TestAttributeAccessIsRejected(t *testing.T) {
	_, err := Evaluate("material.upper() == 'X'", plate)
	require.Error(t, err)
}

func TestShortCircuitSkipsFaultyOperand(t *testing.T) {
	ok, err := Evaluate("not tiene_ranuras or missing > 0", plate)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate("tiene_ranuras and missing > 0", plate)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaceShadowsConstant(t *testing.T) {
	ok, err := Evaluate("pi == 3", map[string]any{"pi": 3})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNamespaceNumericTypesAreNormalized(t *testing.T) {
	ns := map[string]any{"a": 3, "b": int64(4), "c": float32(0.5), "d": uint8(2)}
	ok, err := Evaluate("a + b == 7 and c * d == 1", ns)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnsupportedNamespaceValue(t *testing.T) {
	_, err := Evaluate("x > 0", map[string]any{"x": []int{1}})
	var exprErr *ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Contains(t, exprErr.Reason, "unsupported type")
}

func TestDeepNestingIsRejected(t *testing.T) {
	expr := ""
	for i := 0; i < 500; i++ {
		expr += "("
	}
	expr += "1"
	for i := 0; i < 500; i++ {
		expr += ")"
	}
	_, err := Evaluate(expr, nil)
	var exprErr *ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Contains(t, exprErr.Reason, "too deeply nested")
}

func TestCompiledProgramIsReusable(t *testing.T) {
	prog, err := Compile("espesor >= 4.0")
	require.NoError(t, err)
	assert.Equal(t, "espesor >= 4.0", prog.Source())

	ok, err := prog.Eval(map[string]any{"espesor": 2.0})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = prog.Eval(map[string]any{"espesor": 6.0})
	require.NoError(t, err)
	assert.True(t, ok)
}
