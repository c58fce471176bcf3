package rule

import (
	"fmt"
	"math"
)

type builtin func(args []any) (any, error)

// functions 表达式中唯一可调用的函数白名单
var functions = map[string]builtin{
	"min":   fnMin,
	"max":   fnMax,
	"abs":   fnAbs,
	"round": fnRound,
	"sqrt":  fnSqrt,
}

// Functions 白名单函数名
func Functions() []string {
	return []string{"abs", "max", "min", "round", "sqrt"}
}

func numbers(name string, args []any) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, ok := toNumber(a)
		if !ok {
			return nil, fmt.Errorf("%s() argument must be a number, not '%s'", name, typeName(a))
		}
		out[i] = f
	}
	return out, nil
}

func fnMin(args []any) (any, error) {
	return pick("min", args, func(a, b float64) bool { return a < b })
}

func fnMax(args []any) (any, error) {
	return pick("max", args, func(a, b float64) bool { return a > b })
}

// pick 返回被选中的原始参数（与 Python 一致，bool 保持 bool）
func pick(name string, args []any, better func(a, b float64) bool) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s() expected at least 2 arguments, got %d", name, len(args))
	}
	nums, err := numbers(name, args)
	if err != nil {
		return nil, err
	}
	best := 0
	for i := 1; i < len(nums); i++ {
		if better(nums[i], nums[best]) {
			best = i
		}
	}
	return args[best], nil
}

func fnAbs(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs() takes exactly one argument (%d given)", len(args))
	}
	nums, err := numbers("abs", args)
	if err != nil {
		return nil, err
	}
	return math.Abs(nums[0]), nil
}

// fnRound 银行家舍入，与 Python round 一致
func fnRound(args []any) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("round() takes 1 or 2 arguments (%d given)", len(args))
	}
	nums, err := numbers("round", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 1 {
		return math.RoundToEven(nums[0]), nil
	}
	digits := nums[1]
	if digits != math.Trunc(digits) {
		return nil, fmt.Errorf("round() ndigits must be an integer")
	}
	x := nums[0]
	// 位数过大时原值返回，过小时得到带符号的 0
	if digits >= 0 {
		scale := math.Pow(10, digits)
		y := x * scale
		if math.IsInf(scale, 0) || math.IsInf(y, 0) {
			return x, nil
		}
		return math.RoundToEven(y) / scale, nil
	}
	scale := math.Pow(10, -digits)
	if math.IsInf(scale, 0) {
		return 0.0 * x, nil
	}
	return math.RoundToEven(x/scale) * scale, nil
}

func fnSqrt(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sqrt() takes exactly one argument (%d given)", len(args))
	}
	nums, err := numbers("sqrt", args)
	if err != nil {
		return nil, err
	}
	if nums[0] < 0 {
		return nil, fmt.Errorf("math domain error")
	}
	return math.Sqrt(nums[0]), nil
}
