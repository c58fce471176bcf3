package rule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ExpressionError 规则表达式无法求值（语法错误、未知名称、运行时错误）
type ExpressionError struct {
	Expression string
	Reason     string
}

func (e *ExpressionError) Error() string {
	return e.Reason
}

// Program 已编译的规则表达式，可重复求值
type Program struct {
	source string
	root   node
}

// Compile 解析表达式
func Compile(expression string) (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog, err = nil, &ExpressionError{Expression: expression, Reason: fmt.Sprint(r)}
		}
	}()
	root, perr := parse(expression)
	if perr != nil {
		return nil, &ExpressionError{Expression: expression, Reason: perr.Error()}
	}
	return &Program{source: expression, root: root}, nil
}

// Source 原始表达式
func (p *Program) Source() string {
	return p.source
}

// Eval 在给定命名空间上求值，返回布尔结果
func (p *Program) Eval(namespace map[string]any) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = false, &ExpressionError{Expression: p.source, Reason: fmt.Sprint(r)}
		}
	}()
	ev := &evaluator{namespace: namespace}
	v, eerr := ev.eval(p.root)
	if eerr != nil {
		return false, &ExpressionError{Expression: p.source, Reason: eerr.Error()}
	}
	return truthy(v), nil
}

// Evaluate 解析并求值单个表达式
func Evaluate(expression string, namespace map[string]any) (bool, error) {
	prog, err := Compile(expression)
	if err != nil {
		return false, err
	}
	return prog.Eval(namespace)
}

type evaluator struct {
	namespace map[string]any
}

func (e *evaluator) eval(n node) (any, error) {
	switch n := n.(type) {
	case *numberLit:
		return n.value, nil
	case *stringLit:
		return n.value, nil
	case *boolLit:
		return n.value, nil
	case *nameRef:
		return e.lookup(n.name)
	case *notOp:
		x, err := e.eval(n.x)
		if err != nil {
			return nil, err
		}
		return !truthy(x), nil
	case *logicalOp:
		l, err := e.eval(n.l)
		if err != nil {
			return nil, err
		}
		if n.op == "and" && !truthy(l) {
			return l, nil
		}
		if n.op == "or" && truthy(l) {
			return l, nil
		}
		return e.eval(n.r)
	case *unaryOp:
		x, err := e.eval(n.x)
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(x)
		if !ok {
			return nil, fmt.Errorf("bad operand type for unary %s: '%s'", n.op, typeName(x))
		}
		if n.op == "-" {
			return -f, nil
		}
		return f, nil
	case *binaryOp:
		l, err := e.eval(n.l)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(n.r)
		if err != nil {
			return nil, err
		}
		return arithmetic(n.op, l, r)
	case *compareChain:
		left, err := e.eval(n.operands[0])
		if err != nil {
			return nil, err
		}
		for i, op := range n.ops {
			right, err := e.eval(n.operands[i+1])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	case *callExpr:
		return e.call(n)
	}
	return nil, fmt.Errorf("unsupported expression node %T", n)
}

func (e *evaluator) lookup(name string) (any, error) {
	if v, ok := e.namespace[name]; ok {
		return normalize(name, v)
	}
	if name == "pi" {
		return math.Pi, nil
	}
	if _, ok := functions[name]; ok {
		return nil, fmt.Errorf("function '%s' cannot be used as a value", name)
	}
	return nil, fmt.Errorf("name '%s' is not defined", name)
}

func (e *evaluator) call(c *callExpr) (any, error) {
	if v, ok := e.namespace[c.fn]; ok {
		return nil, fmt.Errorf("'%s' object is not callable", typeName(v))
	}
	fn, ok := functions[c.fn]
	if !ok {
		return nil, fmt.Errorf("name '%s' is not defined", c.fn)
	}
	args := make([]any, 0, len(c.args))
	for _, a := range c.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := fn(args)
	if err != nil {
		return nil, err
	}
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, fmt.Errorf("%s() result out of range", c.fn)
	}
	return out, nil
}

// normalize 命名空间取值统一为 float64 / bool / string
func normalize(name string, v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool, string:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter '%s' is not a valid number", name)
		}
		return f, nil
	case nil:
		return nil, fmt.Errorf("parameter '%s' has no value", name)
	}
	return nil, fmt.Errorf("parameter '%s' has unsupported type %T", name, v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return v != nil
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case float64:
		return "float"
	case bool:
		return "bool"
	case string:
		return "str"
	case nil:
		return "NoneType"
	}
	return fmt.Sprintf("%T", v)
}

func arithmetic(op string, l, r any) (any, error) {
	if op == "+" {
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
	}
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	if !aok || !bok {
		return nil, fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(l), typeName(r))
	}
	var out float64
	switch op {
	case "+":
		out = a + b
	case "-":
		out = a - b
	case "*":
		out = a * b
	case "/":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		out = a / b
	case "//":
		if b == 0 {
			return nil, fmt.Errorf("integer division or modulo by zero")
		}
		out = math.Floor(a / b)
	case "%":
		if b == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		out = math.Mod(a, b)
		if out != 0 && (out < 0) != (b < 0) {
			out += b
		}
	case "**":
		if a == 0 && b < 0 {
			return nil, fmt.Errorf("zero cannot be raised to a negative power")
		}
		if a < 0 && b != math.Trunc(b) {
			return nil, fmt.Errorf("negative number cannot be raised to a fractional power")
		}
		out = math.Pow(a, b)
	default:
		return nil, fmt.Errorf("unsupported operator %s", op)
	}
	if math.IsInf(out, 0) || math.IsNaN(out) {
		return nil, fmt.Errorf("numerical result out of range")
	}
	return out, nil
}

func compare(op string, l, r any) (bool, error) {
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	if aok && bok {
		switch op {
		case "<":
			return a < b, nil
		case "<=":
			return a <= b, nil
		case ">":
			return a > b, nil
		case ">=":
			return a >= b, nil
		case "==":
			return a == b, nil
		case "!=":
			return a != b, nil
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		}
	}
	switch op {
	case "==":
		return false, nil
	case "!=":
		return true, nil
	}
	return false, fmt.Errorf("'%s' not supported between instances of '%s' and '%s'", op, typeName(l), typeName(r))
}
