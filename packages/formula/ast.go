package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is the byte range in the source expression a node was parsed from
type Span struct {
	Start int
	End   int
}

// Extent returns the span itself so nodes embedding it satisfy ASTNode
func (s Span) Extent() Span { return s }

func join(left, right Span) Span {
	return Span{Start: left.Start, End: right.End}
}

// Env carries the bound variables and functions for one evaluation
type Env struct {
	Bindings  map[string]Argument
	Functions *BuiltInFunctions
}

// ASTNode is a parsed expression. the tree is walked for evaluation and
// rendered back to canonical text with String.
type ASTNode interface {
	fmt.Stringer
	Eval(env *Env) (Primitive, error)
	Extent() Span
}

type StringNode struct {
	Span
	Value string
}

func (n *StringNode) Eval(*Env) (Primitive, error) { return n.Value, nil }

func (n *StringNode) String() string {
	return `"` + strings.ReplaceAll(n.Value, `"`, `""`) + `"`
}

type NumberNode struct {
	Span
	Value int64
}

func (n *NumberNode) Eval(*Env) (Primitive, error) { return n.Value, nil }

func (n *NumberNode) String() string { return strconv.FormatInt(n.Value, 10) }

type BooleanNode struct {
	Span
	Value bool
}

func (n *BooleanNode) Eval(*Env) (Primitive, error) { return n.Value, nil }

func (n *BooleanNode) String() string { return strings.ToUpper(strconv.FormatBool(n.Value)) }

// CellRefNode reads one bound cell. a missing binding reads as empty.
type CellRefNode struct {
	Span
	Name string
}

func (n *CellRefNode) Eval(env *Env) (Primitive, error) {
	arg, ok := env.Bindings[n.Name]
	switch {
	case !ok:
		return nil, nil
	case arg.IsRange():
		return arg, nil
	}
	return fromValue(arg.Scalar), nil
}

func (n *CellRefNode) String() string { return n.Name }

// RangeNode reads a bound A1_B3 token. ranges are always bound by the
// caller, even malformed ones, so a missing binding is a reference error.
type RangeNode struct {
	Span
	Token string
}

func (n *RangeNode) Eval(env *Env) (Primitive, error) {
	if arg, ok := env.Bindings[n.Token]; ok {
		return arg, nil
	}
	return nil, NewSpreadsheetError(ErrorCodeRef, "range "+n.Token+" is not bound")
}

func (n *RangeNode) String() string { return n.Token }

// NameNode is an identifier that is neither a cell, a range nor a function
type NameNode struct {
	Span
	Name string
}

func (n *NameNode) Eval(*Env) (Primitive, error) {
	return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown name '%s'", n.Name))
}

func (n *NameNode) String() string { return n.Name }

type BinaryOpNode struct {
	Span
	Op          BinaryOp
	Left, Right ASTNode
}

// evalOperand evaluates a node down to a scalar, turning a failed evaluation
// into an error value so operators can propagate it
func evalOperand(node ASTNode, env *Env) Primitive {
	val, err := node.Eval(env)
	if err != nil {
		return asSpreadsheetError(err)
	}
	return scalarOf(val)
}

func asSpreadsheetError(err error) *SpreadsheetError {
	if se, ok := err.(*SpreadsheetError); ok {
		return se
	}
	return NewSpreadsheetError(ErrorCodeValue, err.Error())
}

var comparisons = map[BinaryOp]func(int) bool{
	BinOpEqual:        func(c int) bool { return c == 0 },
	BinOpNotEqual:     func(c int) bool { return c != 0 },
	BinOpLess:         func(c int) bool { return c < 0 },
	BinOpLessEqual:    func(c int) bool { return c <= 0 },
	BinOpGreater:      func(c int) bool { return c > 0 },
	BinOpGreaterEqual: func(c int) bool { return c >= 0 },
}

func (n *BinaryOpNode) Eval(env *Env) (Primitive, error) {
	left, right := evalOperand(n.Left, env), evalOperand(n.Right, env)
	for _, operand := range []Primitive{left, right} {
		if se := checkForError(operand); se != nil {
			return se, nil
		}
	}

	if n.Op == BinOpConcat {
		return toString(left) + toString(right), nil
	}
	if holds, ok := comparisons[n.Op]; ok {
		return holds(comparePrimitives(left, right)), nil
	}

	a, aok := toNumber(left)
	b, bok := toNumber(right)
	if !aok || !bok {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires numeric values", n.Op))
	}
	return arithmetic(n.Op, a, b)
}

func arithmetic(op BinaryOp, a, b int64) (Primitive, error) {
	if (op == BinOpDivide || op == BinOpModulo) && b == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "")
	}
	switch op {
	case BinOpAdd:
		return a + b, nil
	case BinOpSubtract:
		return a - b, nil
	case BinOpMultiply:
		return a * b, nil
	case BinOpDivide:
		return a / b, nil
	case BinOpModulo:
		return a % b, nil
	case BinOpPower:
		return intPow(a, b)
	}
	return nil, NewSpreadsheetError(ErrorCodeValue, "unknown operator")
}

// intPow raises base to a non-negative integer exponent by squaring
func intPow(base, exp int64) (Primitive, error) {
	if exp < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "negative exponent")
	}
	result := int64(1)
	for ; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
	}
	return result, nil
}

func (n *BinaryOpNode) String() string {
	return "(" + n.Left.String() + n.Op.Symbol() + n.Right.String() + ")"
}

var binarySymbols = [...]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpModulo:       "%",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

var binaryNames = map[BinaryOp]string{
	BinOpAdd:      "Addition",
	BinOpSubtract: "Subtraction",
	BinOpMultiply: "Multiplication",
	BinOpDivide:   "Division",
	BinOpModulo:   "Modulo",
	BinOpPower:    "Power",
}

// Symbol returns the operator as written in an expression
func (op BinaryOp) Symbol() string {
	if op < 0 || int(op) >= len(binarySymbols) {
		return "?"
	}
	return binarySymbols[op]
}

func (op BinaryOp) String() string {
	if name, ok := binaryNames[op]; ok {
		return name
	}
	return op.Symbol()
}

type UnaryOpNode struct {
	Span
	Op      UnaryOp
	Operand ASTNode
}

func (n *UnaryOpNode) Eval(env *Env) (Primitive, error) {
	val := evalOperand(n.Operand, env)
	if se := checkForError(val); se != nil {
		return se, nil
	}
	num, ok := toNumber(val)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unary operator requires a numeric value")
	}
	if n.Op == UnaryOpMinus {
		return -num, nil
	}
	return num, nil
}

func (n *UnaryOpNode) String() string {
	sign := "+"
	if n.Op == UnaryOpMinus {
		sign = "-"
	}
	return sign + n.Operand.String()
}

// FunctionCallNode calls a builtin. arguments are handed over unreduced:
// ranges stay ranges and failed arguments become error values, leaving each
// function to decide how to treat them.
type FunctionCallNode struct {
	Span
	Name string
	Args []ASTNode
}

func (n *FunctionCallNode) Eval(env *Env) (Primitive, error) {
	args := make([]Primitive, 0, len(n.Args))
	for _, node := range n.Args {
		val, err := node.Eval(env)
		if err != nil {
			val = asSpreadsheetError(err)
		}
		args = append(args, val)
	}

	result, err := env.Functions.Call(n.Name, args...)
	if err != nil {
		return nil, asSpreadsheetError(err)
	}
	return result, nil
}

func (n *FunctionCallNode) String() string {
	parts := make([]string, len(n.Args))
	for i, arg := range n.Args {
		parts[i] = arg.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}
