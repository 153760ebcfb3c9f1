package formula

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// builtinFunc is the signature every spreadsheet function implements
type builtinFunc func(args ...Primitive) (Primitive, error)

// BuiltInFunctions is the table of functions callable from an expression,
// keyed by upper case name
type BuiltInFunctions struct {
	table map[string]builtinFunc
}

// NewDefaultBuiltInFunctions creates the built-in function table
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	bf := &BuiltInFunctions{}
	bf.table = map[string]builtinFunc{
		"SUM":         bf.SUM,
		"AVERAGE":     bf.AVERAGE,
		"COUNT":       bf.COUNT,
		"COUNTA":      bf.COUNTA,
		"MAX":         bf.MAX,
		"MIN":         bf.MIN,
		"PRODUCT":     bf.PRODUCT,
		"IF":          bf.IF,
		"AND":         bf.AND,
		"OR":          bf.OR,
		"NOT":         bf.NOT,
		"CONCATENATE": bf.CONCATENATE,
		"LEN":         bf.LEN,
		"UPPER":       bf.UPPER,
		"LOWER":       bf.LOWER,
		"TRIM":        bf.TRIM,
		"ABS":         bf.ABS,
		"POWER":       bf.POWER,
		"MOD":         bf.MOD,
	}
	return bf
}

// Names lists the callable functions, sorted
func (bf *BuiltInFunctions) Names() []string {
	return slices.Sorted(maps.Keys(bf.table))
}

// Call invokes a function by name, case-insensitively
func (bf *BuiltInFunctions) Call(name string, args ...Primitive) (Primitive, error) {
	fn, ok := bf.table[strings.ToUpper(name)]
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
	return fn(args...)
}

// eachNumber calls fn with every numeric value in args. direct arguments are
// converted leniently, values inside ranges only count when they are
// integers. errors anywhere propagate.
func eachNumber(args []Primitive, fn func(int64)) error {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return err
		}

		if r, ok := arg.(Argument); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return err
				}
				if num, ok := value.(int64); ok {
					fn(num)
				}
			}
			continue
		}

		if arg == nil {
			continue
		}
		num, ok := toNumber(arg)
		if !ok {
			return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("'%s' is not a number", toString(arg)))
		}
		fn(num)
	}
	return nil
}

// scalarArgs reduces every argument to a single value and returns the first
// error among them
func scalarArgs(args []Primitive) ([]Primitive, error) {
	out := make([]Primitive, len(args))
	for i, arg := range args {
		out[i] = scalarOf(arg)
		if err := checkForError(out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (bf *BuiltInFunctions) SUM(args ...Primitive) (Primitive, error) {
	var sum int64
	if err := eachNumber(args, func(n int64) { sum += n }); err != nil {
		return nil, err
	}
	return sum, nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...Primitive) (Primitive, error) {
	var sum, count int64
	err := eachNumber(args, func(n int64) {
		sum += n
		count++
	})
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGE has no values")
	}

	return sum / count, nil
}

func (bf *BuiltInFunctions) COUNT(args ...Primitive) (Primitive, error) {
	var count int64

	for _, arg := range args {
		// direct args that are errors should propagate
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Argument); ok {
			for value := range r.IterateValues() {
				// COUNT skips errors inside ranges instead of propagating them
				if _, ok := value.(int64); ok {
					count++
				}
			}
		} else if _, ok := arg.(int64); ok {
			count++
		}
	}

	return count, nil
}

func (bf *BuiltInFunctions) COUNTA(args ...Primitive) (Primitive, error) {
	var count int64

	// COUNTA counts all non-empty values regardless of type, errors included
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Argument); ok {
			for value := range r.IterateValues() {
				if value != nil {
					count++
				}
			}
		} else if arg != nil {
			count++
		}
	}

	return count, nil
}

// fold combines every numeric value in args with fn, starting from the first
// one. with no numeric values at all the result is zero.
func fold(args []Primitive, fn func(acc, n int64) int64) (Primitive, error) {
	var (
		acc  int64
		seen bool
	)
	err := eachNumber(args, func(n int64) {
		if !seen {
			acc, seen = n, true
			return
		}
		acc = fn(acc, n)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (bf *BuiltInFunctions) MAX(args ...Primitive) (Primitive, error) {
	return fold(args, func(acc, n int64) int64 { return max(acc, n) })
}

func (bf *BuiltInFunctions) MIN(args ...Primitive) (Primitive, error) {
	return fold(args, func(acc, n int64) int64 { return min(acc, n) })
}

func (bf *BuiltInFunctions) PRODUCT(args ...Primitive) (Primitive, error) {
	return fold(args, func(acc, n int64) int64 { return acc * n })
}

func (bf *BuiltInFunctions) IF(args ...Primitive) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}

	condition := scalarOf(args[0])
	if err := checkForError(condition); err != nil {
		return nil, err
	}

	if isTruthy(condition) {
		return scalarOf(args[1]), nil
	}
	if len(args) == 3 {
		return scalarOf(args[2]), nil
	}
	return false, nil
}

func (bf *BuiltInFunctions) AND(args ...Primitive) (Primitive, error) {
	values, err := flatten(args)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...Primitive) (Primitive, error) {
	values, err := flatten(args)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if isTruthy(v) {
			return true, nil
		}
	}
	return false, nil
}

// flatten expands range arguments into their values, propagating the first
// error found
func flatten(args []Primitive) ([]Primitive, error) {
	var out []Primitive
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		r, ok := arg.(Argument)
		if !ok {
			out = append(out, arg)
			continue
		}
		for value := range r.IterateValues() {
			if err := checkForError(value); err != nil {
				return nil, err
			}
			out = append(out, value)
		}
	}
	return out, nil
}

func (bf *BuiltInFunctions) NOT(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	values, err := scalarArgs(args)
	if err != nil {
		return nil, err
	}
	return !isTruthy(values[0]), nil
}

func (bf *BuiltInFunctions) CONCATENATE(args ...Primitive) (Primitive, error) {
	values, err := flatten(args)
	if err != nil {
		return nil, err
	}
	var result strings.Builder
	for _, v := range values {
		result.WriteString(toString(v))
	}
	return result.String(), nil
}

// unaryString runs fn over the single string argument of a text function
func unaryString(name string, args []Primitive, fn func(string) Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 1 argument")
	}
	values, err := scalarArgs(args)
	if err != nil {
		return nil, err
	}
	return fn(toString(values[0])), nil
}

func (bf *BuiltInFunctions) LEN(args ...Primitive) (Primitive, error) {
	return unaryString("LEN", args, func(s string) Primitive { return int64(utf8.RuneCountInString(s)) })
}

func (bf *BuiltInFunctions) UPPER(args ...Primitive) (Primitive, error) {
	return unaryString("UPPER", args, func(s string) Primitive { return strings.ToUpper(s) })
}

func (bf *BuiltInFunctions) LOWER(args ...Primitive) (Primitive, error) {
	return unaryString("LOWER", args, func(s string) Primitive { return strings.ToLower(s) })
}

func (bf *BuiltInFunctions) TRIM(args ...Primitive) (Primitive, error) {
	return unaryString("TRIM", args, func(s string) Primitive { return strings.TrimSpace(s) })
}

func (bf *BuiltInFunctions) ABS(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	values, err := scalarArgs(args)
	if err != nil {
		return nil, err
	}
	num, ok := toNumber(values[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ABS requires a numeric argument")
	}
	if num < 0 {
		return -num, nil
	}
	return num, nil
}

// numericPair validates and converts the two arguments of POWER and MOD
func numericPair(name string, args []Primitive) (int64, int64, error) {
	if len(args) != 2 {
		return 0, 0, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 2 arguments")
	}
	values, err := scalarArgs(args)
	if err != nil {
		return 0, 0, err
	}
	a, ok1 := toNumber(values[0])
	b, ok2 := toNumber(values[1])
	if !ok1 || !ok2 {
		return 0, 0, NewSpreadsheetError(ErrorCodeValue, name+" requires numeric arguments")
	}
	return a, b, nil
}

func (bf *BuiltInFunctions) POWER(args ...Primitive) (Primitive, error) {
	base, exp, err := numericPair("POWER", args)
	if err != nil {
		return nil, err
	}
	return intPow(base, exp)
}

func (bf *BuiltInFunctions) MOD(args ...Primitive) (Primitive, error) {
	dividend, divisor, err := numericPair("MOD", args)
	if err != nil {
		return nil, err
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "")
	}
	// the result takes the sign of the divisor
	m := dividend % divisor
	if m != 0 && (m < 0) != (divisor < 0) {
		m += divisor
	}
	return m, nil
}
