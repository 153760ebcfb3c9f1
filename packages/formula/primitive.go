package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vogtb/sheetd/packages/cell"
)

// Primitive is any value flowing through evaluation: nil (empty), int64,
// string, bool, Argument (an unreduced range) or *SpreadsheetError.
type Primitive = any

// fromValue converts a stored cell value into an evaluation primitive
func fromValue(v cell.Value) Primitive {
	switch v.Kind {
	case cell.KindInt:
		return v.Int
	case cell.KindString:
		return v.Text
	case cell.KindError:
		return newStoredError(v.Text)
	default:
		return nil
	}
}

// toValue converts an evaluation result into a storable cell value
func toValue(p Primitive) cell.Value {
	switch v := p.(type) {
	case nil:
		return cell.None()
	case int64:
		return cell.Int(v)
	case bool:
		if v {
			return cell.Int(1)
		}
		return cell.Int(0)
	case string:
		return cell.String(v)
	case *SpreadsheetError:
		return v.Value()
	case Argument:
		// a bare single-cell range collapses to its value
		if v.Len() == 1 {
			for only := range v.Values() {
				return only
			}
		}
		return NewSpreadsheetError(ErrorCodeValue, "range used where a single value is expected").Value()
	default:
		return NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("unsupported result %T", p)).Value()
	}
}

// scalarOf reduces an operand to a single primitive, collapsing single-cell
// ranges and rejecting larger ones
func scalarOf(p Primitive) Primitive {
	arg, ok := p.(Argument)
	if !ok {
		return p
	}
	if arg.Len() != 1 {
		return NewSpreadsheetError(ErrorCodeValue, "range used where a single value is expected")
	}
	for v := range arg.IterateValues() {
		return v
	}
	return nil
}

// toNumber converts value to an integer, the only numeric type cells hold
func toNumber(value Primitive) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to string
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case Argument:
		var b strings.Builder
		for item := range v.IterateValues() {
			b.WriteString(toString(item))
		}
		return b.String()
	default:
		return fmt.Sprint(value)
	}
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// comparePrimitives compares two primitive values. returns -1 if left < right,
// 0 if equal, 1 if left > right
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}

	// numbers compare numerically, empty reads as zero
	_, leftIsStr := left.(string)
	_, rightIsStr := right.(string)
	if !leftIsStr && !rightIsStr {
		leftNum, leftOk := toNumber(left)
		rightNum, rightOk := toNumber(right)
		if leftOk && rightOk {
			switch {
			case leftNum < rightNum:
				return -1
			case leftNum > rightNum:
				return 1
			}
			return 0
		}
	}

	return strings.Compare(toString(left), toString(right))
}
