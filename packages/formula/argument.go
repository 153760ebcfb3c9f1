package formula

import (
	"iter"

	"github.com/vogtb/sheetd/packages/cell"
)

// ArgumentKind tags the shape of a bound variable
type ArgumentKind uint8

const (
	ArgumentScalar ArgumentKind = iota
	ArgumentSequence
	ArgumentMatrix
)

// Argument is the value bound to a variable name when an expression runs.
// a plain cell reference binds a Scalar, a range within one column binds a
// Sequence, and a range spanning columns binds a row-major Matrix.
type Argument struct {
	Kind     ArgumentKind
	Scalar   cell.Value
	Sequence []cell.Value
	Matrix   [][]cell.Value
}

func Scalar(v cell.Value) Argument {
	return Argument{Kind: ArgumentScalar, Scalar: v}
}

func Sequence(values []cell.Value) Argument {
	return Argument{Kind: ArgumentSequence, Sequence: values}
}

func Matrix(rows [][]cell.Value) Argument {
	return Argument{Kind: ArgumentMatrix, Matrix: rows}
}

// IsRange reports whether the argument is a sequence or matrix
func (a Argument) IsRange() bool {
	return a.Kind == ArgumentSequence || a.Kind == ArgumentMatrix
}

// Values returns an iterator over every value in the argument, row-major
// for matrices
func (a Argument) Values() iter.Seq[cell.Value] {
	return func(yield func(cell.Value) bool) {
		switch a.Kind {
		case ArgumentScalar:
			yield(a.Scalar)
		case ArgumentSequence:
			for _, v := range a.Sequence {
				if !yield(v) {
					return
				}
			}
		case ArgumentMatrix:
			for _, row := range a.Matrix {
				for _, v := range row {
					if !yield(v) {
						return
					}
				}
			}
		}
	}
}

// IterateValues returns an iterator over the argument's values converted to
// evaluator primitives
func (a Argument) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for v := range a.Values() {
			if !yield(fromValue(v)) {
				return
			}
		}
	}
}

// Len returns the number of values in the argument
func (a Argument) Len() int {
	switch a.Kind {
	case ArgumentSequence:
		return len(a.Sequence)
	case ArgumentMatrix:
		n := 0
		for _, row := range a.Matrix {
			n += len(row)
		}
		return n
	default:
		return 1
	}
}
