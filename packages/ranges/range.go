// Package ranges resolves range tokens such as A1_B3 into the structured
// arguments the evaluator consumes. a range within one column becomes a
// sequence, anything wider becomes a row-major matrix.
package ranges

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/vogtb/sheetd/packages/cell"
	"github.com/vogtb/sheetd/packages/formula"
)

// Separator joins the two corner addresses of a range token
const Separator = "_"

// MaxCells bounds the number of cells a single range may cover
const MaxCells = 1 << 20

// ErrRangeTooLarge is returned for ranges covering more than MaxCells cells
var ErrRangeTooLarge = errors.New("range too large")

// Range is a normalized rectangle of cells, start <= end on both axes
type Range struct {
	StartRow    uint32
	StartColumn uint32
	EndRow      uint32
	EndColumn   uint32
}

// IsRange reports whether a referenced token is a range rather than a
// single cell
func IsRange(token string) bool {
	return strings.Contains(token, Separator)
}

// Parse parses a range token into a normalized Range. both corners must be
// valid cell names; reversed corners are swapped.
func Parse(token string) (Range, error) {
	parts := strings.Split(token, Separator)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("%w: range %q must have exactly two addresses", cell.ErrAddressFormat, token)
	}

	start, err := cell.ParseName(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("invalid start of range %q: %w", token, err)
	}
	end, err := cell.ParseName(parts[1])
	if err != nil {
		return Range{}, fmt.Errorf("invalid end of range %q: %w", token, err)
	}

	r := Range{
		StartRow:    min(start.Row, end.Row),
		StartColumn: min(start.Column, end.Column),
		EndRow:      max(start.Row, end.Row),
		EndColumn:   max(start.Column, end.Column),
	}
	if r.Size() > MaxCells {
		return Range{}, fmt.Errorf("%w: %q covers %d cells", ErrRangeTooLarge, token, r.Size())
	}
	return r, nil
}

// Size returns the number of cells covered by the range
func (r Range) Size() uint64 {
	return (uint64(r.EndRow) - uint64(r.StartRow) + 1) * (uint64(r.EndColumn) - uint64(r.StartColumn) + 1)
}

// IsColumn reports whether the range stays within one column
func (r Range) IsColumn() bool {
	return r.StartColumn == r.EndColumn
}

// Contains reports whether addr lies inside the range
func (r Range) Contains(addr cell.Address) bool {
	return addr.Row >= r.StartRow && addr.Row <= r.EndRow &&
		addr.Column >= r.StartColumn && addr.Column <= r.EndColumn
}

// Iterate returns an iterator over every address in the range, row-major
func (r Range) Iterate() iter.Seq[cell.Address] {
	return func(yield func(cell.Address) bool) {
		for row := r.StartRow; row <= r.EndRow; row++ {
			for col := r.StartColumn; col <= r.EndColumn; col++ {
				if !yield(cell.Address{Column: col, Row: row}) {
					return
				}
			}
		}
	}
}

// Cells returns the names of every cell in the range, row-major
func (r Range) Cells() []string {
	names := make([]string, 0, r.Size())
	for addr := range r.Iterate() {
		names = append(names, addr.Name())
	}
	return names
}

func (r Range) String() string {
	start := cell.Address{Column: r.StartColumn, Row: r.StartRow}
	end := cell.Address{Column: r.EndColumn, Row: r.EndRow}
	return start.Name() + Separator + end.Name()
}

// Lookup returns the current value of a named cell, None when absent
type Lookup func(name string) cell.Value

// Resolve parses token and reads the covered cells through lookup. a
// single-column range resolves to a sequence over its rows, a wider range to
// a matrix with one slice per row. cells never set read as None.
func Resolve(token string, lookup Lookup) (formula.Argument, error) {
	r, err := Parse(token)
	if err != nil {
		return formula.Argument{}, err
	}

	if r.IsColumn() {
		values := make([]cell.Value, 0, r.EndRow-r.StartRow+1)
		for addr := range r.Iterate() {
			values = append(values, lookup(addr.Name()))
		}
		return formula.Sequence(values), nil
	}

	rows := make([][]cell.Value, 0, r.EndRow-r.StartRow+1)
	for row := r.StartRow; row <= r.EndRow; row++ {
		values := make([]cell.Value, 0, r.EndColumn-r.StartColumn+1)
		for col := r.StartColumn; col <= r.EndColumn; col++ {
			values = append(values, lookup(cell.Address{Column: col, Row: row}.Name()))
		}
		rows = append(rows, values)
	}
	return formula.Matrix(rows), nil
}
