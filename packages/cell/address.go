package cell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrAddressFormat is returned for anything that is not a column-letters
// plus 1-based row-digits address.
var ErrAddressFormat = errors.New("malformed cell address")

// Address is a zero-based (column, row) pair
type Address struct {
	Column uint32
	Row    uint32
}

// ParseName parses a cell name like "A1" or "ab12" into a zero-based address
func ParseName(name string) (Address, error) {
	// find where letters end and numbers begin
	letterEnd := 0
	for i, ch := range name {
		if ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' {
			letterEnd = i + 1
		} else {
			break
		}
	}

	if letterEnd == 0 {
		return Address{}, fmt.Errorf("%w: %q has no column letters", ErrAddressFormat, name)
	}
	if letterEnd == len(name) {
		return Address{}, fmt.Errorf("%w: %q has no row number", ErrAddressFormat, name)
	}

	rowStr := name[letterEnd:]
	for i := 0; i < len(rowStr); i++ {
		if rowStr[i] < '0' || rowStr[i] > '9' {
			return Address{}, fmt.Errorf("%w: invalid row number in %q", ErrAddressFormat, name)
		}
	}

	rowNum, err := strconv.ParseUint(rowStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid row number in %q", ErrAddressFormat, name)
	}
	if rowNum < 1 {
		return Address{}, fmt.Errorf("%w: row number must be positive in %q", ErrAddressFormat, name)
	}

	col, err := ColumnIndex(name[:letterEnd])
	if err != nil {
		return Address{}, err
	}

	return Address{Column: col, Row: uint32(rowNum - 1)}, nil
}

// ColumnIndex converts column letters to a zero-based index
// (A=0, B=1, ..., Z=25, AA=26, AB=27, ...)
func ColumnIndex(letters string) (uint32, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column", ErrAddressFormat)
	}

	var col uint64
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("%w: non-alphabetic column %q", ErrAddressFormat, letters)
		}
		col = col*26 + uint64(ch-'A'+1)
		if col > 1<<31 {
			return 0, fmt.Errorf("%w: column %q out of range", ErrAddressFormat, letters)
		}
	}
	return uint32(col - 1), nil
}

// ColumnName converts a zero-based column index back to letters
func ColumnName(index uint32) string {
	n := uint64(index) + 1
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, byte('A'+n%26))
		n /= 26
	}
	// letters were produced least significant first
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// Name returns the canonical upper-case name of the address
func (a Address) Name() string {
	return ColumnName(a.Column) + strconv.FormatUint(uint64(a.Row)+1, 10)
}

func (a Address) String() string {
	return a.Name()
}
