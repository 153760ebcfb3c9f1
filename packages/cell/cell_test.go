package cell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		want Address
	}{
		{"A1", Address{Column: 0, Row: 0}},
		{"B3", Address{Column: 1, Row: 2}},
		{"Z10", Address{Column: 25, Row: 9}},
		{"AA1", Address{Column: 26, Row: 0}},
		{"AB12", Address{Column: 27, Row: 11}},
		{"a1", Address{Column: 0, Row: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNameInvalid(t *testing.T) {
	invalid := []string{"", "A", "1", "A0", "1A", "A1B", "A-1", "_1", "A1_B2"}

	for _, name := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ParseName(name)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAddressFormat))
		})
	}
}

func TestColumnRoundTrip(t *testing.T) {
	for _, letters := range []string{"A", "Z", "AA", "AZ", "BA", "ZZ", "AAA"} {
		idx, err := ColumnIndex(letters)
		require.NoError(t, err)
		assert.Equal(t, letters, ColumnName(idx))
	}

	idx, err := ColumnIndex("AA")
	require.NoError(t, err)
	assert.Equal(t, uint32(26), idx)
}

func TestAddressName(t *testing.T) {
	assert.Equal(t, "A1", Address{}.Name())
	assert.Equal(t, "AB12", Address{Column: 27, Row: 11}.Name())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "", None().String())
	assert.Equal(t, "-42", Int(-42).String())
	assert.Equal(t, `"hi"`, String("hi").String())
	assert.Equal(t, "Error: #DIV/0!", Error("#DIV/0!").String())
	assert.True(t, Value{}.IsNone())
	assert.True(t, Int(1).Equal(Int(1)))
	assert.False(t, Int(1).Equal(String("1")))
}
