// Package cell holds the value model shared by every sheetd component and
// the parsing of A1-style cell names.
package cell

import (
	"strconv"
	"strings"
)

// Kind represents numeric constants for cell value types
type Kind uint8

const (
	KindNone   Kind = 0
	KindInt    Kind = 1
	KindString Kind = 2
	KindError  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a committed cell value. the zero value is None, which is what
// every cell reads as before it is first set.
type Value struct {
	Kind Kind
	Int  int64
	// Text holds the string for KindString and the message for KindError
	Text string
}

func None() Value {
	return Value{}
}

func Int(n int64) Value {
	return Value{Kind: KindInt, Int: n}
}

func String(s string) Value {
	return Value{Kind: KindString, Text: s}
}

func Error(message string) Value {
	return Value{Kind: KindError, Text: message}
}

func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

func (v Value) IsError() bool {
	return v.Kind == KindError
}

// String renders the value the way it travels over the wire: none is empty,
// strings are quoted and errors carry an "Error: " prefix.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindString:
		return strconv.Quote(v.Text)
	case KindError:
		return "Error: " + v.Text
	default:
		return ""
	}
}

// Raw returns the value as a plain Go value (nil, int64 or string), with
// errors rendered as their message. used for JSON encoding.
func (v Value) Raw() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindString, KindError:
		return v.Text
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content
func (v Value) Equal(other Value) bool {
	return v.Kind == other.Kind && v.Int == other.Int && v.Text == other.Text
}

// IsIdentifierChar reports whether r may appear in a cell name or range token
func IsIdentifierChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

// Normalize upper-cases the column part of a cell name so that "a1" and
// "A1" address the same cell.
func Normalize(name string) string {
	return strings.ToUpper(name)
}
