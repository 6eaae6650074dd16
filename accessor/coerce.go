package accessor

import (
	"fmt"
	"reflect"
	"strconv"
)

// Primitive Widening
//
// Nine width codes cover every dynamically-accessed value: eight
// primitive widths plus Ref for everything else. The widening lattice
// is fixed and must hold exactly:
//
//	Int8 -> Int16 -> Int32 -> Int64 -> Float32 -> Float64
//	Char         -> Int32 -> Int64 -> Float32 -> Float64
//
// Bool widens to nothing and nothing widens to Bool. Ref values never
// participate in widening; they follow assignability only. Narrowing
// is never implicit.

// TypeCode identifies the width class of a type or value.
type TypeCode uint8

const (
	Bool    TypeCode = iota // bool
	Int8                    // signed 8-bit
	Int16                   // signed 16-bit
	Char                    // unsigned 16-bit (uint16)
	Int32                   // signed 32-bit, covers rune
	Int64                   // signed 64-bit, covers int on 64-bit targets
	Float32                 // IEEE 754 single
	Float64                 // IEEE 754 double
	Ref                     // any non-primitive type
)

// NumTypeCodes is the number of distinct width codes.
const NumTypeCodes = 9

var typeCodeNames = [NumTypeCodes]string{
	"bool", "int8", "int16", "char", "int32", "int64", "float32", "float64", "ref",
}

// String returns the lowercase name of the code.
func (c TypeCode) String() string {
	if int(c) < len(typeCodeNames) {
		return typeCodeNames[c]
	}
	return fmt.Sprintf("typecode(%d)", uint8(c))
}

// IsPrimitive reports whether the code is one of the eight primitive widths.
func (c TypeCode) IsPrimitive() bool {
	return c < Ref
}

// IsIntegral reports whether the code is a signed or unsigned integer width.
func (c TypeCode) IsIntegral() bool {
	switch c {
	case Int8, Int16, Char, Int32, Int64:
		return true
	}
	return false
}

// widenTable[from][to] is true when a value of width `from` may be
// used where width `to` is expected. The diagonal is true: every
// width is usable as itself.
var widenTable = [NumTypeCodes][NumTypeCodes]bool{
	Bool:    {Bool: true},
	Int8:    {Int8: true, Int16: true, Int32: true, Int64: true, Float32: true, Float64: true},
	Int16:   {Int16: true, Int32: true, Int64: true, Float32: true, Float64: true},
	Char:    {Char: true, Int32: true, Int64: true, Float32: true, Float64: true},
	Int32:   {Int32: true, Int64: true, Float32: true, Float64: true},
	Int64:   {Int64: true, Float32: true, Float64: true},
	Float32: {Float32: true, Float64: true},
	Float64: {Float64: true},
	Ref:     {Ref: true},
}

// CanWiden reports whether a value of width `from` may be widened
// (or used as-is) where width `to` is expected.
func CanWiden(from, to TypeCode) bool {
	return widenTable[from][to]
}

// CodeOf maps a Go type to its width code. Named types classify by
// their underlying kind, so a `type Celsius float64` field is a
// Float64-width field. Unsigned kinds other than uint16 have no
// counterpart in the lattice and classify as Ref.
func CodeOf(t reflect.Type) TypeCode {
	if t == nil {
		return Ref
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Uint16:
		return Char
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Int:
		if strconv.IntSize == 64 {
			return Int64
		}
		return Int32
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	}
	return Ref
}

// ValueCode classifies a runtime value by its concrete built-in type.
// Values of named types classify as Ref and follow assignability
// instead of widening, keeping their nominal identity.
func ValueCode(v any) TypeCode {
	switch v.(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case uint16:
		return Char
	case int32:
		return Int32
	case int64:
		return Int64
	case int:
		if strconv.IntSize == 64 {
			return Int64
		}
		return Int32
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Ref
}

// asInt64 extracts an integral value of the given width as int64.
// Char values zero-extend.
func asInt64(v any, code TypeCode) (int64, error) {
	switch code {
	case Int8:
		return int64(v.(int8)), nil
	case Int16:
		return int64(v.(int16)), nil
	case Char:
		return int64(v.(uint16)), nil
	case Int32:
		switch n := v.(type) {
		case int32:
			return int64(n), nil
		case int:
			return int64(n), nil
		}
	case Int64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: no integral extraction for %v value %T", ErrInternal, code, v)
}

// ConvertPrimitive widens a value of width `from` to width `to`,
// returning the result as the built-in Go type for `to`. The from
// width must be the value's actual classification. Conversions are
// single-step, so int64 to float32 rounds once, not via float64.
func ConvertPrimitive(v any, from, to TypeCode) (any, error) {
	if !CanWiden(from, to) {
		return nil, fmt.Errorf("%w: cannot widen %v to %v", ErrTypeMismatch, from, to)
	}
	if from == to {
		// Normalize platform int to its exact-width builtin.
		if n, ok := v.(int); ok {
			if to == Int64 {
				return int64(n), nil
			}
			return int32(n), nil
		}
		return v, nil
	}

	switch from {
	case Int8, Int16, Char, Int32, Int64:
		n, err := asInt64(v, from)
		if err != nil {
			return nil, err
		}
		switch to {
		case Int16:
			return int16(n), nil
		case Int32:
			return int32(n), nil
		case Int64:
			return n, nil
		case Float32:
			return float32(n), nil
		case Float64:
			return float64(n), nil
		}
	case Float32:
		if to == Float64 {
			return float64(v.(float32)), nil
		}
	}
	return nil, fmt.Errorf("%w: no conversion from %v to %v", ErrInternal, from, to)
}

// nillableKinds covers the reflect kinds whose zero value is nil.
func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return true
	}
	return false
}
