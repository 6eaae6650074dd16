package accessor

import (
	"fmt"
	"reflect"
)

// Field Access
//
// One accessor type covers all nine widths, dispatching on the
// descriptor's width code. Every typed getter and setter applies the
// widening lattice: reading a field as a wider width succeeds, as a
// narrower width fails; writing symmetrically accepts narrower values
// and rejects wider ones. Immutability is checked before type
// compatibility, so a read-only field refuses even a perfectly typed
// write. Static fields ignore the receiver entirely.

// FieldAccessor provides typed and generic access to one field.
type FieldAccessor struct {
	desc   *Descriptor
	code   TypeCode
	handle FieldHandle
}

func newFieldAccessor(d *Descriptor, h FieldHandle) *FieldAccessor {
	return &FieldAccessor{desc: d, code: d.FieldCode(), handle: h}
}

// Descriptor returns the field's descriptor.
func (a *FieldAccessor) Descriptor() *Descriptor { return a.desc }

// Code returns the field's width code.
func (a *FieldAccessor) Code() TypeCode { return a.code }

// checkReceiver validates the receiver for instance fields. Unlike a
// method receiver, a typed nil pointer cannot hold a field, so it is
// rejected the same way a nil interface is.
func (a *FieldAccessor) checkReceiver(receiver any) error {
	if a.desc.IsStatic() {
		return nil
	}
	if receiver == nil {
		return fmt.Errorf("%w: instance field %s.%s", ErrNilReceiver, ownerName(a.desc.Owner()), a.desc.Name())
	}
	rv := reflect.ValueOf(receiver)
	if !rv.Type().AssignableTo(a.desc.Owner()) {
		return fmt.Errorf("%w: receiver %s is not a %s", ErrTypeMismatch, rv.Type(), a.desc.Owner())
	}
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return fmt.Errorf("%w: instance field %s.%s", ErrNilReceiver, ownerName(a.desc.Owner()), a.desc.Name())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Typed getters
// ---------------------------------------------------------------------------

// load validates the receiver, checks that the field's width widens to
// the requested one, and loads the raw value.
func (a *FieldAccessor) load(receiver any, want TypeCode) (any, error) {
	if err := a.checkReceiver(receiver); err != nil {
		return nil, err
	}
	if !CanWiden(a.code, want) {
		return nil, fmt.Errorf("%w: cannot read %v field %s as %v", ErrTypeMismatch, a.code, a.desc.Name(), want)
	}
	return a.handle.Load(receiver)
}

// intOf extracts the integral value of a loaded field. Named field
// types extract by kind, so a `type Level int32` field reads fine.
func (a *FieldAccessor) intOf(raw any) (int64, error) {
	rv := reflect.ValueOf(raw)
	switch a.code {
	case Int8, Int16, Int32, Int64:
		return rv.Int(), nil
	case Char:
		return int64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("%w: %v field has no integral value", ErrInternal, a.code)
}

// Get returns the field value as its declared type.
func (a *FieldAccessor) Get(receiver any) (any, error) {
	if err := a.checkReceiver(receiver); err != nil {
		return nil, err
	}
	return a.handle.Load(receiver)
}

// GetBool reads a Bool field.
func (a *FieldAccessor) GetBool(receiver any) (bool, error) {
	raw, err := a.load(receiver, Bool)
	if err != nil {
		return false, err
	}
	return reflect.ValueOf(raw).Bool(), nil
}

// GetInt8 reads an Int8 field.
func (a *FieldAccessor) GetInt8(receiver any) (int8, error) {
	raw, err := a.load(receiver, Int8)
	if err != nil {
		return 0, err
	}
	n, err := a.intOf(raw)
	return int8(n), err
}

// GetInt16 reads an Int8 or Int16 field widened to int16.
func (a *FieldAccessor) GetInt16(receiver any) (int16, error) {
	raw, err := a.load(receiver, Int16)
	if err != nil {
		return 0, err
	}
	n, err := a.intOf(raw)
	return int16(n), err
}

// GetChar reads a Char field.
func (a *FieldAccessor) GetChar(receiver any) (uint16, error) {
	raw, err := a.load(receiver, Char)
	if err != nil {
		return 0, err
	}
	n, err := a.intOf(raw)
	return uint16(n), err
}

// GetInt32 reads any field up to 32 bits wide, Char included, widened
// to int32.
func (a *FieldAccessor) GetInt32(receiver any) (int32, error) {
	raw, err := a.load(receiver, Int32)
	if err != nil {
		return 0, err
	}
	n, err := a.intOf(raw)
	return int32(n), err
}

// GetInt64 reads any integral field widened to int64.
func (a *FieldAccessor) GetInt64(receiver any) (int64, error) {
	raw, err := a.load(receiver, Int64)
	if err != nil {
		return 0, err
	}
	return a.intOf(raw)
}

// GetFloat32 reads any integral or Float32 field widened to float32.
// Integral sources convert in a single rounding step.
func (a *FieldAccessor) GetFloat32(receiver any) (float32, error) {
	raw, err := a.load(receiver, Float32)
	if err != nil {
		return 0, err
	}
	if a.code == Float32 {
		return float32(reflect.ValueOf(raw).Float()), nil
	}
	n, err := a.intOf(raw)
	return float32(n), err
}

// GetFloat64 reads any numeric field widened to float64.
func (a *FieldAccessor) GetFloat64(receiver any) (float64, error) {
	raw, err := a.load(receiver, Float64)
	if err != nil {
		return 0, err
	}
	switch a.code {
	case Float32, Float64:
		return reflect.ValueOf(raw).Float(), nil
	}
	n, err := a.intOf(raw)
	return float64(n), err
}

// ---------------------------------------------------------------------------
// Typed setters
// ---------------------------------------------------------------------------

// setPrim widens a primitive value into the field. Check order is
// fixed: receiver, then immutability, then width.
func (a *FieldAccessor) setPrim(receiver any, src TypeCode, value any) error {
	if err := a.checkReceiver(receiver); err != nil {
		return err
	}
	if a.desc.IsReadOnly() {
		return fmt.Errorf("%w: %s.%s", ErrImmutable, ownerName(a.desc.Owner()), a.desc.Name())
	}
	if !CanWiden(src, a.code) {
		return fmt.Errorf("%w: cannot write %v into %v field %s", ErrTypeMismatch, src, a.code, a.desc.Name())
	}
	cv, err := ConvertPrimitive(value, src, a.code)
	if err != nil {
		return err
	}
	return a.store(receiver, cv)
}

// store converts an exact-width value to the declared field type and
// hands it to the handle.
func (a *FieldAccessor) store(receiver any, value any) error {
	ft := a.desc.FieldType()
	rv := reflect.ValueOf(value)
	if rv.Type() != ft {
		if !rv.Type().ConvertibleTo(ft) {
			return fmt.Errorf("%w: %s value for %s field", ErrInternal, rv.Type(), ft)
		}
		rv = rv.Convert(ft)
	}
	return a.handle.Store(receiver, rv.Interface())
}

// Set writes a value with the same lattice rules as the typed setters.
// Primitive values widen; values of named types, and all values for
// Ref fields, follow assignability. Nil stores the zero value in
// nillable Ref fields and is a mismatch everywhere else.
func (a *FieldAccessor) Set(receiver any, value any) error {
	if err := a.checkReceiver(receiver); err != nil {
		return err
	}
	if a.desc.IsReadOnly() {
		return fmt.Errorf("%w: %s.%s", ErrImmutable, ownerName(a.desc.Owner()), a.desc.Name())
	}

	ft := a.desc.FieldType()
	if a.code == Ref {
		if value == nil {
			if !nillable(ft) {
				return fmt.Errorf("%w: nil for %s field %s", ErrTypeMismatch, ft, a.desc.Name())
			}
			return a.handle.Store(receiver, nil)
		}
		if !reflect.TypeOf(value).AssignableTo(ft) {
			return fmt.Errorf("%w: %T is not assignable to %s", ErrTypeMismatch, value, ft)
		}
		return a.handle.Store(receiver, value)
	}

	if value == nil {
		return fmt.Errorf("%w: nil for %v field %s", ErrTypeMismatch, a.code, a.desc.Name())
	}
	vc := ValueCode(value)
	if vc == Ref {
		// A named primitive keeps nominal identity: assignable or nothing.
		if reflect.TypeOf(value).AssignableTo(ft) {
			return a.handle.Store(receiver, value)
		}
		return fmt.Errorf("%w: %T is not assignable to %s", ErrTypeMismatch, value, ft)
	}
	if !CanWiden(vc, a.code) {
		return fmt.Errorf("%w: cannot write %v into %v field %s", ErrTypeMismatch, vc, a.code, a.desc.Name())
	}
	cv, err := ConvertPrimitive(value, vc, a.code)
	if err != nil {
		return err
	}
	return a.store(receiver, cv)
}

// SetBool writes a Bool field.
func (a *FieldAccessor) SetBool(receiver any, value bool) error {
	return a.setPrim(receiver, Bool, value)
}

// SetInt8 writes an int8 into any field from Int8 up the lattice.
func (a *FieldAccessor) SetInt8(receiver any, value int8) error {
	return a.setPrim(receiver, Int8, value)
}

// SetInt16 writes an int16 into an Int16 or wider field.
func (a *FieldAccessor) SetInt16(receiver any, value int16) error {
	return a.setPrim(receiver, Int16, value)
}

// SetChar writes a uint16 into a Char, Int32, or wider field.
func (a *FieldAccessor) SetChar(receiver any, value uint16) error {
	return a.setPrim(receiver, Char, value)
}

// SetInt32 writes an int32 into an Int32 or wider field.
func (a *FieldAccessor) SetInt32(receiver any, value int32) error {
	return a.setPrim(receiver, Int32, value)
}

// SetInt64 writes an int64 into an Int64, Float32, or Float64 field.
func (a *FieldAccessor) SetInt64(receiver any, value int64) error {
	return a.setPrim(receiver, Int64, value)
}

// SetFloat32 writes a float32 into a Float32 or Float64 field.
func (a *FieldAccessor) SetFloat32(receiver any, value float32) error {
	return a.setPrim(receiver, Float32, value)
}

// SetFloat64 writes a float64 into a Float64 field only.
func (a *FieldAccessor) SetFloat64(receiver any, value float64) error {
	return a.setPrim(receiver, Float64, value)
}
