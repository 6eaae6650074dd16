package accessor

import (
	"fmt"
	"reflect"
)

// Accessor is the callable surface built by the Factory. Invoke
// dispatches without caller context and fails on targets that require
// one; InvokeAs supplies an explicit caller and is required for
// caller-sensitive targets. Multi-value returns come back as a slice;
// an error returned by the target is a result value, not an accessor
// failure.
type Accessor interface {
	Descriptor() *Descriptor
	Invoke(receiver any, args []any) ([]any, error)
	InvokeAs(caller *Caller, receiver any, args []any) ([]any, error)
}

// ValidateReceiver checks the receiver against the descriptor's owner.
// Static members accept anything, including nil. Instance members
// reject a nil interface distinctly from a receiver of the wrong type.
// A typed nil pointer is a legal method receiver in Go and passes.
func ValidateReceiver(d *Descriptor, receiver any) error {
	if d.IsStatic() {
		return nil
	}
	if receiver == nil {
		return fmt.Errorf("%w: instance %s %s.%s", ErrNilReceiver, d.Kind(), ownerName(d.Owner()), d.Name())
	}
	rt := reflect.TypeOf(receiver)
	if !rt.AssignableTo(d.Owner()) {
		return fmt.Errorf("%w: receiver %s is not a %s", ErrTypeMismatch, rt, d.Owner())
	}
	return nil
}

// coerceArgs checks arity and widens each argument to its declared
// parameter width. Primitive arguments widen along the lattice; Ref
// parameters take any assignable value, with nil standing for the
// zero value of nillable parameter types. The returned slice holds
// exact-width builtins for primitives and the original values for refs.
func coerceArgs(d *Descriptor, args []any) ([]any, error) {
	if len(args) != d.NumParams() {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrTypeMismatch, d.Name(), d.NumParams(), len(args))
	}
	if len(args) == 0 {
		return nil, nil
	}

	out := make([]any, len(args))
	for i, arg := range args {
		v, err := coerceArg(d.Param(i), arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, d.Name(), err)
		}
		out[i] = v
	}
	return out, nil
}

// coerceArg coerces one value to one declared parameter type.
func coerceArg(param reflect.Type, arg any) (any, error) {
	pc := CodeOf(param)
	if pc == Ref {
		if arg == nil {
			if !nillable(param) {
				return nil, fmt.Errorf("%w: nil for non-nillable %s", ErrTypeMismatch, param)
			}
			return nil, nil
		}
		if !reflect.TypeOf(arg).AssignableTo(param) {
			return nil, fmt.Errorf("%w: %T is not assignable to %s", ErrTypeMismatch, arg, param)
		}
		return arg, nil
	}

	if arg == nil {
		return nil, fmt.Errorf("%w: nil for %s parameter", ErrTypeMismatch, param)
	}
	vc := ValueCode(arg)
	if vc == Ref {
		// A named primitive keeps nominal identity: assignable or nothing.
		if reflect.TypeOf(arg).AssignableTo(param) {
			return arg, nil
		}
		return nil, fmt.Errorf("%w: %T is not assignable to %s", ErrTypeMismatch, arg, param)
	}
	return ConvertPrimitive(arg, vc, pc)
}
