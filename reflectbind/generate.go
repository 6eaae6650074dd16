package reflectbind

// Fast Path Generation
//
// Promotion swaps an interpretive accessor for a handle built here. A
// generated handle embeds precomputed per-parameter plans and validates
// its own input, so the swap never changes observable behavior: same
// receiver checks, same widening, same error classification. What it
// saves is per-call decision making; common arities get loop-free
// closures.

import (
	"fmt"
	"reflect"

	"github.com/chazu/mirror/accessor"
)

// GenerateCallable builds a specialized self-validating handle for a
// callable descriptor.
func (r *Registry) GenerateCallable(d *accessor.Descriptor) (accessor.InvokeHandle, error) {
	e, fn, isMethod, err := r.resolveFunc(d)
	if err != nil {
		return nil, err
	}
	return &fastHandle{e: e, call: specializedCall(d, e, fn, isMethod)}, nil
}

// GenerateBound builds the specialized handle for a caller-bound path,
// re-running the member's gate for the bound caller first.
func (r *Registry) GenerateBound(d *accessor.Descriptor, caller *accessor.Caller) (accessor.InvokeHandle, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: no caller bound for %s", accessor.ErrResolution, d.Key())
	}
	e, fn, isMethod, err := r.resolveFunc(d)
	if err != nil {
		return nil, err
	}
	if gate := e.gates[d.Name()]; gate != nil {
		if err := gate(caller); err != nil {
			return nil, fmt.Errorf("%w: caller %q refused for %s: %v", accessor.ErrResolution, caller.Name(), d.Key(), err)
		}
	}
	return &fastHandle{e: e, call: specializedCall(d, e, fn, isMethod)}, nil
}

// fastHandle is a generated handle: all behavior lives in the closure.
type fastHandle struct {
	e    *entry
	call func(receiver any, args []any) ([]any, error)
}

// Call dispatches through the specialized closure.
func (h *fastHandle) Call(receiver any, args []any) ([]any, error) {
	return h.call(receiver, args)
}

// Alive reports whether the owning type is still registered.
func (h *fastHandle) Alive() bool {
	return h.e.alive.Load()
}

// ---------------------------------------------------------------------------
// Specialization
// ---------------------------------------------------------------------------

// argPlan is the precomputed conversion plan for one parameter.
type argPlan struct {
	t     reflect.Type
	code  accessor.TypeCode
	nilOK bool
}

// buildPlans computes one plan per declared parameter.
func buildPlans(d *accessor.Descriptor) []argPlan {
	plans := make([]argPlan, d.NumParams())
	for i := range plans {
		pt := d.Param(i)
		plans[i] = argPlan{t: pt, code: accessor.CodeOf(pt), nilOK: zeroIsNil(pt)}
	}
	return plans
}

// value converts one raw argument per the plan. Checks and messages
// track the interpretive path exactly.
func (p argPlan) value(arg any) (reflect.Value, error) {
	if p.code == accessor.Ref {
		if arg == nil {
			if !p.nilOK {
				return reflect.Value{}, fmt.Errorf("%w: nil for non-nillable %s", accessor.ErrTypeMismatch, p.t)
			}
			return reflect.Zero(p.t), nil
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(p.t) {
			return reflect.Value{}, fmt.Errorf("%w: %T is not assignable to %s", accessor.ErrTypeMismatch, arg, p.t)
		}
		return av, nil
	}

	if arg == nil {
		return reflect.Value{}, fmt.Errorf("%w: nil for %s parameter", accessor.ErrTypeMismatch, p.t)
	}
	from := accessor.ValueCode(arg)
	if from == accessor.Ref {
		av := reflect.ValueOf(arg)
		if av.Type().AssignableTo(p.t) {
			return av, nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %T is not assignable to %s", accessor.ErrTypeMismatch, arg, p.t)
	}
	cv, err := accessor.ConvertPrimitive(arg, from, p.code)
	if err != nil {
		return reflect.Value{}, err
	}
	av := reflect.ValueOf(cv)
	if av.Type() != p.t {
		av = av.Convert(p.t)
	}
	return av, nil
}

func zeroIsNil(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return true
	}
	return false
}

// specializedCall picks the closure shape for the descriptor's arity.
func specializedCall(d *accessor.Descriptor, e *entry, fn reflect.Value, method bool) func(any, []any) ([]any, error) {
	plans := buildPlans(d)
	switch len(plans) {
	case 0:
		return nullaryCall(d, e, fn, method)
	case 1:
		return unaryCall(d, e, fn, method, plans[0])
	case 2:
		return binaryCall(d, e, fn, method, plans[0], plans[1])
	}
	return naryCall(d, e, fn, method, plans)
}

func nullaryCall(d *accessor.Descriptor, e *entry, fn reflect.Value, method bool) func(any, []any) ([]any, error) {
	key, name := d.Key(), d.Name()
	return func(receiver any, args []any) ([]any, error) {
		if err := e.ensureInit(); err != nil {
			return nil, err
		}
		if err := accessor.ValidateReceiver(d, receiver); err != nil {
			return nil, err
		}
		if len(args) != 0 {
			return nil, arityError(name, 0, len(args))
		}
		var in []reflect.Value
		if method {
			in = []reflect.Value{reflect.ValueOf(receiver)}
		}
		out, err := callCatching(key, fn, in)
		if err != nil {
			return nil, err
		}
		return fromValues(out), nil
	}
}

func unaryCall(d *accessor.Descriptor, e *entry, fn reflect.Value, method bool, p0 argPlan) func(any, []any) ([]any, error) {
	key, name := d.Key(), d.Name()
	return func(receiver any, args []any) ([]any, error) {
		if err := e.ensureInit(); err != nil {
			return nil, err
		}
		if err := accessor.ValidateReceiver(d, receiver); err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, arityError(name, 1, len(args))
		}
		v0, err := p0.value(args[0])
		if err != nil {
			return nil, argError(0, name, err)
		}
		var in []reflect.Value
		if method {
			in = []reflect.Value{reflect.ValueOf(receiver), v0}
		} else {
			in = []reflect.Value{v0}
		}
		out, err := callCatching(key, fn, in)
		if err != nil {
			return nil, err
		}
		return fromValues(out), nil
	}
}

func binaryCall(d *accessor.Descriptor, e *entry, fn reflect.Value, method bool, p0, p1 argPlan) func(any, []any) ([]any, error) {
	key, name := d.Key(), d.Name()
	return func(receiver any, args []any) ([]any, error) {
		if err := e.ensureInit(); err != nil {
			return nil, err
		}
		if err := accessor.ValidateReceiver(d, receiver); err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, arityError(name, 2, len(args))
		}
		v0, err := p0.value(args[0])
		if err != nil {
			return nil, argError(0, name, err)
		}
		v1, err := p1.value(args[1])
		if err != nil {
			return nil, argError(1, name, err)
		}
		var in []reflect.Value
		if method {
			in = []reflect.Value{reflect.ValueOf(receiver), v0, v1}
		} else {
			in = []reflect.Value{v0, v1}
		}
		out, err := callCatching(key, fn, in)
		if err != nil {
			return nil, err
		}
		return fromValues(out), nil
	}
}

func naryCall(d *accessor.Descriptor, e *entry, fn reflect.Value, method bool, plans []argPlan) func(any, []any) ([]any, error) {
	key, name := d.Key(), d.Name()
	return func(receiver any, args []any) ([]any, error) {
		if err := e.ensureInit(); err != nil {
			return nil, err
		}
		if err := accessor.ValidateReceiver(d, receiver); err != nil {
			return nil, err
		}
		if len(args) != len(plans) {
			return nil, arityError(name, len(plans), len(args))
		}
		in := make([]reflect.Value, 0, len(plans)+1)
		if method {
			in = append(in, reflect.ValueOf(receiver))
		}
		for i, arg := range args {
			v, err := plans[i].value(arg)
			if err != nil {
				return nil, argError(i, name, err)
			}
			in = append(in, v)
		}
		out, err := callCatching(key, fn, in)
		if err != nil {
			return nil, err
		}
		return fromValues(out), nil
	}
}

func arityError(name string, want, got int) error {
	return fmt.Errorf("%w: %s takes %d arguments, got %d", accessor.ErrTypeMismatch, name, want, got)
}

func argError(i int, name string, err error) error {
	return fmt.Errorf("argument %d of %s: %w", i, name, err)
}
