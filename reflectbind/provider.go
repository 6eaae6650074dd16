package reflectbind

import (
	"fmt"
	"reflect"

	"github.com/chazu/mirror/accessor"
)

// The registry is the accessor factory's provider: it resolves
// interpretive handles. Handles resolved here trust the core to have
// validated receivers and widened arguments; they only bridge the
// already-checked values into reflect calls, run the type initializer
// first, and convert target panics into TargetError.

// ResolveCallable resolves the slow interpretive handle for a callable
// descriptor.
func (r *Registry) ResolveCallable(d *accessor.Descriptor) (accessor.InvokeHandle, error) {
	e, fn, isMethod, err := r.resolveFunc(d)
	if err != nil {
		return nil, err
	}
	return &invokeHandle{key: d.Key(), e: e, fn: fn, method: isMethod}, nil
}

// resolveFunc locates the function value behind a callable descriptor.
// Instance methods come back receiver-first.
func (r *Registry) resolveFunc(d *accessor.Descriptor) (*entry, reflect.Value, bool, error) {
	if d == nil {
		return nil, reflect.Value{}, false, fmt.Errorf("%w: nil descriptor", accessor.ErrResolution)
	}
	if d.Kind() == accessor.KindField {
		return nil, reflect.Value{}, false, fmt.Errorf("%w: %s is a field, not a callable", accessor.ErrResolution, d.Key())
	}
	e := r.entryByType(d.Owner())
	if e == nil {
		return nil, reflect.Value{}, false, fmt.Errorf("%w: owner %s not registered", accessor.ErrResolution, d.Owner())
	}

	switch {
	case d.Kind() == accessor.KindConstructor:
		fv, ok := e.ctors[d.Name()]
		if !ok {
			return nil, reflect.Value{}, false, fmt.Errorf("%w: no constructor %s on %s", accessor.ErrResolution, d.Name(), e.name)
		}
		return e, fv, false, nil
	case d.IsStatic():
		fv, ok := e.statics[d.Name()]
		if !ok {
			return nil, reflect.Value{}, false, fmt.Errorf("%w: no static %s on %s", accessor.ErrResolution, d.Name(), e.name)
		}
		return e, fv, false, nil
	default:
		m, ok := e.rtype.MethodByName(d.Name())
		if !ok {
			return nil, reflect.Value{}, false, fmt.Errorf("%w: no method %s on %s", accessor.ErrResolution, d.Name(), e.rtype)
		}
		if m.Type.NumIn()-1 != d.NumParams() {
			return nil, reflect.Value{}, false, fmt.Errorf("%w: method %s changed shape since discovery", accessor.ErrResolution, d.Name())
		}
		return e, m.Func, true, nil
	}
}

// CallerVariant discovers the caller-aware alternate entry point for a
// sensitive callable: a sibling named <Name>As whose leading parameter
// is *accessor.Caller and whose remaining shape matches the
// descriptor. (nil, nil) means no conforming variant exists.
func (r *Registry) CallerVariant(d *accessor.Descriptor) (accessor.CallerInvokeHandle, error) {
	if d == nil || !d.IsCallerSensitive() {
		return nil, nil
	}
	e := r.entryByType(d.Owner())
	if e == nil {
		return nil, fmt.Errorf("%w: owner %s not registered", accessor.ErrResolution, d.Owner())
	}

	var fn reflect.Value
	var isMethod bool
	if d.IsStatic() {
		fv, ok := e.statics[d.Name()+"As"]
		if !ok || !variantShape(fv.Type(), 0, d) {
			return nil, nil
		}
		fn = fv
	} else {
		m, ok := e.rtype.MethodByName(d.Name() + "As")
		if !ok || !variantShape(m.Type, 1, d) {
			return nil, nil
		}
		fn = m.Func
		isMethod = true
	}
	return &variantHandle{key: d.Key(), e: e, fn: fn, method: isMethod}, nil
}

// variantShape checks that ft is the descriptor's signature with one
// extra *Caller parameter in front. recvOffset is 1 for methods, whose
// first parameter is the receiver.
func variantShape(ft reflect.Type, recvOffset int, d *accessor.Descriptor) bool {
	if ft.IsVariadic() {
		return false
	}
	if ft.NumIn() != recvOffset+1+d.NumParams() || ft.NumOut() != d.NumResults() {
		return false
	}
	if ft.In(recvOffset) != callerType {
		return false
	}
	params := d.Params()
	for i, p := range params {
		if ft.In(recvOffset+1+i) != p {
			return false
		}
	}
	results := d.Results()
	for i, res := range results {
		if ft.Out(i) != res {
			return false
		}
	}
	return true
}

// BindCaller authorizes a caller against the member's gate and
// resolves a handle owned by that caller. Refusal wraps ErrResolution.
func (r *Registry) BindCaller(d *accessor.Descriptor, caller *accessor.Caller) (accessor.InvokeHandle, error) {
	if d == nil || !d.IsCallerSensitive() {
		return nil, fmt.Errorf("%w: binding a caller to a non-sensitive member", accessor.ErrResolution)
	}
	if caller == nil {
		return nil, fmt.Errorf("%w: no caller to bind for %s", accessor.ErrResolution, d.Key())
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
	return &invokeHandle{key: d.Key(), e: e, fn: fn, method: isMethod}, nil
}

// ---------------------------------------------------------------------------
// Invocation handles
// ---------------------------------------------------------------------------

// invokeHandle is the interpretive callable handle: a reflect.Call
// bridge with no validation of its own.
type invokeHandle struct {
	key    string
	e      *entry
	fn     reflect.Value
	method bool
}

// Call invokes the target through reflection.
func (h *invokeHandle) Call(receiver any, args []any) ([]any, error) {
	if err := h.e.ensureInit(); err != nil {
		return nil, err
	}
	ft := h.fn.Type()
	in := make([]reflect.Value, 0, len(args)+1)
	base := 0
	if h.method {
		in = append(in, reflect.ValueOf(receiver))
		base = 1
	}
	for i, arg := range args {
		v, err := toValue(arg, ft.In(base+i))
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	out, err := callCatching(h.key, h.fn, in)
	if err != nil {
		return nil, err
	}
	return fromValues(out), nil
}

// Alive reports whether the owning type is still registered.
func (h *invokeHandle) Alive() bool {
	return h.e.alive.Load()
}

// variantHandle dispatches to a caller-aware alternate entry point,
// threading the caller as the leading argument.
type variantHandle struct {
	key    string
	e      *entry
	fn     reflect.Value
	method bool
}

// CallAs invokes the variant with the caller in front.
func (h *variantHandle) CallAs(caller *accessor.Caller, receiver any, args []any) ([]any, error) {
	if err := h.e.ensureInit(); err != nil {
		return nil, err
	}
	ft := h.fn.Type()
	in := make([]reflect.Value, 0, len(args)+2)
	base := 1
	if h.method {
		in = append(in, reflect.ValueOf(receiver))
		base = 2
	}
	in = append(in, reflect.ValueOf(caller))
	for i, arg := range args {
		v, err := toValue(arg, ft.In(base+i))
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	out, err := callCatching(h.key, h.fn, in)
	if err != nil {
		return nil, err
	}
	return fromValues(out), nil
}

// Alive reports whether the owning type is still registered.
func (h *variantHandle) Alive() bool {
	return h.e.alive.Load()
}

// toValue bridges an already-validated argument to a parameter type.
// Conversion only closes the gap between exact-width built-ins and
// named primitive types.
func toValue(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(arg)
	if at := av.Type(); at != pt {
		if !at.AssignableTo(pt) {
			if !at.ConvertibleTo(pt) {
				return reflect.Value{}, fmt.Errorf("%w: %s value for %s parameter", accessor.ErrInternal, at, pt)
			}
			return av.Convert(pt), nil
		}
	}
	return av, nil
}

func fromValues(out []reflect.Value) []any {
	results := make([]any, len(out))
	for i := range out {
		results[i] = out[i].Interface()
	}
	return results
}

// callCatching performs the reflect call, converting a target panic
// into a TargetError so it cannot unwind through the accessor.
func callCatching(key string, fn reflect.Value, in []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = accessor.NewTargetError(key, panicError(p))
		}
	}()
	return fn.Call(in), nil
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", p)
}

// ---------------------------------------------------------------------------
// Field handles
// ---------------------------------------------------------------------------

// ResolveField resolves the storage handle for a field descriptor.
func (r *Registry) ResolveField(d *accessor.Descriptor) (accessor.FieldHandle, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil descriptor", accessor.ErrResolution)
	}
	if d.Kind() != accessor.KindField {
		return nil, fmt.Errorf("%w: %s is not a field", accessor.ErrResolution, d.Key())
	}
	e := r.entryByType(d.Owner())
	if e == nil {
		return nil, fmt.Errorf("%w: owner %s not registered", accessor.ErrResolution, d.Owner())
	}

	if d.IsStatic() {
		v, ok := e.staticVars[d.Name()]
		if !ok {
			return nil, fmt.Errorf("%w: no static var %s on %s", accessor.ErrResolution, d.Name(), e.name)
		}
		return &staticFieldHandle{e: e, v: v}, nil
	}

	st, err := structOf(e.rtype)
	if err != nil {
		return nil, err
	}
	f, ok := st.FieldByName(d.Name())
	if !ok {
		return nil, fmt.Errorf("%w: no field %s on %s", accessor.ErrResolution, d.Name(), st)
	}
	return &fieldHandle{name: d.Name(), e: e, index: f.Index}, nil
}

// fieldHandle reads and writes one struct field located by index path.
type fieldHandle struct {
	name  string
	e     *entry
	index []int
}

func (h *fieldHandle) field(receiver any) (fv reflect.Value, err error) {
	// A nil embedded pointer on the path to a promoted field panics in
	// FieldByIndex; surface it as a nil receiver problem.
	defer func() {
		if recover() != nil {
			fv = reflect.Value{}
			err = fmt.Errorf("%w: nil embedded struct on path to %s", accessor.ErrNilReceiver, h.name)
		}
	}()
	rv := reflect.ValueOf(receiver)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return rv.FieldByIndex(h.index), nil
}

// Load reads the field's current value at its declared type.
func (h *fieldHandle) Load(receiver any) (any, error) {
	if err := h.e.ensureInit(); err != nil {
		return nil, err
	}
	fv, err := h.field(receiver)
	if err != nil {
		return nil, err
	}
	return fv.Interface(), nil
}

// Store writes an assignable value. Writing requires a pointer
// receiver; a struct copy would absorb the write invisibly.
func (h *fieldHandle) Store(receiver any, value any) error {
	if err := h.e.ensureInit(); err != nil {
		return err
	}
	fv, err := h.field(receiver)
	if err != nil {
		return err
	}
	if !fv.CanSet() {
		return fmt.Errorf("%w: writing %s requires a pointer receiver", accessor.ErrTypeMismatch, h.name)
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	vv, err := toValue(value, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(vv)
	return nil
}

// staticFieldHandle reads and writes a registered static variable.
// The receiver is ignored.
type staticFieldHandle struct {
	e *entry
	v reflect.Value
}

// Load reads the variable.
func (h *staticFieldHandle) Load(any) (any, error) {
	if err := h.e.ensureInit(); err != nil {
		return nil, err
	}
	return h.v.Interface(), nil
}

// Store writes the variable.
func (h *staticFieldHandle) Store(_ any, value any) error {
	if err := h.e.ensureInit(); err != nil {
		return err
	}
	if value == nil {
		h.v.Set(reflect.Zero(h.v.Type()))
		return nil
	}
	vv, err := toValue(value, h.v.Type())
	if err != nil {
		return err
	}
	h.v.Set(vv)
	return nil
}
