// Package reflectbind binds accessor descriptors to live Go values
// through the reflect package.
//
// A Registry is the concrete introspection collaborator: types are
// registered with their statics, constructors, authorization gates,
// and read-only declarations, and the registry then discovers
// descriptors, resolves invocation and field handles, and generates
// specialized fast handles for promotion.
package reflectbind

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/mirror/accessor"
)

// Gate authorizes a caller's trust domain for one member. Returning an
// error refuses the binding.
type Gate func(caller *accessor.Caller) error

// InitError reports a failed type initializer. It propagates through
// every accessor layer unmodified, so callers can tell a broken
// initializer from a broken invocation.
type InitError struct {
	Type  string
	Cause error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("reflectbind: initializing %s: %v", e.Type, e.Cause)
}

// Unwrap returns the initializer's failure.
func (e *InitError) Unwrap() error {
	return e.Cause
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// Option configures one type registration.
type Option func(*entry)

// WithInit attaches an initializer run at most once, before the first
// call or field access through any of the type's handles. Its error is
// sticky: every later access fails with the same *InitError.
func WithInit(fn func() error) Option {
	return func(e *entry) { e.initFn = fn }
}

// WithGate marks a member caller-sensitive and attaches its
// authorization gate. A nil gate marks the member sensitive without
// refusing anyone, for members whose caller-aware variant does its own
// judging.
func WithGate(member string, gate Gate) Option {
	return func(e *entry) { e.gates[member] = gate }
}

// WithReadOnly declares fields immutable in addition to any
// `mirror:"readonly"` struct tags.
func WithReadOnly(fields ...string) Option {
	return func(e *entry) {
		for _, f := range fields {
			e.readOnly[f] = true
		}
	}
}

// WithStatic registers a static function under the type's namespace.
// fn must be a non-variadic function value.
func WithStatic(name string, fn any) Option {
	return func(e *entry) { e.statics[name] = reflect.ValueOf(fn) }
}

// WithConstructor registers a constructor function. Constructors are
// static callables dispatched like any other.
func WithConstructor(name string, fn any) Option {
	return func(e *entry) { e.ctors[name] = reflect.ValueOf(fn) }
}

// WithStaticVar registers a static field backed by the pointed-to
// variable. ptr must be a non-nil pointer.
func WithStaticVar(name string, ptr any) Option {
	return func(e *entry) { e.staticVars[name] = reflect.ValueOf(ptr) }
}

// entry is one registered type and everything attached to it.
type entry struct {
	name  string
	rtype reflect.Type // registered receiver type, usually *T
	alive atomic.Bool

	initFn   func() error
	initOnce sync.Once
	initErr  error

	gates      map[string]Gate
	readOnly   map[string]bool
	statics    map[string]reflect.Value
	ctors      map[string]reflect.Value
	staticVars map[string]reflect.Value // Elem of the registered pointer
}

// ensureInit runs the initializer once and returns its sticky error.
func (e *entry) ensureInit() error {
	e.initOnce.Do(func() {
		if e.initFn != nil {
			e.initErr = e.initFn()
		}
	})
	if e.initErr != nil {
		return &InitError{Type: e.name, Cause: e.initErr}
	}
	return nil
}

// Registry maps registered names and Go types to their entries.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*entry
	byType map[reflect.Type]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byType: make(map[reflect.Type]*entry),
	}
}

// Register adds a type under a name. sample carries the receiver type:
// register &T{} to expose *T's method set and T's fields. Registering
// a name again replaces the old entry and marks its handles dead.
func (r *Registry) Register(name string, sample any, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("%w: empty registration name", accessor.ErrResolution)
	}
	rtype := reflect.TypeOf(sample)
	if rtype == nil {
		return fmt.Errorf("%w: nil sample for %q", accessor.ErrResolution, name)
	}

	e := &entry{
		name:       name,
		rtype:      rtype,
		gates:      make(map[string]Gate),
		readOnly:   make(map[string]bool),
		statics:    make(map[string]reflect.Value),
		ctors:      make(map[string]reflect.Value),
		staticVars: make(map[string]reflect.Value),
	}
	e.alive.Store(true)
	for _, opt := range opts {
		opt(e)
	}

	for fname, fv := range e.statics {
		if fv.Kind() != reflect.Func || fv.Type().IsVariadic() {
			return fmt.Errorf("%w: static %s.%s is not a plain function", accessor.ErrResolution, name, fname)
		}
	}
	for fname, fv := range e.ctors {
		if fv.Kind() != reflect.Func || fv.Type().IsVariadic() {
			return fmt.Errorf("%w: constructor %s.%s is not a plain function", accessor.ErrResolution, name, fname)
		}
	}
	for vname, pv := range e.staticVars {
		if pv.Kind() != reflect.Pointer || pv.IsNil() {
			return fmt.Errorf("%w: static var %s.%s is not a non-nil pointer", accessor.ErrResolution, name, vname)
		}
		e.staticVars[vname] = pv.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old := r.byName[name]; old != nil {
		old.alive.Store(false)
		delete(r.byType, old.rtype)
	}
	if old := r.byType[rtype]; old != nil {
		old.alive.Store(false)
		delete(r.byName, old.name)
	}
	r.byName[name] = e
	r.byType[rtype] = e
	return nil
}

// Unregister removes a type and marks its outstanding handles dead,
// reporting whether the name was registered. The caller binding cache
// notices dead handles and rebinds.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byName[name]
	if e == nil {
		return false
	}
	e.alive.Store(false)
	delete(r.byName, name)
	delete(r.byType, e.rtype)
	return true
}

func (r *Registry) entryByName(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

func (r *Registry) entryByType(t reflect.Type) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// ---------------------------------------------------------------------------
// Descriptor discovery
// ---------------------------------------------------------------------------

// MethodDescriptor builds the descriptor for an instance method of a
// registered type.
func (r *Registry) MethodDescriptor(typeName, method string) (*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}
	m, ok := e.rtype.MethodByName(method)
	if !ok {
		return nil, fmt.Errorf("%w: no method %s on %s", accessor.ErrResolution, method, e.rtype)
	}
	mt := m.Type
	if mt.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic method %s is not supported", accessor.ErrResolution, method)
	}

	params := make([]reflect.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		params = append(params, mt.In(i))
	}
	_, sensitive := e.gates[method]

	return accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:            accessor.KindMethod,
		Owner:           e.rtype,
		Name:            method,
		Params:          params,
		Results:         resultTypes(mt),
		CallerSensitive: sensitive,
	})
}

// StaticDescriptor builds the descriptor for a registered static
// function.
func (r *Registry) StaticDescriptor(typeName, name string) (*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}
	fv, ok := e.statics[name]
	if !ok {
		return nil, fmt.Errorf("%w: no static %s on %s", accessor.ErrResolution, name, typeName)
	}
	_, sensitive := e.gates[name]

	return accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:            accessor.KindMethod,
		Owner:           e.rtype,
		Name:            name,
		Params:          paramTypes(fv.Type()),
		Results:         resultTypes(fv.Type()),
		Static:          true,
		CallerSensitive: sensitive,
	})
}

// ConstructorDescriptor builds the descriptor for a registered
// constructor.
func (r *Registry) ConstructorDescriptor(typeName, name string) (*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}
	fv, ok := e.ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: no constructor %s on %s", accessor.ErrResolution, name, typeName)
	}

	return accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:    accessor.KindConstructor,
		Owner:   e.rtype,
		Name:    name,
		Params:  paramTypes(fv.Type()),
		Results: resultTypes(fv.Type()),
	})
}

// FieldDescriptor builds the descriptor for an exported struct field.
// Read-only comes from the `mirror:"readonly"` tag or WithReadOnly.
func (r *Registry) FieldDescriptor(typeName, field string) (*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}
	st, err := structOf(e.rtype)
	if err != nil {
		return nil, err
	}
	f, ok := st.FieldByName(field)
	if !ok {
		return nil, fmt.Errorf("%w: no field %s on %s", accessor.ErrResolution, field, st)
	}
	if f.PkgPath != "" {
		return nil, fmt.Errorf("%w: field %s on %s is unexported", accessor.ErrResolution, field, st)
	}

	return accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:     accessor.KindField,
		Owner:    e.rtype,
		Name:     field,
		Field:    f.Type,
		ReadOnly: e.readOnly[field] || tagReadOnly(f.Tag),
	})
}

// StaticFieldDescriptor builds the descriptor for a registered static
// variable.
func (r *Registry) StaticFieldDescriptor(typeName, name string) (*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}
	v, ok := e.staticVars[name]
	if !ok {
		return nil, fmt.Errorf("%w: no static var %s on %s", accessor.ErrResolution, name, typeName)
	}

	return accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:     accessor.KindField,
		Owner:    e.rtype,
		Name:     name,
		Field:    v.Type(),
		Static:   true,
		ReadOnly: e.readOnly[name],
	})
}

// Descriptors enumerates every member of a registered type: exported
// methods (caller-aware variants excluded), exported fields, statics,
// constructors, and static vars, sorted by key. Variadic methods are
// skipped.
func (r *Registry) Descriptors(typeName string) ([]*accessor.Descriptor, error) {
	e := r.entryByName(typeName)
	if e == nil {
		return nil, fmt.Errorf("%w: type %q not registered", accessor.ErrResolution, typeName)
	}

	var out []*accessor.Descriptor
	for i := 0; i < e.rtype.NumMethod(); i++ {
		m := e.rtype.Method(i)
		if m.Type.IsVariadic() || isVariantOf(e.rtype, m) {
			continue
		}
		d, err := r.MethodDescriptor(typeName, m.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	for name := range e.statics {
		d, err := r.StaticDescriptor(typeName, name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	for name := range e.ctors {
		d, err := r.ConstructorDescriptor(typeName, name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if st, err := structOf(e.rtype); err == nil {
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if f.PkgPath != "" || f.Anonymous {
				continue
			}
			d, err := r.FieldDescriptor(typeName, f.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	for name := range e.staticVars {
		d, err := r.StaticFieldDescriptor(typeName, name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func paramTypes(ft reflect.Type) []reflect.Type {
	params := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	return params
}

func resultTypes(ft reflect.Type) []reflect.Type {
	results := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		results = append(results, ft.Out(i))
	}
	return results
}

// structOf unwraps a registered receiver type to its struct type.
func structOf(t reflect.Type) (reflect.Type, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s has no fields", accessor.ErrResolution, t)
	}
	return t, nil
}

func tagReadOnly(tag reflect.StructTag) bool {
	for _, part := range strings.Split(tag.Get("mirror"), ",") {
		if strings.TrimSpace(part) == "readonly" {
			return true
		}
	}
	return false
}

var callerType = reflect.TypeOf((*accessor.Caller)(nil))

// isVariantOf reports whether m is the caller-aware variant of another
// method on the same type: named <Base>As, leading *Caller parameter,
// with <Base> also present.
func isVariantOf(rtype reflect.Type, m reflect.Method) bool {
	base, ok := strings.CutSuffix(m.Name, "As")
	if !ok || base == "" {
		return false
	}
	if m.Type.NumIn() < 2 || m.Type.In(1) != callerType {
		return false
	}
	_, exists := rtype.MethodByName(base)
	return exists
}
