package accessor

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind distinguishes the member categories a descriptor can name.
type Kind uint8

const (
	KindMethod      Kind = iota // instance or static method
	KindConstructor             // constructor function, always static
	KindField                   // instance or static field
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindConstructor:
		return "constructor"
	case KindField:
		return "field"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// DescriptorSpec is the mutable input to NewDescriptor. Fields not
// meaningful for the kind must be left zero.
type DescriptorSpec struct {
	Kind            Kind
	Owner           reflect.Type   // owning type; receiver type for instance members
	Name            string         // member name
	Params          []reflect.Type // callable parameter types, excluding receiver and caller
	Results         []reflect.Type // callable result types
	Field           reflect.Type   // field type, fields only
	Static          bool
	ReadOnly        bool // fields only
	CallerSensitive bool // callables only
}

// Descriptor is immutable metadata identifying a callable or field.
// Instances are created once by introspection, validated, and never
// mutated; accessors built from one hold it for its whole lifetime.
type Descriptor struct {
	kind      Kind
	owner     reflect.Type
	name      string
	params    []reflect.Type
	results   []reflect.Type
	ftype     reflect.Type
	static    bool
	readOnly  bool
	sensitive bool
}

// NewDescriptor validates a spec and freezes it into a Descriptor.
// Slices are copied so later mutation of the spec has no effect.
func NewDescriptor(s DescriptorSpec) (*Descriptor, error) {
	if s.Owner == nil {
		return nil, fmt.Errorf("%w: descriptor has no owner type", ErrResolution)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("%w: descriptor has no member name", ErrResolution)
	}

	switch s.Kind {
	case KindMethod, KindConstructor:
		if s.Field != nil {
			return nil, fmt.Errorf("%w: callable descriptor %s carries a field type", ErrResolution, s.Name)
		}
		if s.ReadOnly {
			return nil, fmt.Errorf("%w: callable descriptor %s marked read-only", ErrResolution, s.Name)
		}
	case KindField:
		if s.Field == nil {
			return nil, fmt.Errorf("%w: field descriptor %s has no field type", ErrResolution, s.Name)
		}
		if len(s.Params) != 0 || len(s.Results) != 0 {
			return nil, fmt.Errorf("%w: field descriptor %s carries a signature", ErrResolution, s.Name)
		}
		if s.CallerSensitive {
			return nil, fmt.Errorf("%w: field descriptor %s marked caller-sensitive", ErrResolution, s.Name)
		}
	default:
		return nil, fmt.Errorf("%w: unknown descriptor kind %d", ErrResolution, s.Kind)
	}

	d := &Descriptor{
		kind:      s.Kind,
		owner:     s.Owner,
		name:      s.Name,
		params:    append([]reflect.Type(nil), s.Params...),
		results:   append([]reflect.Type(nil), s.Results...),
		ftype:     s.Field,
		static:    s.Static,
		readOnly:  s.ReadOnly,
		sensitive: s.CallerSensitive,
	}
	if s.Kind == KindConstructor {
		d.static = true
	}
	return d, nil
}

// Kind returns the member category.
func (d *Descriptor) Kind() Kind { return d.kind }

// Owner returns the owning type. For instance members this is the
// receiver type the accessor validates against.
func (d *Descriptor) Owner() reflect.Type { return d.owner }

// Name returns the member name.
func (d *Descriptor) Name() string { return d.name }

// NumParams returns the number of declared parameters.
func (d *Descriptor) NumParams() int { return len(d.params) }

// Param returns the i-th declared parameter type.
func (d *Descriptor) Param(i int) reflect.Type { return d.params[i] }

// Params returns a copy of the declared parameter types.
func (d *Descriptor) Params() []reflect.Type {
	return append([]reflect.Type(nil), d.params...)
}

// NumResults returns the number of declared results.
func (d *Descriptor) NumResults() int { return len(d.results) }

// Result returns the i-th declared result type.
func (d *Descriptor) Result(i int) reflect.Type { return d.results[i] }

// Results returns a copy of the declared result types.
func (d *Descriptor) Results() []reflect.Type {
	return append([]reflect.Type(nil), d.results...)
}

// FieldType returns the declared field type, or nil for callables.
func (d *Descriptor) FieldType() reflect.Type { return d.ftype }

// FieldCode returns the width code of the field type, or Ref for callables.
func (d *Descriptor) FieldCode() TypeCode { return CodeOf(d.ftype) }

// IsStatic reports whether the member ignores its receiver.
func (d *Descriptor) IsStatic() bool { return d.static }

// IsReadOnly reports whether the field refuses writes.
func (d *Descriptor) IsReadOnly() bool { return d.readOnly }

// IsCallerSensitive reports whether the callable's behavior depends on
// the identity of its caller.
func (d *Descriptor) IsCallerSensitive() bool { return d.sensitive }

// Key returns a stable identity string, "kind:owner.name". Usage
// profiles and prewarm sets are keyed by it.
func (d *Descriptor) Key() string {
	return fmt.Sprintf("%s:%s.%s", d.kind, ownerName(d.owner), d.name)
}

// String returns a readable signature for diagnostics.
func (d *Descriptor) String() string {
	var sb strings.Builder
	sb.WriteString(d.kind.String())
	sb.WriteByte(' ')
	sb.WriteString(ownerName(d.owner))
	sb.WriteByte('.')
	sb.WriteString(d.name)
	if d.kind == KindField {
		sb.WriteByte(' ')
		sb.WriteString(d.ftype.String())
		return sb.String()
	}
	sb.WriteByte('(')
	for i, p := range d.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// ownerName renders an owner type without its pointer marker, so *T
// and T key identically.
func ownerName(t reflect.Type) string {
	return strings.TrimPrefix(t.String(), "*")
}
