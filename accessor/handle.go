package accessor

// Collaborator Contracts
//
// The accessor layer never performs introspection or code generation
// itself. A Provider resolves descriptors into low-level handles and a
// Generator builds specialized fast handles; both are supplied by the
// binding layer (see package reflectbind for the reflect-backed one).

// InvokeHandle is an opaque, pre-resolved capability to perform a call.
// Handles produced by Provider.ResolveCallable are invoked after the
// interpretive layer has validated the receiver and coerced arguments
// to the descriptor's declared widths. Handles produced by a Generator
// embed their own validation and accept raw input.
type InvokeHandle interface {
	Call(receiver any, args []any) ([]any, error)
}

// CallerInvokeHandle is a handle on a caller-aware entry point: an
// implementation that takes the caller context as an explicit leading
// parameter and decides for itself how to treat it.
type CallerInvokeHandle interface {
	CallAs(caller *Caller, receiver any, args []any) ([]any, error)
}

// FieldHandle is an opaque capability for one field's storage.
// Load returns the value as the declared field type. Store requires a
// value assignable to the declared field type; the field accessor
// performs all widening and checking before calling it.
type FieldHandle interface {
	Load(receiver any) (any, error)
	Store(receiver any, value any) error
}

// Liveness is optionally implemented by handles whose target can be
// withdrawn after resolution. A handle reporting false is discarded by
// the caller binding cache and a fresh one is resolved.
type Liveness interface {
	Alive() bool
}

// ---------------------------------------------------------------------------
// Caller context
// ---------------------------------------------------------------------------

// Caller is an opaque token identifying calling code's trust domain.
// The host creates one per domain and passes it to InvokeAs; identity
// is pointer identity, so two tokens with equal names are distinct
// callers. The binding cache holds callers weakly and a collected
// token simply forces a rebind on next use.
type Caller struct {
	name string
}

// NewCaller creates a caller token with a diagnostic name.
func NewCaller(name string) *Caller {
	return &Caller{name: name}
}

// Name returns the diagnostic name given at creation.
func (c *Caller) Name() string {
	if c == nil {
		return "<none>"
	}
	return c.name
}

// ---------------------------------------------------------------------------
// Provider and Generator
// ---------------------------------------------------------------------------

// Provider resolves descriptors into handles. Implementations report
// failures by wrapping ErrResolution.
type Provider interface {
	// ResolveCallable resolves a method, static function, or
	// constructor descriptor into a generic invocation handle.
	ResolveCallable(d *Descriptor) (InvokeHandle, error)

	// ResolveField resolves a field descriptor into a storage handle.
	ResolveField(d *Descriptor) (FieldHandle, error)

	// CallerVariant reports whether the descriptor has a caller-aware
	// alternate entry point. It returns (nil, nil) when none exists;
	// a non-nil handle dispatches there with an explicit caller.
	CallerVariant(d *Descriptor) (CallerInvokeHandle, error)

	// BindCaller resolves a handle permanently associated with the
	// given caller's trust domain, running any authorization the
	// binding layer has registered. Denial wraps ErrResolution.
	BindCaller(d *Descriptor, caller *Caller) (InvokeHandle, error)
}

// Generator builds specialized fast handles. Generation is fallible;
// the promotion controller falls back to the interpretive path when
// it fails, so a Generator error is never visible to invokers.
type Generator interface {
	// GenerateCallable builds a fast handle equivalent to the
	// interpretive path for the descriptor: same validation, same
	// error classification, same results.
	GenerateCallable(d *Descriptor) (InvokeHandle, error)

	// GenerateBound is GenerateCallable for a caller-bound path.
	GenerateBound(d *Descriptor, caller *Caller) (InvokeHandle, error)
}
