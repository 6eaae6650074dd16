package accessor

import "fmt"

// directAccessor wraps an already-specialized handle. Generated
// handles validate their own input, so the wrapper adds nothing on
// the call path. This is the delegate a promotion controller swaps in.
type directAccessor struct {
	desc   *Descriptor
	handle InvokeHandle
}

func newDirect(d *Descriptor, h InvokeHandle) *directAccessor {
	return &directAccessor{desc: d, handle: h}
}

func (a *directAccessor) Descriptor() *Descriptor { return a.desc }

func (a *directAccessor) Invoke(receiver any, args []any) ([]any, error) {
	return a.handle.Call(receiver, args)
}

func (a *directAccessor) InvokeAs(caller *Caller, receiver any, args []any) ([]any, error) {
	return a.handle.Call(receiver, args)
}

// callerDirectAccessor dispatches to a caller-aware alternate entry
// point. The target receives the caller and judges it itself, so no
// binding cache or promotion sits in front: the path is already as
// fast as a generated one.
type callerDirectAccessor struct {
	desc   *Descriptor
	handle CallerInvokeHandle
}

func newCallerDirect(d *Descriptor, h CallerInvokeHandle) *callerDirectAccessor {
	return &callerDirectAccessor{desc: d, handle: h}
}

func (a *callerDirectAccessor) Descriptor() *Descriptor { return a.desc }

// Invoke without a caller context cannot reach a caller-sensitive
// target.
func (a *callerDirectAccessor) Invoke(receiver any, args []any) ([]any, error) {
	return nil, fmt.Errorf("%w: %s requires a caller context", ErrTypeMismatch, a.desc.Name())
}

func (a *callerDirectAccessor) InvokeAs(caller *Caller, receiver any, args []any) ([]any, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: %s requires a caller context", ErrTypeMismatch, a.desc.Name())
	}
	if err := ValidateReceiver(a.desc, receiver); err != nil {
		return nil, err
	}
	coerced, err := coerceArgs(a.desc, args)
	if err != nil {
		return nil, err
	}
	return a.handle.CallAs(caller, receiver, coerced)
}
