package accessor

// interpretiveAccessor is the slow, universally-correct path: validate
// the receiver, coerce arguments against the descriptor, then call
// through the generic handle. It is the initial delegate of every
// promotion controller and stays reachable for its whole lifetime.
type interpretiveAccessor struct {
	desc   *Descriptor
	handle InvokeHandle
}

func newInterpretive(d *Descriptor, h InvokeHandle) *interpretiveAccessor {
	return &interpretiveAccessor{desc: d, handle: h}
}

func (a *interpretiveAccessor) Descriptor() *Descriptor { return a.desc }

func (a *interpretiveAccessor) Invoke(receiver any, args []any) ([]any, error) {
	if err := ValidateReceiver(a.desc, receiver); err != nil {
		return nil, err
	}
	coerced, err := coerceArgs(a.desc, args)
	if err != nil {
		return nil, err
	}
	return a.handle.Call(receiver, coerced)
}

// InvokeAs on a non-sensitive accessor ignores the caller token; the
// caller-sensitive wrappers never expose a bare interpretive accessor.
func (a *interpretiveAccessor) InvokeAs(caller *Caller, receiver any, args []any) ([]any, error) {
	return a.Invoke(receiver, args)
}
