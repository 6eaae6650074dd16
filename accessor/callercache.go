package accessor

import (
	"fmt"
	"sync/atomic"
	"weak"
)

// Caller-Sensitive Binding Cache
//
// A caller-sensitive target without a caller-aware entry point needs a
// handle bound to each caller's trust domain. The dominant pattern is
// one call site invoked repeatedly by the same caller, so a single
// cache slot captures it: hit on caller identity, rebuild and
// overwrite on anything else. The slot holds the caller weakly; a
// collected token just misses. The bound accessor is held strongly,
// since nothing else keeps it alive, and its handle is checked for
// liveness on every hit. Two callers racing overwrite each other,
// which costs rebuilds, never correctness: each call runs on the
// complete accessor it just loaded or built.

// callerBinding is one cache slot: replaced whole, never mutated.
type callerBinding struct {
	caller weak.Pointer[Caller]
	handle InvokeHandle
	acc    Accessor
}

// buildBoundFunc wraps a caller-bound handle into a full accessor,
// typically interpretive plus a promotion controller whose generator
// is curried with the same caller.
type buildBoundFunc func(d *Descriptor, h InvokeHandle, caller *Caller) Accessor

// callerCachedAccessor is the accessor the factory returns for
// sensitive callables that have no caller-aware variant.
type callerCachedAccessor struct {
	desc     *Descriptor
	provider Provider
	build    buildBoundFunc

	slot    atomic.Pointer[callerBinding]
	rebinds atomic.Uint64
}

func newCallerCached(d *Descriptor, p Provider, build buildBoundFunc) *callerCachedAccessor {
	return &callerCachedAccessor{desc: d, provider: p, build: build}
}

func (a *callerCachedAccessor) Descriptor() *Descriptor { return a.desc }

// Invoke without a caller context cannot reach a caller-sensitive
// target.
func (a *callerCachedAccessor) Invoke(receiver any, args []any) ([]any, error) {
	return nil, fmt.Errorf("%w: %s requires a caller context", ErrTypeMismatch, a.desc.Name())
}

func (a *callerCachedAccessor) InvokeAs(caller *Caller, receiver any, args []any) ([]any, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: %s requires a caller context", ErrTypeMismatch, a.desc.Name())
	}

	if b := a.slot.Load(); b != nil && b.caller.Value() == caller && handleAlive(b.handle) {
		return b.acc.Invoke(receiver, args)
	}

	h, err := a.provider.BindCaller(a.desc, caller)
	if err != nil {
		return nil, err
	}
	acc := a.build(a.desc, h, caller)
	a.slot.Store(&callerBinding{
		caller: weak.Make(caller),
		handle: h,
		acc:    acc,
	})
	a.rebinds.Add(1)
	log.Debugf("bound %s to caller %q", a.desc.Key(), caller.Name())

	return acc.Invoke(receiver, args)
}

// Rebinds returns how many times the slot has been built, the first
// bind included.
func (a *callerCachedAccessor) Rebinds() uint64 {
	return a.rebinds.Load()
}

// handleAlive consults the handle's optional liveness report.
func handleAlive(h InvokeHandle) bool {
	if l, ok := h.(Liveness); ok {
		return l.Alive()
	}
	return true
}
