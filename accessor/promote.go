package accessor

import "sync/atomic"

// Adaptive Promotion
//
// Every callable accessor starts on the interpretive path. A counter
// tracks use; the call that pushes it past the threshold races on a
// one-shot flag, and the single winner generates a specialized handle
// and swaps the delegate. Losers and concurrent calls keep using
// whichever delegate they load; there is never a moment without one.
// If generation fails the flag rolls back so a later call can retry,
// and the failure is logged, never surfaced: invocation correctness
// does not depend on promotion.

// delegateBox wraps the delegate so the atomic pointer always swaps a
// fully-built accessor.
type delegateBox struct {
	acc Accessor
}

// promotingAccessor counts invocations and swaps its delegate from the
// interpretive accessor to a generated one exactly once.
type promotingAccessor struct {
	desc      *Descriptor
	threshold uint64
	generate  func() (InvokeHandle, error) // nil disables promotion

	count    atomic.Uint64
	promoted atomic.Bool
	failures atomic.Uint64
	delegate atomic.Pointer[delegateBox]
}

func newPromoting(d *Descriptor, initial Accessor, threshold uint64, generate func() (InvokeHandle, error)) *promotingAccessor {
	p := &promotingAccessor{
		desc:      d,
		threshold: threshold,
		generate:  generate,
	}
	p.delegate.Store(&delegateBox{acc: initial})
	return p
}

func (p *promotingAccessor) Descriptor() *Descriptor { return p.desc }

func (p *promotingAccessor) Invoke(receiver any, args []any) ([]any, error) {
	p.advance()
	return p.delegate.Load().acc.Invoke(receiver, args)
}

func (p *promotingAccessor) InvokeAs(caller *Caller, receiver any, args []any) ([]any, error) {
	p.advance()
	return p.delegate.Load().acc.InvokeAs(caller, receiver, args)
}

// advance counts one invocation and promotes past the threshold.
func (p *promotingAccessor) advance() {
	n := p.count.Add(1)
	if p.generate == nil || n <= p.threshold || p.promoted.Load() {
		return
	}
	p.tryPromote()
}

// tryPromote claims the one-shot flag and generates the fast handle.
// Exactly one claimant can hold the flag at a time; on generation
// failure the flag is released so a later call retries.
func (p *promotingAccessor) tryPromote() {
	if !p.promoted.CompareAndSwap(false, true) {
		return
	}
	h, err := p.generate()
	if err != nil {
		p.failures.Add(1)
		p.promoted.Store(false)
		log.Warningf("promotion of %s failed, staying interpretive: %v", p.desc.Key(), err)
		return
	}
	p.delegate.Store(&delegateBox{acc: newDirect(p.desc, h)})
	log.Debugf("promoted %s after %d invocations", p.desc.Key(), p.count.Load())
}

// forcePromote promotes immediately, used for prewarmed descriptors.
// Failure is silent beyond the log; the accessor stays interpretive.
func (p *promotingAccessor) forcePromote() {
	if p.generate == nil {
		return
	}
	p.tryPromote()
}

// Promoted reports whether the fast delegate is installed.
func (p *promotingAccessor) Promoted() bool {
	return p.promoted.Load()
}

// Invocations returns the number of calls seen so far.
func (p *promotingAccessor) Invocations() uint64 {
	return p.count.Load()
}

// GenerationFailures returns how many promotion attempts failed.
func (p *promotingAccessor) GenerationFailures() uint64 {
	return p.failures.Load()
}
