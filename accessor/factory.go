package accessor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mirror.accessor")

// Factory builds the right accessor composition for a descriptor:
// field accessors wired through the coercion engine, callables as
// interpretive accessors behind a promotion controller, and
// caller-sensitive callables behind either a variant entry point or
// the caller binding cache. Accessors are cached per descriptor key,
// so repeated builds share counters and promotion state.
type Factory struct {
	// Policy controls promotion. Set it before building accessors;
	// it is read at build time, not per call.
	Policy Policy

	provider Provider
	gen      Generator
	prewarm  map[string]struct{}

	mu        sync.RWMutex
	callables map[string]Accessor
	fields    map[string]*FieldAccessor
}

// NewFactory creates a factory over a provider. When the provider also
// implements Generator it doubles as the code generator; otherwise
// accessors stay interpretive until SetGenerator supplies one.
func NewFactory(p Provider) *Factory {
	f := &Factory{
		Policy:    DefaultPolicy(),
		provider:  p,
		prewarm:   make(map[string]struct{}),
		callables: make(map[string]Accessor),
		fields:    make(map[string]*FieldAccessor),
	}
	if g, ok := p.(Generator); ok {
		f.gen = g
	}
	return f
}

// SetGenerator replaces the code generator. Call before building.
func (f *Factory) SetGenerator(g Generator) {
	f.gen = g
}

// Prewarm marks descriptor keys for eager promotion at build time,
// typically the hot keys of a recorded usage profile. Generation
// failure during prewarm leaves the accessor interpretive.
func (f *Factory) Prewarm(keys ...string) {
	for _, k := range keys {
		f.prewarm[k] = struct{}{}
	}
}

// Callable builds (or returns the cached) accessor for a method,
// constructor, or static function descriptor.
func (f *Factory) Callable(d *Descriptor) (Accessor, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrResolution)
	}
	if d.Kind() == KindField {
		return nil, fmt.Errorf("%w: %s is a field, not a callable", ErrResolution, d.Key())
	}

	key := d.Key()
	f.mu.RLock()
	acc := f.callables[key]
	f.mu.RUnlock()
	if acc != nil {
		return acc, nil
	}

	acc, err := f.buildCallable(d)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if prev := f.callables[key]; prev != nil {
		acc = prev
	} else {
		f.callables[key] = acc
	}
	f.mu.Unlock()
	return acc, nil
}

// Field builds (or returns the cached) accessor for a field descriptor.
func (f *Factory) Field(d *Descriptor) (*FieldAccessor, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrResolution)
	}
	if d.Kind() != KindField {
		return nil, fmt.Errorf("%w: %s is not a field", ErrResolution, d.Key())
	}

	key := d.Key()
	f.mu.RLock()
	fa := f.fields[key]
	f.mu.RUnlock()
	if fa != nil {
		return fa, nil
	}

	h, err := f.provider.ResolveField(d)
	if err != nil {
		return nil, err
	}
	fa = newFieldAccessor(d, h)

	f.mu.Lock()
	if prev := f.fields[key]; prev != nil {
		fa = prev
	} else {
		f.fields[key] = fa
	}
	f.mu.Unlock()
	return fa, nil
}

func (f *Factory) buildCallable(d *Descriptor) (Accessor, error) {
	if d.IsCallerSensitive() {
		v, err := f.provider.CallerVariant(d)
		if err != nil {
			return nil, err
		}
		if v != nil {
			// The variant receives the caller itself; already fast.
			return newCallerDirect(d, v), nil
		}
		return newCallerCached(d, f.provider, f.buildBound), nil
	}

	h, err := f.provider.ResolveCallable(d)
	if err != nil {
		return nil, err
	}
	return f.wrapAdaptive(d, newInterpretive(d, h), func() (InvokeHandle, error) {
		return f.gen.GenerateCallable(d)
	}), nil
}

// buildBound wraps a caller-bound handle the same way buildCallable
// wraps an unbound one, with generation curried to the caller.
func (f *Factory) buildBound(d *Descriptor, h InvokeHandle, caller *Caller) Accessor {
	return f.wrapAdaptive(d, newInterpretive(d, h), func() (InvokeHandle, error) {
		return f.gen.GenerateBound(d, caller)
	})
}

// wrapAdaptive puts a promotion controller in front of the accessor
// unless promotion is unavailable or disabled.
func (f *Factory) wrapAdaptive(d *Descriptor, inner Accessor, generate func() (InvokeHandle, error)) Accessor {
	if f.gen == nil || f.Policy.DisablePromotion {
		return inner
	}
	p := newPromoting(d, inner, f.Policy.threshold(), generate)
	if _, hot := f.prewarm[d.Key()]; hot {
		p.forcePromote()
	}
	return p
}

// ---------------------------------------------------------------------------
// Usage and statistics
// ---------------------------------------------------------------------------

// UsageRecord is one callable's usage as seen by its factory. Records
// feed warmup profiles.
type UsageRecord struct {
	Key         string
	Kind        string
	Invocations uint64
	Promoted    bool
}

// Stats holds factory-wide accessor statistics.
type Stats struct {
	Callables          int    // callable accessors built
	Fields             int    // field accessors built
	CallerDirect       int    // sensitive callables on a variant entry point
	Promoted           int    // callables currently on the fast path
	Invocations        uint64 // calls through counting accessors
	GenerationFailures uint64 // promotion attempts that fell back
	CallerRebinds      uint64 // caller cache slot builds
}

// Usage returns one record per built callable, sorted by key.
func (f *Factory) Usage() []UsageRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]UsageRecord, 0, len(f.callables))
	for key, acc := range f.callables {
		rec := UsageRecord{Key: key, Kind: acc.Descriptor().Kind().String()}
		switch a := acc.(type) {
		case *promotingAccessor:
			rec.Invocations = a.Invocations()
			rec.Promoted = a.Promoted()
		case *callerCachedAccessor:
			if b := a.slot.Load(); b != nil {
				if p, ok := b.acc.(*promotingAccessor); ok {
					rec.Invocations = p.Invocations()
					rec.Promoted = p.Promoted()
				}
			}
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Stats returns aggregate statistics across all built accessors.
func (f *Factory) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Stats{Fields: len(f.fields)}
	for _, acc := range f.callables {
		s.Callables++
		switch a := acc.(type) {
		case *promotingAccessor:
			s.Invocations += a.Invocations()
			s.GenerationFailures += a.GenerationFailures()
			if a.Promoted() {
				s.Promoted++
			}
		case *callerDirectAccessor:
			s.CallerDirect++
		case *callerCachedAccessor:
			s.CallerRebinds += a.Rebinds()
			if b := a.slot.Load(); b != nil {
				if p, ok := b.acc.(*promotingAccessor); ok {
					s.Invocations += p.Invocations()
					s.GenerationFailures += p.GenerationFailures()
					if p.Promoted() {
						s.Promoted++
					}
				}
			}
		}
	}
	return s
}
