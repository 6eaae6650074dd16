package accessor

// DefaultPromotionThreshold is the invocation count a callable must
// exceed before its factory promotes it to a generated fast path.
const DefaultPromotionThreshold = 100

// Policy configures a factory's adaptive behavior. The zero value
// promotes at the default threshold.
type Policy struct {
	PromotionThreshold uint64 // calls before promotion; 0 means DefaultPromotionThreshold
	DisablePromotion   bool   // keep every accessor on the interpretive path
}

// DefaultPolicy returns the policy a new factory starts with.
func DefaultPolicy() Policy {
	return Policy{PromotionThreshold: DefaultPromotionThreshold}
}

func (p Policy) threshold() uint64 {
	if p.PromotionThreshold == 0 {
		return DefaultPromotionThreshold
	}
	return p.PromotionThreshold
}
