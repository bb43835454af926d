package algo

// DefaultRegistry returns a Registry populated with every built-in family.
// The evolution engine only ever accepts candidates from this set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SMACrossoverFamily())
	r.Register(EMACrossoverFamily())
	r.Register(RSIReversionFamily())
	r.Register(MomentumFamily())
	r.Register(SentimentTiltFamily())
	return r
}
