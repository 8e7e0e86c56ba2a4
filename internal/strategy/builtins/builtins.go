package builtins

import "backlab/internal/strategy"

// Register adds factories for all built-in strategies to the registry.
func Register(r *strategy.Registry) {
	r.Register("sma_cross", func() strategy.Strategy { return NewSMACross() })
	r.Register("rsi_reversion", func() strategy.Strategy { return NewRSIReversion() })
	r.Register("bbands_reversion", func() strategy.Strategy { return NewBBandsReversion() })
}

// NewRegistry returns a registry with the built-in strategies registered.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
