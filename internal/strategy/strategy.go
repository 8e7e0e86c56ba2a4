// Package strategy defines the Strategy interface for backtested trading
// strategies, the Context facade a strategy uses to read data and place
// orders, and a Registry of strategy factories for lookup by name.
package strategy

import (
	"fmt"
	"sort"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs one-time setup before iteration starts. It is the only
	// place indicators may be registered via Context.I.
	Init(ctx *Context) error

	// Next is called once per bar, after that bar's orders have been
	// matched. The Context exposes all data up to and including the
	// current bar.
	Next(ctx *Context)
}

// OrderSpec describes an order a strategy wants to place. Size is in whole
// units; Limit, Stop, SL and TP are prices, with zero meaning unset. At most
// one of Limit and Stop may be set; leaving both zero places a market order.
type OrderSpec struct {
	Size  int
	Limit float64
	Stop  float64
	SL    float64
	TP    float64
	Tag   string
}

// ---------------------------------------------------------------------------
// Lifecycle errors
// ---------------------------------------------------------------------------

// LifecycleError reports a Context method called in the wrong phase, such as
// registering an indicator from Next or placing an order from Init.
type LifecycleError struct {
	Op    string // the method that was called
	Phase string // the phase it was called in
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("strategy lifecycle: %s called during %s", e.Op, e.Phase)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Factory constructs a fresh strategy instance. Each backtest run gets its
// own instance so per-run state never leaks between runs.
type Factory func() Strategy

// Registry holds named strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name, replacing any previous
// registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New constructs a fresh instance of the named strategy. The second return
// value indicates whether the name was found.
func (r *Registry) New(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
