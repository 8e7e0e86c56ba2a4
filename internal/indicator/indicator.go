// Package indicator provides precomputed indicator arrays aligned with a bar
// series, plus a library of standard indicator functions.
//
// An indicator function is pure: full-length input arrays in, full-length
// output arrays out, with NaN marking the warm-up prefix. Functions are
// invoked exactly once, at registration during strategy init; afterwards the
// results are read through cursor-bounded prefix views, so strategy code can
// never see a value computed from future bars.
package indicator

import (
	"fmt"

	"backlab/internal/series"
)

// Func computes one or more output arrays from full-length input arrays.
// Every output must have the same length as the bar series. Implementations
// must be deterministic, free of side effects, and must not let the value at
// index i depend on any input value past index i.
type Func func(inputs ...[]float64) ([][]float64, error)

// ShapeError reports an indicator output whose length does not match the bar
// count.
type ShapeError struct {
	Name string
	Got  int
	Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("indicator %q: output length %d, want %d", e.Name, e.Got, e.Want)
}

// Handle is the strategy-facing view of a registered indicator. It reads as
// the indicator's first output; additional outputs (e.g. the three Bollinger
// bands) are reachable through Line.
type Handle struct {
	*series.FloatView
	name  string
	lines []*series.FloatView
}

// Name returns the name the indicator was registered under.
func (h *Handle) Name() string { return h.name }

// NumLines returns how many output arrays the indicator produced.
func (h *Handle) NumLines() int { return len(h.lines) }

// Line returns the prefix view over output i. Line(0) is the same view the
// handle itself reads as.
func (h *Handle) Line(i int) *series.FloatView { return h.lines[i] }

// Registry computes and stores indicator arrays for one backtest run. All
// views it hands out are bounded by the run's cursor.
type Registry struct {
	n       int
	cursor  *series.Cursor
	handles map[string]*Handle
}

// NewRegistry creates a Registry for a series of n bars bounded by cursor.
func NewRegistry(n int, cursor *series.Cursor) *Registry {
	return &Registry{
		n:       n,
		cursor:  cursor,
		handles: make(map[string]*Handle),
	}
}

// Register invokes fn over the full-length inputs, validates the output
// shapes, and returns a cursor-bounded handle. Errors raised by fn are
// annotated with the indicator name. Registering the same name twice is an
// error.
func (r *Registry) Register(name string, fn Func, inputs ...[]float64) (*Handle, error) {
	if _, ok := r.handles[name]; ok {
		return nil, fmt.Errorf("indicator %q: already registered", name)
	}
	for i, in := range inputs {
		if len(in) != r.n {
			return nil, &ShapeError{Name: fmt.Sprintf("%s input %d", name, i), Got: len(in), Want: r.n}
		}
	}

	outs, err := fn(inputs...)
	if err != nil {
		return nil, fmt.Errorf("indicator %q: %w", name, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("indicator %q: function produced no outputs", name)
	}

	lines := make([]*series.FloatView, len(outs))
	for i, out := range outs {
		if len(out) != r.n {
			return nil, &ShapeError{Name: name, Got: len(out), Want: r.n}
		}
		lineName := name
		if len(outs) > 1 {
			lineName = fmt.Sprintf("%s[%d]", name, i)
		}
		lines[i] = series.NewFloatView(lineName, out, r.cursor)
	}

	h := &Handle{FloatView: lines[0], name: name, lines: lines}
	r.handles[name] = h
	return h, nil
}

// Get returns a previously registered handle.
func (r *Registry) Get(name string) (*Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}
