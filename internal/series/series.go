// Package series holds the immutable bar series a backtest runs over, and
// the cursor-bounded prefix views through which strategy code reads it.
//
// A prefix view addresses bars with negative offsets: At(-1) is the most
// recently closed bar, At(-2) the one before it. Offsets at or beyond zero
// would read the future; such access panics with *LookaheadError, which the
// backtest runner recovers into a diagnostic error.
package series

import (
	"fmt"
	"time"

	"backlab/internal/domain"
)

// Series is a time-ordered, read-only OHLCV frame stored as parallel arrays.
// It is built once before a run and never mutated afterwards.
type Series struct {
	symbol string
	ts     []time.Time
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

// New builds a Series from bars. The bars must already be sorted and
// deduplicated by timestamp (the store layer guarantees this for data it
// loads); New verifies strict monotonicity and finite values and fails
// otherwise.
func New(bars []domain.Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("series: no bars")
	}

	s := &Series{
		symbol: bars[0].Symbol,
		ts:     make([]time.Time, len(bars)),
		open:   make([]float64, len(bars)),
		high:   make([]float64, len(bars)),
		low:    make([]float64, len(bars)),
		close:  make([]float64, len(bars)),
		volume: make([]float64, len(bars)),
	}

	for i, b := range bars {
		if !b.Valid() {
			return nil, fmt.Errorf("series: bar %d (%s) is malformed", i, b.Timestamp)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("series: timestamps not strictly increasing at bar %d (%s)", i, b.Timestamp)
		}
		s.ts[i] = b.Timestamp
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
		s.volume[i] = b.Volume
	}

	return s, nil
}

// Symbol returns the instrument symbol of the first ingested bar.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the total number of bars.
func (s *Series) Len() int { return len(s.ts) }

// Bar reconstructs the bar at absolute index i.
func (s *Series) Bar(i int) domain.Bar {
	return domain.Bar{
		Symbol:    s.symbol,
		Timestamp: s.ts[i],
		Open:      s.open[i],
		High:      s.high[i],
		Low:       s.low[i],
		Close:     s.close[i],
		Volume:    s.volume[i],
	}
}

// Full-length column accessors, used as indicator-function inputs during
// strategy init. The returned slices are the series' backing arrays and must
// not be modified.

func (s *Series) Opens() []float64   { return s.open }
func (s *Series) Highs() []float64   { return s.high }
func (s *Series) Lows() []float64    { return s.low }
func (s *Series) Closes() []float64  { return s.close }
func (s *Series) Volumes() []float64 { return s.volume }

// ---------------------------------------------------------------------------
// Prefix views
// ---------------------------------------------------------------------------

// LookaheadError reports an attempt to read at or past the current bar
// through a prefix view. It is raised as a panic from view accessors and
// converted to a regular error by the runner.
type LookaheadError struct {
	Name   string // column or indicator name
	Bar    int    // cursor position at the time of access
	Offset int    // attempted offset (>= 0)
}

func (e *LookaheadError) Error() string {
	return fmt.Sprintf("lookahead: %s[%d] read during bar %d; only negative offsets are visible", e.Name, e.Offset, e.Bar)
}

// RangeError reports a view read reaching before the first bar. With the
// cursor still at -1 (before any bar, as during strategy init) even At(-1)
// raises it. Like LookaheadError it is raised as a panic and converted to a
// regular error by the runner.
type RangeError struct {
	Name   string // column or indicator name
	Bar    int    // cursor position at the time of access
	Offset int    // attempted offset (< 0)
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("series: %s[%d] reaches before the first bar (cursor %d)", e.Name, e.Offset, e.Bar)
}

// Cursor is the runner-owned position of the current bar. All views derived
// from the same cursor expose exactly the bars up to and including it. A
// cursor of -1 (before the first bar) makes every view empty.
type Cursor struct {
	pos int
}

// NewCursor returns a cursor positioned before the first bar.
func NewCursor() *Cursor { return &Cursor{pos: -1} }

// Set moves the cursor to absolute bar index pos.
func (c *Cursor) Set(pos int) { c.pos = pos }

// Pos returns the absolute index of the current bar.
func (c *Cursor) Pos() int { return c.pos }

// FloatView is a cursor-bounded window over a float64 column. The zero
// offset convention follows the package doc: At(-1) is the current bar.
type FloatView struct {
	name   string
	data   []float64
	cursor *Cursor
}

// NewFloatView wraps data in a view bounded by cursor. The name appears in
// lookahead diagnostics.
func NewFloatView(name string, data []float64, cursor *Cursor) *FloatView {
	return &FloatView{name: name, data: data, cursor: cursor}
}

// Len reports how many values are currently visible.
func (v *FloatView) Len() int { return v.cursor.pos + 1 }

// At returns the value at the given negative offset. At(-1) is the current
// bar. Offsets >= 0 panic with *LookaheadError; offsets reaching before the
// first bar panic with *RangeError.
func (v *FloatView) At(offset int) float64 {
	if offset >= 0 {
		panic(&LookaheadError{Name: v.name, Bar: v.cursor.pos, Offset: offset})
	}
	idx := v.cursor.pos + 1 + offset
	if idx < 0 {
		panic(&RangeError{Name: v.name, Bar: v.cursor.pos, Offset: offset})
	}
	return v.data[idx]
}

// Last is shorthand for At(-1).
func (v *FloatView) Last() float64 { return v.At(-1) }

// Name returns the view's column or indicator name.
func (v *FloatView) Name() string { return v.name }

// TimeView is a cursor-bounded window over the timestamp column.
type TimeView struct {
	data   []time.Time
	cursor *Cursor
}

// Len reports how many timestamps are currently visible.
func (v *TimeView) Len() int { return v.cursor.pos + 1 }

// At returns the timestamp at the given negative offset, with the same
// contract as FloatView.At.
func (v *TimeView) At(offset int) time.Time {
	if offset >= 0 {
		panic(&LookaheadError{Name: "time", Bar: v.cursor.pos, Offset: offset})
	}
	idx := v.cursor.pos + 1 + offset
	if idx < 0 {
		panic(&RangeError{Name: "time", Bar: v.cursor.pos, Offset: offset})
	}
	return v.data[idx]
}

// OHLCV bundles the prefix views over the five bar columns plus timestamps.
type OHLCV struct {
	Time   *TimeView
	Open   *FloatView
	High   *FloatView
	Low    *FloatView
	Close  *FloatView
	Volume *FloatView
}

// Views returns the OHLCV prefix views of the series bounded by cursor.
func (s *Series) Views(cursor *Cursor) *OHLCV {
	return &OHLCV{
		Time:   &TimeView{data: s.ts, cursor: cursor},
		Open:   NewFloatView("open", s.open, cursor),
		High:   NewFloatView("high", s.high, cursor),
		Low:    NewFloatView("low", s.low, cursor),
		Close:  NewFloatView("close", s.close, cursor),
		Volume: NewFloatView("volume", s.volume, cursor),
	}
}
