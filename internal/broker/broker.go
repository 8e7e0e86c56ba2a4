// Package broker implements the simulated netting broker used by the
// backtest runner: a pending-order book, bar-by-bar matching with OCO
// protective exits, and cash/position/equity accounting under a flat
// per-fill commission.
package broker

import (
	"fmt"
	"log/slog"
	"math"

	"backlab/internal/domain"
)

// Sim is the simulated broker for a single-instrument backtest. It nets all
// fills into one aggregate position: an opposing fill first flattens the
// existing exposure and any remainder opens in the new direction.
//
// Sim is not safe for concurrent use; the runner drives it from a single
// goroutine, alternating matching and strategy callbacks.
type Sim struct {
	cash       float64
	commission float64
	pos        domain.Position

	pending    []*domain.Order
	cancelReq  map[string]bool
	trades     []domain.Trade
	rejections []domain.Rejection

	// matching is the order book during a MatchBar step; it starts as the
	// pending list and grows as parent fills arm SL/TP children.
	matching []*domain.Order

	// equity holds one sample per processed bar, preceded by the starting
	// cash, so a run over N bars yields N+1 samples.
	equity []float64

	nextOrderID int
	log         *slog.Logger
}

// New creates a Sim with the given starting cash and per-fill commission
// fraction (applied symmetrically on entry and exit notional).
func New(cash, commission float64, log *slog.Logger) *Sim {
	if log == nil {
		log = slog.Default()
	}
	return &Sim{
		cash:        cash,
		commission:  commission,
		cancelReq:   make(map[string]bool),
		equity:      []float64{cash},
		nextOrderID: 1,
		log:         log.With("component", "broker"),
	}
}

// ---------------------------------------------------------------------------
// Submission and cancellation
// ---------------------------------------------------------------------------

// Submit validates the order and queues it for matching. Orders that fail
// validation get status rejected and a rejection log entry; the returned ID
// identifies the order either way. Valid orders become eligible at the open
// of the bar after their CreatedBar.
func (s *Sim) Submit(o *domain.Order) string {
	if o.ID == "" {
		o.ID = s.newOrderID()
	}

	if reason := validate(o); reason != "" {
		s.reject(o, o.CreatedBar, reason)
		return o.ID
	}

	o.Status = domain.OrderStatusPending
	s.pending = append(s.pending, o)
	s.log.Debug("order queued",
		"id", o.ID, "side", o.Side, "type", o.Type, "size", o.Size,
		"limit", o.Limit, "stop", o.Stop, "sl", o.SL, "tp", o.TP, "bar", o.CreatedBar)
	return o.ID
}

func (s *Sim) newOrderID() string {
	id := fmt.Sprintf("o-%06d", s.nextOrderID)
	s.nextOrderID++
	return id
}

// validate returns an empty string for a well-formed order, or the rejection
// reason. Zero price fields mean "unset"; set fields must be finite and
// positive. SL/TP placement relative to the actual fill price is checked at
// match time.
func validate(o *domain.Order) string {
	if o.Size <= 0 {
		return fmt.Sprintf("size must be positive, got %d", o.Size)
	}
	switch o.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return fmt.Sprintf("unknown side %q", o.Side)
	}
	switch o.Type {
	case domain.OrderTypeMarket:
		if o.Limit != 0 || o.Stop != 0 {
			return "market order must not carry limit or stop prices"
		}
	case domain.OrderTypeLimit:
		if o.Limit == 0 || o.Stop != 0 {
			return "limit order must carry a limit price and no stop price"
		}
	case domain.OrderTypeStop:
		if o.Stop == 0 || o.Limit != 0 {
			return "stop order must carry a stop price and no limit price"
		}
	default:
		return fmt.Sprintf("unknown order type %q", o.Type)
	}
	prices := []struct {
		name string
		p    float64
	}{{"limit", o.Limit}, {"stop", o.Stop}, {"sl", o.SL}, {"tp", o.TP}}
	for _, f := range prices {
		if math.IsNaN(f.p) || math.IsInf(f.p, 0) || f.p < 0 {
			return fmt.Sprintf("%s price %v is not a positive finite number", f.name, f.p)
		}
	}
	if o.SL != 0 && o.TP != 0 {
		if o.Side == domain.OrderSideBuy && o.SL >= o.TP {
			return fmt.Sprintf("buy order requires sl < tp, got sl=%v tp=%v", o.SL, o.TP)
		}
		if o.Side == domain.OrderSideSell && o.SL <= o.TP {
			return fmt.Sprintf("sell order requires sl > tp, got sl=%v tp=%v", o.SL, o.TP)
		}
	}
	return ""
}

// RequestCancel flags a pending order for cancellation. The flag takes
// effect at the top of the next matching step. It reports whether the ID
// matched a pending order.
func (s *Sim) RequestCancel(id string) bool {
	for _, o := range s.pending {
		if o.ID == id && o.Status == domain.OrderStatusPending {
			s.cancelReq[id] = true
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Matching
// ---------------------------------------------------------------------------

// MatchBar processes the pending book against bar b, in FIFO submission
// order. Orders submitted during bar b-1's strategy callback see this bar's
// open as their earliest fill. Protective SL/TP children armed by a parent
// fill are evaluated against this same bar, stop-loss first, so an adverse
// move inside one bar resolves worst-case-first.
func (s *Sim) MatchBar(b int, bar domain.Bar) {
	s.matching = s.pending
	s.pending = nil

	for i := 0; i < len(s.matching); i++ { // the book grows as parent fills arm children
		o := s.matching[i]
		if s.cancelReq[o.ID] {
			delete(s.cancelReq, o.ID)
			o.Status = domain.OrderStatusCancelled
			s.log.Debug("order cancelled", "id", o.ID, "bar", b)
			continue
		}
		if o.Status != domain.OrderStatusPending {
			continue // cancelled by an OCO partner earlier in this step
		}
		if !o.Contingent && o.CreatedBar >= b {
			continue // no same-bar fills for strategy-submitted orders
		}

		price, ok := fillPrice(o, bar)
		if !ok {
			continue
		}
		s.execute(o, b, price)
	}

	for _, o := range s.matching {
		if o.Status == domain.OrderStatusPending {
			s.pending = append(s.pending, o)
		}
	}
	s.matching = nil
}

// book returns the order list to scan for OCO partners and protective exits:
// the in-progress matching book when inside MatchBar, the pending list
// otherwise.
func (s *Sim) book() []*domain.Order {
	if s.matching != nil {
		return s.matching
	}
	return s.pending
}

// fillPrice applies the matching rules of the order type against the bar and
// returns the fill price, or ok=false when the order stays pending.
func fillPrice(o *domain.Order, bar domain.Bar) (float64, bool) {
	switch o.Type {
	case domain.OrderTypeMarket:
		return bar.Open, true
	case domain.OrderTypeLimit:
		if o.Side == domain.OrderSideBuy && bar.Low <= o.Limit {
			return math.Min(o.Limit, bar.Open), true
		}
		if o.Side == domain.OrderSideSell && bar.High >= o.Limit {
			return math.Max(o.Limit, bar.Open), true
		}
	case domain.OrderTypeStop:
		if o.Side == domain.OrderSideBuy && bar.High >= o.Stop {
			return math.Max(o.Stop, bar.Open), true
		}
		if o.Side == domain.OrderSideSell && bar.Low <= o.Stop {
			return math.Min(o.Stop, bar.Open), true
		}
	}
	return 0, false
}

// execute fills order o at price on bar b: it nets against the open
// position, checks funding for any opening remainder, arms protective
// children, and resolves OCO pairs.
func (s *Sim) execute(o *domain.Order, b int, price float64) {
	size := o.Size
	if o.Contingent {
		// Protective exits only ever reduce the position they guard.
		if !opposes(o.Side, s.pos) {
			o.Status = domain.OrderStatusCancelled
			return
		}
		if size > s.pos.Abs() {
			size = s.pos.Abs()
		}
	}

	closeQty := 0
	if opposes(o.Side, s.pos) {
		closeQty = min(size, s.pos.Abs())
	}
	openQty := size - closeQty

	if openQty > 0 {
		if reason := s.checkOpen(o, price, closeQty, openQty); reason != "" {
			s.reject(o, b, reason)
			return
		}
	}

	if closeQty > 0 {
		s.closeUnits(b, price, closeQty, o)
	}
	if openQty > 0 {
		s.openUnits(b, price, openQty, o)
	}

	o.Status = domain.OrderStatusFilled
	s.log.Debug("order filled", "id", o.ID, "bar", b, "price", price, "closed", closeQty, "opened", openQty)

	if o.Contingent {
		s.cancelOCOPartners(o)
	}
	if openQty > 0 && (o.SL != 0 || o.TP != 0) {
		s.armChildren(o, b, openQty)
	}
}

// checkOpen validates the opening remainder of a fill before any state is
// mutated: SL/TP must sit on the correct sides of the fill price, and the
// cash left after the closing leg must cover the opening notional plus
// commission.
func (s *Sim) checkOpen(o *domain.Order, price float64, closeQty, openQty int) string {
	long := o.Side == domain.OrderSideBuy
	if o.SL != 0 {
		if (long && o.SL >= price) || (!long && o.SL <= price) {
			return fmt.Sprintf("sl %v on the wrong side of fill price %v", o.SL, price)
		}
	}
	if o.TP != 0 {
		if (long && o.TP <= price) || (!long && o.TP >= price) {
			return fmt.Sprintf("tp %v on the wrong side of fill price %v", o.TP, price)
		}
	}

	cashAfterClose := s.cash + s.closeCashDelta(price, closeQty)
	need := float64(openQty) * price * (1 + s.commission)
	if need > cashAfterClose {
		return fmt.Sprintf("insufficient cash: need %.2f, have %.2f", need, cashAfterClose)
	}
	return ""
}

// closeCashDelta returns the cash change from closing qty units of the
// current position at price.
func (s *Sim) closeCashDelta(price float64, qty int) float64 {
	if qty == 0 {
		return 0
	}
	notional := float64(qty) * price
	if s.pos.IsLong() {
		return notional * (1 - s.commission)
	}
	return -notional * (1 + s.commission)
}

// closeUnits realizes qty units of the open position at price on bar b,
// recording the round trip in the trade log.
func (s *Sim) closeUnits(b int, price float64, qty int, o *domain.Order) {
	s.cash += s.closeCashDelta(price, qty)

	var pnl float64
	side := domain.OrderSideBuy
	if s.pos.IsLong() {
		pnl = (price - s.pos.AvgPrice) * float64(qty)
		s.pos.Size -= qty
	} else {
		side = domain.OrderSideSell
		pnl = (s.pos.AvgPrice - price) * float64(qty)
		s.pos.Size += qty
	}

	trade := domain.Trade{
		EntryBar:   s.pos.EntryBar,
		ExitBar:    b,
		Side:       side,
		Size:       qty,
		EntryPrice: s.pos.AvgPrice,
		ExitPrice:  price,
		PnL:        pnl,
		Commission: s.commission * float64(qty) * (s.pos.AvgPrice + price),
		Tag:        s.pos.Tag,
	}
	s.trades = append(s.trades, trade)
	s.log.Debug("trade closed",
		"entryBar", trade.EntryBar, "exitBar", b, "side", side, "size", qty,
		"entry", trade.EntryPrice, "exit", price, "pnl", pnl, "orderID", o.ID)

	if s.pos.Size == 0 {
		s.pos = domain.Position{}
		// The position the protective exits were guarding is gone.
		s.cancelContingent()
	}
}

// openUnits opens qty units at price on bar b, folding into an existing
// same-direction position with a volume-weighted average entry price.
func (s *Sim) openUnits(b int, price float64, qty int, o *domain.Order) {
	signed := qty
	if o.Side == domain.OrderSideSell {
		signed = -qty
		s.cash += float64(qty) * price * (1 - s.commission)
	} else {
		s.cash -= float64(qty) * price * (1 + s.commission)
	}

	if s.pos.Size == 0 {
		s.pos = domain.Position{Size: signed, AvgPrice: price, EntryBar: b, Tag: o.Tag}
		return
	}
	prev := s.pos.Abs()
	s.pos.AvgPrice = (s.pos.AvgPrice*float64(prev) + price*float64(qty)) / float64(prev+qty)
	s.pos.Size += signed
}

// armChildren turns the parent's SL/TP prices into contingent exit orders
// sized to the opened quantity. Both share an OCO group: the first to fill
// cancels the other. The stop-loss is appended first so that, when both
// would trigger inside one bar, the adverse leg wins.
func (s *Sim) armChildren(parent *domain.Order, b int, qty int) {
	exitSide := domain.OrderSideSell
	if parent.Side == domain.OrderSideSell {
		exitSide = domain.OrderSideBuy
	}

	emit := func(typ domain.OrderType, limit, stop float64) {
		child := &domain.Order{
			ID:         s.newOrderID(),
			Side:       exitSide,
			Size:       qty,
			Type:       typ,
			Limit:      limit,
			Stop:       stop,
			Tag:        parent.Tag,
			CreatedBar: b,
			Status:     domain.OrderStatusPending,
			Contingent: true,
			ParentID:   parent.ID,
			OCOGroup:   parent.ID,
		}
		if s.matching != nil {
			s.matching = append(s.matching, child)
		} else {
			s.pending = append(s.pending, child)
		}
	}

	if parent.SL != 0 {
		emit(domain.OrderTypeStop, 0, parent.SL)
	}
	if parent.TP != 0 {
		emit(domain.OrderTypeLimit, parent.TP, 0)
	}
}

// cancelOCOPartners cancels every pending order sharing o's OCO group.
func (s *Sim) cancelOCOPartners(o *domain.Order) {
	if o.OCOGroup == "" {
		return
	}
	for _, p := range s.book() {
		if p.ID != o.ID && p.OCOGroup == o.OCOGroup && p.Status == domain.OrderStatusPending {
			p.Status = domain.OrderStatusCancelled
			s.log.Debug("oco partner cancelled", "id", p.ID, "group", o.OCOGroup)
		}
	}
}

// cancelContingent cancels all pending protective exits.
func (s *Sim) cancelContingent() {
	for _, p := range s.book() {
		if p.Contingent && p.Status == domain.OrderStatusPending {
			p.Status = domain.OrderStatusCancelled
		}
	}
}

func (s *Sim) reject(o *domain.Order, b int, reason string) {
	o.Status = domain.OrderStatusRejected
	s.rejections = append(s.rejections, domain.Rejection{Bar: b, OrderID: o.ID, Reason: reason})
	s.log.Warn("order rejected", "id", o.ID, "bar", b, "reason", reason)
}

// ---------------------------------------------------------------------------
// Equity and end-of-data
// ---------------------------------------------------------------------------

// SampleEquity appends the equity sample for the bar that just closed:
// cash plus the position marked at the close.
func (s *Sim) SampleEquity(close float64) {
	s.equity = append(s.equity, s.EquityAt(close))
}

// EquityAt returns cash plus the open position marked at price.
func (s *Sim) EquityAt(price float64) float64 {
	return s.cash + float64(s.pos.Size)*price
}

// CloseAll force-closes any open position at the bar's close price, cancels
// every pending order, and rewrites the final equity sample. It is called
// once, after the last bar has been processed.
func (s *Sim) CloseAll(b int, bar domain.Bar) {
	for _, o := range s.pending {
		if o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusCancelled
		}
	}
	s.pending = nil
	clear(s.cancelReq)

	if s.pos.Size != 0 {
		side := domain.OrderSideSell
		if s.pos.IsShort() {
			side = domain.OrderSideBuy
		}
		closer := &domain.Order{
			ID:         s.newOrderID(),
			Side:       side,
			Size:       s.pos.Abs(),
			Type:       domain.OrderTypeMarket,
			CreatedBar: b,
			Status:     domain.OrderStatusFilled,
		}
		s.closeUnits(b, bar.Close, s.pos.Abs(), closer)
	}

	if len(s.equity) > 0 {
		s.equity[len(s.equity)-1] = s.cash
	}
}

// ---------------------------------------------------------------------------
// Read access
// ---------------------------------------------------------------------------

// Cash returns the current cash balance.
func (s *Sim) Cash() float64 { return s.cash }

// Position returns a copy of the current position.
func (s *Sim) Position() domain.Position { return s.pos }

// Pending returns a snapshot of the orders still awaiting a fill. Orders
// already flagged via RequestCancel are excluded even though the flag only
// takes effect at the next matching step.
func (s *Sim) Pending() []domain.Order {
	out := make([]domain.Order, 0, len(s.pending))
	for _, o := range s.pending {
		if o.Status != domain.OrderStatusPending || s.cancelReq[o.ID] {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// Trades returns the completed round trips so far.
func (s *Sim) Trades() []domain.Trade { return s.trades }

// Rejections returns the rejected-order log.
func (s *Sim) Rejections() []domain.Rejection { return s.rejections }

// EquityCurve returns the per-bar equity samples, preceded by the starting
// cash.
func (s *Sim) EquityCurve() []float64 { return s.equity }

func opposes(side domain.OrderSide, pos domain.Position) bool {
	return (side == domain.OrderSideBuy && pos.IsShort()) ||
		(side == domain.OrderSideSell && pos.IsLong())
}
