// Package venue simulates an exchange for deterministic backtesting. Each
// merged market data record updates the relevant instrument's book state,
// resting orders are evaluated for crossing, and fills are applied to the
// account under the configured order management and account style.
package venue

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/marketdata"
	"go.uber.org/zap"
)

// bookState is the last observed market state for one instrument
type bookState struct {
	bid       decimal.Decimal
	ask       decimal.Decimal
	lastTrade decimal.Decimal
	barClose  decimal.Decimal
	barHigh   decimal.Decimal
	barLow    decimal.Decimal
}

// Simulator is one simulated venue and its account. All methods are driven
// from the single replay thread; the simulator performs no locking of its
// own
type Simulator struct {
	settings    Settings
	state       State
	account     *Account
	instruments map[instrument.ID]instrument.Instrument
	books       map[instrument.ID]*bookState
	positions   *positionBook

	resting      map[uuid.UUID]*Order
	restingOrder []uuid.UUID

	fills        []Fill
	marginEvents []MarginEvent
	fillSeq      uint64
	orderSeq     uint64
	log          *zap.Logger
}

// orderNamespace seeds deterministic order ids. Random ids would leak into
// the fill ledger and break run reproducibility
var orderNamespace = uuid.NewV5(uuid.NamespaceOID, "tickvault.order")

// New builds a simulator for the given settings and instrument set
func New(settings Settings, instruments []instrument.Instrument) (*Simulator, error) {
	if settings.Name == "" {
		return nil, fmt.Errorf("%w: venue requires a name", ErrInvalidOrder)
	}
	if settings.BaseCurrency == "" {
		return nil, fmt.Errorf("%w: venue %q requires a base currency", ErrInvalidOrder, settings.Name)
	}
	account, err := newAccount(settings.Account, settings.BaseCurrency, settings.StartingBalances)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		settings:    settings,
		account:     account,
		instruments: make(map[instrument.ID]instrument.Instrument, len(instruments)),
		books:       make(map[instrument.ID]*bookState),
		positions:   newPositionBook(settings.OMS),
		resting:     make(map[uuid.UUID]*Order),
		log:         btlog.Sub("venue." + settings.Name),
	}
	for _, inst := range instruments {
		if err := inst.Validate(); err != nil {
			return nil, err
		}
		s.instruments[inst.ID] = inst
	}
	return s, nil
}

// Name returns the venue name
func (s *Simulator) Name() string { return s.settings.Name }

// State returns the lifecycle state
func (s *Simulator) State() State { return s.state }

// Start moves the venue from Idle to Running
func (s *Simulator) Start() error {
	if s.state != Idle {
		return fmt.Errorf("%w: cannot start from %v", ErrInvalidState, s.state)
	}
	s.state = Running
	s.log.Info("venue running",
		zap.String("oms", s.settings.OMS.String()),
		zap.String("account", s.settings.Account.String()))
	return nil
}

// Stop moves the venue from Running to Stopped, cancelling resting orders
func (s *Simulator) Stop() error {
	if s.state != Running {
		return fmt.Errorf("%w: cannot stop from %v", ErrInvalidState, s.state)
	}
	for _, id := range s.restingOrder {
		if o, ok := s.resting[id]; ok {
			o.Status = StatusCanceled
		}
	}
	s.resting = make(map[uuid.UUID]*Order)
	s.restingOrder = nil
	s.state = Stopped
	return nil
}

// Carries reports whether the venue trades the instrument
func (s *Simulator) Carries(id instrument.ID) bool {
	_, ok := s.instruments[id]
	return ok
}

// OnRecord updates book state from a merged record and evaluates resting
// orders for fills. Returned fills and margin events are also retained in
// the venue ledger
func (s *Simulator) OnRecord(rec marketdata.Record) (*ExecutionResult, error) {
	if s.state != Running {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, s.state)
	}
	inst, ok := s.instruments[rec.InstrumentID()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownInstrument, rec.InstrumentID())
	}
	book := s.book(inst.ID)
	switch r := rec.(type) {
	case *marketdata.Quote:
		book.bid = r.Bid
		book.ask = r.Ask
	case *marketdata.Trade:
		book.lastTrade = r.Price
	case *marketdata.Bar:
		book.barClose = r.Close
		book.barHigh = r.High
		book.barLow = r.Low
	}

	res := &ExecutionResult{}
	var remaining []uuid.UUID
	for _, id := range s.restingOrder {
		o, ok := s.resting[id]
		if !ok {
			continue
		}
		if o.Instrument != inst.ID {
			remaining = append(remaining, id)
			continue
		}
		price, crossed := s.crossingPrice(o, book, rec)
		if !crossed {
			remaining = append(remaining, id)
			continue
		}
		if me := s.fill(o, inst, price, true, rec.EventTime(), rec.InitTime(), res); me != nil {
			// margin breach rejects the resting order so it cannot breach
			// again on every subsequent record
			o.Status = StatusRejected
			delete(s.resting, id)
			continue
		}
		delete(s.resting, id)
	}
	s.restingOrder = remaining
	return res, nil
}

// SubmitOrder validates and executes or rests an order. Timestamps are the
// triggering record's so generated events keep their place in replay order
func (s *Simulator) SubmitOrder(req OrderRequest, tsEvent, tsInit int64) (*ExecutionResult, error) {
	if s.state != Running {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, s.state)
	}
	inst, ok := s.instruments[req.Instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownInstrument, req.Instrument)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity %v", ErrInvalidOrder, req.Quantity)
	}
	if req.Type == Limit && !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: limit order requires a price", ErrInvalidOrder)
	}
	s.orderSeq++
	id := uuid.NewV5(orderNamespace, fmt.Sprintf("%s:%d", s.settings.Name, s.orderSeq))
	o := &Order{ID: id, OrderRequest: req, Status: StatusOpen, SubmittedTS: tsInit}
	res := &ExecutionResult{Order: o}
	book := s.book(req.Instrument)

	if req.Type == Market {
		price, ok := s.marketPrice(req.Side, book)
		if !ok {
			o.Status = StatusRejected
			return res, fmt.Errorf("%w: %v", ErrNoMarketData, req.Instrument)
		}
		if me := s.fill(o, inst, price, false, tsEvent, tsInit, res); me != nil {
			o.Status = StatusRejected
		}
		return res, nil
	}

	// limit orders may cross immediately as takers, otherwise they rest
	if price, crossed := s.crossingPrice(o, book, nil); crossed {
		if me := s.fill(o, inst, price, false, tsEvent, tsInit, res); me != nil {
			o.Status = StatusRejected
		}
		return res, nil
	}
	s.resting[id] = o
	s.restingOrder = append(s.restingOrder, id)
	return res, nil
}

// CancelOrder removes a resting order
func (s *Simulator) CancelOrder(id uuid.UUID) error {
	if s.state != Running {
		return fmt.Errorf("%w: %v", ErrInvalidState, s.state)
	}
	o, ok := s.resting[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, id)
	}
	o.Status = StatusCanceled
	delete(s.resting, id)
	for i := range s.restingOrder {
		if s.restingOrder[i] == id {
			s.restingOrder = append(s.restingOrder[:i], s.restingOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Account returns a snapshot of balances and locked margin
func (s *Simulator) Account() AccountSnapshot { return s.account.Snapshot() }

// Positions returns every touched position
func (s *Simulator) Positions() []Position { return s.positions.all() }

// Fills returns the fill ledger in execution order
func (s *Simulator) Fills() []Fill { return append([]Fill(nil), s.fills...) }

// MarginEvents returns every margin breach observed
func (s *Simulator) MarginEvents() []MarginEvent {
	return append([]MarginEvent(nil), s.marginEvents...)
}

func (s *Simulator) book(id instrument.ID) *bookState {
	b, ok := s.books[id]
	if !ok {
		b = &bookState{}
		s.books[id] = b
	}
	return b
}

// marketPrice resolves the execution price for an immediate order,
// preferring the touch, then the last trade, then the last bar close
func (s *Simulator) marketPrice(side Side, book *bookState) (decimal.Decimal, bool) {
	touch := book.ask
	if side == Sell {
		touch = book.bid
	}
	for _, p := range []decimal.Decimal{touch, book.lastTrade, book.barClose} {
		if p.IsPositive() {
			return p, true
		}
	}
	return decimal.Zero, false
}

// crossingPrice decides whether a limit order can execute against current
// book state. Quote and trade prices execute at the market price; bar
// ranges execute at the limit price since intrabar sequencing is unknown.
// When rec is nil the order is being submitted and only standing quote or
// trade state applies
func (s *Simulator) crossingPrice(o *Order, book *bookState, rec marketdata.Record) (decimal.Decimal, bool) {
	if o.Type != Limit {
		return s.marketPrice(o.Side, book)
	}
	if o.Side == Buy {
		if book.ask.IsPositive() && book.ask.LessThanOrEqual(o.Price) {
			return book.ask, true
		}
		if _, isTrade := rec.(*marketdata.Trade); isTrade && book.lastTrade.IsPositive() && book.lastTrade.LessThanOrEqual(o.Price) {
			return book.lastTrade, true
		}
		if _, isBar := rec.(*marketdata.Bar); isBar && book.barLow.IsPositive() && book.barLow.LessThanOrEqual(o.Price) {
			return o.Price, true
		}
		return decimal.Zero, false
	}
	if book.bid.IsPositive() && book.bid.GreaterThanOrEqual(o.Price) {
		return book.bid, true
	}
	if _, isTrade := rec.(*marketdata.Trade); isTrade && book.lastTrade.IsPositive() && book.lastTrade.GreaterThanOrEqual(o.Price) {
		return book.lastTrade, true
	}
	if _, isBar := rec.(*marketdata.Bar); isBar && book.barHigh.IsPositive() && book.barHigh.GreaterThanOrEqual(o.Price) {
		return o.Price, true
	}
	return decimal.Zero, false
}

// fill applies one execution, running the pre trade check first. A non nil
// return is the margin event that prevented the fill
func (s *Simulator) fill(o *Order, inst instrument.Instrument, price decimal.Decimal, maker bool, tsEvent, tsInit int64, res *ExecutionResult) *MarginEvent {
	mult := inst.EffectiveMultiplier()
	notional := o.Quantity.Mul(price).Mul(mult)
	feeRate := inst.TakerFee
	if maker {
		feeRate = inst.MakerFee
	}
	fee := notional.Mul(feeRate)
	currency := inst.QuoteCurrency

	required := s.requiredFunds(inst, o, price, mult, fee)
	free := s.account.Free(currency)
	if required.GreaterThan(free) {
		me := MarginEvent{
			OrderID:    o.ID,
			Instrument: o.Instrument,
			Side:       o.Side,
			Quantity:   o.Quantity,
			Required:   Money{Amount: required, Currency: currency},
			Available:  Money{Amount: free, Currency: currency},
			TSInit:     tsInit,
		}
		s.marginEvents = append(s.marginEvents, me)
		res.Margin = append(res.Margin, me)
		s.log.Warn("margin exceeded",
			zap.String("instrument", o.Instrument.String()),
			zap.String("required", required.String()),
			zap.String("free", free.String()))
		return &me
	}

	realized, lockedDelta := s.positions.apply(o.Instrument, o.Side, o.Quantity, price, mult)
	switch s.settings.Account {
	case AccountMargin:
		rate := s.marginRate(inst)
		s.account.lock(currency, lockedDelta.Mul(rate))
		s.account.credit(currency, realized)
		s.account.debit(currency, fee)
	default: // cash settles full notional
		if o.Side == Buy {
			s.account.debit(currency, notional.Add(fee))
		} else {
			s.account.credit(currency, notional.Sub(fee))
		}
	}

	s.fillSeq++
	f := Fill{
		Sequence:   s.fillSeq,
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Price:      price,
		Quantity:   o.Quantity,
		Fee:        Money{Amount: fee, Currency: currency},
		Maker:      maker,
		TSEvent:    tsEvent,
		TSInit:     tsInit,
	}
	o.Status = StatusFilled
	s.fills = append(s.fills, f)
	res.Fills = append(res.Fills, f)
	return nil
}

// requiredFunds is the pre trade check amount: full notional for cash
// buys, opening margin for margin accounts, fees always
func (s *Simulator) requiredFunds(inst instrument.Instrument, o *Order, price, mult, fee decimal.Decimal) decimal.Decimal {
	if s.settings.Account == AccountMargin {
		opening := s.positions.openingNotional(o.Instrument, o.Side, o.Quantity, price, mult)
		return opening.Mul(s.marginRate(inst)).Add(fee)
	}
	if o.Side == Buy {
		return o.Quantity.Mul(price).Mul(mult).Add(fee)
	}
	return fee
}

// marginRate resolves the initial margin fraction for an instrument,
// falling back to the venue default, then to full notional
func (s *Simulator) marginRate(inst instrument.Instrument) decimal.Decimal {
	if inst.MarginInitial.IsPositive() {
		return inst.MarginInitial
	}
	if s.settings.DefaultMarginRate.IsPositive() {
		return s.settings.DefaultMarginRate
	}
	return decimal.New(1, 0)
}
