/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pix-deposit-go/internal/metrics"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/policy"
	"pix-deposit-go/internal/watcher"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const resolveTimeout = 30 * time.Second

// ChargeCreator issues PIX charges
type ChargeCreator interface {
	CreateCharge(ctx context.Context, address string, amountBRL decimal.Decimal) (*models.PixCharge, error)
}

// ReceiptResolver produces the receipt for a credited delta
type ReceiptResolver interface {
	Resolve(ctx context.Context, address string, delta decimal.Decimal) (*models.Receipt, error)
}

// CacheInvalidator drops cached balance and transaction reads for an address
type CacheInvalidator interface {
	Invalidate(ctx context.Context, address string) error
}

// Deps are the collaborators a session drives. Balances backs both the
// snapshot and the watcher so the baseline and polls share a source.
type Deps struct {
	Charges      ChargeCreator
	Balances     watcher.BalanceSource
	Resolver     ReceiptResolver
	Cache        CacheInvalidator
	BalanceCache watcher.BalanceCache
	Policy       *policy.Policy
	Notifier     Notifier
	Metrics      metrics.Recorder
}

type Config struct {
	Asset        string
	Network      string
	ChainId      int64 // 0 disables the chain guard
	PollInterval time.Duration
	Timeout      time.Duration
}

// Transition is one entry in a session's history
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Session drives one deposit attempt from amount entry to a terminal outcome
type Session struct {
	id     string
	wallet models.WalletContext
	deps   Deps
	cfg    Config
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	generating atomic.Bool

	mu             sync.Mutex
	state          State
	history        []Transition
	asset          string
	quote          *models.FeeQuote
	charge         *models.PixCharge
	snapshot       *models.BalanceSnapshot
	watcher        *watcher.Watcher
	expiryTimer    *time.Timer
	expiryNotified bool
	receipt        *models.Receipt
	delta          *decimal.Decimal
	route          string
	message        string
	closed         bool
	pending        []Event
	invalidateOnce sync.Once
}

func New(wallet models.WalletContext, deps Deps, cfg Config) (*Session, error) {
	if wallet == nil {
		return nil, fmt.Errorf("wallet context is required")
	}
	if deps.Charges == nil || deps.Balances == nil || deps.Resolver == nil || deps.Policy == nil {
		return nil, fmt.Errorf("charges, balances, resolver and policy are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     uuid.New().String(),
		wallet: wallet,
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
		asset:  cfg.Asset,
	}, nil
}

func (s *Session) Id() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition must be called with mu held. The event is queued and sent by
// flush once the lock is released.
func (s *Session) transition(to State) error {
	from := s.state
	if err := from.ValidateTransition(to); err != nil {
		return err
	}
	s.state = to
	at := s.now()
	s.history = append(s.history, Transition{From: from, To: to, At: at})
	s.pending = append(s.pending, Event{
		SessionId: s.id,
		Type:      EventStateChanged,
		State:     to,
		From:      from,
		At:        at,
	})
	s.deps.Metrics.IncCounter("session_transition", map[string]string{"outcome": string(to)})
	zap.L().Debug("Session transition",
		zap.String("session_id", s.id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return nil
}

// queue must be called with mu held
func (s *Session) queue(e Event) {
	e.SessionId = s.id
	e.State = s.state
	e.At = s.now()
	s.pending = append(s.pending, e)
}

// flush sends queued events. Call without holding mu.
func (s *Session) flush() {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range events {
		s.deps.Notifier.Notify(e)
	}
}

// Begin opens amount entry for a connected wallet
func (s *Session) Begin() error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if !s.wallet.IsConnected() {
		return ErrWalletNotConnected
	}
	return s.transition(StateAmountEntry)
}

// SetAsset selects the asset the deposit is credited in
func (s *Session) SetAsset(asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAmountEntry {
		return fmt.Errorf("%w: cannot change asset in %s", ErrInvalidTransition, s.state)
	}
	s.asset = strings.TrimSpace(asset)
	return nil
}

// SetAmount validates amount and computes the fee quote. An invalid amount
// clears any previous quote.
func (s *Session) SetAmount(amount decimal.Decimal) (models.FeeQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAmountEntry {
		return models.FeeQuote{}, fmt.Errorf("%w: cannot set amount in %s", ErrInvalidTransition, s.state)
	}

	quote, err := s.deps.Policy.Quote(amount)
	if err != nil {
		s.quote = nil
		s.message = UserMessage(err)
		return models.FeeQuote{}, err
	}
	s.quote = &quote
	s.message = ""
	return quote, nil
}

// GenerateCharge issues the PIX charge for the quoted total and captures the
// balance baseline before the charge is exposed. On failure the session
// returns to amount entry with a user message.
func (s *Session) GenerateCharge(ctx context.Context) (*models.PixCharge, error) {
	if !s.generating.CompareAndSwap(false, true) {
		return nil, ErrChargeInProgress
	}
	defer s.generating.Store(false)
	defer s.flush()

	s.mu.Lock()
	if err := s.checkGenerateGuards(); err != nil {
		s.message = UserMessage(err)
		s.mu.Unlock()
		return nil, err
	}
	if err := s.transition(StateGeneratingCharge); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	quote := *s.quote
	address := s.wallet.Address()
	s.mu.Unlock()

	start := time.Now()
	charge, err := s.deps.Charges.CreateCharge(ctx, address, quote.Total)
	if err != nil {
		s.deps.Metrics.ObserveLatency("session_generate_charge", time.Since(start), map[string]string{"outcome": "error"})
		return nil, s.failGeneration(err)
	}

	balance, err := s.deps.Balances.GetBalance(ctx, address)
	if err != nil {
		s.deps.Metrics.ObserveLatency("session_generate_charge", time.Since(start), map[string]string{"outcome": "error"})
		return nil, s.failGeneration(fmt.Errorf("%w: %w", ErrNoSnapshot, err))
	}
	s.deps.Metrics.ObserveLatency("session_generate_charge", time.Since(start), map[string]string{"outcome": "success"})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateGeneratingCharge {
		// closed while the backend calls were in flight
		return nil, ErrSessionClosed
	}

	s.charge = charge
	s.snapshot = &models.BalanceSnapshot{
		Address:    address,
		Amount:     balance,
		CapturedAt: s.now(),
	}
	s.expiryNotified = false
	s.message = ""
	if err := s.transition(StateChargeReady); err != nil {
		return nil, err
	}
	s.armExpiry()

	zap.L().Info("Charge ready",
		zap.String("session_id", s.id),
		zap.String("transaction_id", charge.TransactionId),
		zap.String("total", quote.Total.StringFixed(2)),
		zap.String("baseline", balance.String()),
		zap.Time("expires_at", charge.ExpiresAt))

	c := *charge
	return &c, nil
}

// checkGenerateGuards must be called with mu held
func (s *Session) checkGenerateGuards() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.state == StateGeneratingCharge {
		return ErrChargeInProgress
	}
	if s.state != StateAmountEntry {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, s.state, StateGeneratingCharge)
	}
	if !s.wallet.IsConnected() {
		return ErrWalletNotConnected
	}
	if s.cfg.ChainId != 0 && s.wallet.ChainId() != s.cfg.ChainId {
		return ErrWrongChain
	}
	if s.quote == nil {
		return ErrNoAmount
	}
	if err := s.deps.Policy.Validate(s.quote.AmountBRL); err != nil {
		return err
	}
	if s.asset == "" {
		return ErrNoAsset
	}
	return nil
}

func (s *Session) failGeneration(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zap.L().Warn("Charge generation failed",
		zap.String("session_id", s.id),
		zap.Error(err))

	if s.state != StateGeneratingCharge {
		return err
	}
	s.message = UserMessage(err)
	if tErr := s.transition(StateAmountEntry); tErr != nil {
		return errors.Join(err, tErr)
	}
	s.queue(Event{Type: EventError, Message: s.message})
	return err
}

// armExpiry must be called with mu held
func (s *Session) armExpiry() {
	if s.charge == nil || s.charge.ExpiresAt.IsZero() {
		return
	}
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
	}
	d := s.charge.ExpiresAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.expiryTimer = time.AfterFunc(d, s.onChargeExpired)
}

// stopTimers must be called with mu held
func (s *Session) stopTimers() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

// onChargeExpired is advisory: it notifies once and never moves the state.
func (s *Session) onChargeExpired() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiryNotified || !s.state.chargeLive() {
		return
	}
	s.expiryNotified = true
	s.queue(Event{Type: EventChargeExpired, Message: "This PIX charge has expired. If you already paid, keep waiting"})
	s.deps.Metrics.IncCounter("session_charge_expired", map[string]string{"outcome": string(s.state)})
}

// MarkPaid records the user's payment claim and starts watching the balance
func (s *Session) MarkPaid(ctx context.Context) error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateChargeReady {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, s.state, StateAwaitingConfirmation)
	}
	if s.snapshot == nil {
		return ErrNoSnapshot
	}
	if s.charge != nil && s.charge.Expired(s.now()) {
		s.message = UserMessage(ErrChargeExpired)
		return ErrChargeExpired
	}

	if err := s.transition(StateAwaitingConfirmation); err != nil {
		return err
	}

	opts := []watcher.Option{
		watcher.OnCredited(s.onCredited),
		watcher.OnTimeout(s.onTimeout),
		watcher.WithMetrics(s.deps.Metrics),
	}
	if s.deps.BalanceCache != nil {
		opts = append(opts, watcher.WithCache(s.deps.BalanceCache))
	}

	w, err := watcher.New(s.deps.Balances, watcher.Config{
		Address:      s.snapshot.Address,
		Baseline:     s.snapshot.Amount,
		PollInterval: s.cfg.PollInterval,
		Timeout:      s.cfg.Timeout,
	}, opts...)
	if err != nil {
		s.failLocked(err)
		return err
	}

	if err := s.transition(StateWatchingBalance); err != nil {
		return err
	}
	s.watcher = w
	if err := w.Start(s.ctx); err != nil {
		s.failLocked(err)
		return err
	}

	zap.L().Info("Watching balance",
		zap.String("session_id", s.id),
		zap.String("address", s.snapshot.Address),
		zap.String("baseline", s.snapshot.Amount.String()))
	return nil
}

// failLocked must be called with mu held
func (s *Session) failLocked(err error) {
	zap.L().Error("Deposit session failed", zap.String("session_id", s.id), zap.Error(err))
	s.stopTimers()
	s.message = "Something went wrong with this deposit. Check your balance before paying again"
	if tErr := s.transition(StateFailed); tErr != nil {
		zap.L().Error("Unable to mark session failed", zap.String("session_id", s.id), zap.Error(tErr))
		return
	}
	s.queue(Event{Type: EventError, Message: s.message, Route: RouteDashboard})
}

func (s *Session) onCredited(c watcher.Credited) {
	s.mu.Lock()
	if s.state != StateWatchingBalance {
		s.mu.Unlock()
		return
	}
	if err := s.transition(StateResolvingReceipt); err != nil {
		s.mu.Unlock()
		return
	}
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	delta := c.Delta
	s.delta = &delta
	address := c.Address
	dc := &models.DepositContext{
		SessionId:     s.id,
		Asset:         s.asset,
		Network:       s.cfg.Network,
		CreditedDelta: delta,
	}
	if s.charge != nil {
		dc.ChargeId = s.charge.TransactionId
		dc.Fee = s.charge.Fee
	}
	if s.quote != nil {
		dc.AmountBRL = s.quote.AmountBRL
	}
	s.mu.Unlock()
	s.flush()

	ctx, cancel := context.WithTimeout(models.WithDepositContext(s.ctx, dc), resolveTimeout)
	defer cancel()

	receipt, err := s.deps.Resolver.Resolve(ctx, address, delta)
	s.invalidateCaches(ctx, address)

	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateResolvingReceipt {
		// closed during resolution
		return
	}

	if err != nil {
		zap.L().Warn("Receipt resolution failed, falling back to dashboard",
			zap.String("session_id", s.id),
			zap.Error(err))
		s.route = RouteDashboard
		s.message = "Deposit confirmed. Your receipt will appear in the history shortly"
	} else {
		s.receipt = receipt
		s.route = RouteReceipt + receipt.TxHash
		s.message = "Deposit confirmed"
	}

	if err := s.transition(StateSuccess); err != nil {
		return
	}
	s.queue(Event{
		Type:    EventSuccess,
		Message: s.message,
		Route:   s.route,
		Receipt: s.receipt,
		Delta:   &delta,
	})
	s.deps.Metrics.IncCounter("session_outcome", map[string]string{"outcome": "success"})
	s.cancel()
}

func (s *Session) onTimeout(t watcher.TimedOut) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWatchingBalance {
		return
	}
	if err := s.transition(StateTimeout); err != nil {
		return
	}
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	s.route = RouteDashboard
	s.message = "We did not detect your deposit yet. If you paid, it will show up in your balance"
	s.queue(Event{Type: EventTimeout, Message: s.message, Route: s.route})
	s.deps.Metrics.IncCounter("session_outcome", map[string]string{"outcome": "timeout"})

	zap.L().Warn("Deposit session timed out",
		zap.String("session_id", s.id),
		zap.Int("polls", t.Polls),
		zap.Duration("elapsed", t.Elapsed))
	s.cancel()
}

// invalidateCaches runs at most once per session
func (s *Session) invalidateCaches(ctx context.Context, address string) {
	if s.deps.Cache == nil {
		return
	}
	s.invalidateOnce.Do(func() {
		if err := s.deps.Cache.Invalidate(ctx, address); err != nil {
			zap.L().Warn("Cache invalidation failed",
				zap.String("session_id", s.id),
				zap.String("address", address),
				zap.Error(err))
		}
	})
}

// Cancel abandons the current charge and returns to amount entry
func (s *Session) Cancel() error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if !s.state.chargeLive() {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, s.state, StateCancelled)
	}

	s.stopTimers()
	if err := s.transition(StateCancelled); err != nil {
		return err
	}
	s.resetCharge()
	return s.transition(StateAmountEntry)
}

// resetCharge must be called with mu held
func (s *Session) resetCharge() {
	s.charge = nil
	s.snapshot = nil
	s.watcher = nil
	s.expiryNotified = false
	s.message = ""
}

// Close is called when the user navigates away. It is idempotent.
func (s *Session) Close() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopTimers()

	switch {
	case s.state == StateResolvingReceipt:
		s.message = "Deposit closed while the receipt was loading. Check your history"
		_ = s.transition(StateFailed)
	case s.state.IsTerminal(), s.state == StateCancelled:
	default:
		_ = s.transition(StateCancelled)
	}
	s.cancel()

	zap.L().Info("Deposit session closed",
		zap.String("session_id", s.id),
		zap.String("state", string(s.state)))
}

// Done is closed once the session can produce no further events
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// View is a point-in-time copy of a session for presentation
type View struct {
	Id             string                  `json:"id"`
	State          State                   `json:"state"`
	Address        string                  `json:"address"`
	Asset          string                  `json:"asset"`
	Quote          *models.FeeQuote        `json:"quote,omitempty"`
	Charge         *models.PixCharge       `json:"charge,omitempty"`
	Snapshot       *models.BalanceSnapshot `json:"snapshot,omitempty"`
	TimeLeft       time.Duration           `json:"time_left"`
	ChargeExpired  bool                    `json:"charge_expired"`
	Receipt        *models.Receipt         `json:"receipt,omitempty"`
	CreditedDelta  *decimal.Decimal        `json:"credited_delta,omitempty"`
	Route          string                  `json:"route,omitempty"`
	Message        string                  `json:"message,omitempty"`
	History        []Transition            `json:"history"`
	GeneratingBusy bool                    `json:"generating"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v := View{
		Id:             s.id,
		State:          s.state,
		Address:        s.wallet.Address(),
		Asset:          s.asset,
		Route:          s.route,
		Message:        s.message,
		History:        append([]Transition(nil), s.history...),
		GeneratingBusy: s.generating.Load(),
	}
	if s.quote != nil {
		q := *s.quote
		v.Quote = &q
	}
	if s.charge != nil {
		c := *s.charge
		v.Charge = &c
		v.TimeLeft = c.TimeLeft(now)
		v.ChargeExpired = c.Expired(now)
	}
	if s.snapshot != nil {
		snap := *s.snapshot
		v.Snapshot = &snap
	}
	if s.receipt != nil {
		r := *s.receipt
		v.Receipt = &r
	}
	if s.delta != nil {
		d := *s.delta
		v.CreditedDelta = &d
	}
	return v
}

// Finished reports when the session stopped producing work. ok is false
// while the session can still move.
func (s *Session) Finished() (at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed && !s.state.IsTerminal() {
		return time.Time{}, false
	}
	if n := len(s.history); n > 0 {
		return s.history[n-1].At, true
	}
	return s.now(), true
}
