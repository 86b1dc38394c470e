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

package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pix-deposit-go/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 300 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrStopped        = errors.New("watcher stopped")
)

// BalanceSource is anything that can report the current balance of an address
type BalanceSource interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// BalanceCache receives every successfully polled balance
type BalanceCache interface {
	StoreBalance(ctx context.Context, address string, balance decimal.Decimal)
}

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeCredited Outcome = "credited"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeStopped  Outcome = "stopped"
)

// Credited is emitted once when a poll observes a balance above the baseline
type Credited struct {
	Address  string
	Baseline decimal.Decimal
	Observed decimal.Decimal
	Delta    decimal.Decimal
	Polls    int
	At       time.Time
}

// TimedOut is emitted once when the timeout elapses without a credit
type TimedOut struct {
	Address      string
	Baseline     decimal.Decimal
	LastObserved *decimal.Decimal
	Polls        int
	Elapsed      time.Duration
}

type Config struct {
	Address      string
	Baseline     decimal.Decimal
	PollInterval time.Duration
	Timeout      time.Duration
}

// Watcher polls a balance source until the balance rises above a fixed
// baseline or the timeout elapses. It is single-use: Start runs at most once
// and at most one of Credited or TimedOut is ever emitted.
type Watcher struct {
	src        BalanceSource
	cfg        Config
	cache      BalanceCache
	metrics    metrics.Recorder
	onCredited func(Credited)
	onTimeout  func(TimedOut)

	mu       sync.Mutex
	started  bool
	active   bool
	outcome  Outcome
	polls    int
	last     *decimal.Decimal
	credited *Credited

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

type Option func(*Watcher)

func OnCredited(fn func(Credited)) Option {
	return func(w *Watcher) { w.onCredited = fn }
}

func OnTimeout(fn func(TimedOut)) Option {
	return func(w *Watcher) { w.onTimeout = fn }
}

// WithCache makes every successful poll refresh the shared balance cache
func WithCache(c BalanceCache) Option {
	return func(w *Watcher) { w.cache = c }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(w *Watcher) { w.metrics = r }
}

func New(src BalanceSource, cfg Config, opts ...Option) (*Watcher, error) {
	if src == nil {
		return nil, fmt.Errorf("balance source is required")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	w := &Watcher{
		src:      src,
		cfg:      cfg,
		metrics:  metrics.NoopRecorder{},
		outcome:  OutcomePending,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the polling loop. The first poll happens one interval
// after Start.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	if w.outcome == OutcomeStopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.started = true
	w.active = true
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	zap.L().Info("Starting balance watcher",
		zap.String("address", w.cfg.Address),
		zap.String("baseline", w.cfg.Baseline.String()),
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Duration("timeout", w.cfg.Timeout))

	go w.pollLoop(loopCtx)
	return nil
}

// Stop ends the watch without emitting anything. It is idempotent, safe
// before Start and safe from inside an event callback. It does not wait for
// an in-flight poll; use Done for that.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		claimed := w.active
		w.active = false
		started := w.started
		if claimed || !started {
			w.outcome = OutcomeStopped
		}
		cancel := w.cancel
		w.mu.Unlock()

		close(w.stopChan)
		if cancel != nil {
			cancel()
		}
		if !started {
			close(w.doneChan)
		}
		if claimed {
			w.metrics.IncCounter("watcher_outcome", map[string]string{"outcome": string(OutcomeStopped)})
			zap.L().Info("Balance watcher stopped", zap.String("address", w.cfg.Address))
		}
	})
}

// Done is closed once the polling loop has exited
func (w *Watcher) Done() <-chan struct{} {
	return w.doneChan
}

func (w *Watcher) Outcome() Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome
}

// Result returns the credit event if the watch ended credited
func (w *Watcher) Result() (*Credited, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.credited == nil {
		return nil, false
	}
	c := *w.credited
	return &c, true
}

func (w *Watcher) Polls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polls
}

// claim moves the watcher out of the active state. Only the caller that
// wins the claim may emit an event.
func (w *Watcher) claim(o Outcome) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return false
	}
	w.active = false
	w.outcome = o
	return true
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.doneChan)
	defer w.cancel()

	start := time.Now()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(w.cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			w.claim(OutcomeStopped)
			return
		case <-deadline.C:
			w.emitTimeout(time.Since(start))
			return
		case <-ticker.C:
			if time.Since(start) >= w.cfg.Timeout {
				w.emitTimeout(time.Since(start))
				return
			}
			if w.poll(ctx) {
				return
			}
		}
	}
}

// poll runs one sequential balance fetch. It returns true when the watch
// is over.
func (w *Watcher) poll(ctx context.Context) bool {
	started := time.Now()
	balance, err := w.src.GetBalance(ctx, w.cfg.Address)

	w.mu.Lock()
	w.polls++
	polls := w.polls
	active := w.active
	if err == nil {
		b := balance
		w.last = &b
	}
	w.mu.Unlock()

	if !active {
		return true
	}

	if err != nil {
		w.metrics.IncCounter("watcher_poll", map[string]string{"outcome": "error"})
		w.metrics.ObserveLatency("watcher_poll", time.Since(started), map[string]string{"outcome": "error"})
		zap.L().Warn("Balance poll failed, will retry",
			zap.String("address", w.cfg.Address),
			zap.Int("poll", polls),
			zap.Error(err))
		return false
	}

	w.metrics.IncCounter("watcher_poll", map[string]string{"outcome": "success"})
	w.metrics.ObserveLatency("watcher_poll", time.Since(started), map[string]string{"outcome": "success"})

	if w.cache != nil {
		w.cache.StoreBalance(ctx, w.cfg.Address, balance)
	}

	zap.L().Debug("Polled balance",
		zap.String("address", w.cfg.Address),
		zap.Int("poll", polls),
		zap.String("balance", balance.String()),
		zap.String("baseline", w.cfg.Baseline.String()))

	if !balance.GreaterThan(w.cfg.Baseline) {
		return false
	}

	event := Credited{
		Address:  w.cfg.Address,
		Baseline: w.cfg.Baseline,
		Observed: balance,
		Delta:    balance.Sub(w.cfg.Baseline),
		Polls:    polls,
		At:       time.Now(),
	}

	if !w.claim(OutcomeCredited) {
		return true
	}

	w.mu.Lock()
	w.credited = &event
	w.mu.Unlock()

	w.metrics.IncCounter("watcher_outcome", map[string]string{"outcome": string(OutcomeCredited)})
	zap.L().Info("Balance credited",
		zap.String("address", w.cfg.Address),
		zap.String("baseline", event.Baseline.String()),
		zap.String("observed", event.Observed.String()),
		zap.String("delta", event.Delta.String()),
		zap.Int("polls", polls))

	if w.onCredited != nil {
		w.onCredited(event)
	}
	return true
}

func (w *Watcher) emitTimeout(elapsed time.Duration) {
	if !w.claim(OutcomeTimeout) {
		return
	}

	w.mu.Lock()
	event := TimedOut{
		Address:      w.cfg.Address,
		Baseline:     w.cfg.Baseline,
		LastObserved: w.last,
		Polls:        w.polls,
		Elapsed:      elapsed,
	}
	w.mu.Unlock()

	w.metrics.IncCounter("watcher_outcome", map[string]string{"outcome": string(OutcomeTimeout)})
	zap.L().Warn("Balance watch timed out",
		zap.String("address", w.cfg.Address),
		zap.String("baseline", w.cfg.Baseline.String()),
		zap.Int("polls", event.Polls),
		zap.Duration("elapsed", elapsed))

	if w.onTimeout != nil {
		w.onTimeout(event)
	}
}
