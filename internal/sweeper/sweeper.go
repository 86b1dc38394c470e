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

package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pix-deposit-go/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Minute
	DefaultGrace    = 10 * time.Minute
)

// ReceiptPurger drops expired receipt handoff records
type ReceiptPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionReaper removes sessions that finished more than grace ago
type SessionReaper interface {
	Reap(now time.Time, grace time.Duration) []string
}

type Config struct {
	Receipts ReceiptPurger
	Sessions SessionReaper // optional
	OnReap   func(ids []string)
	Interval time.Duration
	Grace    time.Duration
	Metrics  metrics.Recorder
}

// Sweeper periodically purges expired receipts and reaps finished sessions
type Sweeper struct {
	receipts ReceiptPurger
	sessions SessionReaper
	onReap   func([]string)
	interval time.Duration
	grace    time.Duration
	metrics  metrics.Recorder
	now      func() time.Time

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) (*Sweeper, error) {
	if cfg.Receipts == nil {
		return nil, fmt.Errorf("receipt purger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}

	return &Sweeper{
		receipts: cfg.Receipts,
		sessions: cfg.Sessions,
		onReap:   cfg.OnReap,
		interval: cfg.Interval,
		grace:    cfg.Grace,
		metrics:  cfg.Metrics,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start runs the sweep loop until Stop is called or ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	zap.L().Info("Starting sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("grace", s.grace))
	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-flight sweep
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.doneChan
	}
	zap.L().Info("Sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass. Errors are logged; the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()

	purged, err := s.receipts.PurgeExpired(ctx)
	if err != nil {
		zap.L().Error("Failed to purge expired receipts", zap.Error(err))
		s.metrics.IncCounter("sweeper_purge", map[string]string{"outcome": "error"})
	} else if purged > 0 {
		zap.L().Info("Purged expired receipts", zap.Int64("count", purged))
		s.metrics.IncCounter("sweeper_purge", map[string]string{"outcome": "success"})
	}

	if s.sessions != nil {
		ids := s.sessions.Reap(s.now(), s.grace)
		if len(ids) > 0 {
			zap.L().Info("Reaped finished sessions", zap.Int("count", len(ids)))
			if s.onReap != nil {
				s.onReap(ids)
			}
		}
	}

	s.metrics.ObserveLatency("sweeper_sweep", time.Since(start), map[string]string{"outcome": "success"})
}
