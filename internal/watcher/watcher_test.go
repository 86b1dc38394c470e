package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testAddress = "0x2222222222222222222222222222222222222222"

// sequenceSource returns the queued results in order, repeating the last one
type sequenceSource struct {
	mu      sync.Mutex
	results []result
	calls   int
	block   chan struct{}
	started chan struct{}
}

type result struct {
	balance string
	err     error
}

func newSequence(balances ...string) *sequenceSource {
	s := &sequenceSource{}
	for _, b := range balances {
		s.results = append(s.results, result{balance: b})
	}
	return s
}

func (s *sequenceSource) GetBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	block := s.block
	started := s.started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	if r.err != nil {
		return decimal.Zero, r.err
	}
	return decimal.RequireFromString(r.balance), nil
}

func (s *sequenceSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type events struct {
	mu       sync.Mutex
	credited []Credited
	timeouts []TimedOut
}

func (e *events) options() []Option {
	return []Option{
		OnCredited(func(c Credited) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.credited = append(e.credited, c)
		}),
		OnTimeout(func(t TimedOut) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.timeouts = append(e.timeouts, t)
		}),
	}
}

func (e *events) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.credited), len(e.timeouts)
}

func waitDone(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Watcher did not finish in time")
	}
}

func TestCreditedOnFirstIncrease(t *testing.T) {
	src := newSequence("19", "20", "25", "25")
	ev := &events{}

	w, err := New(src, Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, ev.options()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, w)

	// give a stray tick the chance to fire
	time.Sleep(50 * time.Millisecond)

	credited, timeouts := ev.counts()
	if credited != 1 || timeouts != 0 {
		t.Fatalf("Expected exactly one credited event, got %d credited %d timeouts", credited, timeouts)
	}
	if !ev.credited[0].Delta.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected delta 5, got %s", ev.credited[0].Delta)
	}
	if ev.credited[0].Polls != 3 {
		t.Errorf("Expected credit on third poll, got %d", ev.credited[0].Polls)
	}
	if src.Calls() != 3 {
		t.Errorf("Expected no polls after credit, got %d calls", src.Calls())
	}
	if w.Outcome() != OutcomeCredited {
		t.Errorf("Expected credited outcome, got %s", w.Outcome())
	}
	if res, ok := w.Result(); !ok || !res.Observed.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestDipThenRiseCountsAgainstOriginalBaseline(t *testing.T) {
	src := newSequence("10", "5", "12")
	ev := &events{}

	w, _ := New(src, Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(10),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, ev.options()...)
	_ = w.Start(context.Background())
	waitDone(t, w)

	credited, _ := ev.counts()
	if credited != 1 || !ev.credited[0].Delta.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("Expected one credit of 2, got %+v", ev.credited)
	}
}

func TestTimeoutWithoutIncrease(t *testing.T) {
	src := newSequence("20", "19", "20")
	ev := &events{}

	w, _ := New(src, Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      80 * time.Millisecond,
	}, ev.options()...)
	_ = w.Start(context.Background())
	waitDone(t, w)

	calls := src.Calls()
	time.Sleep(50 * time.Millisecond)

	credited, timeouts := ev.counts()
	if credited != 0 || timeouts != 1 {
		t.Fatalf("Expected exactly one timeout, got %d credited %d timeouts", credited, timeouts)
	}
	if src.Calls() != calls {
		t.Errorf("Expected polling to stop after timeout")
	}
	if w.Outcome() != OutcomeTimeout {
		t.Errorf("Expected timeout outcome, got %s", w.Outcome())
	}
	if ev.timeouts[0].LastObserved == nil {
		t.Error("Expected last observed balance on timeout")
	}
}

func TestPollErrorsDoNotStopWatching(t *testing.T) {
	src := &sequenceSource{results: []result{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{balance: "30"},
	}}
	ev := &events{}

	w, _ := New(src, Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, ev.options()...)
	_ = w.Start(context.Background())
	waitDone(t, w)

	credited, _ := ev.counts()
	if credited != 1 {
		t.Fatalf("Expected credit after transient errors, got %d", credited)
	}
}

func TestStopSuppressesInFlightCredit(t *testing.T) {
	src := newSequence("100")
	src.block = make(chan struct{})
	src.started = make(chan struct{}, 1)
	ev := &events{}

	w, _ := New(src, Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, ev.options()...)
	_ = w.Start(context.Background())

	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("Poll never started")
	}

	w.Stop()
	close(src.block)
	waitDone(t, w)

	credited, timeouts := ev.counts()
	if credited != 0 || timeouts != 0 {
		t.Fatalf("Expected no events after Stop, got %d credited %d timeouts", credited, timeouts)
	}
	if w.Outcome() != OutcomeStopped {
		t.Errorf("Expected stopped outcome, got %s", w.Outcome())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, _ := New(newSequence("1"), Config{Address: testAddress, PollInterval: time.Hour, Timeout: time.Hour})

	// before start
	w.Stop()
	w.Stop()
	waitDone(t, w)

	if err := w.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}

	w2, _ := New(newSequence("1"), Config{Address: testAddress, PollInterval: time.Hour, Timeout: time.Hour})
	_ = w2.Start(context.Background())
	w2.Stop()
	w2.Stop()
	waitDone(t, w2)
}

func TestStartTwiceFails(t *testing.T) {
	w, _ := New(newSequence("1"), Config{Address: testAddress, PollInterval: time.Hour, Timeout: time.Hour})
	defer w.Stop()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStopFromCallback(t *testing.T) {
	var w *Watcher
	w, _ = New(newSequence("50"), Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, OnCredited(func(Credited) { w.Stop() }))

	_ = w.Start(context.Background())
	waitDone(t, w)

	if w.Outcome() != OutcomeCredited {
		t.Errorf("Expected credited outcome to survive Stop, got %s", w.Outcome())
	}
}

type recordingCache struct {
	mu     sync.Mutex
	stored []string
}

func (c *recordingCache) StoreBalance(_ context.Context, _ string, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, balance.String())
}

func TestPollsRefreshCache(t *testing.T) {
	cache := &recordingCache{}
	w, _ := New(newSequence("20", "21"), Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(20),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, WithCache(cache))

	_ = w.Start(context.Background())
	waitDone(t, w)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.stored) != 2 || cache.stored[1] != "21" {
		t.Errorf("Expected both polls cached, got %v", cache.stored)
	}
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := &events{}
	w, _ := New(newSequence("1"), Config{
		Address:      testAddress,
		Baseline:     decimal.NewFromInt(5),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}, ev.options()...)

	_ = w.Start(ctx)
	cancel()
	waitDone(t, w)

	if w.Outcome() != OutcomeStopped {
		t.Errorf("Expected stopped outcome, got %s", w.Outcome())
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{Address: testAddress}); err == nil {
		t.Error("Expected error for nil source")
	}
	if _, err := New(newSequence("1"), Config{}); err == nil {
		t.Error("Expected error for missing address")
	}
	w, _ := New(newSequence("1"), Config{Address: testAddress})
	if w.cfg.PollInterval != DefaultPollInterval || w.cfg.Timeout != DefaultTimeout {
		t.Errorf("Expected defaults, got %v / %v", w.cfg.PollInterval, w.cfg.Timeout)
	}
}
