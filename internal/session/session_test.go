package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pix-deposit-go/internal/cache"
	"pix-deposit-go/internal/gateway"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/policy"
	"pix-deposit-go/internal/receipt"

	"github.com/shopspring/decimal"
)

const testAddress = "0x3333333333333333333333333333333333333333"

type fakeCharges struct {
	mu     sync.Mutex
	calls  []decimal.Decimal
	err    error
	expiry time.Duration
	block  chan struct{}
}

func (f *fakeCharges) CreateCharge(_ context.Context, address string, amount decimal.Decimal) (*models.PixCharge, error) {
	f.mu.Lock()
	f.calls = append(f.calls, amount)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	expiry := f.expiry
	if expiry == 0 {
		expiry = 5 * time.Minute
	}
	return &models.PixCharge{
		BRCode:        "00020126...",
		AmountBRL:     amount,
		TransactionId: "charge-1",
		ExpiresAt:     time.Now().Add(expiry),
	}, nil
}

func (f *fakeCharges) Calls() []decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decimal.Decimal(nil), f.calls...)
}

// balances returns the queued values in order, repeating the last one
type balances struct {
	mu     sync.Mutex
	values []string
	err    error
	calls  int
}

func (b *balances) GetBalance(context.Context, string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return decimal.Zero, b.err
	}
	idx := b.calls
	b.calls++
	if idx >= len(b.values) {
		idx = len(b.values) - 1
	}
	return decimal.RequireFromString(b.values[idx]), nil
}

type fakeTxs struct {
	txs []models.Transaction
	err error
}

func (f *fakeTxs) GetTransactions(context.Context, string) ([]models.Transaction, error) {
	return f.txs, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan Event, 64)} }

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return Event{}
		}
	}
}

type fixture struct {
	charges  *fakeCharges
	balances *balances
	txs      *fakeTxs
	cache    *cache.WalletCache
	events   *recorder
	deps     Deps
	cfg      Config
}

func newFixture(balanceSeq ...string) *fixture {
	f := &fixture{
		charges:  &fakeCharges{},
		balances: &balances{values: balanceSeq},
		txs:      &fakeTxs{},
		cache:    cache.NewWalletCache(cache.NewMemoryStore(), models.CacheConfig{BalanceStaleTime: time.Minute, TransactionStaleTime: time.Minute}),
		events:   newRecorder(),
	}
	f.deps = Deps{
		Charges:      f.charges,
		Balances:     f.balances,
		Resolver:     receipt.NewResolver(f.txs, nil, time.Minute, "https://sepolia.arbiscan.io/tx/"),
		Cache:        f.cache,
		BalanceCache: f.cache,
		Policy:       policy.MustNew(policy.Default),
		Notifier:     f.events,
	}
	f.cfg = Config{
		Asset:        "BRLA",
		Network:      "ARBITRUM_SEPOLIA",
		ChainId:      421614,
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	}
	return f
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, err := New(models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: true}, f.deps, f.cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositEndToEnd(t *testing.T) {
	f := newFixture("20", "20", "120")
	f.txs.txs = []models.Transaction{
		{Hash: "0xabc", AmountAsset: dec("100"), Status: models.TransactionSuccess, CreatedAt: time.Now()},
		{Hash: "0xold", AmountAsset: dec("7"), Status: models.TransactionSuccess, CreatedAt: time.Now().Add(-time.Hour)},
	}
	s := f.session(t)

	quote, err := s.SetAmount(dec("100"))
	if err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if !quote.Fee.Equal(dec("1.5")) || !quote.Total.Equal(dec("101.5")) {
		t.Fatalf("quote = %+v", quote)
	}

	charge, err := s.GenerateCharge(context.Background())
	if err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if gateway.ToCents(charge.AmountBRL) != 10150 {
		t.Errorf("charged %s, want 101.50", charge.AmountBRL)
	}
	v := s.View()
	if v.State != StateChargeReady {
		t.Fatalf("state = %s, want charge_ready", v.State)
	}
	if v.Snapshot == nil || !v.Snapshot.Amount.Equal(dec("20")) {
		t.Fatalf("snapshot = %+v, want 20", v.Snapshot)
	}

	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	success := f.events.waitFor(t, EventSuccess)

	if success.Route != "/receipt/0xabc" {
		t.Errorf("route = %q, want /receipt/0xabc", success.Route)
	}
	if success.Delta == nil || !success.Delta.Equal(dec("100")) {
		t.Errorf("delta = %v, want 100", success.Delta)
	}
	if success.Receipt == nil || success.Receipt.SessionId != s.Id() {
		t.Errorf("receipt = %+v", success.Receipt)
	}
	if got := f.cache.Invalidations(testAddress); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}
	if s.State() != StateSuccess {
		t.Errorf("state = %s, want success", s.State())
	}

	want := []State{StateAmountEntry, StateGeneratingCharge, StateChargeReady, StateAwaitingConfirmation, StateWatchingBalance, StateResolvingReceipt, StateSuccess}
	hist := s.View().History
	if len(hist) != len(want) {
		t.Fatalf("history has %d entries, want %d", len(hist), len(want))
	}
	for i, tr := range hist {
		if tr.To != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, tr.To, want[i])
		}
	}
}

func TestResolutionFailureFallsBackToDashboard(t *testing.T) {
	f := newFixture("20", "20", "30")
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	e := f.events.waitFor(t, EventSuccess)
	if e.Route != RouteDashboard {
		t.Errorf("route = %q, want dashboard", e.Route)
	}
	if e.Receipt != nil {
		t.Errorf("expected no receipt, got %+v", e.Receipt)
	}
}

func TestTimeoutNotifiesOnce(t *testing.T) {
	f := newFixture("20")
	f.cfg.Timeout = 40 * time.Millisecond
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	e := f.events.waitFor(t, EventTimeout)
	if e.Route != RouteDashboard {
		t.Errorf("route = %q, want dashboard", e.Route)
	}
	time.Sleep(30 * time.Millisecond)
	if n := f.events.count(EventTimeout); n != 1 {
		t.Errorf("timeout events = %d, want 1", n)
	}
	if n := f.events.count(EventSuccess); n != 0 {
		t.Errorf("success events = %d, want 0", n)
	}
	if s.State() != StateTimeout {
		t.Errorf("state = %s, want timeout", s.State())
	}
}

func TestGenerateChargeGuards(t *testing.T) {
	tests := []struct {
		name   string
		wallet models.StaticWallet
		amount string
		asset  string
		want   error
	}{
		{"no amount", models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: true}, "", "BRLA", ErrNoAmount},
		{"no asset", models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: true}, "10", "", ErrNoAsset},
		{"wrong chain", models.StaticWallet{Addr: testAddress, Chain: 1, Connect: true}, "10", "BRLA", ErrWrongChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("20")
			s, err := New(tt.wallet, f.deps, f.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer s.Close()
			if err := s.Begin(); err != nil {
				t.Fatalf("Begin: %v", err)
			}
			if tt.amount != "" {
				s.SetAmount(dec(tt.amount))
			}
			s.SetAsset(tt.asset)

			_, err = s.GenerateCharge(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(f.charges.Calls()) != 0 {
				t.Errorf("backend was called")
			}
			if s.View().Message == "" {
				t.Errorf("expected a user message")
			}
		})
	}
}

func TestBeginRequiresWallet(t *testing.T) {
	f := newFixture("20")
	s, _ := New(models.StaticWallet{}, f.deps, f.cfg)
	defer s.Close()
	if err := s.Begin(); !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("err = %v, want ErrWalletNotConnected", err)
	}
}

func TestSetAmountOutOfBounds(t *testing.T) {
	f := newFixture("20")
	s := f.session(t)

	for _, amount := range []string{"0", "-5", "0.99", "5000.01"} {
		if _, err := s.SetAmount(dec(amount)); err == nil {
			t.Errorf("SetAmount(%s) accepted", amount)
		}
	}
	if _, err := s.SetAmount(dec("0.5")); !errors.Is(err, policy.ErrBelowMin) {
		t.Errorf("err = %v, want ErrBelowMin", err)
	}
	if s.View().Quote != nil {
		t.Errorf("invalid amount left a quote behind")
	}
}

func TestGenerateChargeFailureReturnsToAmountEntry(t *testing.T) {
	f := newFixture("20")
	f.charges.err = &gateway.Error{Kind: gateway.KindNetwork, Op: "create_charge", Message: "Failed to fetch"}
	s := f.session(t)
	s.SetAmount(dec("10"))

	if _, err := s.GenerateCharge(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	v := s.View()
	if v.State != StateAmountEntry {
		t.Errorf("state = %s, want amount_entry", v.State)
	}
	if v.Message != "Service unavailable, try again later" {
		t.Errorf("message = %q", v.Message)
	}
	if f.events.count(EventError) != 1 {
		t.Errorf("expected one error event")
	}
}

func TestSnapshotFailureDoesNotExposeCharge(t *testing.T) {
	f := newFixture("20")
	f.balances.err = errors.New("balance down")
	s := f.session(t)
	s.SetAmount(dec("10"))

	_, err := s.GenerateCharge(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
	v := s.View()
	if v.State != StateAmountEntry || v.Charge != nil {
		t.Errorf("state = %s charge = %v", v.State, v.Charge)
	}
}

func TestConcurrentGenerateIsRejected(t *testing.T) {
	f := newFixture("20")
	f.charges.block = make(chan struct{})
	s := f.session(t)
	s.SetAmount(dec("10"))

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateCharge(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for len(f.charges.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := s.GenerateCharge(context.Background()); !errors.Is(err, ErrChargeInProgress) {
		t.Fatalf("err = %v, want ErrChargeInProgress", err)
	}

	close(f.charges.block)
	if err := <-done; err != nil {
		t.Fatalf("first GenerateCharge: %v", err)
	}
	if n := len(f.charges.Calls()); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestCancelReturnsToAmountEntry(t *testing.T) {
	f := newFixture("20")
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	v := s.View()
	if v.State != StateAmountEntry {
		t.Errorf("state = %s, want amount_entry", v.State)
	}
	if v.Charge != nil || v.Snapshot != nil {
		t.Errorf("charge and snapshot should be discarded")
	}

	// cancelling twice is not a legal transition
	if err := s.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkPaidGuards(t *testing.T) {
	f := newFixture("20")
	s := f.session(t)

	if err := s.MarkPaid(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}

	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if err := s.MarkPaid(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second MarkPaid err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkPaidRejectsExpiredCharge(t *testing.T) {
	f := newFixture("20")
	f.charges.expiry = time.Millisecond
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}

	f.events.waitFor(t, EventChargeExpired)
	if err := s.MarkPaid(context.Background()); !errors.Is(err, ErrChargeExpired) {
		t.Fatalf("err = %v, want ErrChargeExpired", err)
	}
	if s.State() != StateChargeReady {
		t.Errorf("expiry must not force a transition, state = %s", s.State())
	}
	if n := f.events.count(EventChargeExpired); n != 1 {
		t.Errorf("expiry events = %d, want 1", n)
	}
}

func TestChargeExpiryDuringWatchStillLandsLatePayment(t *testing.T) {
	f := newFixture("20")
	f.charges.expiry = 40 * time.Millisecond
	f.txs.txs = []models.Transaction{{Hash: "0xlate", AmountAsset: dec("10"), CreatedAt: time.Now()}}
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	f.events.waitFor(t, EventChargeExpired)
	if s.State() != StateWatchingBalance {
		t.Fatalf("state after expiry = %s, want watching_balance", s.State())
	}

	f.balances.mu.Lock()
	f.balances.values = []string{"120"}
	f.balances.calls = 0
	f.balances.mu.Unlock()

	success := f.events.waitFor(t, EventSuccess)
	if success.Route != "/receipt/0xlate" {
		t.Errorf("route = %q, want /receipt/0xlate", success.Route)
	}
	if s.State() != StateSuccess {
		t.Errorf("state = %s, want success", s.State())
	}
	if n := f.events.count(EventChargeExpired); n != 1 {
		t.Errorf("expiry events = %d, want 1", n)
	}
}

func TestCloseWhileWatchingCancels(t *testing.T) {
	f := newFixture("20")
	s := f.session(t)
	s.SetAmount(dec("10"))
	if _, err := s.GenerateCharge(context.Background()); err != nil {
		t.Fatalf("GenerateCharge: %v", err)
	}
	if err := s.MarkPaid(context.Background()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	s.Close()
	s.Close()

	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not done after Close")
	}
	time.Sleep(20 * time.Millisecond)
	if f.events.count(EventSuccess)+f.events.count(EventTimeout) != 0 {
		t.Errorf("no outcome events expected after close")
	}
	if err := s.Cancel(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	f := newFixture("20")
	var mu sync.Mutex
	routed := map[string]int{}
	m := NewManager(f.deps, f.cfg, func(id string) Notifier {
		return NotifierFunc(func(e Event) {
			mu.Lock()
			routed[id]++
			mu.Unlock()
		})
	})

	s, err := m.Create(models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.State() != StateAmountEntry {
		t.Errorf("state = %s, want amount_entry", s.State())
	}
	if got, _ := m.Get(s.Id()); got != s {
		t.Errorf("Get returned a different session")
	}
	mu.Lock()
	if routed[s.Id()] == 0 {
		t.Errorf("notifier factory was not wired")
	}
	mu.Unlock()

	if err := m.Remove(s.Id()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.Get(s.Id()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestManagerCreateReleasesSessionOnBeginFailure(t *testing.T) {
	f := newFixture("20")
	var mu sync.Mutex
	var states []State
	m := NewManager(f.deps, f.cfg, func(string) Notifier {
		return NotifierFunc(func(e Event) {
			mu.Lock()
			states = append(states, e.State)
			mu.Unlock()
		})
	})

	_, err := m.Create(models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: false})
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("err = %v, want ErrWalletNotConnected", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[len(states)-1] != StateCancelled {
		t.Errorf("states = %v, want the dropped session closed as cancelled", states)
	}
}

func TestManagerReapsFinishedSessions(t *testing.T) {
	f := newFixture("20")
	m := NewManager(f.deps, f.cfg, nil)
	wallet := models.StaticWallet{Addr: testAddress, Chain: 421614, Connect: true}

	live, err := m.Create(wallet)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done, err := m.Create(wallet)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done.Close()

	if ids := m.Reap(time.Now(), time.Hour); len(ids) != 0 {
		t.Errorf("reaped %v inside the grace period", ids)
	}
	ids := m.Reap(time.Now().Add(2*time.Hour), time.Hour)
	if len(ids) != 1 || ids[0] != done.Id() {
		t.Fatalf("reaped %v, want [%s]", ids, done.Id())
	}
	if _, err := m.Get(live.Id()); err != nil {
		t.Errorf("live session was reaped: %v", err)
	}
	live.Close()
}
