package receipt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/shopspring/decimal"
)

const testAddress = "0x2222222222222222222222222222222222222222"

type fakeTxs struct {
	txs   []models.Transaction
	err   error
	calls int
}

func (f *fakeTxs) GetTransactions(context.Context, string) ([]models.Transaction, error) {
	f.calls++
	return f.txs, f.err
}

// memStore is a minimal in-memory ReceiptStore
type memStore struct {
	mu       sync.Mutex
	saved    map[string]models.Receipt
	consumed map[string]bool
	ttl      time.Duration
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{saved: map[string]models.Receipt{}, consumed: map[string]bool{}}
}

func (m *memStore) SaveReceipt(_ context.Context, r *models.Receipt, ttl time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[r.TxHash] = *r
	m.ttl = ttl
	return nil
}

func (m *memStore) GetReceipt(_ context.Context, h string) (*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.saved[h]
	if !ok {
		return nil, store.ErrReceiptNotFound
	}
	return &r, nil
}

func (m *memStore) TakeReceipt(ctx context.Context, h string) (*models.Receipt, error) {
	r, err := m.GetReceipt(ctx, h)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumed[h] {
		return nil, store.ErrReceiptConsumed
	}
	m.consumed[h] = true
	return r, nil
}

func (m *memStore) ListReceipts(context.Context, string, int) ([]store.ReceiptRecord, error) {
	return nil, nil
}
func (m *memStore) PurgeExpired(context.Context) (int64, error) { return 0, nil }
func (m *memStore) Close()                                      {}

func tx(hash, amount string) models.Transaction {
	a := decimal.RequireFromString(amount)
	return models.Transaction{
		Hash:        hash,
		AmountAsset: a,
		AmountBRL:   &a,
		ExplorerURL: "https://x/" + hash,
		CreatedAt:   time.Date(2025, 11, 8, 3, 42, 12, 0, time.UTC),
	}
}

func TestResolveHeadOfList(t *testing.T) {
	src := &fakeTxs{txs: []models.Transaction{tx("0xnew", "100.0"), tx("0xold", "30.0")}}
	st := newMemStore()
	r := NewResolver(src, st, 10*time.Minute, "")

	ctx := models.WithDepositContext(context.Background(), &models.DepositContext{SessionId: "s-1"})
	receipt, err := r.Resolve(ctx, testAddress, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if receipt.TxHash != "0xnew" || !receipt.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Unexpected receipt %+v", receipt)
	}
	if receipt.SessionId != "s-1" {
		t.Errorf("Expected session id from context, got %q", receipt.SessionId)
	}
	if _, ok := st.saved["0xnew"]; !ok {
		t.Error("Expected handoff record to be written")
	}
	if st.ttl != 10*time.Minute {
		t.Errorf("Expected ttl 10m, got %v", st.ttl)
	}
}

func TestResolveTakesHeadOfList(t *testing.T) {
	src := &fakeTxs{txs: []models.Transaction{tx("0xhead", "50.0"), tx("0xolder", "100.0")}}
	r := NewResolver(src, newMemStore(), time.Minute, "")

	receipt, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if receipt.TxHash != "0xhead" {
		t.Errorf("Expected most recent 0xhead, got %s", receipt.TxHash)
	}
}

func TestResolveEmptyList(t *testing.T) {
	r := NewResolver(&fakeTxs{}, newMemStore(), time.Minute, "")

	if _, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(1)); !errors.Is(err, ErrNoReceipt) {
		t.Errorf("Expected ErrNoReceipt, got %v", err)
	}
}

func TestResolveFetchError(t *testing.T) {
	r := NewResolver(&fakeTxs{err: errors.New("HTTP 500")}, newMemStore(), time.Minute, "")

	_, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(1))
	if err == nil || errors.Is(err, ErrNoReceipt) {
		t.Errorf("Expected wrapped fetch error, got %v", err)
	}
}

func TestResolveSaveError(t *testing.T) {
	st := newMemStore()
	st.saveErr = errors.New("disk full")
	r := NewResolver(&fakeTxs{txs: []models.Transaction{tx("0x1", "1.0")}}, st, time.Minute, "")

	if _, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(1)); err == nil {
		t.Error("Expected save error to propagate")
	}
}

func TestResolveExplorerFallback(t *testing.T) {
	t0 := tx("0xabc", "1.0")
	t0.ExplorerURL = ""
	r := NewResolver(&fakeTxs{txs: []models.Transaction{t0}}, nil, time.Minute, "https://sepolia.arbiscan.io/tx/")

	receipt, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if receipt.ExplorerURL != "https://sepolia.arbiscan.io/tx/0xabc" {
		t.Errorf("Expected explorer fallback, got %q", receipt.ExplorerURL)
	}
}

func TestLookupPrefersHandoffThenScans(t *testing.T) {
	src := &fakeTxs{txs: []models.Transaction{tx("0xnew", "100.0"), tx("0xold", "30.0")}}
	st := newMemStore()
	r := NewResolver(src, st, time.Minute, "")

	if _, err := r.Resolve(context.Background(), testAddress, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	src.calls = 0

	got, err := r.Lookup(context.Background(), testAddress, "0xnew")
	if err != nil || got.TxHash != "0xnew" {
		t.Fatalf("Expected handoff hit, got %+v %v", got, err)
	}
	if src.calls != 0 {
		t.Error("Expected no backend call when the handoff record exists")
	}

	// consumed handoff falls back to the list
	got, err = r.Lookup(context.Background(), testAddress, "0xnew")
	if err != nil || got.TxHash != "0xnew" {
		t.Fatalf("Expected list fallback, got %+v %v", got, err)
	}
	if src.calls != 1 {
		t.Errorf("Expected one backend call, got %d", src.calls)
	}

	got, err = r.Lookup(context.Background(), testAddress, "0xOLD")
	if err != nil || got.TxHash != "0xold" || !got.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected case-insensitive scan hit, got %+v %v", got, err)
	}

	if _, err := r.Lookup(context.Background(), testAddress, "0xmissing"); !errors.Is(err, ErrNoReceipt) {
		t.Errorf("Expected ErrNoReceipt, got %v", err)
	}
	if _, err := r.Lookup(context.Background(), "", "0xmissing"); !errors.Is(err, ErrNoReceipt) {
		t.Errorf("Expected ErrNoReceipt without address, got %v", err)
	}
}
