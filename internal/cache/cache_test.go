package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

const testAddress = "0xAbCd000000000000000000000000000000000001"

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "ns", "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := m.Get(ctx, "ns", "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Expected hit, got %q %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "ns", "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected miss after expiry, got %v", err)
	}
}

func TestMemoryStoreNamespaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.Set(ctx, "a", "k", []byte("1"), 0)
	_ = m.Set(ctx, "b", "k", []byte("2"), 0)

	_ = m.Delete(ctx, "a", "k")
	if _, err := m.Get(ctx, "a", "k"); !errors.Is(err, ErrMiss) {
		t.Error("Expected namespace a to be deleted")
	}
	if got, _ := m.Get(ctx, "b", "k"); string(got) != "2" {
		t.Error("Expected namespace b to survive")
	}
}

func TestWalletCacheRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	wc := NewWalletCache(NewMemoryStore(), models.CacheConfig{
		BalanceStaleTime:     15 * time.Second,
		TransactionStaleTime: 30 * time.Second,
	})

	wc.StoreBalance(ctx, testAddress, decimal.RequireFromString("120.5"))
	wc.StoreTransactions(ctx, testAddress, []models.Transaction{{Hash: "0x1"}})

	// keys are case-insensitive
	wb, ok := wc.Balance(ctx, "0xabcd000000000000000000000000000000000001")
	if !ok || !wb.Balance.Equal(decimal.RequireFromString("120.5")) || !wb.Cached {
		t.Fatalf("Expected cached balance, got %+v %v", wb, ok)
	}
	if txs, ok := wc.Transactions(ctx, testAddress); !ok || len(txs) != 1 {
		t.Fatalf("Expected cached transactions, got %v %v", txs, ok)
	}

	if err := wc.Invalidate(ctx, testAddress); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := wc.Balance(ctx, testAddress); ok {
		t.Error("Expected balance to be invalidated")
	}
	if _, ok := wc.Transactions(ctx, testAddress); ok {
		t.Error("Expected transactions to be invalidated")
	}
	if wc.Invalidations(testAddress) != 1 {
		t.Errorf("Expected one invalidation, got %d", wc.Invalidations(testAddress))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if s, err := New(models.CacheConfig{}); err != nil {
		t.Errorf("Expected memory default, got %v", err)
	} else if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", s)
	}
	if _, err := New(models.CacheConfig{Backend: "redis"}); err == nil {
		t.Error("Expected error without REDIS_ADDR")
	}
	if _, err := New(models.CacheConfig{Backend: "memcached"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

// Runs against a live redis when REDIS_TEST_ADDR is set
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	r := NewRedisStore(addr, os.Getenv("REDIS_TEST_PASSWORD"))
	defer r.Close()

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := r.Set(ctx, "pix-deposit-test", "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := r.Get(ctx, "pix-deposit-test", "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Expected hit, got %q %v", got, err)
	}
	_ = r.Delete(ctx, "pix-deposit-test", "k")
	if _, err := r.Get(ctx, "pix-deposit-test", "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected miss after delete, got %v", err)
	}
}
