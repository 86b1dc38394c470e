package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	balanceNamespace      = "wallet-balance"
	transactionsNamespace = "wallet-transactions"
)

// WalletCache holds the per-address balance and transaction list shared by
// the dashboard reads and the deposit flow.
type WalletCache struct {
	store      Store
	balanceTTL time.Duration
	txTTL      time.Duration
	now        func() time.Time

	mu            sync.Mutex
	invalidations map[string]int
}

func NewWalletCache(store Store, cfg models.CacheConfig) *WalletCache {
	return &WalletCache{
		store:         store,
		balanceTTL:    cfg.BalanceStaleTime,
		txTTL:         cfg.TransactionStaleTime,
		now:           time.Now,
		invalidations: make(map[string]int),
	}
}

func cacheKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (c *WalletCache) Balance(ctx context.Context, address string) (*models.WalletBalance, bool) {
	var wb models.WalletBalance
	if !c.get(ctx, balanceNamespace, address, &wb) {
		return nil, false
	}
	wb.Cached = true
	return &wb, true
}

// StoreBalance records a freshly fetched balance. Errors are logged only.
func (c *WalletCache) StoreBalance(ctx context.Context, address string, balance decimal.Decimal) {
	c.set(ctx, balanceNamespace, address, models.WalletBalance{
		Address:   address,
		Balance:   balance,
		FetchedAt: c.now(),
	}, c.balanceTTL)
}

func (c *WalletCache) Transactions(ctx context.Context, address string) ([]models.Transaction, bool) {
	var txs []models.Transaction
	if !c.get(ctx, transactionsNamespace, address, &txs) {
		return nil, false
	}
	return txs, true
}

func (c *WalletCache) StoreTransactions(ctx context.Context, address string, txs []models.Transaction) {
	c.set(ctx, transactionsNamespace, address, txs, c.txTTL)
}

// Invalidate drops both the balance and transaction entries for address
func (c *WalletCache) Invalidate(ctx context.Context, address string) error {
	key := cacheKey(address)
	errBalance := c.store.Delete(ctx, balanceNamespace, key)
	errTxs := c.store.Delete(ctx, transactionsNamespace, key)

	c.mu.Lock()
	c.invalidations[key]++
	c.mu.Unlock()

	zap.L().Info("Invalidated wallet cache", zap.String("address", address))
	return errors.Join(errBalance, errTxs)
}

// Invalidations returns how many times address has been invalidated by this process
func (c *WalletCache) Invalidations(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations[cacheKey(address)]
}

func (c *WalletCache) get(ctx context.Context, namespace, address string, out any) bool {
	raw, err := c.store.Get(ctx, namespace, cacheKey(address))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			zap.L().Warn("Cache read failed",
				zap.String("namespace", namespace),
				zap.String("address", address),
				zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		zap.L().Warn("Dropping undecodable cache entry",
			zap.String("namespace", namespace),
			zap.String("address", address),
			zap.Error(err))
		_ = c.store.Delete(ctx, namespace, cacheKey(address))
		return false
	}
	return true
}

func (c *WalletCache) set(ctx context.Context, namespace, address string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("Unable to encode cache entry", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, namespace, cacheKey(address), raw, ttl); err != nil {
		zap.L().Warn("Cache write failed",
			zap.String("namespace", namespace),
			zap.String("address", address),
			zap.Error(err))
	}
}
