package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const (
	DefaultNumCounters = 1e5
	DefaultMaxCost     = 1 << 24
	DefaultTTL         = 30 * time.Second
)

type CacheConfig struct {
	NumCounters int64         // Количество счётчиков для элементов
	MaxCost     int64         // Максимальная стоимость (в байтах)
	TTL         time.Duration // ограничивает жизнь записи, которую успел положить конкурентный Get после сброса
}

// RistrettoWalletCache кеш записей кошельков по адресу
type RistrettoWalletCache struct {
	cache *ristretto.Cache[string, entity.Wallet]
	ttl   time.Duration
}

func NewRistrettoWalletCache(cfg CacheConfig) (*RistrettoWalletCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = DefaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = DefaultMaxCost
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, entity.Wallet]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64, // Количество буферных элементов
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoWalletCache{
		cache: cache,
		ttl:   cfg.TTL,
	}, nil
}

func (c *RistrettoWalletCache) GetWallet(address string) (entity.Wallet, bool) {
	w, ok := c.cache.Get(address)
	if !ok {
		return entity.Wallet{}, false
	}
	return w.Clone(), true
}

// SetWallet стоимость записи примерно равна ее размеру в байтах
func (c *RistrettoWalletCache) SetWallet(w entity.Wallet) {
	cost := int64(len(w.Address) + len(w.PublicKey) + len(w.EncryptedPrivateKey) + len(w.PassphraseSalt) + len(w.PassphraseHash) + 64)
	c.cache.SetWithTTL(w.Address, w.Clone(), cost, c.ttl)
	c.cache.Wait()
}

func (c *RistrettoWalletCache) Invalidate(addresses ...string) {
	for _, a := range addresses {
		c.cache.Del(a)
	}
}

func (c *RistrettoWalletCache) Close() {
	c.cache.Close()
}
