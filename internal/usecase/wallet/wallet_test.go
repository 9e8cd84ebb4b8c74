package wallet

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnsoftware/pvx-wallet/internal/adapter/memory"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const testPassphrase = "correct horse battery"

type fakeMetrics struct {
	mu      sync.Mutex
	created map[string]int
	auth    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{created: map[string]int{}, auth: map[string]int{}}
}

func (m *fakeMetrics) WalletCreated(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[source]++
}

func (m *fakeMetrics) AuthFailed(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth[operation]++
}

type mapCache struct {
	mu          sync.Mutex
	items       map[string]entity.Wallet
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]entity.Wallet{}}
}

func (c *mapCache) GetWallet(address string) (entity.Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.items[address]
	return w, ok
}

func (c *mapCache) SetWallet(w entity.Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[w.Address] = w
}

func (c *mapCache) Invalidate(addresses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addresses {
		delete(c.items, a)
		c.invalidated = append(c.invalidated, a)
	}
}

// collidingStorage первые n вставок завершаются коллизией адреса
type collidingStorage struct {
	*memory.Store
	collisions int
	calls      int
}

func (s *collidingStorage) CreateWallet(ctx context.Context, w entity.Wallet) error {
	s.calls++
	if s.calls <= s.collisions {
		return entity.ErrDuplicateAddress
	}
	return s.Store.CreateWallet(ctx, w)
}

// pausingStorage первый UpdateWallet ждет release, чтобы другая операция успела завершиться
type pausingStorage struct {
	*memory.Store
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newPausingStorage(store *memory.Store) *pausingStorage {
	return &pausingStorage{Store: store, reached: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStorage) UpdateWallet(ctx context.Context, address string, update func(entity.Wallet) (entity.Wallet, error)) (entity.Wallet, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.reached)
		<-s.release
	}
	return s.Store.UpdateWallet(ctx, address, update)
}

type testEnv struct {
	uc      *WalletUseCase
	store   *memory.Store
	cache   *mapCache
	metrics *fakeMetrics
}

func newTestEnv(t *testing.T, storage WalletStorage, store *memory.Store) testEnv {
	t.Helper()

	kdf, err := crypto.NewKDF(crypto.KDFParams{N: crypto.MinScryptN, R: 8, P: 1, Concurrency: 4}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cache := newMapCache()
	metrics := newFakeMetrics()
	uc := NewWalletUseCase(Config{MinPassphraseLength: 8, CreateAttempts: 3}, storage, cache, kdf, metrics, zaptest.NewLogger(t))

	return testEnv{uc: uc, store: store, cache: cache, metrics: metrics}
}

func newEnv(t *testing.T) testEnv {
	store := memory.NewStore()
	return newTestEnv(t, store, store)
}

func TestCreate(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)
	assert.True(t, crypto.ValidateAddress(info.Address))
	assert.Len(t, info.PublicKey, 66)
	assert.True(t, info.Balance.IsZero())
	assert.False(t, info.CreatedAt.IsZero())
	assert.Equal(t, 1, env.metrics.created[sourceCreate])

	stored, err := env.store.GetWalletByAddress(ctx, info.Address)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.PassphraseSalt, crypto.SaltSize)
	assert.NotEmpty(t, stored.PassphraseHash)

	// шифротекст не содержит приватный ключ в открытом виде
	keys, err := env.uc.Export(ctx, info.Address, testPassphrase)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(stored.EncryptedPrivateKey), keys.PrivateKey))

	// две записи с одним паролем имеют разную соль
	other, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)
	otherStored, err := env.store.GetWalletByAddress(ctx, other.Address)
	require.NoError(t, err)
	assert.NotEqual(t, stored.PassphraseSalt, otherStored.PassphraseSalt)
	assert.NotEqual(t, info.Address, other.Address)
}

func TestCreateShortPassphrase(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for _, p := range []string{"", "short", "   short   "} {
		_, err := env.uc.Create(ctx, p)
		assert.ErrorIs(t, err, entity.ErrValidation)
	}

	wallets, total, err := env.store.ListWallets(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, wallets)
}

func TestCreateRetriesCollision(t *testing.T) {
	store := memory.NewStore()
	colliding := &collidingStorage{Store: store, collisions: 2}
	env := newTestEnv(t, colliding, store)

	info, err := env.uc.Create(context.Background(), testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, 3, colliding.calls)
	assert.NotEmpty(t, info.Address)

	colliding = &collidingStorage{Store: memory.NewStore(), collisions: 3}
	env = newTestEnv(t, colliding, colliding.Store)
	_, err = env.uc.Create(context.Background(), testPassphrase)
	assert.ErrorIs(t, err, entity.ErrDuplicateAddress)
	assert.Equal(t, 3, colliding.calls)
}

func TestExport(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	keys, err := env.uc.Export(ctx, info.Address, "  "+testPassphrase+" ")
	require.NoError(t, err)
	assert.Equal(t, info.PublicKey, keys.PublicKey)

	// экспортированный ключ воспроизводит адрес
	raw, err := crypto.DecodePrivateKey(keys.PrivateKey)
	require.NoError(t, err)
	kp, err := crypto.KeyPairFromPrivateKey(raw)
	require.NoError(t, err)
	assert.Equal(t, info.Address, crypto.DeriveAddress(kp.PublicKey))

	_, err = env.uc.Export(ctx, info.Address, "wrong passphrase")
	assert.ErrorIs(t, err, entity.ErrAuthentication)
	assert.Equal(t, 1, env.metrics.auth[operationExport])

	_, err = env.uc.Export(ctx, crypto.DeriveAddress([]byte("nobody")), testPassphrase)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.uc.Export(ctx, "", testPassphrase)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestExportCorruptedRecord(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	_, err = env.store.UpdateWallet(ctx, info.Address, func(stored entity.Wallet) (entity.Wallet, error) {
		stored.EncryptedPrivateKey[len(stored.EncryptedPrivateKey)-1] ^= 0xff
		return stored, nil
	})
	require.NoError(t, err)

	_, err = env.uc.Export(ctx, info.Address, testPassphrase)
	assert.ErrorIs(t, err, entity.ErrCryptoOperation)
}

func TestImport(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	privHex := crypto.EncodeKey(kp.PrivateKey)

	info, err := env.uc.Import(ctx, ImportRequest{PrivateKey: privHex, Passphrase: testPassphrase})
	require.NoError(t, err)
	assert.Equal(t, crypto.DeriveAddress(kp.PublicKey), info.Address)
	assert.Equal(t, 1, env.metrics.created[sourceImport])

	_, err = env.uc.Import(ctx, ImportRequest{PrivateKey: privHex, Passphrase: testPassphrase})
	assert.ErrorIs(t, err, entity.ErrDuplicateAddress)

	_, err = env.uc.Credit(ctx, info.Address, "70")
	require.NoError(t, err)

	// перезапись сохраняет баланс и меняет пароль
	before, err := env.store.GetWalletByAddress(ctx, info.Address)
	require.NoError(t, err)

	again, err := env.uc.Import(ctx, ImportRequest{PrivateKey: "0x" + privHex, Passphrase: "another passphrase", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "70", entity.FormatUnits(again.Balance))
	assert.True(t, before.CreatedAt.Equal(again.CreatedAt))
	assert.Contains(t, env.cache.invalidated, info.Address)

	after, err := env.store.GetWalletByAddress(ctx, info.Address)
	require.NoError(t, err)
	assert.NotEqual(t, before.PassphraseSalt, after.PassphraseSalt)

	_, err = env.uc.Export(ctx, info.Address, testPassphrase)
	assert.ErrorIs(t, err, entity.ErrAuthentication)
	exported, err := env.uc.Export(ctx, info.Address, "another passphrase")
	require.NoError(t, err)
	assert.Equal(t, privHex, exported.PrivateKey)
}

func TestImportInvalidKey(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for _, key := range []string{"", "zz", strings.Repeat("0", 64), strings.Repeat("f", 64)} {
		_, err := env.uc.Import(ctx, ImportRequest{PrivateKey: key, Passphrase: testPassphrase})
		assert.ErrorIs(t, err, entity.ErrValidation, key)
	}

	_, err := env.uc.Import(ctx, ImportRequest{PrivateKey: strings.Repeat("1", 64), Passphrase: "short"})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestChangePassphrase(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)
	original, err := env.uc.Export(ctx, info.Address, testPassphrase)
	require.NoError(t, err)

	err = env.uc.ChangePassphrase(ctx, info.Address, "wrong passphrase", "new passphrase 1")
	assert.ErrorIs(t, err, entity.ErrAuthentication)

	err = env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "short")
	assert.ErrorIs(t, err, entity.ErrValidation)

	require.NoError(t, env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "new passphrase 1"))

	_, err = env.uc.Export(ctx, info.Address, testPassphrase)
	assert.ErrorIs(t, err, entity.ErrAuthentication)

	exported, err := env.uc.Export(ctx, info.Address, "new passphrase 1")
	require.NoError(t, err)
	assert.Equal(t, original.PrivateKey, exported.PrivateKey)
}

func TestDisableDuringPassphraseChange(t *testing.T) {
	store := memory.NewStore()
	pausing := newPausingStorage(store)
	env := newTestEnv(t, pausing, store)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	changed := make(chan error, 1)
	go func() {
		changed <- env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "new passphrase 1")
	}()
	<-pausing.reached

	require.NoError(t, env.uc.Disable(ctx, info.Address, testPassphrase))
	close(pausing.release)
	require.NoError(t, <-changed)

	// обе операции подтверждены и обе видны в записи
	stored, err := store.GetWalletByAddress(ctx, info.Address)
	require.NoError(t, err)
	assert.True(t, stored.Disabled)

	_, err = env.uc.Export(ctx, info.Address, testPassphrase)
	assert.ErrorIs(t, err, entity.ErrAuthentication)
	_, err = env.uc.Export(ctx, info.Address, "new passphrase 1")
	assert.NoError(t, err)
}

func TestPassphraseChangeWithStalePassphrase(t *testing.T) {
	store := memory.NewStore()
	pausing := newPausingStorage(store)
	env := newTestEnv(t, pausing, store)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	// старый пароль проверен, запись ждет; тем временем владелец меняет пароль
	stale := make(chan error, 1)
	go func() {
		stale <- env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "other passphrase")
	}()
	<-pausing.reached

	require.NoError(t, env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "owner passphrase"))
	close(pausing.release)
	assert.ErrorIs(t, <-stale, entity.ErrAuthentication)

	for _, p := range []string{testPassphrase, "other passphrase"} {
		_, err = env.uc.Export(ctx, info.Address, p)
		assert.ErrorIs(t, err, entity.ErrAuthentication)
	}
	_, err = env.uc.Export(ctx, info.Address, "owner passphrase")
	assert.NoError(t, err)
}

func TestDisableWithStalePassphrase(t *testing.T) {
	store := memory.NewStore()
	pausing := newPausingStorage(store)
	env := newTestEnv(t, pausing, store)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	disabled := make(chan error, 1)
	go func() {
		disabled <- env.uc.Disable(ctx, info.Address, testPassphrase)
	}()
	<-pausing.reached

	require.NoError(t, env.uc.ChangePassphrase(ctx, info.Address, testPassphrase, "new passphrase 1"))
	close(pausing.release)
	assert.ErrorIs(t, <-disabled, entity.ErrAuthentication)

	stored, err := store.GetWalletByAddress(ctx, info.Address)
	require.NoError(t, err)
	assert.False(t, stored.Disabled)
}

func TestDisable(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	assert.ErrorIs(t, env.uc.Disable(ctx, info.Address, "wrong passphrase"), entity.ErrAuthentication)
	require.NoError(t, env.uc.Disable(ctx, info.Address, testPassphrase))
	require.NoError(t, env.uc.Disable(ctx, info.Address, testPassphrase))

	got, err := env.uc.Get(ctx, info.Address)
	require.NoError(t, err)
	assert.True(t, got.Disabled)

	_, err = env.uc.Credit(ctx, info.Address, "10")
	assert.ErrorIs(t, err, entity.ErrWalletDisabled)

	// экспорт остается доступен владельцу
	_, err = env.uc.Export(ctx, info.Address, testPassphrase)
	assert.NoError(t, err)
}

func TestGetUsesCache(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	info, err := env.uc.Create(ctx, testPassphrase)
	require.NoError(t, err)

	got, err := env.uc.Get(ctx, info.Address)
	require.NoError(t, err)
	assert.Equal(t, info.Address, got.Address)

	_, ok := env.cache.GetWallet(info.Address)
	assert.True(t, ok)

	// зачисление сбрасывает кеш, следующий Get видит новый баланс
	balance, err := env.uc.Credit(ctx, info.Address, "25")
	require.NoError(t, err)
	assert.Equal(t, "25", entity.FormatUnits(balance))

	got, err = env.uc.Get(ctx, info.Address)
	require.NoError(t, err)
	assert.Equal(t, "25", entity.FormatUnits(got.Balance))

	_, err = env.uc.Get(ctx, "PVX_nothing")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.uc.Credit(ctx, info.Address, "-5")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestList(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.uc.Create(ctx, testPassphrase)
		require.NoError(t, err)
	}

	wallets, total, err := env.uc.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, wallets, 2)

	wallets, total, err = env.uc.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, wallets, 1)

	wallets, _, err = env.uc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, wallets, 3)

	// смещение не помещается в int
	_, _, err = env.uc.List(ctx, math.MaxInt/50, 100)
	assert.ErrorIs(t, err, entity.ErrValidation)

	wallets, total, err = env.uc.List(ctx, 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, wallets)
}
