package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnsoftware/pvx-wallet/internal/adapter/memory"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const testPassphrase = "correct horse battery"

type recordingLedger struct {
	mu        sync.Mutex
	transfers []entity.Transfer
	err       error
}

func (l *recordingLedger) Submit(_ context.Context, t entity.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfers = append(l.transfers, t)
	return l.err
}

type countingMetrics struct {
	mu       sync.Mutex
	statuses map[string]int
	auth     int
}

func (m *countingMetrics) TransferFinished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status]++
}

func (m *countingMetrics) AuthFailed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth++
}

type invalidations struct {
	mu        sync.Mutex
	addresses []string
}

func (c *invalidations) Invalidate(addresses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses = append(c.addresses, addresses...)
}

type testEnv struct {
	uc      *TransferUseCase
	kdf     *crypto.KDF
	store   *memory.Store
	ledger  *recordingLedger
	metrics *countingMetrics
	cache   *invalidations
}

func newEnv(t *testing.T) testEnv {
	t.Helper()

	kdf, err := crypto.NewKDF(crypto.KDFParams{N: crypto.MinScryptN, R: 8, P: 1, Concurrency: 8}, zaptest.NewLogger(t))
	require.NoError(t, err)

	store := memory.NewStore()
	ledger := &recordingLedger{}
	metrics := &countingMetrics{statuses: map[string]int{}}
	cache := &invalidations{}

	return testEnv{
		uc:      NewTransferUseCase(store, ledger, cache, kdf, metrics, zaptest.NewLogger(t)),
		kdf:     kdf,
		store:   store,
		ledger:  ledger,
		metrics: metrics,
		cache:   cache,
	}
}

// addWallet кошелек с заданным балансом и паролем testPassphrase
func (e testEnv) addWallet(t *testing.T, balance int64) string {
	t.Helper()

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	defer kp.Wipe()

	salt, err := crypto.NewSalt()
	require.NoError(t, err)
	keys, err := e.kdf.Derive(context.Background(), testPassphrase, salt)
	require.NoError(t, err)
	defer keys.Wipe()

	blob, err := crypto.Encrypt(kp.PrivateKey, keys.EncryptionKey)
	require.NoError(t, err)

	w := entity.Wallet{
		Address:             crypto.DeriveAddress(kp.PublicKey),
		PublicKey:           crypto.EncodeKey(kp.PublicKey),
		EncryptedPrivateKey: blob,
		PassphraseSalt:      salt,
		PassphraseHash:      crypto.Artifact(keys),
		Balance:             decimal.NewFromInt(balance),
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, e.store.CreateWallet(context.Background(), w))

	return w.Address
}

func (e testEnv) balance(t *testing.T, address string) string {
	t.Helper()
	w, err := e.store.GetWalletByAddress(context.Background(), address)
	require.NoError(t, err)
	require.NotNil(t, w)
	return entity.FormatUnits(w.Balance)
}

func TestSend(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 100)
	to := env.addWallet(t, 0)

	tr, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "40", Passphrase: testPassphrase, Memo: "rent"})
	require.NoError(t, err)
	assert.Equal(t, entity.TransferCommitted, tr.Status)
	assert.Len(t, tr.Hash, 64)

	assert.Equal(t, "60", env.balance(t, from))
	assert.Equal(t, "40", env.balance(t, to))

	require.Len(t, env.ledger.transfers, 1)
	assert.Equal(t, tr.Hash, env.ledger.transfers[0].Hash)
	assert.Equal(t, entity.TransferCommitted, env.ledger.transfers[0].Status)
	assert.ElementsMatch(t, []string{from, to}, env.cache.addresses)
	assert.Equal(t, 1, env.metrics.statuses[string(entity.TransferCommitted)])

	got, err := env.uc.Get(ctx, tr.Hash)
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Memo)
	assert.Equal(t, "40", entity.FormatUnits(got.Amount))

	history, err := env.uc.History(ctx, to, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tr.Hash, history[0].Hash)
}

func TestSendUnknownSender(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	to := env.addWallet(t, 0)

	for _, from := range []string{"never_created", crypto.DeriveAddress([]byte("never created"))} {
		tr, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: testPassphrase})
		assert.ErrorIs(t, err, entity.ErrNotFound)
		require.NotNil(t, tr)
		assert.Equal(t, entity.TransferRejected, tr.Status)
	}

	assert.Equal(t, "0", env.balance(t, to))
	assert.Empty(t, env.ledger.transfers)
}

func TestSendInsufficientFunds(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 5)
	to := env.addWallet(t, 0)

	_, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: testPassphrase})
	assert.ErrorIs(t, err, entity.ErrInsufficientFunds)

	assert.Equal(t, "5", env.balance(t, from))
	assert.Equal(t, "0", env.balance(t, to))
	assert.Empty(t, env.ledger.transfers)
}

func TestSendUnknownRecipient(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 50)
	to := crypto.DeriveAddress([]byte("not a wallet"))

	_, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: testPassphrase})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	assert.Equal(t, "50", env.balance(t, from))
	w, err := env.store.GetWalletByAddress(ctx, to)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestSendWrongPassphrase(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 50)
	to := env.addWallet(t, 0)

	_, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: "wrong passphrase"})
	assert.ErrorIs(t, err, entity.ErrAuthentication)
	assert.Equal(t, 1, env.metrics.auth)
	assert.Equal(t, "50", env.balance(t, from))
}

func TestSendMalformed(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 50)
	to := env.addWallet(t, 0)

	cases := []entity.SendRequest{
		{From: from, To: to, Amount: "abc", Passphrase: testPassphrase},
		{From: from, To: to, Amount: "-5", Passphrase: testPassphrase},
		{From: from, To: to, Amount: "1.5", Passphrase: testPassphrase},
		{From: from, To: to, Amount: "0", Passphrase: testPassphrase},
		{From: from, To: to, Amount: "", Passphrase: testPassphrase},
		{From: from, To: from, Amount: "1", Passphrase: testPassphrase},
		{From: "", To: to, Amount: "1", Passphrase: testPassphrase},
		{From: from, To: to, Amount: "1", Passphrase: ""},
		{From: from, To: to, Amount: "1", Passphrase: testPassphrase, Memo: string(make([]byte, 300))},
	}
	for _, req := range cases {
		tr, err := env.uc.Send(ctx, req)
		assert.ErrorIs(t, err, entity.ErrValidation)
		assert.Nil(t, tr)
	}

	assert.Equal(t, "50", env.balance(t, from))
	assert.Equal(t, "0", env.balance(t, to))
}

func TestSendDisabledWallets(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	from := env.addWallet(t, 50)
	to := env.addWallet(t, 0)

	_, err := env.store.UpdateWallet(ctx, to, func(w entity.Wallet) (entity.Wallet, error) {
		w.Disabled = true
		return w, nil
	})
	require.NoError(t, err)

	_, err = env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: testPassphrase})
	assert.ErrorIs(t, err, entity.ErrWalletDisabled)
	assert.Equal(t, "50", env.balance(t, from))

	// заблокированный отправитель: без верного пароля блокировка не раскрывается
	_, err = env.store.UpdateWallet(ctx, from, func(w entity.Wallet) (entity.Wallet, error) {
		w.Disabled = true
		return w, nil
	})
	require.NoError(t, err)
	other := env.addWallet(t, 0)

	_, err = env.uc.Send(ctx, entity.SendRequest{From: from, To: other, Amount: "10", Passphrase: "wrong passphrase"})
	assert.ErrorIs(t, err, entity.ErrAuthentication)
	assert.NotErrorIs(t, err, entity.ErrWalletDisabled)

	_, err = env.uc.Send(ctx, entity.SendRequest{From: from, To: other, Amount: "10", Passphrase: testPassphrase})
	assert.ErrorIs(t, err, entity.ErrWalletDisabled)
	assert.Equal(t, "50", env.balance(t, from))
}

func TestSendLedgerFailureKeepsCommit(t *testing.T) {
	env := newEnv(t)
	env.ledger.err = errors.New("broker unavailable")
	ctx := context.Background()

	from := env.addWallet(t, 10)
	to := env.addWallet(t, 0)

	tr, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "10", Passphrase: testPassphrase})
	require.NoError(t, err)
	assert.Equal(t, entity.TransferCommitted, tr.Status)
	assert.Equal(t, "0", env.balance(t, from))
}

func TestSendNoDoubleSpend(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	const (
		balance = 100
		amount  = 30
		senders = 10
	)
	from := env.addWallet(t, balance)
	to := env.addWallet(t, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.uc.Send(ctx, entity.SendRequest{From: from, To: to, Amount: "30", Passphrase: testPassphrase})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, entity.ErrInsufficientFunds)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, balance/amount, succeeded)
	assert.Equal(t, senders-balance/amount, rejected)
	assert.Equal(t, "10", env.balance(t, from))
	assert.Equal(t, "90", env.balance(t, to))
	assert.Len(t, env.ledger.transfers, balance/amount)
}

func TestGetAndHistoryValidation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.uc.Get(ctx, "xyz")
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.uc.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.uc.History(ctx, crypto.DeriveAddress([]byte("ghost")), 10)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	a := env.addWallet(t, 100)
	b := env.addWallet(t, 0)
	for i := 0; i < 3; i++ {
		_, err := env.uc.Send(ctx, entity.SendRequest{From: a, To: b, Amount: "1", Passphrase: testPassphrase})
		require.NoError(t, err)
	}

	history, err := env.uc.History(ctx, a, 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	recent, err := env.uc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	a := env.addWallet(t, 100)
	b := env.addWallet(t, 0)
	c := env.addWallet(t, 0)

	var sent []string
	for _, to := range []string{b, c, b} {
		tr, err := env.uc.Send(ctx, entity.SendRequest{From: a, To: to, Amount: "1", Passphrase: testPassphrase})
		require.NoError(t, err)
		sent = append(sent, tr.Hash)
	}

	// переводы всех кошельков, новые первыми
	recent, err = env.uc.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, sent[2], recent[0].Hash)
	assert.Equal(t, sent[1], recent[1].Hash)

	recent, err = env.uc.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}
