// Package memory хранилище кошельков и переводов в памяти процесса (тесты, локальный запуск)
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

type Store struct {
	mu        sync.RWMutex
	wallets   map[string]entity.Wallet
	transfers map[string]entity.Transfer
	byAddress map[string][]string // адрес -> хеши переводов в порядке фиксации
	committed []string            // все хеши в порядке фиксации

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		wallets:   make(map[string]entity.Wallet),
		transfers: make(map[string]entity.Transfer),
		byAddress: make(map[string][]string),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateWallet(ctx context.Context, wallet entity.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.Address]; ok {
		return fmt.Errorf("%w: %s", entity.ErrDuplicateAddress, wallet.Address)
	}
	for _, w := range s.wallets {
		if w.PublicKey == wallet.PublicKey {
			return fmt.Errorf("%w: public key already registered", entity.ErrDuplicateAddress)
		}
	}
	if wallet.Balance.IsNegative() {
		return fmt.Errorf("%w: negative balance", entity.ErrValidation)
	}

	s.wallets[wallet.Address] = wallet.Clone()
	return nil
}

func (s *Store) GetWalletByAddress(ctx context.Context, address string) (*entity.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, nil
	}
	c := w.Clone()
	return &c, nil
}

// UpdateWallet update получает копию текущей записи под блокировкой адреса.
// Баланс, дата создания и публичный ключ остаются прежними
func (s *Store) UpdateWallet(ctx context.Context, address string, update func(current entity.Wallet) (entity.Wallet, error)) (entity.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return entity.Wallet{}, err
	}

	unlock := s.lockAddresses(address)
	defer unlock()

	s.mu.RLock()
	current, ok := s.wallets[address]
	s.mu.RUnlock()
	if !ok {
		return entity.Wallet{}, fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}

	updated, err := update(current.Clone())
	if err != nil {
		return entity.Wallet{}, err
	}
	updated.Address = current.Address
	updated.PublicKey = current.PublicKey
	updated.Balance = current.Balance
	updated.CreatedAt = current.CreatedAt

	s.mu.Lock()
	s.wallets[address] = updated.Clone()
	s.mu.Unlock()

	return updated, nil
}

func (s *Store) UpdateBalance(ctx context.Context, address string, update func(balance decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	unlock := s.lockAddresses(address)
	defer unlock()

	s.mu.RLock()
	w, ok := s.wallets[address]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}

	balance, err := update(w.Balance)
	if err != nil {
		return decimal.Zero, err
	}
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance would become negative", entity.ErrInsufficientFunds)
	}
	if err := entity.CheckBalance(balance); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	w = s.wallets[address]
	w.Balance = balance
	s.wallets[address] = w
	s.mu.Unlock()

	return balance, nil
}

func (s *Store) ListWallets(ctx context.Context, offset int, limit int) ([]entity.Wallet, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]entity.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		all = append(all, w.Clone())
	}
	// как в postgres: по дате создания, затем по адресу
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Address < all[j].Address
	})

	total := len(all)
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("%w: offset and limit must be positive", entity.ErrValidation)
	}
	if offset >= total {
		return []entity.Wallet{}, total, nil
	}
	end := min(offset+limit, total)

	return all[offset:end], total, nil
}

// ApplyTransfer атомарное списание и зачисление. Блокировки адресов берутся в отсортированном порядке,
// поэтому встречные переводы не приводят к взаимной блокировке, а независимые пары не конкурируют
func (s *Store) ApplyTransfer(ctx context.Context, transfer entity.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockAddresses(transfer.From, transfer.To)
	defer unlock()

	// балансы адресов меняются только под их блокировками, mu защищает лишь сами карты
	s.mu.RLock()
	from, fromOK := s.wallets[transfer.From]
	to, toOK := s.wallets[transfer.To]
	s.mu.RUnlock()

	if !fromOK {
		return fmt.Errorf("%w: sender wallet %s", entity.ErrNotFound, transfer.From)
	}
	if !toOK {
		return fmt.Errorf("%w: recipient wallet %s", entity.ErrNotFound, transfer.To)
	}
	if from.Disabled {
		return fmt.Errorf("%w: sender wallet %s", entity.ErrWalletDisabled, transfer.From)
	}
	if to.Disabled {
		return fmt.Errorf("%w: recipient wallet %s", entity.ErrWalletDisabled, transfer.To)
	}
	if from.Balance.LessThan(transfer.Amount) {
		return fmt.Errorf("%w: balance %s, amount %s", entity.ErrInsufficientFunds,
			entity.FormatUnits(from.Balance), entity.FormatUnits(transfer.Amount))
	}
	if err := entity.CheckBalance(to.Balance.Add(transfer.Amount)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfers[transfer.Hash]; ok {
		return fmt.Errorf("%w: transfer %s already applied", entity.ErrValidation, transfer.Hash)
	}

	from.Balance = from.Balance.Sub(transfer.Amount)
	to.Balance = to.Balance.Add(transfer.Amount)
	from.LastSynced = transfer.CreatedAt
	to.LastSynced = transfer.CreatedAt
	s.wallets[from.Address] = from
	s.wallets[to.Address] = to

	s.transfers[transfer.Hash] = transfer
	s.byAddress[transfer.From] = append(s.byAddress[transfer.From], transfer.Hash)
	s.byAddress[transfer.To] = append(s.byAddress[transfer.To], transfer.Hash)
	s.committed = append(s.committed, transfer.Hash)

	return nil
}

func (s *Store) GetTransfer(ctx context.Context, hash string) (*entity.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[hash]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTransfersByAddress последние переводы адреса, новые первыми
func (s *Store) ListTransfersByAddress(ctx context.Context, address string, limit int) ([]entity.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.byAddress[address]
	result := make([]entity.Transfer, 0, min(limit, len(hashes)))
	for i := len(hashes) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.transfers[hashes[i]])
	}
	return result, nil
}

func (s *Store) ListRecentTransfers(ctx context.Context, limit int) ([]entity.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entity.Transfer, 0, min(limit, len(s.committed)))
	for i := len(s.committed) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.transfers[s.committed[i]])
	}
	return result, nil
}

// Ping хранилище в памяти всегда доступно
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// lockAddresses блокировки адресов в отсортированном порядке, возвращает функцию освобождения
func (s *Store) lockAddresses(addresses ...string) func() {
	sorted := slices.Clone(addresses)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	s.locksMu.Lock()
	mutexes := make([]*sync.Mutex, 0, len(sorted))
	for _, addr := range sorted {
		m, ok := s.locks[addr]
		if !ok {
			m = &sync.Mutex{}
			s.locks[addr] = m
		}
		mutexes = append(mutexes, m)
	}
	s.locksMu.Unlock()

	for _, m := range mutexes {
		m.Lock()
	}

	return func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}
}
