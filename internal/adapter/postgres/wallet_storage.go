package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

type PostgresWalletStorage struct {
	base
}

func NewPostgresWalletStorage(pool *pgxpool.Pool, cfg Config, log logger.AppLogger) (*PostgresWalletStorage, error) {
	storage := &PostgresWalletStorage{
		base: newBase(pool, cfg, log),
	}

	return storage, nil
}

func (p *PostgresWalletStorage) CreateWallet(ctx context.Context, wallet entity.Wallet) error {
	return p.retry(ctx, "CreateWallet", func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx, `INSERT INTO wallets (address, public_key, encrypted_private_key, passphrase_salt,
				passphrase_hash, balance, disabled, created_at, last_synced)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
			wallet.Address, wallet.PublicKey, wallet.EncryptedPrivateKey, wallet.PassphraseSalt,
			wallet.PassphraseHash, entity.FormatUnits(wallet.Balance), wallet.Disabled, wallet.CreatedAt, wallet.LastSynced)
		return err
	})
}

func (p *PostgresWalletStorage) GetWalletByAddress(ctx context.Context, address string) (*entity.Wallet, error) {
	var wallet *entity.Wallet
	err := p.retry(ctx, "GetWalletByAddress", func(ctx context.Context) error {
		var err error
		wallet, err = getWallet(ctx, p.pool, address, false)
		return err
	})

	return wallet, err
}

// UpdateWallet update вызывается для записи, заблокированной SELECT ... FOR UPDATE.
// Записываются только учетные данные, флаг блокировки и время синхронизации
func (p *PostgresWalletStorage) UpdateWallet(ctx context.Context, address string, update func(current entity.Wallet) (entity.Wallet, error)) (entity.Wallet, error) {
	var updated entity.Wallet

	err := p.retry(ctx, "UpdateWallet", func(ctx context.Context) error {
		return p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			current, err := getWallet(ctx, tx, address, true)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
			}

			next, err := update(current.Clone())
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `UPDATE wallets SET encrypted_private_key = $2, passphrase_salt = $3,
					passphrase_hash = $4, disabled = $5, last_synced = $6
				WHERE address = $1`,
				address, next.EncryptedPrivateKey, next.PassphraseSalt, next.PassphraseHash, next.Disabled, next.LastSynced)
			if err != nil {
				return err
			}

			next.Address = current.Address
			next.PublicKey = current.PublicKey
			next.Balance = current.Balance
			next.CreatedAt = current.CreatedAt
			updated = next
			return nil
		})
	})
	if err != nil {
		return entity.Wallet{}, err
	}

	return updated, nil
}

// UpdateBalance новый баланс вычисляется под блокировкой строки (SELECT ... FOR UPDATE)
func (p *PostgresWalletStorage) UpdateBalance(ctx context.Context, address string, update func(balance decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := p.retry(ctx, "UpdateBalance", func(ctx context.Context) error {
		return p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			w, err := getWallet(ctx, tx, address, true)
			if err != nil {
				return err
			}
			if w == nil {
				return fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
			}

			balance, err = update(w.Balance)
			if err != nil {
				return err
			}
			if balance.IsNegative() {
				return fmt.Errorf("%w: balance would become negative", entity.ErrInsufficientFunds)
			}
			if err := entity.CheckBalance(balance); err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `UPDATE wallets SET balance = $2::numeric, last_synced = now() WHERE address = $1`,
				address, entity.FormatUnits(balance))
			return err
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	return balance, nil
}

// ListWallets страница кошельков по дате создания и общее количество
func (p *PostgresWalletStorage) ListWallets(ctx context.Context, offset int, limit int) ([]entity.Wallet, int, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("%w: offset and limit must be positive", entity.ErrValidation)
	}

	var (
		wallets []entity.Wallet
		total   int
	)

	err := p.retry(ctx, "ListWallets", func(ctx context.Context) error {
		wallets = wallets[:0]

		if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM wallets`).Scan(&total); err != nil {
			return err
		}

		rows, err := p.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets
			ORDER BY created_at, address OFFSET $1 LIMIT $2`, offset, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			w, err := scanWallet(rows)
			if err != nil {
				return err
			}
			wallets = append(wallets, *w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	if wallets == nil {
		wallets = []entity.Wallet{}
	}
	return wallets, total, nil
}
