package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

type PostgresTransferStorage struct {
	base
}

func NewPostgresTransferStorage(pool *pgxpool.Pool, cfg Config, log logger.AppLogger) (*PostgresTransferStorage, error) {
	storage := &PostgresTransferStorage{
		base: newBase(pool, cfg, log),
	}

	return storage, nil
}

func (p *PostgresTransferStorage) GetWalletByAddress(ctx context.Context, address string) (*entity.Wallet, error) {
	var wallet *entity.Wallet
	err := p.retry(ctx, "GetWalletByAddress", func(ctx context.Context) error {
		var err error
		wallet, err = getWallet(ctx, p.pool, address, false)
		return err
	})

	return wallet, err
}

// ApplyTransfer одна транзакция: строки обоих кошельков блокируются в порядке адресов
// (одинаковый порядок у всех переводов исключает взаимные блокировки), баланс проверяется
// повторно под блокировкой, затем списание, зачисление и запись перевода
func (p *PostgresTransferStorage) ApplyTransfer(ctx context.Context, transfer entity.Transfer) error {
	return p.retry(ctx, "ApplyTransfer", func(ctx context.Context) error {
		return p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets
				WHERE address = ANY($1) ORDER BY address FOR UPDATE`, []string{transfer.From, transfer.To})
			if err != nil {
				return err
			}

			locked := make(map[string]*entity.Wallet, 2)
			for rows.Next() {
				w, err := scanWallet(rows)
				if err != nil {
					rows.Close()
					return err
				}
				locked[w.Address] = w
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			from, ok := locked[transfer.From]
			if !ok {
				return fmt.Errorf("%w: sender wallet %s", entity.ErrNotFound, transfer.From)
			}
			to, ok := locked[transfer.To]
			if !ok {
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

			amount := entity.FormatUnits(transfer.Amount)
			if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $2::numeric, last_synced = $3 WHERE address = $1`,
				transfer.From, amount, transfer.CreatedAt); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $2::numeric, last_synced = $3 WHERE address = $1`,
				transfer.To, amount, transfer.CreatedAt); err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `INSERT INTO transfers (hash, from_address, to_address, amount, memo, nonce, status, created_at)
				VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
				transfer.Hash, transfer.From, transfer.To, amount, transfer.Memo, transfer.Nonce,
				string(transfer.Status), transfer.CreatedAt)
			return err
		})
	})
}

const transferColumns = `hash, from_address, to_address, amount::text, memo, nonce, status, created_at`

func scanTransfer(r row) (*entity.Transfer, error) {
	var (
		t      entity.Transfer
		amount string
		status string
	)
	if err := r.Scan(&t.Hash, &t.From, &t.To, &amount, &t.Memo, &t.Nonce, &status, &t.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	t.Amount, err = entity.ParseBalance(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: stored amount %q: %s", entity.ErrPersistence, amount, err.Error())
	}
	t.Status = entity.TransferStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

func (p *PostgresTransferStorage) GetTransfer(ctx context.Context, hash string) (*entity.Transfer, error) {
	var transfer *entity.Transfer

	err := p.retry(ctx, "GetTransfer", func(ctx context.Context) error {
		t, err := scanTransfer(p.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE hash = $1`, hash))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				transfer = nil
				return nil
			}
			return err
		}
		transfer = t
		return nil
	})

	return transfer, err
}

// ListTransfersByAddress входящие и исходящие переводы, новые первыми
func (p *PostgresTransferStorage) ListTransfersByAddress(ctx context.Context, address string, limit int) ([]entity.Transfer, error) {
	var transfers []entity.Transfer

	err := p.retry(ctx, "ListTransfersByAddress", func(ctx context.Context) error {
		transfers = transfers[:0]

		rows, err := p.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
			WHERE from_address = $1 OR to_address = $1
			ORDER BY created_at DESC, hash LIMIT $2`, address, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransfer(rows)
			if err != nil {
				return err
			}
			transfers = append(transfers, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if transfers == nil {
		transfers = []entity.Transfer{}
	}
	return transfers, nil
}

func (p *PostgresTransferStorage) ListRecentTransfers(ctx context.Context, limit int) ([]entity.Transfer, error) {
	var transfers []entity.Transfer

	err := p.retry(ctx, "ListRecentTransfers", func(ctx context.Context) error {
		transfers = transfers[:0]

		rows, err := p.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
			ORDER BY created_at DESC, hash LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransfer(rows)
			if err != nil {
				return err
			}
			transfers = append(transfers, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if transfers == nil {
		transfers = []entity.Transfer{}
	}
	return transfers, nil
}
