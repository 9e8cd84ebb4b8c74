package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

type Config struct {
	QueryTimeout time.Duration // таймаут одной попытки запроса
	Retries      int           // повторов при временных ошибках
}

// base общая часть хранилищ: пул, повторы запросов, классификация ошибок
type base struct {
	pool    *pgxpool.Pool
	cfg     Config
	logger  logger.AppLogger
	backoff func() backoff.BackOff
}

func newBase(pool *pgxpool.Pool, cfg Config, log logger.AppLogger) base {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = constants.QueryDealine * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return base{
		pool:   pool,
		cfg:    cfg,
		logger: log,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// retry выполнение op с таймаутом на попытку и экспоненциальными повторами только для временных ошибок.
// Доменные ошибки возвращаются сразу
func (b *base) retry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(b.backoff(), uint64(b.cfg.Retries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctxQuery, cancel := context.WithTimeout(ctx, b.cfg.QueryTimeout)
		defer cancel()

		err := op(ctxQuery)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return backoff.Permanent(err)
		}

		b.logger.Warn("transient postgres error, retrying", zap.String("operation", operation),
			zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)

	return classify(err)
}

func (b *base) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// isTransient потеря соединения, таймаут, конфликт сериализации, взаимная блокировка
func isTransient(err error) bool {
	if isDomainError(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == constants.SerializationFail, pgErr.Code == constants.DeadlockDetected:
			return true
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		}
		return false
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isDomainError(err error) bool {
	return entity.IsClientError(err) || errors.Is(err, entity.ErrPersistence)
}

// classify ошибки драйвера в таксономию сервиса
func classify(err error) error {
	if err == nil || isDomainError(err) || errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == constants.UniqueViolation {
		return fmt.Errorf("%w: %s", entity.ErrDuplicateAddress, pgErr.ConstraintName)
	}

	return fmt.Errorf("%w: %s", entity.ErrPersistence, err.Error())
}

// row общий интерфейс pgx.Row и pgx.Rows для сканирования
type row interface {
	Scan(dest ...any) error
}

const walletColumns = `address, public_key, encrypted_private_key, passphrase_salt, passphrase_hash,
	balance::text, disabled, created_at, last_synced`

func scanWallet(r row) (*entity.Wallet, error) {
	var (
		w       entity.Wallet
		balance string
	)
	err := r.Scan(&w.Address, &w.PublicKey, &w.EncryptedPrivateKey, &w.PassphraseSalt, &w.PassphraseHash,
		&balance, &w.Disabled, &w.CreatedAt, &w.LastSynced)
	if err != nil {
		return nil, err
	}

	w.Balance, err = entity.ParseBalance(balance)
	if err != nil {
		return nil, fmt.Errorf("%w: stored balance %q: %s", entity.ErrPersistence, balance, err.Error())
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.LastSynced = w.LastSynced.UTC()

	return &w, nil
}

// getWallet nil без ошибки, если записи нет
func getWallet(ctx context.Context, q pgxQuerier, address string, forUpdate bool) (*entity.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	w, err := scanWallet(q.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Если нет записей
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// pgxQuerier пул или транзакция
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool пул соединений; maxConns <= 0 оставляет значение драйвера
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
