package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

const (
	// N=2^15 (~32MB RAM, ~100ms) на одну деривацию
	DefaultScryptN = 1 << 15
	DefaultScryptR = 8
	DefaultScryptP = 1
	MinScryptN     = 1 << 14

	SaltSize   = 32
	MinSalt    = 16
	DerivedLen = 32

	hkdfInfoEncryption   = "pvx/wallet/encryption/v1"
	hkdfInfoVerification = "pvx/wallet/verification/v1"
)

var ErrKDF = errors.New("key derivation failed")

type KDFParams struct {
	N           int // параметр стоимости scrypt, степень двойки
	R           int
	P           int
	Concurrency int // сколько дериваций может выполняться одновременно
}

func DefaultKDFParams() KDFParams {
	return KDFParams{
		N:           DefaultScryptN,
		R:           DefaultScryptR,
		P:           DefaultScryptP,
		Concurrency: runtime.NumCPU(),
	}
}

// KDF деривация ключевого материала из пароля и соли
// Один вызов scrypt дает мастер-ключ, из которого HKDF с разными метками получает
// ключ шифрования и ключ проверки пароля
type KDF struct {
	params KDFParams
	sem    *semaphore.Weighted
	logger logger.AppLogger
}

func NewKDF(params KDFParams, log logger.AppLogger) (*KDF, error) {
	if params.N < MinScryptN || params.N&(params.N-1) != 0 {
		return nil, fmt.Errorf("%w: scrypt N must be a power of two >= %d", ErrKDF, MinScryptN)
	}
	if params.R <= 0 || params.P <= 0 {
		return nil, fmt.Errorf("%w: scrypt r and p must be positive", ErrKDF)
	}
	if params.Concurrency <= 0 {
		params.Concurrency = runtime.NumCPU()
	}

	return &KDF{
		params: params,
		sem:    semaphore.NewWeighted(int64(params.Concurrency)),
		logger: log,
	}, nil
}

// DerivedKeys результат деривации. После использования вызывать Wipe
type DerivedKeys struct {
	EncryptionKey   []byte
	VerificationKey []byte
}

func (d *DerivedKeys) Wipe() {
	if d == nil {
		return
	}
	clear(d.EncryptionKey)
	clear(d.VerificationKey)
}

// Derive оба ключа (создание, импорт, экспорт, смена пароля)
func (k *KDF) Derive(ctx context.Context, passphrase string, salt []byte) (*DerivedKeys, error) {
	master, err := k.master(ctx, passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer clear(master)

	enc, err := expand(master, hkdfInfoEncryption)
	if err != nil {
		return nil, err
	}
	ver, err := expand(master, hkdfInfoVerification)
	if err != nil {
		clear(enc)
		return nil, err
	}

	return &DerivedKeys{EncryptionKey: enc, VerificationKey: ver}, nil
}

// DeriveVerification только ключ проверки пароля
func (k *KDF) DeriveVerification(ctx context.Context, passphrase string, salt []byte) ([]byte, error) {
	master, err := k.master(ctx, passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer clear(master)

	return expand(master, hkdfInfoVerification)
}

func (k *KDF) master(ctx context.Context, passphrase string, salt []byte) ([]byte, error) {
	if len(salt) < MinSalt {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", ErrKDF, MinSalt)
	}

	normalized := []byte(NormalizePassphrase(passphrase))
	defer clear(normalized)

	// scrypt требует много памяти, ограничиваем число одновременных вычислений
	if err := k.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer k.sem.Release(1)

	if k.logger != nil {
		k.logger.Debug("derive passphrase key",
			zap.Int("passphrase_len", len(normalized)),
			zap.String("salt", hex.EncodeToString(salt)))
	}

	master, err := scrypt.Key(normalized, salt, k.params.N, k.params.R, k.params.P, DerivedLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrKDF, err.Error())
	}
	return master, nil
}

func expand(master []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, DerivedLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrKDF, err.Error())
	}
	return out, nil
}

// NormalizePassphrase обрезка пробелов по краям и нормализация Unicode (NFC)
func NormalizePassphrase(passphrase string) string {
	return norm.NFC.String(strings.TrimSpace(passphrase))
}

// NewSalt случайная соль нового кошелька
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
