// Package crypto ключи, адреса, KDF и шифрование приватных ключей кошельков
package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	PrivateKeySize = 32 // скаляр secp256k1
	PublicKeySize  = 33 // сжатая точка SEC1
)

var (
	ErrInvalidKey  = errors.New("invalid key material")
	ErrKeyGenerate = errors.New("key generation failed")
)

// KeyPair пара ключей в байтовом виде. После использования вызывать Wipe
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeyPair новая пара ключей secp256k1
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyGenerate, err.Error())
	}
	defer priv.Zero()

	return &KeyPair{
		PublicKey:  priv.PubKey().SerializeCompressed(),
		PrivateKey: priv.Serialize(),
	}, nil
}

// KeyPairFromPrivateKey восстановление пары по приватному ключу (импорт, экспорт)
func KeyPairFromPrivateKey(raw []byte) (*KeyPair, error) {
	if len(raw) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes", ErrInvalidKey, PrivateKeySize)
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		scalar.Zero()
		return nil, fmt.Errorf("%w: private key out of range", ErrInvalidKey)
	}
	priv := secp256k1.NewPrivateKey(&scalar)
	defer priv.Zero()
	scalar.Zero()

	return &KeyPair{
		PublicKey:  priv.PubKey().SerializeCompressed(),
		PrivateKey: priv.Serialize(),
	}, nil
}

// Wipe затирает приватный ключ в памяти
func (kp *KeyPair) Wipe() {
	if kp == nil {
		return
	}
	clear(kp.PrivateKey)
}

// EncodeKey ключ в interchange-кодировку (lowercase hex)
func EncodeKey(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodePrivateKey разбор приватного ключа из hex (допускается префикс 0x)
func DecodePrivateKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != PrivateKeySize*2 {
		return nil, fmt.Errorf("%w: private key must be %d hex chars", ErrInvalidKey, PrivateKeySize*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err.Error())
	}
	return b, nil
}

// DecodePublicKey разбор и проверка сжатого публичного ключа
func DecodePublicKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err.Error())
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidKey, PublicKeySize)
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err.Error())
	}
	return b, nil
}
