package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const nonceLen = 12

var (
	ErrAuthFailed = errors.New("decryption failed: wrong key or corrupted data")
	ErrEncrypt    = errors.New("encryption failed")
)

// Encrypt шифрует приватный ключ AES-256-GCM. Результат: nonce || ciphertext || tag
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %s", ErrEncrypt, err.Error())
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt расшифровка. Неверный ключ или поврежденные данные всегда дают ErrAuthFailed
func Decrypt(blob, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < nonceLen+aesGCM.Overhead() {
		return nil, ErrAuthFailed
	}

	plaintext, err := aesGCM.Open(nil, blob[:nonceLen], blob[nonceLen:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != DerivedLen {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrEncrypt, DerivedLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %s", ErrEncrypt, err.Error())
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %s", ErrEncrypt, err.Error())
	}
	return aesGCM, nil
}
