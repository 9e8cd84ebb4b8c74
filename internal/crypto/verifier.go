package crypto

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
)

// Verifier проверка пароля по соли и сохраненному артефакту
// Результат зависит только от (пароль, соль, артефакт)
type Verifier struct {
	kdf *KDF
}

func NewVerifier(kdf *KDF) *Verifier {
	return &Verifier{kdf: kdf}
}

// Verify false при несовпадении; ошибка только при сбое KDF или отмене контекста
func (v *Verifier) Verify(ctx context.Context, passphrase string, salt []byte, storedArtifact string) (bool, error) {
	stored, err := hex.DecodeString(storedArtifact)
	if err != nil || len(stored) != DerivedLen {
		return false, nil
	}

	computed, err := v.kdf.DeriveVerification(ctx, passphrase, salt)
	if err != nil {
		return false, err
	}
	defer clear(computed)

	return subtle.ConstantTimeCompare(computed, stored) == 1, nil
}

// Match сверка уже полученных ключей с артефактом, без повторного вызова KDF
func Match(keys *DerivedKeys, storedArtifact string) bool {
	stored, err := hex.DecodeString(storedArtifact)
	if err != nil || len(stored) != DerivedLen || keys == nil {
		return false
	}
	return subtle.ConstantTimeCompare(keys.VerificationKey, stored) == 1
}

// Artifact артефакт проверки пароля для хранения
func Artifact(keys *DerivedKeys) string {
	return hex.EncodeToString(keys.VerificationKey)
}
