package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet запись кошелька в хранилище
type Wallet struct {
	Address             string          // PVX_ + hex хеша публичного ключа, неизменяемый
	PublicKey           string          // сжатый публичный ключ secp256k1 в hex
	EncryptedPrivateKey []byte          // nonce + шифротекст AES-GCM, в открытом виде не хранится
	PassphraseSalt      []byte          // соль KDF, уникальна для каждого кошелька
	PassphraseHash      string          // артефакт проверки пароля (hex)
	Balance             decimal.Decimal // в минимальных единицах, >= 0
	Disabled            bool
	CreatedAt           time.Time
	LastSynced          time.Time
}

// Info публичная часть кошелька, без секретов
func (w Wallet) Info() WalletInfo {
	return WalletInfo{
		Address:    w.Address,
		PublicKey:  w.PublicKey,
		Balance:    w.Balance,
		Disabled:   w.Disabled,
		CreatedAt:  w.CreatedAt,
		LastSynced: w.LastSynced,
	}
}

// Clone глубокая копия (срезы байт не разделяются)
func (w Wallet) Clone() Wallet {
	c := w
	c.EncryptedPrivateKey = append([]byte(nil), w.EncryptedPrivateKey...)
	c.PassphraseSalt = append([]byte(nil), w.PassphraseSalt...)
	return c
}

type WalletInfo struct {
	Address    string
	PublicKey  string
	Balance    decimal.Decimal
	Disabled   bool
	CreatedAt  time.Time
	LastSynced time.Time
}

// ExportedKeys результат экспорта ключей, отдается один раз
type ExportedKeys struct {
	PublicKey  string
	PrivateKey string
}
