package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
)

// DeriveAddress адрес кошелька по публичному ключу: PVX_ + первые 40 hex-символов BLAKE2b-256
// Чистая функция, без ввода-вывода
func DeriveAddress(publicKey []byte) string {
	h := blake2b.Sum256(publicKey)
	return constants.AddressPrefix + hex.EncodeToString(h[:])[:constants.AddressHashLength]
}

// ValidateAddress проверка формата адреса (префикс, длина, lowercase hex)
func ValidateAddress(address string) bool {
	if !strings.HasPrefix(address, constants.AddressPrefix) {
		return false
	}
	body := address[len(constants.AddressPrefix):]
	if len(body) != constants.AddressHashLength {
		return false
	}
	for _, r := range body {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
