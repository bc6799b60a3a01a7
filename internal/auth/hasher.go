package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher はパスワードのハッシュ化と照合を提供します。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher は SALT をペッパーとして HMAC-SHA256 をかけた上で bcrypt を適用します。
// bcrypt の72バイト制限に収まるよう、入力は常に64文字の16進文字列になります。
type BcryptHasher struct {
	pepper []byte
	cost   int
}

// NewBcryptHasher は BcryptHasher を作成します。
func NewBcryptHasher(salt string) *BcryptHasher {
	return &BcryptHasher{pepper: []byte(salt), cost: bcrypt.DefaultCost}
}

// Hash はパスワードのハッシュを返します。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(h.peppered(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify はパスワードがハッシュと一致するか判定します。
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), h.peppered(password)) == nil
}

func (h *BcryptHasher) peppered(password string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return []byte(hex.EncodeToString(mac.Sum(nil)))
}
