package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"gorm.io/gorm"
)

// CredentialStore resolves a usable bearer credential for an account.
type CredentialStore interface {
	Resolve(ctx context.Context, account *models.SocialAccount) (string, error)
}

// DBCredentialStore reads the account's OAuth token row and decrypts it when
// an encryption key is configured.
type DBCredentialStore struct {
	db  *gorm.DB
	key []byte
}

var _ CredentialStore = (*DBCredentialStore)(nil)

// NewDBCredentialStore keyB64 为空时令牌按明文处理（仅限开发环境）
func NewDBCredentialStore(db *gorm.DB, keyB64 string) (*DBCredentialStore, error) {
	var key []byte
	if keyB64 != "" {
		var err error
		key, err = base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
		}
	}
	return &DBCredentialStore{db: db, key: key}, nil
}

func (s *DBCredentialStore) Resolve(ctx context.Context, account *models.SocialAccount) (string, error) {
	var token models.OAuthToken
	if err := s.db.WithContext(ctx).
		Where("social_account_id = ?", account.ID).
		First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &CredentialError{AccountID: account.ID, Err: errors.New("no oauth token on record")}
		}
		return "", &CredentialError{AccountID: account.ID, Err: err}
	}

	access := MaybeDecrypt(token.AccessTokenEnc, s.key)
	if access == "" {
		return "", &CredentialError{AccountID: account.ID, Err: errors.New("empty access token")}
	}
	return access, nil
}

const encPrefix = "enc:"

// MaybeDecrypt decrypts AES-GCM tokens written with the "enc:" prefix.
// Plain tokens pass through untouched, and a failed decryption falls back to
// the stored value rather than hard-failing (dev databases mix both forms).
func MaybeDecrypt(value string, key []byte) string {
	if value == "" || len(key) == 0 || !strings.HasPrefix(value, encPrefix) {
		return value
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return value
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return value
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return value
	}
	if len(raw) < gcm.NonceSize() {
		return value
	}

	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return value
	}
	return string(plain)
}

// Encrypt is the writing-side counterpart of MaybeDecrypt, used by account
// onboarding flows and test fixtures.
func Encrypt(value string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(value), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}
