package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/Lorenzozero/social-automation-hub/internal/models"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func testKeyB64() string {
	return base64.StdEncoding.EncodeToString(testKey)
}

func TestMaybeDecryptRoundTrip(t *testing.T) {
	enc, err := Encrypt("secret-token", testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if got := MaybeDecrypt(enc, testKey); got != "secret-token" {
		t.Fatalf("decrypt = %q, want secret-token", got)
	}
}

func TestMaybeDecryptPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		value string
		key   []byte
	}{
		{"plain token untouched", "plain-token", testKey},
		{"no key configured", "enc:abcdef", nil},
		{"bad base64 falls back", "enc:!!!not-base64!!!", testKey},
		{"empty value", "", testKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaybeDecrypt(tt.value, tt.key); got != tt.value {
				t.Fatalf("got %q, want the original %q", got, tt.value)
			}
		})
	}
}

func TestMaybeDecryptWrongKeyFallsBack(t *testing.T) {
	enc, err := Encrypt("secret", testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	otherKey := bytes.Repeat([]byte{0x13}, 32)
	if got := MaybeDecrypt(enc, otherKey); got != enc {
		t.Fatalf("wrong key must fall back to the stored value, got %q", got)
	}
}

func TestNewDBCredentialStoreValidatesKey(t *testing.T) {
	db := setupTestDB(t)
	if _, err := NewDBCredentialStore(db, "not base64!!"); err == nil {
		t.Fatal("expected error for malformed key")
	}
	if _, err := NewDBCredentialStore(db, base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for wrong key length")
	}
	if _, err := NewDBCredentialStore(db, ""); err != nil {
		t.Fatalf("empty key must be accepted (plaintext mode): %v", err)
	}
}

func TestResolveDecryptsStoredToken(t *testing.T) {
	db := setupTestDB(t)
	account := createTestAccount(t, db, models.PlatformX)

	enc, err := Encrypt("bearer-xyz", testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	token := &models.OAuthToken{SocialAccountID: account.ID, AccessTokenEnc: enc}
	if err := db.Create(token).Error; err != nil {
		t.Fatalf("create token: %v", err)
	}

	store, err := NewDBCredentialStore(db, testKeyB64())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	access, err := store.Resolve(context.Background(), account)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if access != "bearer-xyz" {
		t.Fatalf("access = %q, want bearer-xyz", access)
	}
}

func TestResolveMissingToken(t *testing.T) {
	db := setupTestDB(t)
	account := createTestAccount(t, db, models.PlatformX)

	store, err := NewDBCredentialStore(db, "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	_, err = store.Resolve(context.Background(), account)
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("error type = %T, want *CredentialError", err)
	}
}
