package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"
)

const apiKeyPrefix = "plk_"

// APIKey is the stored form of a key. Only the hash of the secret is kept.
type APIKey struct {
	APIKeyID   string     `json:"api_key_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	MaskedKey  string     `json:"masked_key"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// GenerateKey creates a new secure API key
func GenerateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey returns the hex sha256 digest a key is looked up by.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// MaskKey keeps only enough of a key to recognise it.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4] + "…" + key[len(key)-4:]
}

// NewAPIKey creates a key record and returns it with the plaintext secret,
// which is never stored.
func NewAPIKey(name, createdBy string) (*APIKey, string, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}

	return &APIKey{
		APIKeyID:  GenerateUUIDWithSuffix("key"),
		Name:      name,
		KeyHash:   HashKey(key),
		MaskedKey: MaskKey(key),
		CreatedBy: strings.ToLower(createdBy),
		CreatedAt: time.Now().UTC(),
	}, key, nil
}

func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsOwnedBy compares owners case-insensitively since owners are wallet addresses.
func (k *APIKey) IsOwnedBy(address string) bool {
	return strings.EqualFold(k.CreatedBy, address)
}
