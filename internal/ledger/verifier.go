package ledger

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier seals a secret for storage and verifies a candidate
// against the sealed form. The engine never inspects secrets directly, so the
// scheme can be upgraded without touching the engine's contract.
type CredentialVerifier interface {
	Seal(secret string) (string, error)
	Verify(secret, sealed string) bool
}

// PlainVerifier stores secrets as-is and compares them in constant time.
// This matches the legacy data, where passwords are plain strings; prefer
// BcryptVerifier for new deployments.
type PlainVerifier struct{}

func (PlainVerifier) Seal(secret string) (string, error) { return secret, nil }

func (PlainVerifier) Verify(secret, sealed string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(sealed)) == 1
}

// BcryptVerifier stores a bcrypt hash of the secret.
type BcryptVerifier struct {
	Cost int
}

func (v BcryptVerifier) Seal(secret string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (v BcryptVerifier) Verify(secret, sealed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(sealed), []byte(secret)) == nil
}
