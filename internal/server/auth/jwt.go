// Package auth issues and verifies the HS256 tokens the HTTP API uses to
// identify accounts.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wordledger/internal/common"
)

// Claims carries the registered claims plus the account username.
type Claims struct {
	jwt.RegisteredClaims
	Username string
}

// GenerateToken signs a token for the given username, valid for
// validityDuration from now.
func GenerateToken(username string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Username: username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUsernameFromToken parses and verifies tokenString and returns the
// username it was issued for. Expired, forged or otherwise unparsable tokens
// yield common.ErrInvalidCredentials.
func GetUsernameFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidCredentials
	}

	if !token.Valid {
		return "", common.ErrInvalidCredentials
	}

	return claims.Username, nil
}
