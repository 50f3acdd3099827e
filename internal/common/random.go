package common

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet is the character set used for redemption code suffixes.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MakeRandCodeSuffix generates a random string of the given length from the
// redemption code alphabet (uppercase letters and digits).
func MakeRandCodeSuffix(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("rand: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// MakeRedemptionCode builds a code in the "<faceValue>-<random suffix>"
// format, e.g. "1000-4F7KQ2M9XA". The face value prefix lets an operator tell
// a code's denomination at a glance.
func MakeRedemptionCode(faceValue int64, suffixLen int) (string, error) {
	suffix, err := MakeRandCodeSuffix(suffixLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s", faceValue, suffix), nil
}
