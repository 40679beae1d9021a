package totp

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Crockford base32 alphabet without padding. Excludes I, L, O and U so codes
// survive being read aloud or retyped.
const recoveryAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// RecoveryCodeLength is the number of characters per recovery code.
// 10 characters over a 32-symbol alphabet carry 50 bits of entropy.
const RecoveryCodeLength = 10

// GenerateRecoveryCodes returns count single-use fallback codes.
func GenerateRecoveryCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("totp: recovery code count must be positive, got %d", count)
	}

	codes := make([]string, count)
	for i := range count {
		buf := make([]byte, RecoveryCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("totp: failed to generate recovery code: %w", err)
		}
		b := make([]byte, RecoveryCodeLength)
		for j, v := range buf {
			b[j] = recoveryAlphabet[int(v)%len(recoveryAlphabet)]
		}
		codes[i] = string(b)
	}
	return codes, nil
}

// NormalizeRecoveryCode canonicalizes user input before hashing or comparing:
// surrounding whitespace and inner separators are dropped and the code is
// upper-cased, so "ab12-cd34" and "AB12CD34" are the same code.
func NormalizeRecoveryCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}
