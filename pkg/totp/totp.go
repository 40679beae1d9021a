// Package totp implements the RFC 4226/6238 one-time-password algorithm as a
// pure function library. It has no I/O and no clock of its own: callers pass
// the time in, which keeps every operation deterministic and testable.
//
// Validation returns the time period that matched, which the caller needs to
// record in the anti-replay ledger. That requirement is why validation is not
// delegated to a library that only answers yes/no.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// Digits is the length of generated codes.
	Digits = 6

	// DefaultStep is the RFC 6238 standard period length.
	DefaultStep = 30 * time.Second

	// DefaultSkew accepts codes from the adjacent period on either side of
	// the current one, absorbing clock drift between device and server.
	DefaultSkew = 1
)

// Engine derives and validates codes for a fixed step and skew policy.
// The zero value is not usable; construct with New.
type Engine struct {
	step time.Duration
	skew int
}

// New returns an Engine with the given step and skew. Non-positive values
// fall back to the defaults.
func New(step time.Duration, skew int) Engine {
	if step <= 0 {
		step = DefaultStep
	}
	if skew < 0 {
		skew = DefaultSkew
	}
	return Engine{step: step, skew: skew}
}

// Default returns an Engine with the RFC 6238 standard parameters.
func Default() Engine {
	return New(DefaultStep, DefaultSkew)
}

// Step returns the engine's period length.
func (e Engine) Step() time.Duration { return e.step }

// Skew returns the number of adjacent periods accepted on each side.
func (e Engine) Skew() int { return e.skew }

// Period returns the time period index for t: Unix time floor-divided by the
// step length.
func (e Engine) Period(t time.Time) int64 {
	return t.Unix() / int64(e.step/time.Second)
}

// Generate computes the code for the given secret and period using
// HMAC-SHA1 dynamic truncation, zero-padded to six digits.
func (e Engine) Generate(secret []byte, period int64) string {
	counter := make([]byte, 8)
	v := period
	for i := 7; i >= 0; i-- {
		counter[i] = byte(v & 0xff)
		v >>= 8
	}

	mac := hmac.New(sha1.New, secret)
	mac.Write(counter)
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3: the low nibble of the last byte
	// selects a 31-bit big-endian word inside the digest.
	offset := sum[len(sum)-1] & 0x0f
	code := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]) << 16) |
		(int(sum[offset+2]) << 8) |
		int(sum[offset+3])

	code %= int(math.Pow10(Digits))
	return fmt.Sprintf("%0*d", Digits, code)
}

// Validate checks candidate against every period in [now-skew, now+skew] and
// returns the first matching period index. It never returns an error: a
// malformed or non-matching candidate yields ok=false, so callers cannot
// distinguish the failure causes and neither can an observer.
func (e Engine) Validate(secret []byte, candidate string, now time.Time) (period int64, ok bool) {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != Digits {
		return 0, false
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	current := e.Period(now)
	for p := current - int64(e.skew); p <= current+int64(e.skew); p++ {
		expected := e.Generate(secret, p)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1 {
			return p, true
		}
	}
	return 0, false
}

// DecodeSecret decodes a base32 shared secret as produced during
// provisioning. Lowercase input and missing padding are tolerated.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	secret = strings.TrimRight(secret, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("totp: invalid base32 secret: %w", err)
	}
	return key, nil
}
