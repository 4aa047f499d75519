// Package keygen produces the random identifiers, secrets, and formatted
// license keys used by keypanel.
//
// IDs are 8 random bytes. Collisions are not retried: at 64 bits the
// probability is negligible for the number of apps a single deployment holds.
// License key collisions are detected by the store's unique constraint and
// handled by the caller.
package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/keypanel/keypanel/internal/model"
)

const (
	idBytes     = 8
	secretBytes = 32

	// Placeholder is replaced by one random hex digit.
	Placeholder = 'X'
	// Separator is copied verbatim.
	Separator = '-'

	maxFormatLen = 64
)

// ErrInvalidFormat is returned for key format templates that contain anything
// other than placeholders and separators.
var ErrInvalidFormat = errors.New("invalid key format: use X and - only")

var formatPattern = regexp.MustCompile(`^[X-]+$`)

const hexDigits = "0123456789ABCDEF"

// NewID returns a random 16-character upper-case hex identifier.
func NewID() (string, error) {
	return randomHex(idBytes)
}

// NewSecret returns a random 64-character upper-case hex bearer secret.
func NewSecret() (string, error) {
	return randomHex(secretBytes)
}

// NewLicenseKey fills the format template with random hex digits. An empty
// format uses model.DefaultKeyFormat.
func NewLicenseKey(format string) (string, error) {
	if format == "" {
		format = model.DefaultKeyFormat
	}
	if err := ValidateFormat(format); err != nil {
		return "", err
	}

	n := strings.Count(format, string(Placeholder))
	// One random byte per placeholder; the low nibble picks the digit.
	entropy := make([]byte, n)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(len(format))
	i := 0
	for _, c := range format {
		if c == Placeholder {
			b.WriteByte(hexDigits[entropy[i]&0x0f])
			i++
			continue
		}
		b.WriteRune(c)
	}
	return b.String(), nil
}

// ValidateFormat checks that a template only uses placeholders and
// separators, has at least one placeholder, and is not absurdly long.
func ValidateFormat(format string) error {
	if len(format) > maxFormatLen || !formatPattern.MatchString(format) {
		return ErrInvalidFormat
	}
	if !strings.ContainsRune(format, Placeholder) {
		return ErrInvalidFormat
	}
	return nil
}

// KeySpace returns the number of hex placeholders in a format. Each one adds
// four bits to the key space.
func KeySpace(format string) int {
	if format == "" {
		format = model.DefaultKeyFormat
	}
	return strings.Count(format, string(Placeholder))
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
