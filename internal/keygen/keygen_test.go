package keygen

import (
	"errors"
	"regexp"
	"testing"

	"github.com/keypanel/keypanel/internal/model"
)

func TestNewIDAndSecret(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{16}$`).MatchString(id) {
		t.Errorf("id %q is not 16 upper-case hex chars", id)
	}

	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{64}$`).MatchString(secret) {
		t.Errorf("secret %q is not 64 upper-case hex chars", secret)
	}
	if len(secret) <= len(id) {
		t.Error("secret must be longer than id")
	}
}

func TestNewLicenseKeyDefaultFormat(t *testing.T) {
	key, err := NewLicenseKey("")
	if err != nil {
		t.Fatalf("NewLicenseKey: %v", err)
	}
	pattern := regexp.MustCompile(`^[0-9A-F]{6}-[0-9A-F]{6}-[0-9A-F]{6}-[0-9A-F]{6}$`)
	if !pattern.MatchString(key) {
		t.Errorf("key %q does not match default format", key)
	}
}

func TestNewLicenseKeyCustomFormat(t *testing.T) {
	key, err := NewLicenseKey("XXXX-XX--X")
	if err != nil {
		t.Fatalf("NewLicenseKey: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{2}--[0-9A-F]$`).MatchString(key) {
		t.Errorf("key %q does not follow template", key)
	}
}

func TestNewLicenseKeyIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		key, err := NewLicenseKey(model.DefaultKeyFormat)
		if err != nil {
			t.Fatalf("NewLicenseKey: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q after %d draws", key, i)
		}
		seen[key] = true
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format string
		ok     bool
	}{
		{"XXXX-XXXX-XXXX-XXXX", true},
		{"X", true},
		{"XXXXXXXX", true},
		{"", false},
		{"----", false},
		{"xxxx-xxxx", false},
		{"XXXX_XXXX", false},
		{"XXXX XXXX", false},
		{"ABCD-XXXX", false},
		{string(make([]byte, 65)), false},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if tt.ok && err != nil {
			t.Errorf("ValidateFormat(%q) = %v, want nil", tt.format, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ValidateFormat(%q) = %v, want ErrInvalidFormat", tt.format, err)
		}
	}
}

func TestNewLicenseKeyRejectsBadFormat(t *testing.T) {
	if _, err := NewLicenseKey("KEY-XXXX"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestKeySpace(t *testing.T) {
	if got := KeySpace(""); got != 24 {
		t.Errorf("KeySpace(default) = %d, want 24", got)
	}
	if got := KeySpace("XX-XX"); got != 4 {
		t.Errorf("KeySpace = %d, want 4", got)
	}
}
