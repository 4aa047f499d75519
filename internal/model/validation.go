package model

// Validation failure reasons, in the order they are checked.
const (
	ReasonNoKey        = "no_key"
	ReasonNoHWID       = "no_hwid"
	ReasonNotFound     = "not_found"
	ReasonBanned       = "banned"
	ReasonExpired      = "expired"
	ReasonHWIDMismatch = "hwid_mismatch"
)

// ValidationResult is the outcome of validating a key. On success Valid is
// true and Created, Expires and HWID are set. On failure Reason is set, and
// ExpiredAt is set for expired keys.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	Created   int64  `json:"created,omitempty"`
	Expires   int64  `json:"expires,omitempty"`
	HWID      string `json:"hwid,omitempty"`
	ExpiredAt int64  `json:"expiredAt,omitempty"`
}

// Rejected builds a failed validation result.
func Rejected(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}
