package model

import "fmt"

// SecondsPerDay is the length of one license day.
const SecondsPerDay = 24 * 3600

// KeyStatus is the derived state of a license key. It is never stored.
type KeyStatus string

const (
	StatusActive  KeyStatus = "active"
	StatusExpired KeyStatus = "expired"
	StatusBanned  KeyStatus = "banned"
)

// RemainingExpired is what Remaining reports once a key has run out.
const RemainingExpired = "Expired"

// LicenseKey is a license issued for one app. Timestamps are epoch seconds.
// HWID is bound on the first successful validation and never rebound
// implicitly.
type LicenseKey struct {
	AppID    string  `json:"-" db:"app_id"`
	Key      string  `json:"key" db:"license_key"`
	Created  int64   `json:"created" db:"created"`
	Expires  int64   `json:"expires" db:"expires"`
	Banned   bool    `json:"banned" db:"banned"`
	Note     string  `json:"note" db:"note"`
	Used     bool    `json:"used" db:"used"`
	LastUsed *int64  `json:"lastUsed" db:"last_used"`
	HWID     *string `json:"hwid" db:"hwid"`
}

// StatusAt derives the key status at the given time. Banned takes precedence
// over expiry.
func (k *LicenseKey) StatusAt(now int64) KeyStatus {
	switch {
	case k.Banned:
		return StatusBanned
	case k.Expires <= now:
		return StatusExpired
	default:
		return StatusActive
	}
}

// HWIDLocked reports whether a hardware id is bound to the key.
func (k *LicenseKey) HWIDLocked() bool {
	return k.HWID != nil && *k.HWID != ""
}

// View projects the key with its derived status and remaining time.
func (k *LicenseKey) View(now int64) KeyView {
	return KeyView{
		LicenseKey: *k,
		Status:     k.StatusAt(now),
		Remaining:  Remaining(k.Expires, now),
	}
}

// KeyView is a license key as returned by list endpoints.
type KeyView struct {
	LicenseKey
	Status    KeyStatus `json:"status"`
	Remaining string    `json:"remaining"`
}

// Remaining renders the time left until expires as "{d}d {h}h" or "{h}h".
func Remaining(expires, now int64) string {
	diff := expires - now
	if diff <= 0 {
		return RemainingExpired
	}
	days := diff / SecondsPerDay
	hours := (diff % SecondsPerDay) / 3600
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	return fmt.Sprintf("%dh", hours)
}

// KeyStats aggregates the keys of one app.
type KeyStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Banned     int `json:"banned"`
	Expired    int `json:"expired"`
	Used       int `json:"used"`
	HWIDLocked int `json:"hwidLocked"`
}

// Add counts one key into the stats using the same status priority as
// StatusAt.
func (s *KeyStats) Add(k *LicenseKey, now int64) {
	s.Total++
	switch k.StatusAt(now) {
	case StatusBanned:
		s.Banned++
	case StatusExpired:
		s.Expired++
	case StatusActive:
		s.Active++
	}
	if k.Used {
		s.Used++
	}
	if k.HWIDLocked() {
		s.HWIDLocked++
	}
}
