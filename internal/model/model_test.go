package model

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestStatusAt(t *testing.T) {
	const now = 1_700_000_000

	tests := []struct {
		name string
		key  LicenseKey
		want KeyStatus
	}{
		{"active", LicenseKey{Expires: now + 10}, StatusActive},
		{"expired exactly now", LicenseKey{Expires: now}, StatusExpired},
		{"expired in the past", LicenseKey{Expires: now - 10}, StatusExpired},
		{"banned and active", LicenseKey{Expires: now + 10, Banned: true}, StatusBanned},
		{"banned and expired", LicenseKey{Expires: now - 10, Banned: true}, StatusBanned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.StatusAt(now); got != tt.want {
				t.Errorf("StatusAt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	const now = 1_700_000_000

	tests := []struct {
		name    string
		expires int64
		want    string
	}{
		{"past", now - 1, RemainingExpired},
		{"now", now, RemainingExpired},
		{"under an hour", now + 59*60, "0h"},
		{"hours only", now + 5*3600 + 30, "5h"},
		{"one day", now + SecondsPerDay, "1d 0h"},
		{"days and hours", now + 7*SecondsPerDay + 3*3600 + 59, "7d 3h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.expires, now); got != tt.want {
				t.Errorf("Remaining = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyStatsPriority(t *testing.T) {
	const now = 1_700_000_000

	keys := []LicenseKey{
		{Expires: now + 100},
		{Expires: now + 100, Used: true, HWID: strPtr("ABC")},
		{Expires: now - 100},
		{Expires: now - 100, Banned: true},
		{Expires: now + 100, Banned: true, Used: true},
		{Expires: now + 100, HWID: strPtr("")},
	}

	var stats KeyStats
	for i := range keys {
		stats.Add(&keys[i], now)
	}

	want := KeyStats{Total: 6, Active: 3, Banned: 2, Expired: 1, Used: 2, HWIDLocked: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if stats.Active+stats.Banned+stats.Expired != stats.Total {
		t.Error("status buckets must partition the key set")
	}
}

func TestViewCarriesDerivedFields(t *testing.T) {
	const now = 1_700_000_000
	k := LicenseKey{Key: "AAA", Expires: now + 2*SecondsPerDay, Banned: true}

	v := k.View(now)
	if v.Status != StatusBanned {
		t.Errorf("status = %q, want banned", v.Status)
	}
	if v.Remaining != "2d 0h" {
		t.Errorf("remaining = %q, want %q", v.Remaining, "2d 0h")
	}
	if v.Key != "AAA" {
		t.Errorf("key = %q, want AAA", v.Key)
	}
}

func TestDaysUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Days
	}{
		{`7`, DaysOf(7)},
		{`"30"`, DaysOf(30)},
		{`" 5 "`, DaysOf(5)},
		{`"7d"`, DaysOf(7)},
		{`2.9`, DaysOf(2)},
		{`"2.9"`, DaysOf(2)},
		{`0`, DaysOf(0)},
		{`-3`, DaysOf(-3)},
		{`"-3"`, DaysOf(-3)},
		{`null`, Days{}},
		{`""`, Days{}},
		{`"abc"`, Days{}},
		{`true`, Days{}},
		{`{}`, Days{}},
		{`1e20`, Days{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var body struct {
				Days Days `json:"days"`
			}
			if err := json.Unmarshal([]byte(`{"days":`+tt.in+`}`), &body); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if body.Days != tt.want {
				t.Errorf("got %+v, want %+v", body.Days, tt.want)
			}
		})
	}
}

func TestDaysAbsentField(t *testing.T) {
	var body struct {
		Days Days `json:"days"`
	}
	if err := json.Unmarshal([]byte(`{}`), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Days.Set {
		t.Error("absent field must leave Days unset")
	}
}
