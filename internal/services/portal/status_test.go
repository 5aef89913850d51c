package portal

import (
	"testing"
	"time"
)

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"ten days out", now.AddDate(0, 0, 10), 10},
		{"same instant", now, 0},
		{"half a day out", now.Add(12 * time.Hour), 0},
		{"half a day past", now.Add(-12 * time.Hour), -1},
		{"three days past", now.AddDate(0, 0, -3), -3},
	}
	for _, tc := range cases {
		if got := DaysLeft(tc.expiry, now); got != tc.want {
			t.Errorf("%s: DaysLeft = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{-5, StatusExpired},
		{0, StatusExpired},
		{1, StatusExpiring},
		{7, StatusExpiring},
		{8, StatusActive},
		{30, StatusActive},
	}
	for _, tc := range cases {
		if got := Classify(tc.days); got != tc.want {
			t.Errorf("Classify(%d) = %q, want %q", tc.days, got, tc.want)
		}
	}
}

func TestEffectiveStatusHonorsStoredFlag(t *testing.T) {
	if got := EffectiveStatus(StatusExpired, 30); got != StatusExpired {
		t.Errorf("EffectiveStatus = %q, want %q", got, StatusExpired)
	}
	if got := EffectiveStatus("available", 30); got != StatusActive {
		t.Errorf("EffectiveStatus = %q, want %q", got, StatusActive)
	}
	if got := EffectiveStatus(StatusActive, 3); got != StatusExpiring {
		t.Errorf("EffectiveStatus = %q, want %q", got, StatusExpiring)
	}
}
