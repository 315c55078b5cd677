package domain

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestGenerateCardCredentials_Format(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		creds, err := GenerateCardCredentials(now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(creds.CardNumber) != 16 {
			t.Fatalf("expected 16-digit card number, got %q", creds.CardNumber)
		}
		if !strings.HasPrefix(creds.CardNumber, "5") {
			t.Fatalf("expected card number to start with 5, got %q", creds.CardNumber)
		}
		if _, err := strconv.ParseUint(creds.CardNumber, 10, 64); err != nil {
			t.Fatalf("expected numeric card number, got %q", creds.CardNumber)
		}

		if creds.ExpiryDate != "03/29" {
			t.Fatalf("expected expiry 03/29, got %q", creds.ExpiryDate)
		}

		cvv, err := strconv.Atoi(creds.CVV)
		if err != nil {
			t.Fatalf("expected numeric cvv, got %q", creds.CVV)
		}
		if cvv < 100 || cvv > 999 {
			t.Fatalf("expected cvv in [100, 999], got %d", cvv)
		}
	}
}

func TestGenerateCardCredentials_ExpiryWrapsCentury(t *testing.T) {
	now := time.Date(2098, time.December, 1, 0, 0, 0, 0, time.UTC)
	creds, err := GenerateCardCredentials(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.ExpiryDate != "12/01" {
		t.Fatalf("expected expiry 12/01, got %q", creds.ExpiryDate)
	}
}

func TestFormatCardNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   string
	}{
		{name: "full card number", number: "5123456789012345", want: "5123 4567 8901 2345"},
		{name: "short remainder", number: "51234", want: "5123 4"},
		{name: "empty", number: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCardNumber(tt.number); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWindowElapsed(t *testing.T) {
	submitted := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	app := CardApplication{SubmittedAt: submitted}
	window := 120 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "just submitted", now: submitted, want: false},
		{name: "one second before", now: submitted.Add(119 * time.Second), want: false},
		{name: "exactly at the boundary", now: submitted.Add(120 * time.Second), want: true},
		{name: "well past", now: submitted.Add(time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := app.WindowElapsed(tt.now, window); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}

func TestRandomInRangeBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := randomInRange(100, 999)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n < 100 || n > 999 {
			t.Fatalf("expected value in [100, 999], got %d", n)
		}
	}
}
