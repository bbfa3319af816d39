package storage

import (
	"errors"
	"testing"
	"time"
)

func TestFormatTimeSortsLexically(t *testing.T) {
	early := time.Date(2024, 3, 15, 9, 0, 0, 5, time.UTC)
	late := time.Date(2024, 3, 15, 9, 0, 0, 500000000, time.UTC)
	if formatTime(early) >= formatTime(late) {
		t.Fatalf("formatTime(%v) >= formatTime(%v)", early, late)
	}

	back, err := parseTime(formatTime(late))
	if err != nil || !back.Equal(late) {
		t.Fatalf("parseTime() = %v, %v; want %v", back, err, late)
	}
}

func TestDateKeyUsesOwnLocation(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	at := time.Date(2024, 3, 16, 0, 30, 0, 0, cet)
	if got := dateKey(at); got != "2024-03-16" {
		t.Fatalf("dateKey() = %s, want 2024-03-16", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: transactions.id (1555)")) {
		t.Fatalf("expected unique violation")
	}
	if isUniqueViolation(errors.New("disk I/O error")) || isUniqueViolation(nil) {
		t.Fatalf("unexpected unique violation")
	}
}
