package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or older tools.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t, err
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// dateKey is the calendar day of t in t's own location.
func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseAmount(s string) (core.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return core.NewAmount(d), nil
}

func personColumns(p *core.Person) (sql.NullString, sql.NullString) {
	if p == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return nullString(p.ID), sql.NullString{String: p.Name, Valid: true}
}

func personFromColumns(id, name sql.NullString) *core.Person {
	if !id.Valid && !name.Valid {
		return nil
	}
	return &core.Person{ID: id.String, Name: name.String}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
