package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     string
		wantYear  int
		wantMonth time.Month
		wantErr   bool
	}{
		{"defaults", "", 2024, time.April, false},
		{"explicit", "year=2023&month=12", 2023, time.December, false},
		{"month only", "month=2", 2024, time.February, false},
		{"padded", "year=%202022%20&month=07", 2022, time.July, false},
		{"month zero", "month=0", 0, 0, true},
		{"month thirteen", "month=13", 0, 0, true},
		{"non numeric year", "year=abc", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseMonthParams(q, now)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errInvalidPeriod))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, got.Year)
			assert.Equal(t, tt.wantMonth, got.Month)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"valid", `{"name":"Ada"}`, "Ada", false},
		{"unknown field", `{"name":"Ada","role":"admin"}`, "", true},
		{"trailing data", `{"name":"Ada"}{"name":"Bob"}`, "", true},
		{"empty", ``, "", true},
		{"not json", `name=Ada`, "", true},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errBadRequest), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestParseBool(t *testing.T) {
	q := url.Values{"async": {"true"}, "dry": {"nope"}}

	v, err := parseBool(q, "async")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = parseBool(q, "missing")
	require.NoError(t, err)
	assert.False(t, v)

	_, err = parseBool(q, "dry")
	assert.True(t, errors.Is(err, errBadRequest))
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Rent  ", "Rent"},
		{"Line1\nLine2", "Line1\nLine2"},
		{"Tab\there", "Tab\there"},
		{"Bell\x07Char", "BellChar"},
		{"\x00null", "null"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeInput(tt.in))
	}
}
