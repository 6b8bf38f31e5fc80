package commander

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"2025-12-10":           "2025-12-10",
		"10/12/2025":           "2025-12-10",
		"05/03/26":             "2026-03-05",
		"5/3/26":               "2026-03-05",
		"10-12-2025":           "2025-12-10",
		"10-12-25":             "2025-12-10",
		" 1/2/2027 ":           "2027-02-01",
		"2025-12-10T15:00:00Z": "2025-12-10",
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "amanhã", "31/02/2025", "2025/12/10x"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatBRAndToday(t *testing.T) {
	assert.Equal(t, "10/12/2025", FormatBR("2025-12-10"))
	assert.Equal(t, "garbage", FormatBR("garbage"))

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	// 02:00 UTC is still the previous day in São Paulo.
	now := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-04", Today(now, loc))
	assert.Equal(t, "2026-03-05", Today(now, nil))
	assert.Equal(t, "2026-03-11", addDays("2026-03-04", 7))
}
