package billingperiod

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse(" 2024-03 ")
	require.NoError(t, err)
	assert.Equal(t, 2024, p.Year)
	assert.Equal(t, time.March, p.Month)
	assert.Equal(t, "2024-03", p.String())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "2024-3", "2024-13", "24-03", "2024/03", "2024-03-01"} {
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, ErrInvalidPeriod), raw)
	}
}

func TestContains(t *testing.T) {
	p := Period{Year: 2024, Month: time.February}
	assert.True(t, p.Contains(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, p, FromTime(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)))
}
