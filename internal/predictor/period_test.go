package predictor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_Next(t *testing.T) {
	tests := []struct {
		name     string
		digits   int
		current  string
		expected string
	}{
		{"simple increment", 4, "202401010001", "202401010002"},
		{"carry width", 4, "202401010999", "202401011000"},
		{"daily rollover", 4, "202401011440", "202401020001"},
		{"month rollover", 4, "202401311440", "202402010001"},
		{"year rollover", 4, "202412311440", "202501010001"},
		{"leap day", 4, "202402281440", "202402290001"},
		{"infix preserved", 4, "20240101100010999", "20240101100011000"},
		{"infix rollover", 4, "20240101100011440", "20240102100010001"},
		{"wider counter", 5, "2024010101439", "2024010101440"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NewSequencer(DefaultMaxDailySequence, tt.digits).Next(tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestSequencer_Malformed(t *testing.T) {
	inputs := []string{"", "2024", "20240101", "2024XX010001", "20240101xx12", "20241301" + "0001"}

	for _, in := range inputs {
		_, err := NewSequencer(DefaultMaxDailySequence, DefaultSequenceDigits).Next(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, ErrMalformedPeriod), "input %q", in)
	}
}

func TestSequencer_Defaults(t *testing.T) {
	next, err := NewSequencer(0, 0).Next("202401010001")
	require.NoError(t, err)
	assert.Equal(t, "202401010002", next)

	next, err = NewSequencer(480, 0).Next("202401010480")
	require.NoError(t, err)
	assert.Equal(t, "202401020001", next)
}
