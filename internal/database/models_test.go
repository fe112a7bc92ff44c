package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDrawResult_DerivedFields(t *testing.T) {
	tests := []struct {
		number   int
		category Category
		parity   Parity
		color    Color
	}{
		{0, CategorySmall, ParityEven, ColorVioletRed},
		{1, CategorySmall, ParityOdd, ColorGreen},
		{2, CategorySmall, ParityEven, ColorRed},
		{3, CategorySmall, ParityOdd, ColorGreen},
		{4, CategorySmall, ParityEven, ColorRed},
		{5, CategoryBig, ParityOdd, ColorVioletGreen},
		{6, CategoryBig, ParityEven, ColorRed},
		{7, CategoryBig, ParityOdd, ColorGreen},
		{8, CategoryBig, ParityEven, ColorRed},
		{9, CategoryBig, ParityOdd, ColorGreen},
	}

	for _, tt := range tests {
		r := NewDrawResult("202401010001", tt.number, time.Time{})
		assert.Equal(t, tt.category, r.Category, "number %d", tt.number)
		assert.Equal(t, tt.parity, r.Parity, "number %d", tt.number)
		assert.Equal(t, tt.color, r.Color, "number %d", tt.number)
		assert.Equal(t, tt.category == CategoryBig, r.IsBig())
	}
}

func TestCategory_Opposite(t *testing.T) {
	assert.Equal(t, CategorySmall, CategoryBig.Opposite())
	assert.Equal(t, CategoryBig, CategorySmall.Opposite())
	assert.Equal(t, "BIG", CategoryBig.String())
}

func TestBuildDrawUpsert(t *testing.T) {
	observed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildDrawUpsert([]DrawResult{
		NewDrawResult("202401010002", 7, observed),
		NewDrawResult("202401010001", 0, observed),
	})

	assert.Equal(t, 2, strings.Count(query, "(?, ?, ?, ?, ?, ?)"))
	assert.Contains(t, query, "ON DUPLICATE KEY UPDATE")
	assert.Len(t, args, 12)
	assert.Equal(t, []interface{}{"202401010002", 7, "BIG", "ODD", "GREEN", observed}, args[:6])
}
