package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCentsRoundTrip(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
	}{
		{"0", 0},
		{"11.00", 1100},
		{"0.1", 10},
		{"4.005", 401},
		{"-2.50", -250},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c := Cents(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.cents, c)
			assert.True(t, FromCents(c).Equal(decimal.RequireFromString(tt.in).Round(2)))
		})
	}
}

func TestInCentsRange(t *testing.T) {
	assert.True(t, InCentsRange(decimal.RequireFromString("92233720368547758.07")))
	assert.True(t, InCentsRange(decimal.RequireFromString("-92233720368547758.07")))
	assert.False(t, InCentsRange(decimal.RequireFromString("92233720368547758.08")))
	assert.False(t, InCentsRange(decimal.RequireFromString("216172782113783808.00")))
}

func TestMoneyJSON(t *testing.T) {
	assert.Equal(t, "45.00", MoneyJSON(decimal.NewFromInt(45)).String())
}
