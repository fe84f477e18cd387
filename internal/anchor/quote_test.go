package anchor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewQuote(t *testing.T) {
	q := NewQuote(decimal.NewFromInt(10000))

	assert.True(t, q.Commission.Equal(decimal.NewFromInt(50)), q.Commission.String())
	assert.True(t, q.Net.Equal(decimal.NewFromInt(9950)), q.Net.String())
	assert.Equal(t, "6.9097", q.Received.StringFixed(4))
	assert.True(t, q.Total().Equal(decimal.NewFromInt(10050)))
}

func TestNewQuote_Zero(t *testing.T) {
	q := NewQuote(decimal.Zero)
	assert.True(t, q.Commission.IsZero())
	assert.True(t, q.Received.IsZero())
}

func TestPricing_Custom(t *testing.T) {
	p := Pricing{Rate: decimal.NewFromInt(1000), Commission: decimal.RequireFromString("0.01")}
	q := p.Quote(decimal.NewFromInt(2000))

	assert.True(t, q.Commission.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "1.9800", q.Received.StringFixed(4))
	assert.Equal(t, "1,000.00", q.View().Rate)
}

func TestQuoteView(t *testing.T) {
	v := NewQuote(decimal.NewFromInt(1500000)).View()

	assert.Equal(t, "1,500,000.00", v.Amount)
	assert.Equal(t, "7,500.00", v.Commission)
	assert.Equal(t, "1,492,500.00", v.Net)
	assert.Equal(t, "1,036.4583", v.Received)
	assert.Equal(t, "1,440.00", v.Rate)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"0", 2, "0.00"},
		{"999", 2, "999.00"},
		{"1000", 2, "1,000.00"},
		{"95400", 2, "95,400.00"},
		{"1234567.891", 2, "1,234,567.89"},
		{"-1000.5", 2, "-1,000.50"},
		{"6.909722", 4, "6.9097"},
		{"123456", 0, "123,456"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(decimal.RequireFromString(tt.in), tt.places))
		})
	}
}
