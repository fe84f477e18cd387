package anchor

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ExchangeRate is the fixed number of ARS per USDC.
	ExchangeRate = decimal.RequireFromString("1440.00")
	// CommissionRate is taken from the ARS amount before conversion.
	CommissionRate = decimal.RequireFromString("0.005")
	// InitialBalance is the demo ARS balance of the standard variant.
	InitialBalance = decimal.RequireFromString("95400.00")
)

// Pricing is the rate pair a wizard quotes with.
type Pricing struct {
	Rate       decimal.Decimal
	Commission decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{Rate: ExchangeRate, Commission: CommissionRate}
}

// Quote breaks an ARS amount down into commission and USDC received.
type Quote struct {
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
	Received   decimal.Decimal `json:"received"`
	Rate       decimal.Decimal `json:"rate"`
}

// NewQuote prices amount at the default rate and commission.
func NewQuote(amount decimal.Decimal) Quote {
	return DefaultPricing().Quote(amount)
}

func (p Pricing) Quote(amount decimal.Decimal) Quote {
	commission := amount.Mul(p.Commission)
	net := amount.Sub(commission)
	return Quote{
		Amount:     amount,
		Commission: commission,
		Net:        net,
		Received:   net.Div(p.Rate),
		Rate:       p.Rate,
	}
}

// Total is what leaves the ARS balance when the quote is confirmed.
func (q Quote) Total() decimal.Decimal {
	return q.Amount.Add(q.Commission)
}

// QuoteView is the display form of a quote: ARS at 2 places, USDC at 4.
type QuoteView struct {
	Amount     string `json:"amount"`
	Commission string `json:"commission"`
	Net        string `json:"net"`
	Received   string `json:"received"`
	Rate       string `json:"rate"`
}

func (q Quote) View() QuoteView {
	return QuoteView{
		Amount:     FormatAmount(q.Amount, 2),
		Commission: FormatAmount(q.Commission, 2),
		Net:        FormatAmount(q.Net, 2),
		Received:   FormatAmount(q.Received, 4),
		Rate:       FormatAmount(q.Rate, 2),
	}
}

// FormatAmount rounds to places and groups the integer part with commas,
// e.g. 95400 -> "95,400.00".
func FormatAmount(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}
