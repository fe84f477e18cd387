package domain

import "strings"

type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
	SEPA bool   `json:"sepa"`
}

var Countries = []Country{
	{"AT", "Austria", true},
	{"BE", "Belgium", true},
	{"BG", "Bulgaria", true},
	{"HR", "Croatia", true},
	{"CY", "Cyprus", true},
	{"CZ", "Czech Republic", true},
	{"DK", "Denmark", true},
	{"EE", "Estonia", true},
	{"FI", "Finland", true},
	{"FR", "France", true},
	{"DE", "Germany", true},
	{"GR", "Greece", true},
	{"HU", "Hungary", true},
	{"IS", "Iceland", true},
	{"IE", "Ireland", true},
	{"IT", "Italy", true},
	{"LV", "Latvia", true},
	{"LI", "Liechtenstein", true},
	{"LT", "Lithuania", true},
	{"LU", "Luxembourg", true},
	{"MT", "Malta", true},
	{"MC", "Monaco", true},
	{"NL", "Netherlands", true},
	{"NO", "Norway", true},
	{"PL", "Poland", true},
	{"PT", "Portugal", true},
	{"RO", "Romania", true},
	{"SM", "San Marino", true},
	{"SK", "Slovakia", true},
	{"SI", "Slovenia", true},
	{"ES", "Spain", true},
	{"SE", "Sweden", true},
	{"CH", "Switzerland", true},
	{"GB", "United Kingdom", true},
	{"US", "United States", false},
	{"CA", "Canada", false},
	{"AU", "Australia", false},
	{"NZ", "New Zealand", false},
	{"JP", "Japan", false},
	{"KR", "South Korea", false},
	{"SG", "Singapore", false},
	{"HK", "Hong Kong", false},
	{"AE", "United Arab Emirates", false},
	{"BR", "Brazil", false},
	{"MX", "Mexico", false},
	{"AR", "Argentina", false},
	{"CL", "Chile", false},
	{"IN", "India", false},
	{"ZA", "South Africa", false},
}

// CountryByCode is case-insensitive.
func CountryByCode(code string) (Country, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

func IsSEPACountry(code string) bool {
	c, ok := CountryByCode(code)
	return ok && c.SEPA
}
