package domain

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// CarbonUnit is appended to numeric carbon footprints for display.
const CarbonUnit = "kg CO₂e"

var carbonNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// FormatCarbon renders kg as "2.3 kg CO₂e".
func FormatCarbon(kg decimal.Decimal) string {
	return kg.String() + " " + CarbonUnit
}

// CarbonKg extracts the first decimal number from a carbon description such
// as "2.3 kg CO₂e". Descriptions without a number are zero.
func CarbonKg(carbon string) decimal.Decimal {
	m := carbonNumber.FindString(carbon)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}
