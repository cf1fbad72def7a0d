package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "rupee symbol", in: "₹350", want: "350"},
		{name: "grouping separator", in: "₹1,250", want: "1250"},
		{name: "decimal places", in: "₹12.50", want: "12.5"},
		{name: "abbreviation with dot", in: "Rs. 350", want: "350"},
		{name: "plain number", in: "99", want: "99"},
		{name: "second dot stops parsing", in: "1.2.3", want: "1.2"},
		{name: "trailing dot", in: "45.", want: "45"},
		{name: "no digits", in: "free", want: "0"},
		{name: "empty", in: "", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePrice(tt.in).String())
		})
	}
}

func TestPrice_Amount(t *testing.T) {
	assert.True(t, Price{}.Amount().IsZero())
	assert.Equal(t, "1250", TextPrice("₹1,250").Amount().String())
	assert.Equal(t, "12.5", NumberPrice(decimal.RequireFromString("12.5")).Amount().String())
}

func TestPrice_JSON(t *testing.T) {
	t.Run("keeps representation", func(t *testing.T) {
		for _, raw := range []string{`"₹350"`, `350`, `12.75`} {
			var p Price
			require.NoError(t, json.Unmarshal([]byte(raw), &p))
			out, err := json.Marshal(p)
			require.NoError(t, err)
			assert.Equal(t, raw, string(out))
		}
	})

	t.Run("numeric flag", func(t *testing.T) {
		var p Price
		require.NoError(t, json.Unmarshal([]byte(`350`), &p))
		assert.True(t, p.IsNumeric())

		require.NoError(t, json.Unmarshal([]byte(`"350"`), &p))
		assert.False(t, p.IsNumeric())
	})

	t.Run("wrong type is absent", func(t *testing.T) {
		for _, raw := range []string{`true`, `{"amount":3}`, `[1]`, `null`} {
			var p Price
			require.NoError(t, json.Unmarshal([]byte(raw), &p))
			assert.True(t, p.IsZero(), raw)
		}
	})
}

func TestCarbonKg(t *testing.T) {
	assert.Equal(t, "2.3", CarbonKg("2.3 kg CO₂e").String())
	assert.Equal(t, "5", CarbonKg("approx 5kg").String())
	assert.True(t, CarbonKg("low impact").IsZero())
	assert.Equal(t, "2.3 kg CO₂e", FormatCarbon(decimal.RequireFromString("2.3")))
}
