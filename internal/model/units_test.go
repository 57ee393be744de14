package model

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitsRoundTrip(t *testing.T) {
	values := []string{"0", "1", "7", "123456789", "1000000000000000000", "340282366920938463463374607431768211455"}
	for dec := uint8(0); dec <= 18; dec++ {
		for _, v := range values {
			units, ok := new(big.Int).SetString(v, 10)
			require.True(t, ok)
			amount := FromBaseUnits(units, dec)
			back := ToBaseUnits(amount, dec)
			assert.Equal(t, 0, units.Cmp(back), "decimals=%d value=%s got=%s", dec, v, back)
		}
	}
}

func TestToBaseUnitsTruncates(t *testing.T) {
	amount := decimal.RequireFromString("1.23456789")
	assert.Equal(t, "123456", ToBaseUnits(amount, 5).String())
	assert.Equal(t, "1", ToBaseUnits(amount, 0).String())
}

func TestFromBaseUnitsNil(t *testing.T) {
	assert.True(t, FromBaseUnits(nil, 6).IsZero())
}

func TestRescale(t *testing.T) {
	units := big.NewInt(1_500_000)
	assert.Equal(t, "1500000000000000000", Rescale(units, 6, 18).String())
	assert.Equal(t, "1500000", Rescale(Rescale(units, 6, 18), 18, 6).String())
}
