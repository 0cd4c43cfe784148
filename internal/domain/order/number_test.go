package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFor(t *testing.T) {
	assert.Equal(t, "EDX-100001", NumberFor("EDX", 1))
	assert.Equal(t, "EDX-100042", NumberFor("EDX", 42))
	assert.Equal(t, "OTTO-1100000", NumberFor("OTTO", 1000000))
}

func TestBasketIDFromNumberInvertsNumberFor(t *testing.T) {
	for _, id := range []int64{1, 42, 99999, 123456789} {
		got, err := BasketIDFromNumber(NumberFor("EDX", id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestBasketIDFromNumberRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no dash":       "EDX100042",
		"trailing dash": "EDX-",
		"leading dash":  "-100042",
		"not numeric":   "EDX-10004x",
		"at offset":     "EDX-100000",
		"below offset":  "EDX-42",
		"negative":      "EDX--100042",
		"overflows int": "EDX-99999999999999999999",
	}
	for name, number := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BasketIDFromNumber(number)
			assert.ErrorIs(t, err, ErrInvalidNumber)
		})
	}
}

func TestBasketIDFromNumberIgnoresPrefix(t *testing.T) {
	got, err := BasketIDFromNumber("OTHER-SITE-100007")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}
