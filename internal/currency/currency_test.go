package currency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	code, err := Normalize(" kes ")
	require.NoError(t, err)
	require.Equal(t, "KES", code)

	_, err = Normalize("ZZZ")
	require.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = Normalize("")
	require.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestStaticFallsBackToReporting(t *testing.T) {
	resolver, err := NewStatic("usd")
	require.NoError(t, err)
	require.Equal(t, "USD", resolver.Reporting())

	code, err := resolver.Normalize("")
	require.NoError(t, err)
	require.Equal(t, "USD", code)

	code, err = resolver.Normalize("eur")
	require.NoError(t, err)
	require.Equal(t, "EUR", code)
}

func TestScale(t *testing.T) {
	require.Equal(t, int32(2), Scale("USD"))
	require.Equal(t, int32(0), Scale("JPY"))
}
