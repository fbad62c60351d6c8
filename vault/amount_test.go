package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100_000_000},
		{"100.50", 100_500_000},
		{"0.000001", 1},
		{"0.0000019", 1},
		{".5", 500_000},
		{"1,000.25", 1_000_250_000},
		{"-3", -3_000_000},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, big.NewInt(tc.want).String(), got.String(), tc.in)
	}

	for _, bad := range []string{"", "abc", "1.2.3"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "100.000000", FormatAmount(big.NewInt(100_000_000)))
	assert.Equal(t, "52.000000", FormatAmount(big.NewInt(52_000_000)))
	assert.Equal(t, "0.000001", FormatAmount(big.NewInt(1)))
	assert.Equal(t, "-1.500000", FormatAmount(big.NewInt(-1_500_000)))
	assert.Equal(t, "0.000000", FormatAmount(nil))
}

func TestFormatDisplay(t *testing.T) {
	assert.Equal(t, "1,000", FormatDisplay(1000))
	assert.Equal(t, "1,000.5", FormatDisplay(1000.5))
	assert.Equal(t, "1,234,567.89", FormatDisplay(1234567.891))
	assert.Equal(t, "0", FormatDisplay(0))
	assert.Equal(t, "-12.25", FormatDisplay(-12.25))
}

func TestDisplayRoundTrip(t *testing.T) {
	assert.Equal(t, 100.5, ToDisplay(big.NewInt(100_500_000)))
	assert.Equal(t, 0.0, ToDisplay(nil))
}

func TestFraction(t *testing.T) {
	base := big.NewInt(500_000_000)
	assert.Equal(t, "125000000", Fraction(base, 25).String())
	assert.Equal(t, "500000000", Fraction(base, 100).String())
	assert.Equal(t, "0", Fraction(nil, 50).String())
	assert.Equal(t, "0", Fraction(base, 0).String())
	// rounds down
	assert.Equal(t, "0", Fraction(big.NewInt(3), 25).String())
}

func TestFirstLine(t *testing.T) {
	err := errors.New("User rejected the request.\n\nRequest Arguments:\n  from: 0xabc")
	assert.Equal(t, "User rejected the request.", FirstLine(err))
	assert.Equal(t, "", FirstLine(nil))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("mint")
	require.NoError(t, err)
	assert.Equal(t, KindMint, k)
	assert.True(t, k.NeedsApproval())
	assert.Equal(t, UnitShares, k.InputUnit())
	assert.Equal(t, UnitAssets, k.OutputUnit())

	assert.False(t, KindWithdraw.NeedsApproval())
	assert.False(t, KindRedeem.NeedsApproval())
	assert.Equal(t, MethodPreviewWithdraw, KindWithdraw.PreviewMethod())

	_, err = ParseKind("stake")
	assert.Error(t, err)
}
