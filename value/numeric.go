package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
	"github.com/shopspring/decimal"
)

// NumericFromDecimal adapts a shopspring/decimal value into the pgtype
// Numeric wrapper so it can flow through the text/binary encoders already
// registered on a pgtype.ConnInfo for OID Numeric.
func NumericFromDecimal(d decimal.Decimal) *shopspring.Numeric {
	n := &shopspring.Numeric{}
	// Numeric.Set accepts anything decimal.NewFromString itself accepts;
	// round-tripping through the string form keeps the exact scale shopspring
	// computed rather than whatever float64 would introduce.
	_ = n.Set(d.String())
	return n
}

// DecimalFromNumeric recovers a decimal.Decimal from a decoded Numeric,
// rejecting NaN since the engine's NUMERIC columns do not admit it.
func DecimalFromNumeric(n *shopspring.Numeric) (decimal.Decimal, error) {
	if n.Status != pgtype.Present {
		return decimal.Decimal{}, fmt.Errorf("numeric value is not present")
	}

	return decimal.NewFromString(n.Decimal.String())
}

// NumericBinary is the packed base-10000 wire representation PostgreSQL
// uses for NUMERIC's binary form: a header of (ndigits, weight, sign,
// dscale) followed by ndigits big-endian uint16 digits, each in [0, 9999].
type NumericBinary struct {
	Digits []int16
	Weight int16
	Sign   uint16
	Dscale uint16
}

// Sign values used in the NUMERIC binary header.
const (
	numericPositive = 0x0000
	numericNegative = 0x4000
	numericNaN      = 0xC000
)

// EncodeNumericBinary packs a decimal.Decimal into its base-10000 digit
// groups. dscale is the display scale to advertise on the wire; decoders
// reject a dscale that exceeds the destination column's type modifier.
//
// It works from the fixed-point decimal string rather than the decimal's
// internal coefficient/exponent pair so the digit grouping matches
// PostgreSQL's own description of the format exactly: groups of four
// decimal digits counted outward from the decimal point.
func EncodeNumericBinary(d decimal.Decimal, dscale uint16) NumericBinary {
	sign := uint16(numericPositive)
	if d.Sign() < 0 {
		sign = numericNegative
		d = d.Neg()
	}

	fixed := d.StringFixed(int32(dscale))
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	intPart = strings.TrimLeft(intPart, "0")

	if intPart == "" && (fracPart == "" || isAllZero(fracPart)) {
		return NumericBinary{Sign: sign, Dscale: dscale}
	}

	// Pad so both halves split evenly into 4-digit groups, aligned on the
	// decimal point.
	for len(intPart)%4 != 0 {
		intPart = "0" + intPart
	}
	for len(fracPart)%4 != 0 {
		fracPart = fracPart + "0"
	}

	weight := int16(len(intPart)/4 - 1)
	groups := intPart + fracPart

	digits := make([]int16, 0, len(groups)/4)
	for i := 0; i < len(groups); i += 4 {
		n, _ := strconv.Atoi(groups[i : i+4])
		digits = append(digits, int16(n))
	}

	// Trailing all-zero groups beyond the integer part carry no
	// information and are dropped, matching PostgreSQL's own encoder.
	for len(digits) > 0 && digits[len(digits)-1] == 0 && len(digits)*4 > len(intPart) {
		digits = digits[:len(digits)-1]
	}

	return NumericBinary{Digits: digits, Weight: weight, Sign: sign, Dscale: dscale}
}

func isAllZero(s string) bool {
	for _, r := range s {
		if r != '0' {
			return false
		}
	}
	return true
}
