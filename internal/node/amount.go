package node

import (
	"math"
	"strconv"
	"strings"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// DefaultDecimals is the number of decimal places of the native coin.
// One whole coin is 100 units.
const DefaultDecimals = 2

// ParseUnits parses a human-entered decimal amount into integer units.
// Input is trimmed; anything other than digits and a single decimal point is
// rejected. Fractional digits beyond decimals are rejected rather than
// silently truncated.
//
//nolint:gocognit,gocyclo // Decimal parsing requires sequential validation steps
func ParseUnits(amount string, decimals int) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, coinerr.ErrAmountRequired
	}

	invalid := coinerr.WithDetails(coinerr.ErrInvalidAmount, map[string]string{"amount": amount})

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return 0, invalid
	}

	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}
	if intPart == "" && decPart == "" {
		return 0, invalid
	}
	if intPart == "" {
		intPart = "0"
	}

	for _, c := range intPart + decPart {
		if c < '0' || c > '9' {
			return 0, invalid
		}
	}

	if len(decPart) > decimals {
		// Allow trailing zeros beyond precision ("1.500" with 2 decimals).
		extra := decPart[decimals:]
		if strings.Trim(extra, "0") != "" {
			return 0, invalid
		}
		decPart = decPart[:decimals]
	}
	for len(decPart) < decimals {
		decPart += "0"
	}

	intVal, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return 0, invalid
	}

	scale := pow10(decimals)
	if intVal > math.MaxUint64/scale {
		return 0, invalid
	}
	result := intVal * scale

	if decPart != "" {
		decVal, err := strconv.ParseUint(decPart, 10, 64)
		if err != nil {
			return 0, invalid
		}
		if result > math.MaxUint64-decVal {
			return 0, invalid
		}
		result += decVal
	}

	return result, nil
}

// FormatUnits converts integer units to a human-readable decimal string.
// Trailing zeros after the decimal point are removed.
func FormatUnits(units uint64, decimals int) string {
	str := strconv.FormatUint(units, 10)
	if decimals <= 0 {
		return str
	}

	for len(str) <= decimals {
		str = "0" + str
	}

	decimalPos := len(str) - decimals
	result := str[:decimalPos] + "." + str[decimalPos:]

	result = strings.TrimRight(result, "0")
	return strings.TrimSuffix(result, ".")
}

func pow10(n int) uint64 {
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
