package common

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	SOLDecimals = 9 // SOL has 9 decimals (lamports)
	USDDecimals = 6 // USD values are tracked in micro-USD

	LamportsPerSOL = 1_000_000_000
)

// LamportsToSOL converts lamports to SOL string without float precision loss
func LamportsToSOL(lamports uint64) string {
	return formatWithDecimals(lamports, SOLDecimals)
}

// SOLToLamports converts SOL string to lamports without float precision loss
func SOLToLamports(sol string) (uint64, error) {
	return parseWithDecimals(sol, SOLDecimals)
}

// MicroToUSD converts micro-USD units to USD string without float precision loss
func MicroToUSD(micro uint64) string {
	return formatWithDecimals(micro, USDDecimals)
}

// USDToMicro converts USD string to micro-USD units without float precision loss
func USDToMicro(usd string) (uint64, error) {
	return parseWithDecimals(usd, USDDecimals)
}

// USDValueMicro computes the micro-USD value of a lamport amount given a
// price in micro-USD per SOL. Intermediate math runs over big.Int so large
// balances cannot overflow; the final value saturates at MaxUint64.
func USDValueMicro(lamports, priceMicroPerSOL uint64) uint64 {
	v := new(big.Int).Mul(
		new(big.Int).SetUint64(lamports),
		new(big.Int).SetUint64(priceMicroPerSOL),
	)
	v.Quo(v, big.NewInt(LamportsPerSOL))
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value uint64, decimals int) string {
	s := fmt.Sprintf("%d", value)

	// Pad with leading zeros if needed
	for len(s) <= decimals {
		s = "0" + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}

	parts := strings.Split(s, ".")

	if len(parts) == 1 {
		// No decimal point - shift left by padding zeros. ParseUint on the
		// padded string rejects values beyond uint64 instead of wrapping.
		return strconv.ParseUint(parts[0]+strings.Repeat("0", decimals), 10, 64)
	}

	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := parts[1]

	// Pad or truncate fractional part to exact decimals
	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	} else if len(frac) > decimals {
		frac = frac[:decimals]
	}

	// Combine and parse
	combined := whole + frac
	return strconv.ParseUint(combined, 10, 64)
}

// CompareSOLAmounts compares two SOL decimal string amounts without float precision loss.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareSOLAmounts(a, b string) (int, error) {
	aVal, err := parseWithDecimals(a, SOLDecimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := parseWithDecimals(b, SOLDecimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	if aVal < bVal {
		return -1, nil
	}
	if aVal > bVal {
		return 1, nil
	}
	return 0, nil
}
