// Package yield computes display-only simple-interest projections.
// Authoritative yield always comes from the on-chain vault program; nothing
// here feeds back into a withdrawable amount.
package yield

import (
	"math"
	"math/big"
	"time"
)

// SecondsPerYear is the interest accrual basis (365-day year).
const SecondsPerYear = 365 * 24 * 3600

// BpsDenominator converts basis points to a rate (500 bps = 5%).
const BpsDenominator = 10_000

// Projected returns the simple-interest yield in lamports accrued on
// principalLamports over elapsed at annualRateBps:
//
//	principal × rate/10000 × elapsedSeconds/secondsPerYear
//
// Integer arithmetic only; no floating point. Results beyond uint64 saturate
// at MaxUint64 instead of wrapping. Negative elapsed yields zero.
func Projected(principalLamports uint64, elapsed time.Duration, annualRateBps uint32) uint64 {
	seconds := int64(elapsed / time.Second)
	if seconds <= 0 || principalLamports == 0 || annualRateBps == 0 {
		return 0
	}

	v := new(big.Int).SetUint64(principalLamports)
	v.Mul(v, big.NewInt(int64(annualRateBps)))
	v.Mul(v, big.NewInt(seconds))
	v.Quo(v, big.NewInt(BpsDenominator*SecondsPerYear))

	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
