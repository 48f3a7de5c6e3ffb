package delegation

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// scale is the implicit fixed-point scale used for authority and spend
// values throughout the core: 18 decimal places, matching the teacher
// corpus' wei-denominated amounts.
const scale = 18

// maxUint128 is the inclusive upper bound every Amount must respect. The
// data model fixes authority, ceilings, decay rates, spend caps, and ledger
// values at 128 bits.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// validateAmount reports whether v is a non-negative value that fits in 128
// bits. A nil value is treated as zero.
func validateAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("delegation: amount must be non-negative, got %s", v.String())
	}
	if v.Cmp(maxUint128) > 0 {
		return fmt.Errorf("delegation: amount exceeds 128-bit range: %s", v.String())
	}
	return nil
}

// cloneAmount returns a defensive copy of v, or zero when v is nil.
func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// saturatingSub returns max(0, a-b).
func saturatingSub(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	return diff
}

// clampToCeiling returns min(base+amount, ceiling) computed in a widened intermediate
// so that a caller-supplied boost amount near 2^128-1 cannot overflow the
// addition before the clamp is applied.
func clampToCeiling(base, amount, ceiling *big.Int) *big.Int {
	wide := new(big.Int).Add(base, amount)
	if wide.Cmp(ceiling) > 0 {
		return new(big.Int).Set(ceiling)
	}
	return wide
}

// widenedAccumulator sums 128-bit values into a 256-bit register so that the
// ledger's aggregate summary cannot overflow the way a 128-bit accumulator
// would on a long-lived, high-value chain. See spec note on Summary in
// SPEC_FULL.md.
type widenedAccumulator struct {
	total uint256.Int
}

func (w *widenedAccumulator) add(v *big.Int) {
	if v == nil {
		return
	}
	var delta uint256.Int
	delta.SetFromBig(v)
	w.total.Add(&w.total, &delta)
}

// bigInt returns the accumulated total as a *big.Int. Callers in need of a
// capped 128-bit value should check against maxUint128 themselves; the
// accumulator is intentionally unbounded.
func (w *widenedAccumulator) bigInt() *big.Int {
	return w.total.ToBig()
}
