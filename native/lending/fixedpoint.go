package lending

import (
	"math/big"

	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
)

var (
	// expScale is the 1e18 mantissa shared by prices, rates, factors and indexes.
	expScale = mustUint("1000000000000000000")
	// maxCollateralFactor caps the borrowing power of any collateral at 90%.
	maxCollateralFactor = mustUint("900000000000000000")
	// maxBorrowRatePerBlock bounds the model output accepted during accrual.
	maxBorrowRatePerBlock = mustUint("5000000000000")
)

// ExpScale returns a copy of the 1e18 fixed-point scale.
func ExpScale() *uint256.Int { return new(uint256.Int).Set(expScale) }

// MaxCollateralFactor returns a copy of the collateral factor ceiling.
func MaxCollateralFactor() *uint256.Int { return new(uint256.Int).Set(maxCollateralFactor) }

func mustUint(value string) *uint256.Int {
	v, err := uint256.FromDecimal(value)
	if err != nil {
		panic("invalid uint256 constant")
	}
	return v
}

func zero() *uint256.Int { return new(uint256.Int) }

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, lendingerrors.ErrMathOverflow
	}
	return out, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, lendingerrors.ErrMathUnderflow
	}
	return out, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, lendingerrors.ErrMathOverflow
	}
	return out, nil
}

// mulDiv computes floor(x*y/d) with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, lendingerrors.ErrMathOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, lendingerrors.ErrMathOverflow
	}
	return out, nil
}

// mulDivUp computes ceil(x*y/d).
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	out, err := mulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return out, nil
	}
	return add(out, uint256.NewInt(1))
}

// mulExp multiplies a value by a 1e18-scaled mantissa, truncating.
func mulExp(a, mantissa *uint256.Int) (*uint256.Int, error) {
	return mulDiv(a, mantissa, expScale)
}

// divExp divides a value by a 1e18-scaled mantissa, truncating.
func divExp(a, mantissa *uint256.Int) (*uint256.Int, error) {
	return mulDiv(a, expScale, mantissa)
}

func minUint(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return clone(a)
	}
	return clone(b)
}

// signedDifference returns a-b as a signed big integer.
func signedDifference(a, b *uint256.Int) *big.Int {
	return new(big.Int).Sub(a.ToBig(), b.ToBig())
}
