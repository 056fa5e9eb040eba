package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
)

// InterestModel is a kinked ("jump rate") borrow curve. All parameters are
// per-block rates scaled by 1e18 and are fixed at construction.
type InterestModel struct {
	// baseRatePerBlock is the borrow rate applied at zero utilisation.
	baseRatePerBlock *uint256.Int
	// multiplierPerBlock is the slope of the borrow rate below the kink.
	multiplierPerBlock *uint256.Int
	// jumpMultiplierPerBlock is the slope applied to utilisation above the kink.
	jumpMultiplierPerBlock *uint256.Int
	// kink is the utilisation at which the jump multiplier takes over.
	kink *uint256.Int
}

// InterestModelParams carries the constructor inputs of an InterestModel.
type InterestModelParams struct {
	BaseRatePerBlock       *uint256.Int
	MultiplierPerBlock     *uint256.Int
	JumpMultiplierPerBlock *uint256.Int
	Kink                   *uint256.Int
}

// NewInterestModel validates the parameters and returns an immutable model.
func NewInterestModel(params InterestModelParams) (*InterestModel, error) {
	kink := clone(params.Kink)
	if kink.Gt(expScale) {
		return nil, fmt.Errorf("%w: kink %s exceeds 1e18", lendingerrors.ErrInvalidRateModel, kink.Dec())
	}
	return &InterestModel{
		baseRatePerBlock:       clone(params.BaseRatePerBlock),
		multiplierPerBlock:     clone(params.MultiplierPerBlock),
		jumpMultiplierPerBlock: clone(params.JumpMultiplierPerBlock),
		kink:                   kink,
	}, nil
}

// DefaultInterestModel returns the curve used by the reference deployment:
// no base rate, ~75% APR slope up to 80% utilisation, then a steep jump.
func DefaultInterestModel() *InterestModel {
	model, err := NewInterestModel(DefaultInterestModelParams())
	if err != nil {
		panic(err)
	}
	return model
}

// DefaultInterestModelParams returns the parameters behind DefaultInterestModel.
func DefaultInterestModelParams() InterestModelParams {
	return InterestModelParams{
		BaseRatePerBlock:       zero(),
		MultiplierPerBlock:     uint256.NewInt(23_782_343_987),
		JumpMultiplierPerBlock: uint256.NewInt(518_455_098_934),
		Kink:                   mustUint("800000000000000000"),
	}
}

// Params returns a copy of the model parameters.
func (m *InterestModel) Params() InterestModelParams {
	if m == nil {
		return InterestModelParams{BaseRatePerBlock: zero(), MultiplierPerBlock: zero(), JumpMultiplierPerBlock: zero(), Kink: zero()}
	}
	return InterestModelParams{
		BaseRatePerBlock:       clone(m.baseRatePerBlock),
		MultiplierPerBlock:     clone(m.multiplierPerBlock),
		JumpMultiplierPerBlock: clone(m.jumpMultiplierPerBlock),
		Kink:                   clone(m.kink),
	}
}

// Utilization computes borrows / (cash + borrows - reserves) as a 1e18 mantissa.
// It is zero when nothing is borrowed or when the denominator is not positive.
func Utilization(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	if borrows == nil || borrows.IsZero() {
		return zero(), nil
	}
	gross, err := add(clone(cash), borrows)
	if err != nil {
		return nil, err
	}
	res := clone(reserves)
	if !gross.Gt(res) {
		return zero(), nil
	}
	denominator := new(uint256.Int).Sub(gross, res)
	return mulDiv(borrows, expScale, denominator)
}

// BorrowRate maps a utilisation mantissa to a per-block borrow rate.
func (m *InterestModel) BorrowRate(utilization *uint256.Int) (*uint256.Int, error) {
	if m == nil {
		return zero(), nil
	}
	u := clone(utilization)
	if u.Lt(m.kink) {
		slope, err := mulExp(u, m.multiplierPerBlock)
		if err != nil {
			return nil, err
		}
		return add(slope, m.baseRatePerBlock)
	}

	normal, err := mulExp(m.kink, m.multiplierPerBlock)
	if err != nil {
		return nil, err
	}
	normal, err = add(normal, m.baseRatePerBlock)
	if err != nil {
		return nil, err
	}
	excess := new(uint256.Int).Sub(u, m.kink)
	jump, err := mulExp(excess, m.jumpMultiplierPerBlock)
	if err != nil {
		return nil, err
	}
	return add(normal, jump)
}

// SupplyRate derives the per-block rate paid to suppliers after the reserve cut.
func (m *InterestModel) SupplyRate(utilization, reserveFactor *uint256.Int) (*uint256.Int, error) {
	if m == nil {
		return zero(), nil
	}
	rf := clone(reserveFactor)
	if rf.Gt(expScale) {
		return nil, lendingerrors.ErrReserveFactorTooHigh
	}
	borrowRate, err := m.BorrowRate(utilization)
	if err != nil {
		return nil, err
	}
	oneMinusReserve := new(uint256.Int).Sub(expScale, rf)
	rateToPool, err := mulExp(borrowRate, oneMinusReserve)
	if err != nil {
		return nil, err
	}
	return mulExp(clone(utilization), rateToPool)
}

// BorrowRateFor composes Utilization and BorrowRate over raw market balances.
func (m *InterestModel) BorrowRateFor(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	u, err := Utilization(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	return m.BorrowRate(u)
}

// SupplyRateFor composes Utilization and SupplyRate over raw market balances.
func (m *InterestModel) SupplyRateFor(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	u, err := Utilization(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	return m.SupplyRate(u, reserveFactor)
}
