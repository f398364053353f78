package stable

import (
	"math/big"

	"stablecore/crypto"
)

// MaxHealthFactor is the sentinel returned for debt-free accounts. A position
// with no minted debt cannot be undercollateralized, so its health is
// unbounded rather than a division by zero.
var MaxHealthFactor = func() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}()

// Health computes solvency ratios. The factor is a 1e18 fixed-point ratio of
// risk-adjusted collateral value to minted debt; 1e18 is the boundary and
// anything below it is liquidatable.
type Health struct {
	valuation *Valuation
	params    RiskParameters
}

func NewHealth(valuation *Valuation, params RiskParameters) (*Health, error) {
	if valuation == nil {
		return nil, errNilState
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Health{valuation: valuation, params: params}, nil
}

// factorFor computes the health factor for a position, staged or persisted.
// Transition checks pass the staged record so the factor always reflects the
// fully-updated ledger state.
func (h *Health) factorFor(pos *Position) (*big.Int, error) {
	pos.ensure()
	if pos.Debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor), nil
	}
	total, err := h.valuation.TotalCollateralValue(pos)
	if err != nil {
		return nil, err
	}
	adjusted, err := mulDiv(total, new(big.Int).SetUint64(h.params.LiquidationThresholdBps), basisPoints)
	if err != nil {
		return nil, err
	}
	return mulDiv(adjusted, oneEther, pos.Debt)
}

// FactorOf loads the account's persisted position and returns its factor.
func (h *Health) FactorOf(ledger *Ledger, addr crypto.Address) (*big.Int, error) {
	pos, err := ledger.Position(addr)
	if err != nil {
		return nil, err
	}
	return h.factorFor(pos)
}

// assertHealthy fails with a HealthFactorError when the position's factor is
// below the 1e18 boundary. Called after every mutation that can reduce
// collateral or increase debt.
func (h *Health) assertHealthy(pos *Position) error {
	factor, err := h.factorFor(pos)
	if err != nil {
		return err
	}
	if factor.Cmp(oneEther) < 0 {
		return &HealthFactorError{Address: pos.Address, Factor: factor}
	}
	return nil
}
