package stable

import (
	"math/big"

	"stablecore/crypto"
)

// Liquidate lets a third party repay part of an insolvent account's debt in
// exchange for the debt-equivalent collateral quantity plus a bonus. The
// victim's health must strictly improve and the liquidator's own solvency
// must survive the side effects; otherwise the whole call reverts.
//
// When the position is barely collateralized the seizure plus bonus may be
// unable to improve health at all; such positions fail with
// ErrHealthFactorNotImproved rather than being silently patched.
func (e *Engine) Liquidate(liquidator, user crypto.Address, symbol string, debtToCover *big.Int) (*big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !e.ledger.Supported(symbol) {
		return nil, ErrUnsupportedAsset
	}

	pos, err := e.ledger.Position(user)
	if err != nil {
		return nil, err
	}
	startingHealth, err := e.health.factorFor(pos)
	if err != nil {
		return nil, err
	}
	if startingHealth.Cmp(oneEther) >= 0 {
		return nil, &AccountHealthyError{Address: user, Factor: startingHealth}
	}

	seized, err := e.valuation.QuantityFromValue(symbol, debtToCover)
	if err != nil {
		return nil, err
	}
	bonus, err := mulDiv(seized, new(big.Int).SetUint64(e.params.LiquidationBonusBps), basisPoints)
	if err != nil {
		return nil, err
	}
	totalSeized, err := addChecked(seized, bonus)
	if err != nil {
		return nil, err
	}

	staged := pos.Clone()
	if err := e.ledger.withdraw(staged, symbol, totalSeized); err != nil {
		return nil, err
	}
	if err := e.ledger.burnDebt(staged, debtToCover); err != nil {
		return nil, err
	}

	endingHealth, err := e.health.factorFor(staged)
	if err != nil {
		return nil, err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		return nil, &NotImprovedError{Address: user, Starting: startingHealth, Ending: endingHealth}
	}

	totals, err := e.liquidationTotals(symbol, totalSeized, debtToCover)
	if err != nil {
		return nil, err
	}

	// Seized collateral leaves custody for the liquidator's own account; it
	// is not re-deposited into their position.
	if !e.collateral.Push(liquidator, e.custody, symbol, totalSeized) {
		return nil, ErrTransferFailed
	}
	if !e.debt.Pull(liquidator, e.custody, debtToCover) {
		e.collateral.Pull(liquidator, e.custody, symbol, totalSeized)
		return nil, ErrTransferFailed
	}
	e.debt.Burn(debtToCover)

	// The liquidator may be a borrower themselves; their own position must
	// not end up below the boundary because of this call.
	liquidatorPos := staged
	if !liquidator.Equal(user) {
		liquidatorPos, err = e.ledger.Position(liquidator)
		if err != nil {
			e.unwindLiquidationTransfers(liquidator, symbol, totalSeized, debtToCover)
			return nil, err
		}
	}
	if err := e.health.assertHealthy(liquidatorPos); err != nil {
		e.unwindLiquidationTransfers(liquidator, symbol, totalSeized, debtToCover)
		return nil, err
	}

	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.unwindLiquidationTransfers(liquidator, symbol, totalSeized, debtToCover)
		return nil, err
	}
	return totalSeized, nil
}

func (e *Engine) liquidationTotals(symbol string, seized, burned *big.Int) (*SystemTotals, error) {
	totals, err := e.totalsWithCollateralDelta(symbol, new(big.Int).Neg(seized))
	if err != nil {
		return nil, err
	}
	if totals.TotalDebt.Cmp(burned) < 0 {
		return nil, ErrInsufficientDebt
	}
	totals.TotalDebt = new(big.Int).Sub(totals.TotalDebt, burned)
	return totals, nil
}

// unwindLiquidationTransfers reverts the external side effects of a failed
// liquidation: the burned debt tokens are re-minted to the liquidator and the
// seized collateral is pulled back into custody.
func (e *Engine) unwindLiquidationTransfers(liquidator crypto.Address, symbol string, seized, burned *big.Int) {
	e.debt.Mint(liquidator, burned)
	e.collateral.Pull(liquidator, e.custody, symbol, seized)
}
