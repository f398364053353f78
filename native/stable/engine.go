package stable

import (
	"math/big"

	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

const moduleName = "stable"

// CollateralLedger is the external value-transfer ledger holding the actual
// collateral assets. Boolean results, no exceptions assumed; the engine
// translates a false into ErrTransferFailed and rolls the transition back.
type CollateralLedger interface {
	// Pull moves amount of the asset from `from` into `to`'s custody.
	Pull(from, to crypto.Address, symbol string, amount *big.Int) bool
	// Push releases amount of the asset from `from`'s custody to `to`.
	Push(to, from crypto.Address, symbol string, amount *big.Int) bool
}

// DebtLedger is the external debt token ledger. Burn destroys tokens already
// pulled into the engine's custody account.
type DebtLedger interface {
	Mint(to crypto.Address, amount *big.Int) bool
	Burn(amount *big.Int)
	Pull(from, to crypto.Address, amount *big.Int) bool
}

// Engine implements the user-facing state transitions. Every operation is
// all-or-nothing: ledger mutations are staged on position copies, external
// transfers that cannot be kept are compensated, and the staged records are
// committed in a single atomic write at the end.
type Engine struct {
	ledger     *Ledger
	valuation  *Valuation
	health     *Health
	collateral CollateralLedger
	debt       DebtLedger
	custody    crypto.Address
	params     RiskParameters
	pauses     nativecommon.PauseView
	latch      nativecommon.CallLatch
}

func NewEngine(ledger *Ledger, oracle Oracle, collateral CollateralLedger, debt DebtLedger, custody crypto.Address, params RiskParameters) (*Engine, error) {
	if ledger == nil {
		return nil, errNilState
	}
	valuation, err := NewValuation(ledger, oracle)
	if err != nil {
		return nil, err
	}
	health, err := NewHealth(valuation, params)
	if err != nil {
		return nil, err
	}
	return &Engine{
		ledger:     ledger,
		valuation:  valuation,
		health:     health,
		collateral: collateral,
		debt:       debt,
		custody:    custody,
		params:     params,
	}, nil
}

// SetPauses wires the operator pause switch consulted by every mutating
// entry point.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// enter acquires the single-flight latch and checks the pause switch. The
// latch also rejects reentrant invocation from inside an in-flight external
// transfer.
func (e *Engine) enter() (func(), error) {
	release, err := e.latch.Enter()
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// DepositCollateral credits the user's position and pulls the asset into
// custody. A failed pull leaves the ledger untouched.
func (e *Engine) DepositCollateral(user crypto.Address, symbol string, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	return e.depositCollateral(user, symbol, amount)
}

func (e *Engine) depositCollateral(user crypto.Address, symbol string, amount *big.Int) error {
	pos, err := e.ledger.Position(user)
	if err != nil {
		return err
	}
	staged := pos.Clone()
	if err := e.ledger.deposit(staged, symbol, amount); err != nil {
		return err
	}
	totals, err := e.totalsWithCollateralDelta(symbol, amount)
	if err != nil {
		return err
	}
	if !e.collateral.Pull(user, e.custody, symbol, amount) {
		return ErrTransferFailed
	}
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		// Custody must not keep funds the ledger never credited.
		e.collateral.Push(user, e.custody, symbol, amount)
		return err
	}
	return nil
}

// MintDebt credits minted debt, verifies the resulting position stays above
// the solvency boundary, then mints on the external debt ledger.
func (e *Engine) MintDebt(user crypto.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	return e.mintDebt(user, amount)
}

func (e *Engine) mintDebt(user crypto.Address, amount *big.Int) error {
	pos, err := e.ledger.Position(user)
	if err != nil {
		return err
	}
	staged := pos.Clone()
	if err := e.ledger.mintDebt(staged, amount); err != nil {
		return err
	}
	if err := e.health.assertHealthy(staged); err != nil {
		return err
	}
	totals, err := e.totalsWithDebtDelta(amount, false)
	if err != nil {
		return err
	}
	if !e.debt.Mint(user, amount) {
		return ErrMintFailed
	}
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.reclaimDebtTokens(user, amount)
		return err
	}
	return nil
}

// RedeemCollateral debits the user's position and releases the asset from
// custody. Redemption that would break the user's own solvency is reverted as
// one unit, including the external transfer.
func (e *Engine) RedeemCollateral(user crypto.Address, symbol string, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	return e.redeemCollateral(user, symbol, amount)
}

func (e *Engine) redeemCollateral(user crypto.Address, symbol string, amount *big.Int) error {
	pos, err := e.ledger.Position(user)
	if err != nil {
		return err
	}
	staged := pos.Clone()
	if err := e.ledger.withdraw(staged, symbol, amount); err != nil {
		return err
	}
	totals, err := e.totalsWithCollateralDelta(symbol, new(big.Int).Neg(amount))
	if err != nil {
		return err
	}
	if !e.collateral.Push(user, e.custody, symbol, amount) {
		return ErrTransferFailed
	}
	if err := e.health.assertHealthy(staged); err != nil {
		if !e.collateral.Pull(user, e.custody, symbol, amount) {
			return ErrTransferFailed
		}
		return err
	}
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.collateral.Pull(user, e.custody, symbol, amount)
		return err
	}
	return nil
}

// BurnDebt debits minted debt, pulling the debt tokens from the user and
// destroying them.
func (e *Engine) BurnDebt(user crypto.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	return e.burnDebtFrom(user, user, amount)
}

// burnDebtFrom reduces onBehalfOf's minted debt using tokens pulled from the
// payer. Liquidation reuses this with payer = liquidator.
func (e *Engine) burnDebtFrom(onBehalfOf, payer crypto.Address, amount *big.Int) error {
	pos, err := e.ledger.Position(onBehalfOf)
	if err != nil {
		return err
	}
	staged := pos.Clone()
	if err := e.ledger.burnDebt(staged, amount); err != nil {
		return err
	}
	totals, err := e.totalsWithDebtDelta(amount, true)
	if err != nil {
		return err
	}
	if !e.debt.Pull(payer, e.custody, amount) {
		return ErrTransferFailed
	}
	e.debt.Burn(amount)
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.debt.Mint(payer, amount)
		return err
	}
	return nil
}

// DepositAndMint composes deposit then mint. A failed mint unwinds the
// deposit so the pair applies as one transition.
func (e *Engine) DepositAndMint(user crypto.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.depositCollateral(user, symbol, collateralAmount); err != nil {
		return err
	}
	if err := e.mintDebt(user, debtAmount); err != nil {
		e.unwindDeposit(user, symbol, collateralAmount)
		return err
	}
	return nil
}

// RedeemAndBurn composes burn then redeem. A failed redemption re-mints the
// burned debt so the pair applies as one transition.
func (e *Engine) RedeemAndBurn(user crypto.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.burnDebtFrom(user, user, debtAmount); err != nil {
		return err
	}
	if err := e.redeemCollateral(user, symbol, collateralAmount); err != nil {
		e.unwindBurn(user, debtAmount)
		return err
	}
	return nil
}

// unwindDeposit reverts a committed deposit leg: debit the staged credit and
// push the asset back out of custody.
func (e *Engine) unwindDeposit(user crypto.Address, symbol string, amount *big.Int) {
	pos, err := e.ledger.Position(user)
	if err != nil {
		return
	}
	staged := pos.Clone()
	if err := e.ledger.withdraw(staged, symbol, amount); err != nil {
		return
	}
	totals, err := e.totalsWithCollateralDelta(symbol, new(big.Int).Neg(amount))
	if err != nil {
		return
	}
	if !e.collateral.Push(user, e.custody, symbol, amount) {
		return
	}
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.collateral.Pull(user, e.custody, symbol, amount)
	}
}

// unwindBurn reverts a committed burn leg: re-credit the debt and mint the
// tokens back to the user.
func (e *Engine) unwindBurn(user crypto.Address, amount *big.Int) {
	pos, err := e.ledger.Position(user)
	if err != nil {
		return
	}
	staged := pos.Clone()
	if err := e.ledger.mintDebt(staged, amount); err != nil {
		return
	}
	totals, err := e.totalsWithDebtDelta(amount, false)
	if err != nil {
		return
	}
	if !e.debt.Mint(user, amount) {
		return
	}
	if err := e.ledger.commit([]*Position{staged}, totals); err != nil {
		e.reclaimDebtTokens(user, amount)
	}
}

func (e *Engine) reclaimDebtTokens(from crypto.Address, amount *big.Int) {
	if e.debt.Pull(from, e.custody, amount) {
		e.debt.Burn(amount)
	}
}

func (e *Engine) totalsWithCollateralDelta(symbol string, delta *big.Int) (*SystemTotals, error) {
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	current, ok := totals.Collateral[symbol]
	if !ok || current == nil {
		current = big.NewInt(0)
	}
	if delta.Sign() >= 0 {
		updated, err := addChecked(current, delta)
		if err != nil {
			return nil, err
		}
		totals.Collateral[symbol] = updated
		return totals, nil
	}
	magnitude := new(big.Int).Neg(delta)
	if current.Cmp(magnitude) < 0 {
		return nil, ErrInsufficientCollateral
	}
	totals.Collateral[symbol] = new(big.Int).Sub(current, magnitude)
	return totals, nil
}

func (e *Engine) totalsWithDebtDelta(amount *big.Int, burn bool) (*SystemTotals, error) {
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	if burn {
		if totals.TotalDebt.Cmp(amount) < 0 {
			return nil, ErrInsufficientDebt
		}
		totals.TotalDebt = new(big.Int).Sub(totals.TotalDebt, amount)
		return totals, nil
	}
	updated, err := addChecked(totals.TotalDebt, amount)
	if err != nil {
		return nil, err
	}
	totals.TotalDebt = updated
	return totals, nil
}

// --- Read-only operations ---

// Assets lists the registered collateral assets.
func (e *Engine) Assets() []CollateralAsset {
	return e.ledger.Assets()
}

// Feed returns the oracle feed configured for an asset.
func (e *Engine) Feed(symbol string) (string, error) {
	return e.ledger.Feed(symbol)
}

// Position returns a copy of the account's ledger record.
func (e *Engine) Position(addr crypto.Address) (*Position, error) {
	return e.ledger.Position(addr)
}

// CollateralBalance returns the account's deposited quantity of one asset.
func (e *Engine) CollateralBalance(addr crypto.Address, symbol string) (*big.Int, error) {
	return e.ledger.CollateralBalance(addr, symbol)
}

// HealthFactor returns the account's current solvency ratio.
func (e *Engine) HealthFactor(addr crypto.Address) (*big.Int, error) {
	return e.health.FactorOf(e.ledger, addr)
}

// AccountInfo returns the account's total minted debt and total collateral
// value in the nominal unit.
func (e *Engine) AccountInfo(addr crypto.Address) (debt, collateralValue *big.Int, err error) {
	pos, err := e.ledger.Position(addr)
	if err != nil {
		return nil, nil, err
	}
	value, err := e.valuation.TotalCollateralValue(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.Debt), value, nil
}

// QuoteValue converts an asset quantity to its nominal value.
func (e *Engine) QuoteValue(symbol string, amount *big.Int) (*big.Int, error) {
	return e.valuation.ValueOf(symbol, amount)
}

// QuoteQuantity converts a nominal value to the equivalent asset quantity.
func (e *Engine) QuoteQuantity(symbol string, value *big.Int) (*big.Int, error) {
	return e.valuation.QuantityFromValue(symbol, value)
}

// Totals returns the aggregate minted debt and custody collateral.
func (e *Engine) Totals() (*SystemTotals, error) {
	return e.ledger.Totals()
}
