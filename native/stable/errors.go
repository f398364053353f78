package stable

import (
	"errors"
	"fmt"
	"math/big"

	"stablecore/crypto"
)

var (
	ErrInvalidAmount           = errors.New("stable engine: amount must be positive")
	ErrUnsupportedAsset        = errors.New("stable engine: collateral asset not registered")
	ErrInsufficientCollateral  = errors.New("stable engine: insufficient collateral balance")
	ErrInsufficientDebt        = errors.New("stable engine: insufficient minted debt")
	ErrStalePrice              = errors.New("stable engine: stale oracle price")
	ErrTransferFailed          = errors.New("stable engine: token transfer failed")
	ErrMintFailed              = errors.New("stable engine: debt token mint failed")
	ErrHealthFactorBroken      = errors.New("stable engine: health factor below minimum")
	ErrAccountHealthy          = errors.New("stable engine: account not eligible for liquidation")
	ErrHealthFactorNotImproved = errors.New("stable engine: liquidation did not improve health factor")
	ErrArithmeticOverflow      = errors.New("stable engine: arithmetic overflow")

	errNilState  = errors.New("stable engine: state not configured")
	errNilOracle = errors.New("stable engine: oracle not configured")
)

// HealthFactorError reports a post-transition solvency violation along with
// the offending account and its computed factor.
type HealthFactorError struct {
	Address crypto.Address
	Factor  *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("health factor broken for %s: %s", e.Address, e.Factor)
}

func (e *HealthFactorError) Unwrap() error { return ErrHealthFactorBroken }

// AccountHealthyError is returned when liquidation targets a solvent account.
type AccountHealthyError struct {
	Address crypto.Address
	Factor  *big.Int
}

func (e *AccountHealthyError) Error() string {
	return fmt.Sprintf("account %s is healthy: %s", e.Address, e.Factor)
}

func (e *AccountHealthyError) Unwrap() error { return ErrAccountHealthy }

// NotImprovedError is returned when a liquidation would not strictly raise the
// borrower's health factor.
type NotImprovedError struct {
	Address  crypto.Address
	Starting *big.Int
	Ending   *big.Int
}

func (e *NotImprovedError) Error() string {
	return fmt.Sprintf("liquidating %s would not improve health: %s -> %s", e.Address, e.Starting, e.Ending)
}

func (e *NotImprovedError) Unwrap() error { return ErrHealthFactorNotImproved }
