package stable

import (
	"fmt"
	"math/big"
	"strings"

	"stablecore/crypto"
)

// CollateralAsset describes one registered collateral asset and the oracle
// feed that prices it. The registry is fixed at construction time.
type CollateralAsset struct {
	Symbol string
	Feed   string
}

// Position holds the deposited collateral quantities and the minted debt for
// a single account. Quantities are 18-decimal fixed point. A record is
// created on first touch and never deleted; balances simply return to zero.
type Position struct {
	Address    crypto.Address
	Collateral map[string]*big.Int
	Debt       *big.Int
}

func (p *Position) ensure() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, Collateral: make(map[string]*big.Int, len(p.Collateral))}
	for symbol, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[symbol] = new(big.Int).Set(amount)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	clone.ensure()
	return clone
}

// CollateralBalance returns a copy of the deposited quantity for one asset.
func (p *Position) CollateralBalance(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	balance, ok := p.Collateral[symbol]
	if !ok || balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// SystemTotals tracks aggregate minted debt and per-asset collateral held in
// custody. Maintained alongside every committed transition so the global
// books stay reconcilable with the external debt ledger's supply.
type SystemTotals struct {
	TotalDebt  *big.Int
	Collateral map[string]*big.Int
}

func (t *SystemTotals) ensure() {
	if t.TotalDebt == nil {
		t.TotalDebt = big.NewInt(0)
	}
	if t.Collateral == nil {
		t.Collateral = make(map[string]*big.Int)
	}
}

// Clone returns a deep copy of the totals.
func (t *SystemTotals) Clone() *SystemTotals {
	if t == nil {
		return nil
	}
	clone := &SystemTotals{Collateral: make(map[string]*big.Int, len(t.Collateral))}
	if t.TotalDebt != nil {
		clone.TotalDebt = new(big.Int).Set(t.TotalDebt)
	}
	for symbol, amount := range t.Collateral {
		if amount != nil {
			clone.Collateral[symbol] = new(big.Int).Set(amount)
		}
	}
	clone.ensure()
	return clone
}

// RiskParameters groups the safety limits governing minting and liquidation,
// expressed in basis points.
type RiskParameters struct {
	// LiquidationThresholdBps is the share of nominal collateral value that
	// counts toward solvency. 5000 means only half the collateral value backs
	// debt, i.e. a 200% minimum collateralization ratio.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the extra collateral awarded to a liquidator on
	// top of the debt-equivalent quantity.
	LiquidationBonusBps uint64
}

// DefaultRiskParameters returns the 50% threshold / 10% bonus defaults.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{LiquidationThresholdBps: 5000, LiquidationBonusBps: 1000}
}

// Validate rejects parameter sets the solvency math cannot support.
func (p RiskParameters) Validate() error {
	if p.LiquidationThresholdBps == 0 || p.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("liquidation threshold must be within (0, 10000] bps, got %d", p.LiquidationThresholdBps)
	}
	if p.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("liquidation bonus must be below 10000 bps, got %d", p.LiquidationBonusBps)
	}
	return nil
}

func validateAssets(assets []CollateralAsset) error {
	if len(assets) == 0 {
		return fmt.Errorf("at least one collateral asset required")
	}
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		symbol := strings.TrimSpace(asset.Symbol)
		if symbol == "" {
			return fmt.Errorf("collateral asset symbol must not be empty")
		}
		if strings.TrimSpace(asset.Feed) == "" {
			return fmt.Errorf("collateral asset %s has no price feed", symbol)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("collateral asset %s registered twice", symbol)
		}
		seen[symbol] = struct{}{}
	}
	return nil
}
