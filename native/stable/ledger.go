package stable

import (
	"fmt"
	"math/big"

	"stablecore/crypto"
)

// Ledger is the sole mutator of collateral and debt balances. The asset
// registry is an immutable ordered list fixed at construction. Mutating
// helpers operate on staged Position copies; nothing reaches the State until
// the engine commits a completed transition.
type Ledger struct {
	assets []CollateralAsset
	feeds  map[string]string
	state  State
}

func NewLedger(assets []CollateralAsset, state State) (*Ledger, error) {
	if state == nil {
		return nil, errNilState
	}
	if err := validateAssets(assets); err != nil {
		return nil, fmt.Errorf("stable ledger: %w", err)
	}
	registry := make([]CollateralAsset, len(assets))
	copy(registry, assets)
	feeds := make(map[string]string, len(registry))
	for _, asset := range registry {
		feeds[asset.Symbol] = asset.Feed
	}
	return &Ledger{assets: registry, feeds: feeds, state: state}, nil
}

// Assets returns the registered collateral assets in registration order.
func (l *Ledger) Assets() []CollateralAsset {
	out := make([]CollateralAsset, len(l.assets))
	copy(out, l.assets)
	return out
}

// Supported reports whether the symbol names a registered collateral asset.
func (l *Ledger) Supported(symbol string) bool {
	_, ok := l.feeds[symbol]
	return ok
}

// Feed returns the oracle feed identifier configured for the asset.
func (l *Ledger) Feed(symbol string) (string, error) {
	feed, ok := l.feeds[symbol]
	if !ok {
		return "", ErrUnsupportedAsset
	}
	return feed, nil
}

// Position loads the account's record, returning a fresh zeroed record for
// accounts that have never transacted.
func (l *Ledger) Position(addr crypto.Address) (*Position, error) {
	pos, err := l.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	}
	pos.ensure()
	return pos, nil
}

// MintedDebt returns the account's outstanding minted debt.
func (l *Ledger) MintedDebt(addr crypto.Address) (*big.Int, error) {
	pos, err := l.Position(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pos.Debt), nil
}

// CollateralBalance returns the account's deposited quantity of one asset.
func (l *Ledger) CollateralBalance(addr crypto.Address, symbol string) (*big.Int, error) {
	if !l.Supported(symbol) {
		return nil, ErrUnsupportedAsset
	}
	pos, err := l.Position(addr)
	if err != nil {
		return nil, err
	}
	return pos.CollateralBalance(symbol), nil
}

// Totals returns the aggregate ledger totals.
func (l *Ledger) Totals() (*SystemTotals, error) {
	totals, err := l.state.Totals()
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = &SystemTotals{}
	}
	totals.ensure()
	return totals, nil
}

func (l *Ledger) commit(positions []*Position, totals *SystemTotals) error {
	return l.state.Commit(positions, totals)
}

// deposit credits collateral on a staged position, failing closed on overflow.
func (l *Ledger) deposit(pos *Position, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !l.Supported(symbol) {
		return ErrUnsupportedAsset
	}
	pos.ensure()
	updated, err := addChecked(pos.CollateralBalance(symbol), amount)
	if err != nil {
		return err
	}
	pos.Collateral[symbol] = updated
	return nil
}

// withdraw debits collateral on a staged position. Balances never go negative.
func (l *Ledger) withdraw(pos *Position, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !l.Supported(symbol) {
		return ErrUnsupportedAsset
	}
	pos.ensure()
	balance := pos.CollateralBalance(symbol)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	pos.Collateral[symbol] = balance.Sub(balance, amount)
	return nil
}

// mintDebt credits minted debt on a staged position.
func (l *Ledger) mintDebt(pos *Position, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos.ensure()
	updated, err := addChecked(pos.Debt, amount)
	if err != nil {
		return err
	}
	pos.Debt = updated
	return nil
}

// burnDebt debits minted debt on a staged position.
func (l *Ledger) burnDebt(pos *Position, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos.ensure()
	if pos.Debt.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	return nil
}
