package stable

import (
	"fmt"
	"math/big"
)

// Valuation converts collateral quantities to the common 18-decimal nominal
// unit and back using oracle prices. Both directions rescale the 8-decimal
// feed price identically, so a round trip differs from the input only by
// integer-division truncation and never exceeds it.
type Valuation struct {
	ledger *Ledger
	oracle Oracle
}

func NewValuation(ledger *Ledger, oracle Oracle) (*Valuation, error) {
	if ledger == nil {
		return nil, errNilState
	}
	if oracle == nil {
		return nil, errNilOracle
	}
	return &Valuation{ledger: ledger, oracle: oracle}, nil
}

func (v *Valuation) freshPrice(symbol string) (*big.Int, error) {
	feed, err := v.ledger.Feed(symbol)
	if err != nil {
		return nil, err
	}
	sample, err := v.oracle.GetPrice(feed)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", feed, err)
	}
	if sample.Stale || sample.Price == nil || sample.Price.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s: %w", feed, ErrStalePrice)
	}
	return sample.Price, nil
}

// ValueOf returns the nominal value of an asset quantity: amount * price,
// with the price lifted from 8 to 18 decimals.
func (v *Valuation) ValueOf(symbol string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := v.freshPrice(symbol)
	if err != nil {
		return nil, err
	}
	scaled, err := mulChecked(price, feedScale)
	if err != nil {
		return nil, err
	}
	return mulDiv(amount, scaled, oneEther)
}

// QuantityFromValue returns the asset quantity worth the given nominal value.
// The division floors, so converting a value obtained from ValueOf returns at
// most the original quantity.
func (v *Valuation) QuantityFromValue(symbol string, value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := v.freshPrice(symbol)
	if err != nil {
		return nil, err
	}
	scaled, err := mulChecked(price, feedScale)
	if err != nil {
		return nil, err
	}
	return mulDiv(value, oneEther, scaled)
}

// TotalCollateralValue sums the nominal value of every registered asset held
// by the position. One stale feed fails the whole valuation; there is no
// partial result.
func (v *Valuation) TotalCollateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range v.ledger.Assets() {
		value, err := v.ValueOf(asset.Symbol, pos.CollateralBalance(asset.Symbol))
		if err != nil {
			return nil, err
		}
		total, err = addChecked(total, value)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}
