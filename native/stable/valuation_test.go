package stable

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func newValuationFixture(t *testing.T, assets []CollateralAsset) (*Valuation, *PostedOracle) {
	t.Helper()
	ledger, err := NewLedger(assets, NewMemState())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	oracle := NewPostedOracle(time.Hour)
	valuation, err := NewValuation(ledger, oracle)
	if err != nil {
		t.Fatalf("new valuation: %v", err)
	}
	return valuation, oracle
}

func TestValueOfKnownPrice(t *testing.T) {
	valuation, oracle := newValuationFixture(t, []CollateralAsset{{Symbol: "WETH", Feed: "eth-usd"}})
	if err := oracle.Submit("eth-usd", big.NewInt(2500_00000000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	value, err := valuation.ValueOf("WETH", coins(3))
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Cmp(coins(7_500)) != 0 {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestValueOfRejectsNegativeAmount(t *testing.T) {
	valuation, oracle := newValuationFixture(t, []CollateralAsset{{Symbol: "WETH", Feed: "eth-usd"}})
	if err := oracle.Submit("eth-usd", big.NewInt(2500_00000000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := valuation.ValueOf("WETH", big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRoundTripNeverExceedsOriginal(t *testing.T) {
	valuation, oracle := newValuationFixture(t, []CollateralAsset{{Symbol: "WETH", Feed: "eth-usd"}})
	// A price that does not divide the fixed-point base evenly.
	if err := oracle.Submit("eth-usd", big.NewInt(1234_56789012)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	amounts := []*big.Int{
		big.NewInt(1),
		big.NewInt(999_999_999),
		coins(7),
		mustParse(t, "123456789123456789123"),
	}
	for _, amount := range amounts {
		value, err := valuation.ValueOf("WETH", amount)
		if err != nil {
			t.Fatalf("value of %s: %v", amount, err)
		}
		back, err := valuation.QuantityFromValue("WETH", value)
		if err != nil {
			t.Fatalf("quantity of %s: %v", value, err)
		}
		if back.Cmp(amount) > 0 {
			t.Fatalf("round trip grew: %s -> %s -> %s", amount, value, back)
		}
	}
}

func TestStaleFeedFailsWholeValuation(t *testing.T) {
	valuation, oracle := newValuationFixture(t, []CollateralAsset{
		{Symbol: "WETH", Feed: "eth-usd"},
		{Symbol: "WBTC", Feed: "btc-usd"},
	})
	if err := oracle.Submit("eth-usd", big.NewInt(2000_00000000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// btc-usd never received a sample; even a position holding none of it
	// must fail rather than value partially.
	pos := &Position{Address: makeAddress(0x01), Collateral: map[string]*big.Int{"WETH": coins(1)}}
	if _, err := valuation.TotalCollateralValue(pos); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	if err := oracle.Submit("btc-usd", big.NewInt(60000_00000000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	total, err := valuation.TotalCollateralValue(pos)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(coins(2_000)) != 0 {
		t.Fatalf("unexpected total: %s", total)
	}
}

func TestUnknownSymbolRejected(t *testing.T) {
	valuation, _ := newValuationFixture(t, []CollateralAsset{{Symbol: "WETH", Feed: "eth-usd"}})
	if _, err := valuation.ValueOf("DOGE", coins(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}
