package stable

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	basisPoints = big.NewInt(10_000)
	oneEther    = mustBigInt("1000000000000000000")
	// Oracle feeds report 8-decimal prices; feedScale lifts them to the
	// 18-decimal unit used for amounts and nominal values.
	feedScale = mustBigInt("10000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func toU256(x *big.Int) (*uint256.Int, error) {
	if x == nil || x.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}

// mulDiv computes a*b/den over 256-bit integers, failing closed when the
// intermediate product would not fit. The division truncates.
func mulDiv(a, b, den *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	ud, err := toU256(den)
	if err != nil {
		return nil, err
	}
	if ud.IsZero() {
		return nil, ErrArithmeticOverflow
	}
	var product uint256.Int
	if _, overflow := product.MulOverflow(ua, ub); overflow {
		return nil, ErrArithmeticOverflow
	}
	product.Div(&product, ud)
	return product.ToBig(), nil
}

// mulChecked multiplies two non-negative amounts, failing closed past 256 bits.
func mulChecked(a, b *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	var product uint256.Int
	if _, overflow := product.MulOverflow(ua, ub); overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.ToBig(), nil
}

// addChecked sums two non-negative amounts, failing closed past 256 bits.
func addChecked(a, b *big.Int) (*big.Int, error) {
	ua, err := toU256(a)
	if err != nil {
		return nil, err
	}
	ub, err := toU256(b)
	if err != nil {
		return nil, err
	}
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(ua, ub); overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum.ToBig(), nil
}
