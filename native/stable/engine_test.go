package stable

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

func makeAddress(last byte) crypto.Address {
	raw := bytes.Repeat([]byte{0x00}, 20)
	raw[19] = last
	return crypto.NewAddress(crypto.StablePrefix, raw)
}

func coins(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), oneEther)
}

type mockCollateral struct {
	balances map[string]*big.Int
	failPull bool
	failPush bool
	onPull   func()
}

func newMockCollateral() *mockCollateral {
	return &mockCollateral{balances: make(map[string]*big.Int)}
}

func (m *mockCollateral) key(addr crypto.Address, symbol string) string {
	return addr.String() + "/" + symbol
}

func (m *mockCollateral) credit(addr crypto.Address, symbol string, amount *big.Int) {
	key := m.key(addr, symbol)
	current, ok := m.balances[key]
	if !ok {
		current = big.NewInt(0)
	}
	m.balances[key] = new(big.Int).Add(current, amount)
}

func (m *mockCollateral) balance(addr crypto.Address, symbol string) *big.Int {
	balance, ok := m.balances[m.key(addr, symbol)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockCollateral) move(from, to crypto.Address, symbol string, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	source := m.balance(from, symbol)
	if source.Cmp(amount) < 0 {
		return false
	}
	m.balances[m.key(from, symbol)] = source.Sub(source, amount)
	m.credit(to, symbol, amount)
	return true
}

func (m *mockCollateral) Pull(from, to crypto.Address, symbol string, amount *big.Int) bool {
	if m.onPull != nil {
		m.onPull()
	}
	if m.failPull {
		return false
	}
	return m.move(from, to, symbol, amount)
}

func (m *mockCollateral) Push(to, from crypto.Address, symbol string, amount *big.Int) bool {
	if m.failPush {
		return false
	}
	return m.move(from, to, symbol, amount)
}

type mockDebt struct {
	custody  crypto.Address
	balances map[string]*big.Int
	supply   *big.Int
	failMint bool
	failPull bool
}

func newMockDebt(custody crypto.Address) *mockDebt {
	return &mockDebt{custody: custody, balances: make(map[string]*big.Int), supply: big.NewInt(0)}
}

func (m *mockDebt) balance(addr crypto.Address) *big.Int {
	balance, ok := m.balances[addr.String()]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockDebt) Mint(to crypto.Address, amount *big.Int) bool {
	if m.failMint {
		return false
	}
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	m.balances[to.String()] = new(big.Int).Add(m.balance(to), amount)
	m.supply = new(big.Int).Add(m.supply, amount)
	return true
}

func (m *mockDebt) Burn(amount *big.Int) {
	held := m.balance(m.custody)
	if amount == nil || held.Cmp(amount) < 0 {
		return
	}
	m.balances[m.custody.String()] = held.Sub(held, amount)
	m.supply = new(big.Int).Sub(m.supply, amount)
}

func (m *mockDebt) Pull(from, to crypto.Address, amount *big.Int) bool {
	if m.failPull {
		return false
	}
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	source := m.balance(from)
	if source.Cmp(amount) < 0 {
		return false
	}
	m.balances[from.String()] = source.Sub(source, amount)
	m.balances[to.String()] = new(big.Int).Add(m.balance(to), amount)
	return true
}

type fixture struct {
	engine     *Engine
	oracle     *PostedOracle
	collateral *mockCollateral
	debt       *mockDebt
	state      *MemState
	custody    crypto.Address
	user       crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := NewMemState()
	ledger, err := NewLedger([]CollateralAsset{{Symbol: "WETH", Feed: "eth-usd"}}, state)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	oracle := NewPostedOracle(time.Hour)
	// 2000 USD, 8 decimal places.
	if err := oracle.Submit("eth-usd", big.NewInt(2000_00000000)); err != nil {
		t.Fatalf("submit price: %v", err)
	}
	custody := makeAddress(0xCC)
	user := makeAddress(0x01)
	collateral := newMockCollateral()
	collateral.credit(user, "WETH", coins(100))
	debt := newMockDebt(custody)
	engine, err := NewEngine(ledger, oracle, collateral, debt, custody, DefaultRiskParameters())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{
		engine:     engine,
		oracle:     oracle,
		collateral: collateral,
		debt:       debt,
		state:      state,
		custody:    custody,
		user:       user,
	}
}

func (f *fixture) mustDeposit(t *testing.T, amount *big.Int) {
	t.Helper()
	if err := f.engine.DepositCollateral(f.user, "WETH", amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) mustMint(t *testing.T, amount *big.Int) {
	t.Helper()
	if err := f.engine.MintDebt(f.user, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func TestDepositCollateralMovesFundsIntoCustody(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))

	if got := f.collateral.balance(f.custody, "WETH"); got.Cmp(coins(10)) != 0 {
		t.Fatalf("unexpected custody balance: %s", got)
	}
	if got := f.collateral.balance(f.user, "WETH"); got.Cmp(coins(90)) != 0 {
		t.Fatalf("unexpected user balance: %s", got)
	}
	balance, err := f.engine.CollateralBalance(f.user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Cmp(coins(10)) != 0 {
		t.Fatalf("unexpected ledger balance: %s", balance)
	}
	totals, err := f.engine.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Collateral["WETH"].Cmp(coins(10)) != 0 {
		t.Fatalf("unexpected total collateral: %s", totals.Collateral["WETH"])
	}
}

func TestDepositRejectsBadInputs(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.DepositCollateral(f.user, "WETH", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.DepositCollateral(f.user, "WETH", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if err := f.engine.DepositCollateral(f.user, "WETH", big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := f.engine.DepositCollateral(f.user, "DOGE", coins(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestDepositTransferFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.collateral.failPull = true

	err := f.engine.DepositCollateral(f.user, "WETH", coins(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	balance, err := f.engine.CollateralBalance(f.user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero ledger balance, got %s", balance)
	}
	if got := f.collateral.balance(f.user, "WETH"); got.Cmp(coins(100)) != 0 {
		t.Fatalf("user funds moved despite failed pull: %s", got)
	}
}

func TestMintAtSolvencyBoundary(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))

	// 10 units at 2000 USD with a 50% threshold supports exactly 10000 USD.
	f.mustMint(t, coins(10_000))

	factor, err := f.engine.HealthFactor(f.user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(oneEther) != 0 {
		t.Fatalf("expected factor exactly 1e18, got %s", factor)
	}
	if got := f.debt.balance(f.user); got.Cmp(coins(10_000)) != 0 {
		t.Fatalf("unexpected debt token balance: %s", got)
	}
	if got := f.debt.supply; got.Cmp(coins(10_000)) != 0 {
		t.Fatalf("unexpected debt supply: %s", got)
	}
}

func TestMintBeyondBoundaryRejected(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))

	over := new(big.Int).Add(coins(10_000), big.NewInt(1))
	err := f.engine.MintDebt(f.user, over)
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %T", err)
	}
	if hfErr.Factor.Cmp(oneEther) >= 0 {
		t.Fatalf("reported factor should be below 1e18, got %s", hfErr.Factor)
	}
	pos, err := f.engine.Position(f.user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Debt.Sign() != 0 {
		t.Fatalf("debt recorded despite rejection: %s", pos.Debt)
	}
	if f.debt.supply.Sign() != 0 {
		t.Fatalf("debt tokens minted despite rejection: %s", f.debt.supply)
	}
}

func TestMintWithoutCollateralRejected(t *testing.T) {
	f := newFixture(t)
	err := f.engine.MintDebt(f.user, coins(1))
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
}

func TestMintExternalFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.debt.failMint = true

	err := f.engine.MintDebt(f.user, coins(100))
	if !errors.Is(err, ErrMintFailed) {
		t.Fatalf("expected ErrMintFailed, got %v", err)
	}
	pos, err := f.engine.Position(f.user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Debt.Sign() != 0 {
		t.Fatalf("debt recorded despite failed mint: %s", pos.Debt)
	}
}

func TestStalePriceBlocksMint(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))

	base := time.Now()
	f.oracle.SetClock(func() time.Time { return base.Add(2 * time.Hour) })

	err := f.engine.MintDebt(f.user, coins(1))
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestRedeemKeepsSolvency(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.mustMint(t, coins(5_000))

	// Dropping to 4 units leaves 4000 USD of borrowing power against a
	// 5000 USD debt.
	err := f.engine.RedeemCollateral(f.user, "WETH", coins(6))
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	if got := f.collateral.balance(f.user, "WETH"); got.Cmp(coins(90)) != 0 {
		t.Fatalf("external funds moved despite revert: %s", got)
	}
	if got := f.collateral.balance(f.custody, "WETH"); got.Cmp(coins(10)) != 0 {
		t.Fatalf("custody drained despite revert: %s", got)
	}

	// 5 units keep the factor exactly at the boundary.
	if err := f.engine.RedeemCollateral(f.user, "WETH", coins(5)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	factor, err := f.engine.HealthFactor(f.user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(oneEther) != 0 {
		t.Fatalf("expected boundary factor, got %s", factor)
	}
}

func TestRedeemEverythingWhenDebtFree(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))

	if err := f.engine.RedeemCollateral(f.user, "WETH", coins(10)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := f.collateral.balance(f.user, "WETH"); got.Cmp(coins(100)) != 0 {
		t.Fatalf("unexpected user balance: %s", got)
	}
	factor, err := f.engine.HealthFactor(f.user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("expected debt-free sentinel, got %s", factor)
	}
}

func TestRedeemMoreThanDeposited(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	err := f.engine.RedeemCollateral(f.user, "WETH", coins(11))
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestBurnDebtReducesSupply(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.mustMint(t, coins(4_000))

	if err := f.engine.BurnDebt(f.user, coins(1_500)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	pos, err := f.engine.Position(f.user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Debt.Cmp(coins(2_500)) != 0 {
		t.Fatalf("unexpected remaining debt: %s", pos.Debt)
	}
	if f.debt.supply.Cmp(coins(2_500)) != 0 {
		t.Fatalf("unexpected debt supply: %s", f.debt.supply)
	}
	totals, err := f.engine.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalDebt.Cmp(coins(2_500)) != 0 {
		t.Fatalf("unexpected total debt: %s", totals.TotalDebt)
	}
}

func TestBurnMoreThanMinted(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.mustMint(t, coins(1_000))

	err := f.engine.BurnDebt(f.user, coins(1_001))
	if !errors.Is(err, ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
}

func TestDepositAndMintUnwindsOnFailedMint(t *testing.T) {
	f := newFixture(t)

	// 1 unit supports only 1000 USD; the oversized mint must unwind the
	// already committed deposit leg.
	err := f.engine.DepositAndMint(f.user, "WETH", coins(1), coins(2_000))
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	balance, err := f.engine.CollateralBalance(f.user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("deposit leg survived failed mint: %s", balance)
	}
	if got := f.collateral.balance(f.user, "WETH"); got.Cmp(coins(100)) != 0 {
		t.Fatalf("user funds not returned: %s", got)
	}
	if got := f.collateral.balance(f.custody, "WETH"); got.Sign() != 0 {
		t.Fatalf("custody kept funds: %s", got)
	}
}

func TestDepositAndMintHappyPath(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.DepositAndMint(f.user, "WETH", coins(10), coins(5_000)); err != nil {
		t.Fatalf("depositAndMint: %v", err)
	}
	debt, value, err := f.engine.AccountInfo(f.user)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if debt.Cmp(coins(5_000)) != 0 {
		t.Fatalf("unexpected debt: %s", debt)
	}
	if value.Cmp(coins(20_000)) != 0 {
		t.Fatalf("unexpected collateral value: %s", value)
	}
}

func TestRedeemAndBurnUnwindsOnFailedRedeem(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.mustMint(t, coins(10_000))

	// Burning 1000 USD frees exactly one unit of borrowing power; redeeming
	// two units overdraws it and must restore the burned debt.
	err := f.engine.RedeemAndBurn(f.user, "WETH", coins(2), coins(1_000))
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	pos, err := f.engine.Position(f.user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Debt.Cmp(coins(10_000)) != 0 {
		t.Fatalf("burned debt not restored: %s", pos.Debt)
	}
	if pos.CollateralBalance("WETH").Cmp(coins(10)) != 0 {
		t.Fatalf("collateral changed despite revert: %s", pos.CollateralBalance("WETH"))
	}
	if f.debt.balance(f.user).Cmp(coins(10_000)) != 0 {
		t.Fatalf("debt tokens not restored: %s", f.debt.balance(f.user))
	}
}

func TestRedeemAndBurnHappyPath(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, coins(10))
	f.mustMint(t, coins(10_000))

	if err := f.engine.RedeemAndBurn(f.user, "WETH", coins(1), coins(1_000)); err != nil {
		t.Fatalf("redeemAndBurn: %v", err)
	}
	pos, err := f.engine.Position(f.user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Debt.Cmp(coins(9_000)) != 0 {
		t.Fatalf("unexpected debt: %s", pos.Debt)
	}
	if pos.CollateralBalance("WETH").Cmp(coins(9)) != 0 {
		t.Fatalf("unexpected collateral: %s", pos.CollateralBalance("WETH"))
	}
}

func TestPausedEngineRejectsMutations(t *testing.T) {
	f := newFixture(t)
	pauses := nativecommon.NewPauseSwitch()
	pauses.SetPaused("stable", true)
	f.engine.SetPauses(pauses)

	err := f.engine.DepositCollateral(f.user, "WETH", coins(1))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.SetPaused("stable", false)
	if err := f.engine.DepositCollateral(f.user, "WETH", coins(1)); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestReentrantCallbackRejected(t *testing.T) {
	f := newFixture(t)
	var reentrant error
	f.collateral.onPull = func() {
		reentrant = f.engine.MintDebt(f.user, coins(1))
	}
	if err := f.engine.DepositCollateral(f.user, "WETH", coins(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !errors.Is(reentrant, nativecommon.ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall from callback, got %v", reentrant)
	}
}
