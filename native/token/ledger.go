package token

import (
	"math/big"
	"sync"

	"stablecore/crypto"
)

// Ledger is an in-process multi-asset value-transfer ledger. It implements
// the collateral collaborator contract the engine consumes: boolean results,
// no partial transfers, balances never negative.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[string]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[string]*big.Int)}
}

func (l *Ledger) assetBalances(symbol string) map[string]*big.Int {
	book, ok := l.balances[symbol]
	if !ok {
		book = make(map[string]*big.Int)
		l.balances[symbol] = book
	}
	return book
}

// Credit adds funds to an account. Used to seed genesis balances and by
// tests; transfers between accounts go through Pull/Push.
func (l *Ledger) Credit(addr crypto.Address, symbol string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book := l.assetBalances(symbol)
	current, ok := book[addr.String()]
	if !ok {
		current = big.NewInt(0)
	}
	book[addr.String()] = new(big.Int).Add(current, amount)
}

// BalanceOf returns the account's balance of one asset.
func (l *Ledger) BalanceOf(addr crypto.Address, symbol string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	book, ok := l.balances[symbol]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := book[addr.String()]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (l *Ledger) transfer(from, to crypto.Address, symbol string, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book := l.assetBalances(symbol)
	source, ok := book[from.String()]
	if !ok || source.Cmp(amount) < 0 {
		return false
	}
	dest, ok := book[to.String()]
	if !ok {
		dest = big.NewInt(0)
	}
	book[from.String()] = new(big.Int).Sub(source, amount)
	book[to.String()] = new(big.Int).Add(dest, amount)
	return true
}

// Pull moves amount from `from` into `to`'s custody.
func (l *Ledger) Pull(from, to crypto.Address, symbol string, amount *big.Int) bool {
	return l.transfer(from, to, symbol, amount)
}

// Push releases amount from `from`'s custody to `to`.
func (l *Ledger) Push(to, from crypto.Address, symbol string, amount *big.Int) bool {
	return l.transfer(from, to, symbol, amount)
}

// DebtToken is an in-process debt token ledger with global supply tracking.
// Burn destroys tokens already pulled into the configured custody account.
type DebtToken struct {
	mu       sync.RWMutex
	custody  crypto.Address
	balances map[string]*big.Int
	supply   *big.Int
}

func NewDebtToken(custody crypto.Address) *DebtToken {
	return &DebtToken{
		custody:  custody,
		balances: make(map[string]*big.Int),
		supply:   big.NewInt(0),
	}
}

func (d *DebtToken) Mint(to crypto.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.balances[to.String()]
	if !ok {
		current = big.NewInt(0)
	}
	d.balances[to.String()] = new(big.Int).Add(current, amount)
	d.supply = new(big.Int).Add(d.supply, amount)
	return true
}

// Burn destroys tokens held by the custody account. Callers pull tokens into
// custody first; burning more than custody holds is a no-op.
func (d *DebtToken) Burn(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	held, ok := d.balances[d.custody.String()]
	if !ok || held.Cmp(amount) < 0 {
		return
	}
	d.balances[d.custody.String()] = new(big.Int).Sub(held, amount)
	d.supply = new(big.Int).Sub(d.supply, amount)
}

func (d *DebtToken) Pull(from, to crypto.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	source, ok := d.balances[from.String()]
	if !ok || source.Cmp(amount) < 0 {
		return false
	}
	dest, ok := d.balances[to.String()]
	if !ok {
		dest = big.NewInt(0)
	}
	d.balances[from.String()] = new(big.Int).Sub(source, amount)
	d.balances[to.String()] = new(big.Int).Add(dest, amount)
	return true
}

// BalanceOf returns the account's debt token balance.
func (d *DebtToken) BalanceOf(addr crypto.Address) *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	balance, ok := d.balances[addr.String()]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// TotalSupply returns the outstanding debt token supply.
func (d *DebtToken) TotalSupply() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.supply)
}
