package stable

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"stablecore/crypto"
	"stablecore/storage"
)

// State is the persistence boundary for ledger records. GetPosition returns
// (nil, nil) for accounts that have never been touched. Commit applies every
// supplied record atomically: either the whole transition lands or none of it.
type State interface {
	GetPosition(addr crypto.Address) (*Position, error)
	Totals() (*SystemTotals, error)
	Commit(positions []*Position, totals *SystemTotals) error
}

// --- In-memory state (tests and ephemeral runs) ---

type MemState struct {
	mu        sync.RWMutex
	positions map[string]*Position
	totals    *SystemTotals
}

func NewMemState() *MemState {
	return &MemState{positions: make(map[string]*Position)}
}

func (s *MemState) GetPosition(addr crypto.Address) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[addr.String()]
	if !ok {
		return nil, nil
	}
	return pos.Clone(), nil
}

func (s *MemState) Totals() (*SystemTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.totals == nil {
		return nil, nil
	}
	return s.totals.Clone(), nil
}

func (s *MemState) Commit(positions []*Position, totals *SystemTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range positions {
		if pos == nil {
			continue
		}
		s.positions[pos.Address.String()] = pos.Clone()
	}
	if totals != nil {
		s.totals = totals.Clone()
	}
	return nil
}

// --- KV-backed state (daemon) ---

const (
	positionKeyPrefix = "stable/position/"
	totalsKey         = "stable/totals"
)

type KVState struct {
	db storage.Database
}

func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

type positionRecord struct {
	Address    string            `json:"address"`
	Collateral map[string]string `json:"collateral"`
	Debt       string            `json:"debt"`
}

type totalsRecord struct {
	TotalDebt  string            `json:"totalDebt"`
	Collateral map[string]string `json:"collateral"`
}

func (s *KVState) GetPosition(addr crypto.Address) (*Position, error) {
	raw, err := s.db.Get([]byte(positionKeyPrefix + addr.String()))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	var record positionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	return decodePosition(record)
}

func (s *KVState) Totals() (*SystemTotals, error) {
	raw, err := s.db.Get([]byte(totalsKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load totals: %w", err)
	}
	var record totalsRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}
	return decodeTotals(record)
}

func (s *KVState) Commit(positions []*Position, totals *SystemTotals) error {
	batch := new(storage.Batch)
	for _, pos := range positions {
		if pos == nil {
			continue
		}
		raw, err := json.Marshal(encodePosition(pos))
		if err != nil {
			return fmt.Errorf("encode position: %w", err)
		}
		batch.Put([]byte(positionKeyPrefix+pos.Address.String()), raw)
	}
	if totals != nil {
		raw, err := json.Marshal(encodeTotals(totals))
		if err != nil {
			return fmt.Errorf("encode totals: %w", err)
		}
		batch.Put([]byte(totalsKey), raw)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.db.Write(batch)
}

func encodePosition(pos *Position) positionRecord {
	record := positionRecord{
		Address:    pos.Address.String(),
		Collateral: make(map[string]string, len(pos.Collateral)),
		Debt:       "0",
	}
	for symbol, amount := range pos.Collateral {
		if amount != nil && amount.Sign() != 0 {
			record.Collateral[symbol] = amount.String()
		}
	}
	if pos.Debt != nil {
		record.Debt = pos.Debt.String()
	}
	return record
}

func decodePosition(record positionRecord) (*Position, error) {
	addr, err := crypto.DecodeAddress(record.Address)
	if err != nil {
		return nil, fmt.Errorf("decode position address: %w", err)
	}
	pos := &Position{Address: addr, Collateral: make(map[string]*big.Int, len(record.Collateral))}
	for symbol, value := range record.Collateral {
		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("decode collateral balance for %s", symbol)
		}
		pos.Collateral[symbol] = amount
	}
	debt, ok := new(big.Int).SetString(record.Debt, 10)
	if !ok {
		return nil, fmt.Errorf("decode minted debt for %s", record.Address)
	}
	pos.Debt = debt
	return pos, nil
}

func encodeTotals(totals *SystemTotals) totalsRecord {
	record := totalsRecord{TotalDebt: "0", Collateral: make(map[string]string, len(totals.Collateral))}
	if totals.TotalDebt != nil {
		record.TotalDebt = totals.TotalDebt.String()
	}
	for symbol, amount := range totals.Collateral {
		if amount != nil && amount.Sign() != 0 {
			record.Collateral[symbol] = amount.String()
		}
	}
	return record
}

func decodeTotals(record totalsRecord) (*SystemTotals, error) {
	totals := &SystemTotals{Collateral: make(map[string]*big.Int, len(record.Collateral))}
	debt, ok := new(big.Int).SetString(record.TotalDebt, 10)
	if !ok {
		return nil, fmt.Errorf("decode total debt")
	}
	totals.TotalDebt = debt
	for symbol, value := range record.Collateral {
		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("decode total collateral for %s", symbol)
		}
		totals.Collateral[symbol] = amount
	}
	return totals, nil
}
