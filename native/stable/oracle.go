package stable

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceSample is an oracle reading. Price is scaled to 8 decimals. Stale is
// explicit so every caller is forced to handle freshness; a stale reading is
// fatal to whichever valuation consumed it.
type PriceSample struct {
	Price     *big.Int
	Stale     bool
	UpdatedAt time.Time
}

// Oracle resolves the current price for a feed identifier.
type Oracle interface {
	GetPrice(feed string) (PriceSample, error)
}

var errUnknownFeed = errors.New("stable oracle: unknown feed")

type postedSample struct {
	price *big.Int
	at    time.Time
}

// PostedOracle stores submitted prices and reports a sample stale once it
// ages past the configured freshness window. A feed with no submission yet
// reports stale rather than absent so callers see one failure mode.
type PostedOracle struct {
	mu      sync.RWMutex
	now     func() time.Time
	maxAge  time.Duration
	samples map[string]postedSample
}

func NewPostedOracle(maxAge time.Duration) *PostedOracle {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &PostedOracle{
		now:     time.Now,
		maxAge:  maxAge,
		samples: make(map[string]postedSample),
	}
}

// SetClock overrides the time source. Used by tests to age samples.
func (o *PostedOracle) SetClock(now func() time.Time) {
	if o == nil || now == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// Submit records a fresh price for the feed. Prices must be positive.
func (o *PostedOracle) Submit(feed string, price *big.Int) error {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return errUnknownFeed
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidAmount
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples[feed] = postedSample{price: new(big.Int).Set(price), at: o.now()}
	return nil
}

func (o *PostedOracle) GetPrice(feed string) (PriceSample, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sample, ok := o.samples[strings.TrimSpace(feed)]
	if !ok {
		return PriceSample{Stale: true}, nil
	}
	age := o.now().Sub(sample.at)
	return PriceSample{
		Price:     new(big.Int).Set(sample.price),
		Stale:     age > o.maxAge,
		UpdatedAt: sample.at,
	}, nil
}
