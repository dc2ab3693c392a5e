package lending

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/zap-engine/internal/domain"
)

const (
	// RateDenominator scales exchange rates: 10000 means one underlying unit
	// per wrapped unit.
	RateDenominator = 10000

	TagWrap   = "wrap"
	TagUnwrap = "unwrap"
)

// Ledger is what the protocol needs from the host ledger.
type Ledger interface {
	Transfer(ctx context.Context, from, to solana.PublicKey, q domain.Quantity, memo string) error
	Balance(account solana.PublicKey, asset domain.Asset) domain.Quantity
	Issue(account solana.PublicKey, q domain.Quantity) error
	Retire(account solana.PublicKey, q domain.Quantity) error
	Register(asset domain.Asset)
}

type market struct {
	underlying domain.Asset
	wrapped    domain.Asset
	rateBps    uint64
}

// Protocol is an in-process lending wrapper. Wrapping deposits the
// underlying into the protocol account and issues receipts; unwrapping
// retires receipts and pays the underlying back out of that account.
type Protocol struct {
	mu           sync.RWMutex
	account      solana.PublicKey
	ledger       Ledger
	byWrapped    map[domain.Asset]*market
	byUnderlying map[domain.Asset]*market
}

func NewProtocol(account solana.PublicKey, ledger Ledger) *Protocol {
	return &Protocol{
		account:      account,
		ledger:       ledger,
		byWrapped:    make(map[domain.Asset]*market),
		byUnderlying: make(map[domain.Asset]*market),
	}
}

func (p *Protocol) Account() solana.PublicKey {
	return p.account
}

// AddMarket lists a wrapped receipt for underlying. The receipt is issued by
// the protocol account and shares the underlying precision.
func (p *Protocol) AddMarket(underlying domain.Asset, wrappedCode string, rateBps uint64) (domain.Asset, error) {
	if rateBps == 0 {
		return domain.Asset{}, fmt.Errorf("%w: exchange rate must be positive", domain.ErrInvalidQuantity)
	}
	wrapped, err := domain.NewAsset(wrappedCode, underlying.Precision, p.account)
	if err != nil {
		return domain.Asset{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byUnderlying[underlying]; ok {
		return domain.Asset{}, fmt.Errorf("%w: %s already has a market", domain.ErrInvalidPair, underlying.Code)
	}
	// receipts share the protocol ledger, so a code names one market at any precision
	for w, m := range p.byWrapped {
		if w.Code == wrapped.Code {
			return domain.Asset{}, fmt.Errorf("%w: %s already wraps %s", domain.ErrInvalidPair, wrapped.Code, m.underlying.Code)
		}
	}
	m := &market{underlying: underlying, wrapped: wrapped, rateBps: rateBps}
	p.byWrapped[wrapped] = m
	p.byUnderlying[underlying] = m
	p.ledger.Register(wrapped)
	p.ledger.Register(underlying)
	return wrapped, nil
}

// SetRate updates the exchange rate of the market of wrapped.
func (p *Protocol) SetRate(wrapped domain.Asset, rateBps uint64) error {
	if rateBps == 0 {
		return fmt.Errorf("%w: exchange rate must be positive", domain.ErrInvalidQuantity)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.byWrapped[wrapped]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, wrapped.Code)
	}
	m.rateBps = rateBps
	return nil
}

func (p *Protocol) IsWrapped(asset domain.Asset) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byWrapped[asset]
	return ok
}

// WrappedCounterpart returns the receipt issued for underlying.
func (p *Protocol) WrappedCounterpart(underlying domain.Asset) (domain.Asset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byUnderlying[underlying]
	if !ok {
		return domain.Asset{}, false
	}
	return m.wrapped, true
}

// Underlying returns the asset behind wrapped.
func (p *Protocol) Underlying(wrapped domain.Asset) (domain.Asset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byWrapped[wrapped]
	if !ok {
		return domain.Asset{}, false
	}
	return m.underlying, true
}

// PreviewWrap returns the receipts issued for q of underlying.
func (p *Protocol) PreviewWrap(q domain.Quantity) (domain.Quantity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byUnderlying[q.Asset]
	if !ok {
		return domain.Quantity{}, fmt.Errorf("%w: no market for %s", domain.ErrAssetNotFound, q.Asset.Code)
	}
	return domain.NewQuantity(scale(q.Amount, RateDenominator, m.rateBps), m.wrapped), nil
}

// PreviewUnwrap returns the underlying paid for q of receipts.
func (p *Protocol) PreviewUnwrap(q domain.Quantity) (domain.Quantity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byWrapped[q.Asset]
	if !ok {
		return domain.Quantity{}, fmt.Errorf("%w: %s has no underlying", domain.ErrUnwrapUnavailable, q.Asset.Code)
	}
	return domain.NewQuantity(scale(q.Amount, m.rateBps, RateDenominator), m.underlying), nil
}

// Wrap moves q of underlying from owner into the protocol and issues
// receipts to owner.
func (p *Protocol) Wrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity) (domain.Quantity, error) {
	out, err := p.PreviewWrap(q)
	if err != nil {
		return domain.Quantity{}, err
	}
	if !out.IsPositive() {
		return domain.Quantity{}, fmt.Errorf("%w: wrapping %s issues nothing", domain.ErrInvalidQuantity, q)
	}
	if err := p.ledger.Transfer(ctx, owner, p.account, q, TagWrap); err != nil {
		return domain.Quantity{}, err
	}
	if err := p.ledger.Issue(owner, out); err != nil {
		return domain.Quantity{}, err
	}
	log.Debug().Str("owner", owner.String()).Str("in", q.String()).Str("out", out.String()).Msg("[lending] wrap")
	return out, nil
}

// Unwrap retires q of receipts held by owner and pays out the underlying.
func (p *Protocol) Unwrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity) (domain.Quantity, error) {
	out, err := p.PreviewUnwrap(q)
	if err != nil {
		return domain.Quantity{}, err
	}
	if held := p.ledger.Balance(owner, q.Asset); held.Amount < q.Amount {
		return domain.Quantity{}, fmt.Errorf("%w: holds %s, unwrap %s", domain.ErrUnwrapUnavailable, held, q)
	}
	if cash := p.ledger.Balance(p.account, out.Asset); cash.Amount < out.Amount {
		return domain.Quantity{}, fmt.Errorf("%w: protocol holds %s, owes %s", domain.ErrUnwrapUnavailable, cash, out)
	}
	if !out.IsPositive() {
		return domain.Quantity{}, fmt.Errorf("%w: unwrapping %s pays nothing", domain.ErrUnwrapUnavailable, q)
	}
	if err := p.ledger.Retire(owner, q); err != nil {
		return domain.Quantity{}, err
	}
	if err := p.ledger.Transfer(ctx, p.account, owner, out, TagUnwrap); err != nil {
		return domain.Quantity{}, err
	}
	log.Debug().Str("owner", owner.String()).Str("in", q.String()).Str("out", out.String()).Msg("[lending] unwrap")
	return out, nil
}

// Market is one listed wrapper market.
type Market struct {
	Underlying domain.Asset
	Wrapped    domain.Asset
	RateBps    uint64
}

// Markets lists every market ordered by wrapped code.
func (p *Protocol) Markets() []Market {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Market, 0, len(p.byWrapped))
	for _, m := range p.byWrapped {
		out = append(out, Market{Underlying: m.underlying, Wrapped: m.wrapped, RateBps: m.rateBps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wrapped.Code < out[j].Wrapped.Code })
	return out
}

// Checkpoint captures exchange rates and returns a function restoring them.
func (p *Protocol) Checkpoint() func() {
	p.mu.RLock()
	rates := make(map[*market]uint64, len(p.byWrapped))
	for _, m := range p.byWrapped {
		rates[m] = m.rateBps
	}
	p.mu.RUnlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for m, r := range rates {
			m.rateBps = r
		}
	}
}

// scale returns amount * num / den, floored.
func scale(amount int64, num, den uint64) int64 {
	v := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(num))
	v.Div(v, uint256.NewInt(den))
	if !v.IsUint64() || v.Uint64() > 1<<63-1 {
		return 0
	}
	return int64(v.Uint64())
}
