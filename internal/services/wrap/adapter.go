package wrap

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

// Protocol is the lending wrapper the adapter delegates to.
type Protocol interface {
	IsWrapped(asset domain.Asset) bool
	WrappedCounterpart(underlying domain.Asset) (domain.Asset, bool)
	Underlying(wrapped domain.Asset) (domain.Asset, bool)
	PreviewWrap(q domain.Quantity) (domain.Quantity, error)
	PreviewUnwrap(q domain.Quantity) (domain.Quantity, error)
	Wrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity) (domain.Quantity, error)
	Unwrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity) (domain.Quantity, error)
}

// BalanceReader is the ledger balance query.
type BalanceReader interface {
	Balance(account solana.PublicKey, asset domain.Asset) domain.Quantity
}

// Adapter converts assets to and from lending receipts. A nil protocol
// means no asset is ever wrapped.
type Adapter struct {
	protocol Protocol
	balances BalanceReader
}

func NewAdapter(protocol Protocol, balances BalanceReader) *Adapter {
	return &Adapter{protocol: protocol, balances: balances}
}

func (a *Adapter) IsWrapped(asset domain.Asset) bool {
	return a.protocol != nil && a.protocol.IsWrapped(asset)
}

func (a *Adapter) WrappedCounterpart(underlying domain.Asset) (domain.Asset, bool) {
	if a.protocol == nil {
		return domain.Asset{}, false
	}
	return a.protocol.WrappedCounterpart(underlying)
}

func (a *Adapter) Underlying(wrapped domain.Asset) (domain.Asset, bool) {
	if a.protocol == nil {
		return domain.Asset{}, false
	}
	return a.protocol.Underlying(wrapped)
}

// PreviewWrap returns what wrapping q would issue.
func (a *Adapter) PreviewWrap(q domain.Quantity) (domain.Quantity, error) {
	if a.protocol == nil {
		return domain.Quantity{}, fmt.Errorf("%w: no wrapper configured", domain.ErrAssetNotFound)
	}
	return a.protocol.PreviewWrap(q)
}

// Wrap converts q of an underlying asset held by owner into receipts.
func (a *Adapter) Wrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity) (domain.Quantity, error) {
	if a.protocol == nil {
		return domain.Quantity{}, fmt.Errorf("%w: no wrapper configured", domain.ErrAssetNotFound)
	}
	return a.protocol.Wrap(ctx, owner, q)
}

// Unwrap converts q of receipts held by owner into target. It fails with
// ErrUnwrapUnavailable when target is not the underlying of q or owner
// does not hold enough receipts.
func (a *Adapter) Unwrap(ctx context.Context, owner solana.PublicKey, q domain.Quantity, target domain.Asset) (domain.Quantity, error) {
	underlying, ok := a.Underlying(q.Asset)
	if !ok || underlying != target {
		return domain.Quantity{}, fmt.Errorf("%w: %s does not unwrap to %s", domain.ErrUnwrapUnavailable, q.Asset.Code, target.Code)
	}
	if held := a.balances.Balance(owner, q.Asset); held.Amount < q.Amount {
		return domain.Quantity{}, fmt.Errorf("%w: holds %s, unwrap %s", domain.ErrUnwrapUnavailable, held, q)
	}
	return a.protocol.Unwrap(ctx, owner, q)
}

// WrapAll is a step wrapping owner's whole balance of underlying at
// execution time.
func (a *Adapter) WrapAll(owner solana.PublicKey, underlying domain.Asset) txn.Step {
	return txn.StepFunc("wrap "+underlying.Code, func(ctx context.Context) error {
		bal := a.balances.Balance(owner, underlying)
		if !bal.IsPositive() {
			return fmt.Errorf("%w: no %s to wrap", domain.ErrBalanceNotClean, underlying.Code)
		}
		_, err := a.Wrap(ctx, owner, bal)
		return err
	})
}

// UnwrapAll is a step unwrapping owner's whole balance of wrapped into
// target at execution time.
func (a *Adapter) UnwrapAll(owner solana.PublicKey, wrapped, target domain.Asset) txn.Step {
	return txn.StepFunc("unwrap "+wrapped.Code, func(ctx context.Context) error {
		bal := a.balances.Balance(owner, wrapped)
		if !bal.IsPositive() {
			return fmt.Errorf("%w: no %s to unwrap", domain.ErrUnwrapUnavailable, wrapped.Code)
		}
		_, err := a.Unwrap(ctx, owner, bal, target)
		return err
	})
}
