package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/zap-engine/internal/domain"
)

// Receiver is notified after a transfer credits its account. A receiver
// error fails the transfer and, with it, the enclosing unit of work.
type Receiver interface {
	OnTransfer(ctx context.Context, ev domain.TransferEvent) error
}

type balanceKey struct {
	account solana.PublicKey
	asset   domain.Asset
}

// Balance is one non-zero holding.
type Balance struct {
	Account solana.PublicKey `json:"account"`
	Amount  domain.Quantity  `json:"amount"`
}

// Memory is an in-process multi-asset ledger. Transfers credit the recipient
// and then notify its receivers synchronously, so a contract reacting to a
// transfer runs inside the same unit of work as the sender.
type Memory struct {
	mu        sync.RWMutex
	balances  map[balanceKey]int64
	supply    map[domain.Asset]int64
	assets    map[domain.Asset]struct{}
	receivers map[solana.PublicKey][]Receiver
	journal   []domain.TransferEvent
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[balanceKey]int64),
		supply:    make(map[domain.Asset]int64),
		assets:    make(map[domain.Asset]struct{}),
		receivers: make(map[solana.PublicKey][]Receiver),
	}
}

// Subscribe registers r for transfers into account.
func (m *Memory) Subscribe(account solana.PublicKey, r Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivers[account] = append(m.receivers[account], r)
}

// Register makes an asset known to the ledger.
func (m *Memory) Register(asset domain.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset] = struct{}{}
}

func (m *Memory) Registered(asset domain.Asset) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.assets[asset]
	return ok
}

// Assets lists registered assets sorted by code.
func (m *Memory) Assets() []domain.Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Asset, 0, len(m.assets))
	for a := range m.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code == out[j].Code {
			return out[i].Ledger.String() < out[j].Ledger.String()
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Balance returns account's holding of asset, zero when it holds none.
func (m *Memory) Balance(account solana.PublicKey, asset domain.Asset) domain.Quantity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.NewQuantity(m.balances[balanceKey{account, asset}], asset)
}

// Balances lists every non-zero holding of account.
func (m *Memory) Balances(account solana.PublicKey) []domain.Quantity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Quantity, 0)
	for k, v := range m.balances {
		if k.account == account && v != 0 {
			out = append(out, domain.NewQuantity(v, k.asset))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Code < out[j].Asset.Code })
	return out
}

func (m *Memory) Supply(asset domain.Asset) domain.Quantity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.NewQuantity(m.supply[asset], asset)
}

// Issue mints q to account.
func (m *Memory) Issue(account solana.PublicKey, q domain.Quantity) error {
	if q.Amount <= 0 {
		return fmt.Errorf("%w: issue must be positive", domain.ErrInvalidQuantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[q.Asset] = struct{}{}
	m.balances[balanceKey{account, q.Asset}] += q.Amount
	m.supply[q.Asset] += q.Amount
	return nil
}

// Retire burns q from account.
func (m *Memory) Retire(account solana.PublicKey, q domain.Quantity) error {
	if q.Amount <= 0 {
		return fmt.Errorf("%w: retire must be positive", domain.ErrInvalidQuantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := balanceKey{account, q.Asset}
	if m.balances[key] < q.Amount {
		return fmt.Errorf("%w: %s holds %d, retire %s", domain.ErrInsufficientBalance, account, m.balances[key], q)
	}
	m.debit(key, q.Amount)
	m.supply[q.Asset] -= q.Amount
	return nil
}

// Transfer moves q from one account to another and notifies the recipient.
func (m *Memory) Transfer(ctx context.Context, from, to solana.PublicKey, q domain.Quantity, memo string) error {
	if q.Amount <= 0 {
		return fmt.Errorf("%w: must transfer positive quantity", domain.ErrTransferRejected)
	}
	if from == to {
		return fmt.Errorf("%w: cannot transfer to self", domain.ErrTransferRejected)
	}
	if len(memo) > 256 {
		return fmt.Errorf("%w: memo has more than 256 bytes", domain.ErrTransferRejected)
	}

	m.mu.Lock()
	if _, ok := m.assets[q.Asset]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, q.Asset)
	}
	src := balanceKey{from, q.Asset}
	if m.balances[src] < q.Amount {
		have := m.balances[src]
		m.mu.Unlock()
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", domain.ErrInsufficientBalance, from, have, q.Asset.Code, q.Amount)
	}
	m.debit(src, q.Amount)
	m.balances[balanceKey{to, q.Asset}] += q.Amount

	ev := domain.TransferEvent{From: from, To: to, Quantity: q, Memo: memo}
	m.journal = append(m.journal, ev)
	receivers := append([]Receiver(nil), m.receivers[to]...)
	m.mu.Unlock()

	log.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("quantity", q.String()).
		Str("memo", memo).
		Msg("[ledger] transfer")

	for _, r := range receivers {
		if err := r.OnTransfer(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) debit(key balanceKey, amount int64) {
	m.balances[key] -= amount
	if m.balances[key] == 0 {
		delete(m.balances, key)
	}
}

// Transfers returns the transfer history, oldest first.
func (m *Memory) Transfers() []domain.TransferEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TransferEvent(nil), m.journal...)
}

// Checkpoint captures the ledger state and returns a function restoring it.
func (m *Memory) Checkpoint() func() {
	m.mu.RLock()
	balances := make(map[balanceKey]int64, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	supply := make(map[domain.Asset]int64, len(m.supply))
	for k, v := range m.supply {
		supply[k] = v
	}
	assets := make(map[domain.Asset]struct{}, len(m.assets))
	for k := range m.assets {
		assets[k] = struct{}{}
	}
	journalLen := len(m.journal)
	m.mu.RUnlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.balances = balances
		m.supply = supply
		m.assets = assets
		m.journal = m.journal[:journalLen]
	}
}

// Snapshot exports every non-zero balance for persistence.
func (m *Memory) Snapshot() []Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Balance, 0, len(m.balances))
	for k, v := range m.balances {
		out = append(out, Balance{Account: k.account, Amount: domain.NewQuantity(v, k.asset)})
	}
	return out
}

// Restore replaces balances with a snapshot and recomputes supply.
func (m *Memory) Restore(balances []Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = make(map[balanceKey]int64, len(balances))
	m.supply = make(map[domain.Asset]int64)
	for _, b := range balances {
		if b.Amount.Amount == 0 {
			continue
		}
		m.assets[b.Amount.Asset] = struct{}{}
		m.balances[balanceKey{b.Account, b.Amount.Asset}] += b.Amount.Amount
		m.supply[b.Amount.Asset] += b.Amount.Amount
	}
}
