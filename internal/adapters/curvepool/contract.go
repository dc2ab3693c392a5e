package curvepool

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/curve"
)

// Transfer tags understood by the contract.
const (
	TagSwap     = "swap"
	TagDeposit  = "deposit"
	TagWithdraw = "withdraw"
	TagSeed     = "seed"
	TagExcess   = "excess"
)

// Ledger is what the contract needs from the host ledger.
type Ledger interface {
	Transfer(ctx context.Context, from, to solana.PublicKey, q domain.Quantity, memo string) error
	Balance(account solana.PublicKey, asset domain.Asset) domain.Quantity
	Issue(account solana.PublicKey, q domain.Quantity) error
	Retire(account solana.PublicKey, q domain.Quantity) error
	Register(asset domain.Asset)
}

// Config holds the contract-wide fee settings.
type Config struct {
	TradeFeeBps    uint64           `json:"tradeFeeBps"`
	ProtocolFeeBps uint64           `json:"protocolFeeBps"`
	FeeAccount     solana.PublicKey `json:"feeAccount"`
}

type pendingKey struct {
	owner  solana.PublicKey
	pairID string
}

type pairState struct {
	Reserve0  domain.Quantity
	Reserve1  domain.Quantity
	Liquidity domain.Quantity
	Amplifier uint64
}

// Contract is an in-process stableswap pool contract. It reacts to tagged
// transfers into its account:
//
//	swap,<minOut>,<PAIR>   swap the received leg into the opposite leg
//	deposit,<PAIR>         hold the received leg for a later Deposit
//	withdraw,<PAIR>        redeem received liquidity for both legs
type Contract struct {
	mu      sync.RWMutex
	account solana.PublicKey
	ledger  Ledger
	quoter  *curve.Quoter
	working uint8
	config  Config
	pairs   map[string]*pairState
	pending map[pendingKey]map[domain.Asset]int64
}

func NewContract(account solana.PublicKey, ledger Ledger, quoter *curve.Quoter, workingPrecision uint8, config Config) *Contract {
	if quoter == nil {
		quoter = curve.NewQuoter()
	}
	return &Contract{
		account: account,
		ledger:  ledger,
		quoter:  quoter,
		working: workingPrecision,
		config:  config,
		pairs:   make(map[string]*pairState),
		pending: make(map[pendingKey]map[domain.Asset]int64),
	}
}

func (c *Contract) Account() solana.PublicKey {
	return c.account
}

func (c *Contract) GetCurveConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *Contract) SetCurveConfig(cfg Config) error {
	if cfg.TradeFeeBps > domain.BpsDenominator || cfg.ProtocolFeeBps > domain.BpsDenominator {
		return domain.ErrInvalidFee
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	return nil
}

// GetPair returns a copy of the pair with the current curve parameters.
func (c *Contract) GetPair(_ context.Context, pairID string) (*domain.Pair, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pairs[pairID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	p := c.describe(pairID, st)
	return &p, nil
}

// ListPairs returns every pair sorted by id.
func (c *Contract) ListPairs(_ context.Context) ([]domain.Pair, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Pair, 0, len(c.pairs))
	for id, st := range c.pairs {
		out = append(out, c.describe(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Contract) describe(id string, st *pairState) domain.Pair {
	return domain.Pair{
		ID:        id,
		Reserve0:  st.Reserve0,
		Reserve1:  st.Reserve1,
		Liquidity: st.Liquidity,
		Curve: domain.CurveParams{
			Amplifier:      st.Amplifier,
			TradeFeeBps:    c.config.TradeFeeBps,
			ProtocolFeeBps: c.config.ProtocolFeeBps,
		},
	}
}

// LiquidityAsset is the asset the contract issues for pairID.
func (c *Contract) LiquidityAsset(pairID string, precision uint8) domain.Asset {
	return domain.Asset{Code: pairID, Precision: precision, Ledger: c.account}
}

// CreatePair registers a pair and seeds it from seeder, who receives the
// initial liquidity.
func (c *Contract) CreatePair(ctx context.Context, seeder solana.PublicKey, pairID string, seed0, seed1 domain.Quantity, amplifier uint64) (*domain.Pair, error) {
	precision := seed0.Asset.Precision
	if seed1.Asset.Precision > precision {
		precision = seed1.Asset.Precision
	}
	pair := domain.Pair{
		ID:        pairID,
		Reserve0:  seed0,
		Reserve1:  seed1,
		Liquidity: domain.Zero(c.LiquidityAsset(pairID, precision)),
		Curve:     domain.CurveParams{Amplifier: amplifier},
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	if !seed0.IsPositive() || !seed1.IsPositive() {
		return nil, domain.ErrEmptyReserves
	}

	c.mu.RLock()
	_, exists := c.pairs[pairID]
	c.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: pair %s already exists", domain.ErrInvalidPair, pairID)
	}

	memo := TagSeed + "," + pairID
	if err := c.ledger.Transfer(ctx, seeder, c.account, seed0, memo); err != nil {
		return nil, err
	}
	if err := c.ledger.Transfer(ctx, seeder, c.account, seed1, memo); err != nil {
		return nil, err
	}

	// initial supply is the value of both legs at liquidity precision
	s0, err := rescale(seed0.Amount, seed0.Asset.Precision, precision)
	if err != nil {
		return nil, err
	}
	s1, err := rescale(seed1.Amount, seed1.Asset.Precision, precision)
	if err != nil {
		return nil, err
	}
	supply := domain.NewQuantity(s0+s1, pair.LPAsset())
	c.ledger.Register(pair.LPAsset())
	if err := c.ledger.Issue(seeder, supply); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pairs[pairID] = &pairState{
		Reserve0:  seed0,
		Reserve1:  seed1,
		Liquidity: supply,
		Amplifier: amplifier,
	}
	c.mu.Unlock()

	log.Info().Str("pair", pairID).Str("reserve0", seed0.String()).Str("reserve1", seed1.String()).
		Msg("[curvepool] pair created")
	return c.GetPair(ctx, pairID)
}

// SetAmplifier changes the amplifier of an existing pair.
func (c *Contract) SetAmplifier(pairID string, amplifier uint64) error {
	if amplifier == 0 {
		return domain.ErrInvalidAmplifier
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pairs[pairID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	st.Amplifier = amplifier
	return nil
}

// OnTransfer implements ledger.Receiver.
func (c *Contract) OnTransfer(ctx context.Context, ev domain.TransferEvent) error {
	if ev.To != c.account || ev.From == c.account {
		return nil
	}
	parts := strings.Split(ev.Memo, ",")
	switch parts[0] {
	case TagSeed:
		return nil
	case TagSwap:
		if len(parts) != 3 {
			return fmt.Errorf("%w: swap memo %q", domain.ErrTransferRejected, ev.Memo)
		}
		minOut, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || minOut < 0 {
			return fmt.Errorf("%w: swap min out %q", domain.ErrTransferRejected, parts[1])
		}
		return c.swap(ctx, ev.From, parts[2], ev.Quantity, minOut)
	case TagDeposit:
		if len(parts) != 2 {
			return fmt.Errorf("%w: deposit memo %q", domain.ErrTransferRejected, ev.Memo)
		}
		return c.hold(ev.From, parts[1], ev.Quantity)
	case TagWithdraw:
		if len(parts) != 2 {
			return fmt.Errorf("%w: withdraw memo %q", domain.ErrTransferRejected, ev.Memo)
		}
		return c.withdraw(ctx, ev.From, parts[1], ev.Quantity)
	}
	return fmt.Errorf("%w: unknown memo %q", domain.ErrTransferRejected, ev.Memo)
}

func (c *Contract) swap(ctx context.Context, sender solana.PublicKey, pairID string, in domain.Quantity, minOut int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pairs[pairID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	pair := c.describe(pairID, st)
	quote, err := c.quoter.Quote(pair, in, c.working)
	if err != nil {
		return err
	}
	if !quote.AmountOut.IsPositive() || quote.AmountOut.Amount < minOut {
		return fmt.Errorf("%w: swap of %s returns %s", domain.ErrInsufficientLiquidity, in, quote.AmountOut)
	}

	net := in.Amount - quote.ProtocolFee.Amount
	if st.Reserve0.Asset == in.Asset {
		st.Reserve0.Amount += net
		st.Reserve1.Amount -= quote.AmountOut.Amount
	} else {
		st.Reserve1.Amount += net
		st.Reserve0.Amount -= quote.AmountOut.Amount
	}

	if quote.ProtocolFee.IsPositive() && !c.config.FeeAccount.IsZero() {
		if err := c.ledger.Transfer(ctx, c.account, c.config.FeeAccount, quote.ProtocolFee, "protocol fee"); err != nil {
			return err
		}
	}
	return c.ledger.Transfer(ctx, c.account, sender, quote.AmountOut, TagSwap+","+pairID)
}

func (c *Contract) hold(owner solana.PublicKey, pairID string, q domain.Quantity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pairs[pairID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	if q.Asset != st.Reserve0.Asset && q.Asset != st.Reserve1.Asset {
		return fmt.Errorf("%w: %s is not a leg of %s", domain.ErrAssetMismatch, q.Asset.Code, pairID)
	}
	key := pendingKey{owner, pairID}
	if c.pending[key] == nil {
		c.pending[key] = make(map[domain.Asset]int64)
	}
	c.pending[key][q.Asset] += q.Amount
	return nil
}

// Pending returns what owner has sent with a deposit tag and not yet
// deposited.
func (c *Contract) Pending(owner solana.PublicKey, pairID string) (domain.Quantity, domain.Quantity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pairs[pairID]
	if !ok {
		return domain.Quantity{}, domain.Quantity{}, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	p := c.pending[pendingKey{owner, pairID}]
	return domain.NewQuantity(p[st.Reserve0.Asset], st.Reserve0.Asset),
		domain.NewQuantity(p[st.Reserve1.Asset], st.Reserve1.Asset), nil
}

// Deposit converts owner's pending legs into liquidity at the current
// reserve ratio. Liquidity is floored and used amounts are ceiled, both in
// the pool's favor; whatever is not used goes back to owner.
func (c *Contract) Deposit(ctx context.Context, owner solana.PublicKey, pairID string) (domain.Quantity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pairs[pairID]
	if !ok {
		return domain.Quantity{}, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	key := pendingKey{owner, pairID}
	p := c.pending[key]
	a0, a1 := p[st.Reserve0.Asset], p[st.Reserve1.Asset]
	if a0 == 0 && a1 == 0 {
		return domain.Quantity{}, fmt.Errorf("%w: nothing pending for %s", domain.ErrInvalidQuantity, pairID)
	}
	if !st.Reserve0.IsPositive() || !st.Reserve1.IsPositive() || !st.Liquidity.IsPositive() {
		return domain.Quantity{}, domain.ErrEmptyReserves
	}

	supply := uint256.NewInt(uint64(st.Liquidity.Amount))
	r0 := uint256.NewInt(uint64(st.Reserve0.Amount))
	r1 := uint256.NewInt(uint64(st.Reserve1.Amount))

	m0 := new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(uint64(a0)), supply), r0)
	m1 := new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(uint64(a1)), supply), r1)
	minted := m0
	if m1.Lt(m0) {
		minted = m1
	}
	if minted.IsZero() || !minted.IsUint64() {
		return domain.Quantity{}, fmt.Errorf("%w: deposit too small to mint %s", domain.ErrInsufficientLiquidity, pairID)
	}

	used0 := ceilMulDiv(minted, r0, supply)
	used1 := ceilMulDiv(minted, r1, supply)
	if used0 > a0 {
		used0 = a0
	}
	if used1 > a1 {
		used1 = a1
	}

	delete(c.pending, key)
	st.Reserve0.Amount += used0
	st.Reserve1.Amount += used1
	lp := domain.NewQuantity(int64(minted.Uint64()), st.Liquidity.Asset)
	st.Liquidity.Amount += lp.Amount

	if err := c.ledger.Issue(owner, lp); err != nil {
		return domain.Quantity{}, err
	}
	if excess := a0 - used0; excess > 0 {
		if err := c.ledger.Transfer(ctx, c.account, owner, domain.NewQuantity(excess, st.Reserve0.Asset), TagExcess); err != nil {
			return domain.Quantity{}, err
		}
	}
	if excess := a1 - used1; excess > 0 {
		if err := c.ledger.Transfer(ctx, c.account, owner, domain.NewQuantity(excess, st.Reserve1.Asset), TagExcess); err != nil {
			return domain.Quantity{}, err
		}
	}

	log.Debug().Str("pair", pairID).Str("owner", owner.String()).Str("liquidity", lp.String()).
		Msg("[curvepool] deposit")
	return lp, nil
}

func (c *Contract) withdraw(ctx context.Context, sender solana.PublicKey, pairID string, lp domain.Quantity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pairs[pairID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPoolNotFound, pairID)
	}
	if lp.Asset != st.Liquidity.Asset {
		return fmt.Errorf("%w: %s is not liquidity of %s", domain.ErrAssetMismatch, lp.Asset.Code, pairID)
	}
	if lp.Amount > st.Liquidity.Amount {
		return fmt.Errorf("%w: redeem %s of %s", domain.ErrInsufficientLiquidity, lp, st.Liquidity)
	}

	supply := uint256.NewInt(uint64(st.Liquidity.Amount))
	amount := uint256.NewInt(uint64(lp.Amount))
	out0 := int64(new(uint256.Int).Div(new(uint256.Int).Mul(amount, uint256.NewInt(uint64(st.Reserve0.Amount))), supply).Uint64())
	out1 := int64(new(uint256.Int).Div(new(uint256.Int).Mul(amount, uint256.NewInt(uint64(st.Reserve1.Amount))), supply).Uint64())
	if out0 == 0 && out1 == 0 {
		return fmt.Errorf("%w: redeeming %s returns nothing", domain.ErrInsufficientLiquidity, lp)
	}

	if err := c.ledger.Retire(c.account, lp); err != nil {
		return err
	}
	st.Liquidity.Amount -= lp.Amount
	st.Reserve0.Amount -= out0
	st.Reserve1.Amount -= out1

	memo := TagWithdraw + "," + pairID
	if out0 > 0 {
		if err := c.ledger.Transfer(ctx, c.account, sender, domain.NewQuantity(out0, st.Reserve0.Asset), memo); err != nil {
			return err
		}
	}
	if out1 > 0 {
		if err := c.ledger.Transfer(ctx, c.account, sender, domain.NewQuantity(out1, st.Reserve1.Asset), memo); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint captures pair and pending state and returns a function
// restoring it.
func (c *Contract) Checkpoint() func() {
	c.mu.RLock()
	pairs := make(map[string]*pairState, len(c.pairs))
	for id, st := range c.pairs {
		cp := *st
		pairs[id] = &cp
	}
	pending := make(map[pendingKey]map[domain.Asset]int64, len(c.pending))
	for k, v := range c.pending {
		m := make(map[domain.Asset]int64, len(v))
		for a, amt := range v {
			m[a] = amt
		}
		pending[k] = m
	}
	cfg := c.config
	c.mu.RUnlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.pairs = pairs
		c.pending = pending
		c.config = cfg
	}
}

// Restore loads pairs from persisted state.
func (c *Contract) Restore(pairs []domain.Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pairs {
		c.pairs[p.ID] = &pairState{
			Reserve0:  p.Reserve0,
			Reserve1:  p.Reserve1,
			Liquidity: p.Liquidity,
			Amplifier: p.Curve.Amplifier,
		}
		c.ledger.Register(p.Reserve0.Asset)
		c.ledger.Register(p.Reserve1.Asset)
		c.ledger.Register(p.Liquidity.Asset)
	}
}

func ceilMulDiv(x, y, d *uint256.Int) int64 {
	num := new(uint256.Int).Mul(x, y)
	q, r := new(uint256.Int).DivMod(num, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return int64(q.Uint64())
}

func rescale(amount int64, from, to uint8) (int64, error) {
	w, err := curve.ToWorking(amount, from, to)
	if err != nil {
		return 0, err
	}
	return curve.FromWorking(w, to, to)
}
