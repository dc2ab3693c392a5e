package zap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/zap-engine/internal/adapters/persistence"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
	"github.com/hxuan190/zap-engine/internal/services"
	"github.com/hxuan190/zap-engine/internal/services/chain"
	"github.com/hxuan190/zap-engine/internal/services/curve"
	"github.com/hxuan190/zap-engine/internal/services/market"
	"github.com/hxuan190/zap-engine/internal/services/txn"
	"github.com/hxuan190/zap-engine/internal/services/wrap"
)

const ZAP_SERVICE = "zap-service"

// Reasons an inbound transfer does not start a run.
const (
	IgnoreRecipient = "recipient"
	IgnoreSelf      = "self"
	IgnoreSelfMemo  = "self-memo"
	IgnoreReserved  = "reserved"
)

// Deps are the collaborators of a Service built outside the container.
type Deps struct {
	Config       *config.ZapConfig
	Ledger       Ledger
	Pools        PoolQuery
	Contract     PoolContract
	Wrapper      Wrapper
	Markets      MarketLister
	Participants []txn.Checkpointer
	Journal      txn.Journal
}

// Result describes what one inbound transfer did.
type Result struct {
	Receipt     *txn.Receipt      `json:"receipt,omitempty"`
	Ignored     bool              `json:"ignored"`
	Reason      string            `json:"reason,omitempty"`
	Instruction string            `json:"instruction,omitempty"`
	PairID      string            `json:"pair,omitempty"`
	Split       *domain.Split     `json:"split,omitempty"`
	Delivered   domain.Quantity   `json:"delivered"`
	Refunds     []domain.Quantity `json:"refunds,omitempty"`
}

// Service is the routing account's zap logic. Every inbound transfer,
// flush and admin action runs as one all-or-nothing unit of work.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	conf     *config.ZapConfig
	routing  solana.PublicKey
	ledger   Ledger
	pools    PoolQuery
	contract PoolContract
	wrapper  Wrapper
	markets  MarketLister
	splitter *curve.Splitter
	quoter   *curve.Quoter
	executor *txn.Executor

	closeJournal func()
}

// NewService builds a service from explicit collaborators.
func NewService(deps Deps) (*Service, error) {
	svc := &Service{}
	if err := svc.init(deps); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *Service) init(deps Deps) error {
	if deps.Config == nil || deps.Ledger == nil || deps.Pools == nil || deps.Contract == nil {
		return errors.New("zap service requires config, ledger, pools and contract")
	}
	if err := deps.Config.Validate(); err != nil {
		return err
	}
	svc.logger = services.NewServiceLogger(svc)
	svc.conf = deps.Config
	svc.routing = deps.Config.RoutingAccount
	svc.ledger = deps.Ledger
	svc.pools = deps.Pools
	svc.contract = deps.Contract
	svc.wrapper = deps.Wrapper
	if svc.wrapper == nil {
		svc.wrapper = wrap.NewAdapter(nil, deps.Ledger)
	}
	svc.markets = deps.Markets

	svc.quoter = curve.NewQuoter()
	svc.splitter = curve.NewSplitter(svc.quoter)
	svc.splitter.MaxIterations = deps.Config.SplitMaxIterations
	svc.splitter.ToleranceDivisor = deps.Config.SplitToleranceDivisor
	svc.splitter.WorkingPrecision = deps.Config.WorkingPrecision

	svc.executor = txn.NewExecutor(deps.Participants...)
	if deps.Journal != nil {
		svc.executor.SetJournal(deps.Journal)
	}
	return nil
}

func (svc *Service) ID() string {
	return ZAP_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	zapConf, ok := c.GetConfig(config.ZAP_CONFIG_KEY).(*config.ZapConfig)
	if !ok || zapConf == nil {
		return errors.New("invalid zap config")
	}
	if generalConf, ok := c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig); ok && generalConf != nil {
		if err := zapConf.CheckOperator(generalConf.Env); err != nil {
			return err
		}
	}
	persistConf, _ := c.GetConfig(config.PERSISTENCE_CONFIG_KEY).(*config.PersistenceConfig)
	chainSvc, ok := c.Instance(chain.CHAIN_SERVICE).(*chain.Service)
	if !ok || chainSvc == nil {
		return errors.New("zap service requires the chain service")
	}
	marketSvc, ok := c.Instance(market.ServiceName).(*market.Service)
	if !ok || marketSvc == nil {
		return errors.New("zap service requires the market service")
	}

	deps := Deps{
		Config:       zapConf,
		Ledger:       chainSvc.Ledger(),
		Pools:        marketSvc,
		Contract:     chainSvc.Pool(),
		Wrapper:      wrap.NewAdapter(chainSvc.Lending(), chainSvc.Ledger()),
		Markets:      chainSvc.Lending(),
		Participants: []txn.Checkpointer{chainSvc.Ledger(), chainSvc.Pool(), chainSvc.Lending()},
	}

	switch {
	case persistConf != nil && persistConf.PostgresDSN != "":
		journal, err := persistence.NewPostgresJournal(context.Background(), persistConf.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres journal: %w", err)
		}
		deps.Journal = journal
		svc.closeJournal = journal.Close
	case chainSvc.Storage() != nil:
		deps.Journal = chainSvc.Storage()
	}

	if err := svc.init(deps); err != nil {
		return err
	}
	chainSvc.SetExclusive(svc.executor.Exclusive)
	return nil
}

func (svc *Service) Start() error {
	svc.logger.Info().
		Str("routing", svc.routing.String()).
		Str("pool", svc.contract.Account().String()).
		Int("splitIterations", svc.splitter.MaxIterations).
		Msg("[zapService] started")
	return nil
}

func (svc *Service) Stop() error {
	if svc.closeJournal != nil {
		svc.closeJournal()
	}
	return nil
}

// Routing is the zap's own account.
func (svc *Service) Routing() solana.PublicKey {
	return svc.routing
}

// Operator is the account allowed to flush and administer.
func (svc *Service) Operator() solana.PublicKey {
	return svc.conf.OperatorAccount
}

// HandleTransfer processes one inbound transfer. Transfers not addressed
// to the routing account, carrying its own address as memo, or sent by a
// reserved account are ignored without effect. Otherwise the transfer
// itself and the whole deposit or withdrawal commit together or not at all.
func (svc *Service) HandleTransfer(ctx context.Context, ev domain.TransferEvent) (*Result, error) {
	if reason, ignored := svc.ignoreReason(ev); ignored {
		metrics.IgnoredTransfers.WithLabelValues(reason).Inc()
		svc.logger.Debug().Str("from", ev.From.String()).Str("reason", reason).Msg("[zapService] transfer ignored")
		return &Result{Ignored: true, Reason: reason}, nil
	}

	res := &Result{}
	start := time.Now()
	receipt, err := svc.executor.Run(ctx, "inbound", func(ctx context.Context, q *txn.Queue) error {
		if err := svc.ledger.Transfer(ctx, ev.From, svc.routing, ev.Quantity, ev.Memo); err != nil {
			return err
		}
		instr, err := svc.resolveInstruction(ctx, ev.Quantity, ev.Memo)
		if err != nil {
			return err
		}
		res.Instruction = instr.Kind().String()
		res.PairID = instr.Pair()

		switch in := instr.(type) {
		case domain.DepositInstruction:
			return svc.deposit(ctx, q, ev.From, ev.Quantity, in, res)
		case domain.WithdrawInstruction:
			return svc.withdraw(ctx, q, ev.From, ev.Quantity, in, res)
		}
		return fmt.Errorf("%w: unsupported instruction %s", domain.ErrInvalidMemo, instr.Kind())
	})

	kind := res.Instruction
	if kind == "" {
		kind = "unknown"
	}
	metrics.RunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Runs.WithLabelValues(kind, "failed").Inc()
		metrics.RunFailures.WithLabelValues(kind, domain.KindOf(err)).Inc()
		svc.logger.Warn().
			Str("from", ev.From.String()).
			Str("quantity", ev.Quantity.String()).
			Str("memo", ev.Memo).
			Str("kind", domain.KindOf(err)).
			Err(err).
			Msg("[zapService] run aborted")
		return nil, err
	}

	metrics.Runs.WithLabelValues(kind, "ok").Inc()
	res.Receipt = receipt
	svc.logger.Info().
		Str("unit", receipt.ID).
		Str("instruction", kind).
		Str("pair", res.PairID).
		Str("delivered", res.Delivered.String()).
		Msg("[zapService] run committed")
	return res, nil
}

func (svc *Service) ignoreReason(ev domain.TransferEvent) (string, bool) {
	switch {
	case ev.To != svc.routing:
		return IgnoreRecipient, true
	case ev.From == svc.routing:
		return IgnoreSelf, true
	case ev.Memo == svc.routing.String():
		return IgnoreSelfMemo, true
	case ev.From == svc.contract.Account() || svc.conf.IsReserved(ev.From):
		return IgnoreReserved, true
	}
	return "", false
}

// readyPair returns pairID if every market validator accepts it. Only
// deposits are gated; a refused pair can still be withdrawn from.
func (svc *Service) readyPair(ctx context.Context, pairID string) (*domain.Pair, error) {
	pair, err := svc.pools.GetPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	if rejection, ok := svc.pools.IsReady(pair); !ok {
		return nil, fmt.Errorf("%w: %s refused by %s validator", domain.ErrPairNotReady, pair.ID, rejection)
	}
	return pair, nil
}

// PreviewSplit computes the split a deposit of in into pairID would use,
// without touching any balance.
func (svc *Service) PreviewSplit(ctx context.Context, pairID string, in domain.Quantity) (*domain.Split, error) {
	pair, err := svc.readyPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	legIn, _, err := svc.depositLeg(pair, in)
	if err != nil {
		return nil, err
	}
	return svc.splitter.SplitQuantity(legIn, *pair)
}

// QuoteSwap prices a plain swap of in against pairID.
func (svc *Service) QuoteSwap(ctx context.Context, pairID string, in domain.Quantity) (*domain.SwapQuote, error) {
	pair, err := svc.pools.GetPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	return svc.quoter.Quote(*pair, in, svc.conf.WorkingPrecision)
}

// Balances lists the non-zero holdings of account.
func (svc *Service) Balances(account solana.PublicKey) []domain.Quantity {
	return svc.ledger.Balances(account)
}

// AssetSupply is a registered asset and its outstanding supply.
type AssetSupply struct {
	Asset  domain.Asset    `json:"asset"`
	Supply domain.Quantity `json:"supply"`
}

// Assets lists every registered asset with its supply.
func (svc *Service) Assets() []AssetSupply {
	assets := svc.ledger.Assets()
	out := make([]AssetSupply, 0, len(assets))
	for _, a := range assets {
		out = append(out, AssetSupply{Asset: a, Supply: svc.ledger.Supply(a)})
	}
	return out
}

// FindAsset resolves a symbol code to a registered asset. ledger narrows
// the search when several ledgers issue the same code.
func (svc *Service) FindAsset(code string, ledger *solana.PublicKey) (domain.Asset, error) {
	var (
		found domain.Asset
		n     int
	)
	for _, a := range svc.ledger.Assets() {
		if a.Code != code || (ledger != nil && a.Ledger != *ledger) {
			continue
		}
		found = a
		n++
	}
	switch n {
	case 0:
		return domain.Asset{}, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, code)
	case 1:
		return found, nil
	}
	return domain.Asset{}, fmt.Errorf("%w: %s is issued by %d ledgers", domain.ErrInvalidQuantity, code, n)
}

// Pairs lists every pair.
func (svc *Service) Pairs(ctx context.Context) ([]domain.Pair, error) {
	return svc.pools.ListPairs(ctx)
}
