package market

import (
	"context"
	"errors"

	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
	"github.com/hxuan190/zap-engine/internal/services"
	"github.com/hxuan190/zap-engine/internal/services/chain"
)

const ServiceName = "market-service"

// Service is the read-only view of the pool contract. Lookups always read
// through to the source so they reflect the latest committed state.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	source    PairSource
	registry  *MarketRegistry
	liquidity *ShardedAssetIndex
}

// NewService builds a service reading from source with the default
// readiness validators.
func NewService(source PairSource) *Service {
	svc := &Service{}
	svc.init(source)
	return svc
}

func (svc *Service) init(source PairSource) {
	svc.logger = services.NewServiceLogger(svc)
	svc.source = source
	svc.registry = NewDefaultMarketRegistry()
	svc.liquidity = NewShardedAssetIndex()
}

func (svc *Service) ID() string {
	return ServiceName
}

func (svc *Service) Configure(c container.IContainer) error {
	chainSvc, ok := c.Instance(chain.CHAIN_SERVICE).(*chain.Service)
	if !ok || chainSvc == nil {
		return errors.New("market service requires the chain service")
	}
	svc.init(chainSvc.Pool())
	return nil
}

func (svc *Service) Start() error {
	pairs, err := svc.ListPairs(context.Background())
	if err != nil {
		return err
	}
	svc.logger.Info().Int("pairs", len(pairs)).Int("ready", svc.countReady(pairs)).Msg("[marketService] started")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

func (svc *Service) Registry() *MarketRegistry {
	return svc.registry
}

// GetPair returns the current state of pairID.
func (svc *Service) GetPair(ctx context.Context, pairID string) (*domain.Pair, error) {
	pair, err := svc.source.GetPair(ctx, pairID)
	if err != nil {
		metrics.PairLookups.WithLabelValues("miss").Inc()
		return nil, err
	}
	metrics.PairLookups.WithLabelValues("hit").Inc()
	svc.liquidity.Set(pair.LPAsset(), pair.ID)
	return pair, nil
}

// GetCurveParams returns the curve parameters of pairID.
func (svc *Service) GetCurveParams(ctx context.Context, pairID string) (domain.CurveParams, error) {
	pair, err := svc.GetPair(ctx, pairID)
	if err != nil {
		return domain.CurveParams{}, err
	}
	return pair.Curve, nil
}

// ListPairs returns every pair known to the contract.
func (svc *Service) ListPairs(ctx context.Context) ([]domain.Pair, error) {
	pairs, err := svc.source.ListPairs(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		svc.liquidity.Set(p.LPAsset(), p.ID)
	}
	metrics.PairCount.Set(float64(len(pairs)))
	metrics.ReadyPairCount.Set(float64(svc.countReady(pairs)))
	return pairs, nil
}

// ReadyPairs returns the pairs every validator accepts.
func (svc *Service) ReadyPairs(ctx context.Context) ([]domain.Pair, error) {
	pairs, err := svc.ListPairs(ctx)
	if err != nil {
		return nil, err
	}
	ready := make([]domain.Pair, 0, len(pairs))
	for i := range pairs {
		if svc.registry.IsPairReady(&pairs[i]) {
			ready = append(ready, pairs[i])
		}
	}
	return ready, nil
}

// IsReady reports whether pair can take zap traffic and, if not, which
// validator refused it.
func (svc *Service) IsReady(pair *domain.Pair) (string, bool) {
	return svc.registry.Rejection(pair)
}

// FindByLiquidity returns the pair issuing asset as its LP asset.
func (svc *Service) FindByLiquidity(ctx context.Context, asset domain.Asset) (*domain.Pair, bool, error) {
	pairID, ok := svc.liquidity.Get(asset)
	if !ok {
		// the contract may have created pairs since the last listing
		if _, err := svc.ListPairs(ctx); err != nil {
			return nil, false, err
		}
		if pairID, ok = svc.liquidity.Get(asset); !ok {
			return nil, false, nil
		}
	}
	pair, err := svc.GetPair(ctx, pairID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			svc.liquidity.Delete(asset)
			return nil, false, nil
		}
		return nil, false, err
	}
	if pair.LPAsset() != asset {
		svc.liquidity.Delete(asset)
		return nil, false, nil
	}
	return pair, true, nil
}

func (svc *Service) countReady(pairs []domain.Pair) int {
	n := 0
	for i := range pairs {
		if svc.registry.IsPairReady(&pairs[i]) {
			n++
		}
	}
	return n
}
