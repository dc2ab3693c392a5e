package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/adapters/ledger"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/adapters/persistence"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services"
	"github.com/hxuan190/zap-engine/internal/services/curve"
)

const CHAIN_SERVICE = "chain-service"

// Service hosts the in-process ledger and the contracts living on it: the
// stableswap pool and the lending wrapper. State is snapshotted to BoltDB
// on an interval and on shutdown.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	conf        *config.ZapConfig
	persistConf *config.PersistenceConfig

	ledger  *ledger.Memory
	pool    *curvepool.Contract
	lending *lending.Protocol
	storage *persistence.Storage

	exclusive func(fn func())

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (svc *Service) ID() string {
	return CHAIN_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	zapConf, ok := c.GetConfig(config.ZAP_CONFIG_KEY).(*config.ZapConfig)
	if !ok || zapConf == nil {
		return errors.New("invalid zap config")
	}
	persistConf, ok := c.GetConfig(config.PERSISTENCE_CONFIG_KEY).(*config.PersistenceConfig)
	if !ok || persistConf == nil {
		return errors.New("invalid persistence config")
	}
	return svc.Setup(zapConf, persistConf)
}

// Setup wires the ledger and contracts. Configure calls it with the
// container configs; tests call it directly.
func (svc *Service) Setup(zapConf *config.ZapConfig, persistConf *config.PersistenceConfig) error {
	svc.logger = services.NewServiceLogger(svc)
	svc.conf = zapConf
	svc.persistConf = persistConf
	svc.done = make(chan struct{})
	svc.exclusive = func(fn func()) { fn() }

	svc.ledger = ledger.NewMemory()
	quoter := curve.NewQuoter()
	svc.pool = curvepool.NewContract(zapConf.PoolAccount, svc.ledger, quoter, zapConf.WorkingPrecision, curvepool.Config{
		TradeFeeBps:    zapConf.TradeFeeBps,
		ProtocolFeeBps: zapConf.ProtocolFeeBps,
		FeeAccount:     zapConf.FeeAccount,
	})
	svc.ledger.Subscribe(zapConf.PoolAccount, svc.pool)
	svc.lending = lending.NewProtocol(zapConf.LendingAccount, svc.ledger)

	if persistConf != nil && persistConf.PersistenceEnabled {
		storage, err := persistence.NewStorage(persistConf.DBPath)
		if err != nil {
			return err
		}
		svc.storage = storage
	}
	return nil
}

func (svc *Service) Start() error {
	if svc.storage == nil {
		svc.logger.Info().Msg("[chainService] persistence disabled, starting empty")
		return nil
	}
	if err := svc.restore(); err != nil {
		return err
	}

	svc.wg.Add(1)
	go svc.processPersistence()
	return nil
}

func (svc *Service) Stop() error {
	var err error
	svc.stopOnce.Do(func() {
		close(svc.done)
		svc.wg.Wait()
		if svc.storage == nil {
			return
		}
		svc.logger.Info().Msg("[chainService] persisting state before shutdown")
		if err = svc.Persist(); err != nil {
			svc.logger.Error().Err(err).Msg("[chainService] failed to persist state on shutdown")
		}
		if cerr := svc.storage.Close(); cerr != nil {
			svc.logger.Error().Err(cerr).Msg("[chainService] failed to close storage")
		}
	})
	return err
}

func (svc *Service) Ledger() *ledger.Memory {
	return svc.ledger
}

func (svc *Service) Pool() *curvepool.Contract {
	return svc.pool
}

func (svc *Service) Lending() *lending.Protocol {
	return svc.lending
}

// Storage returns the BoltDB store, nil when persistence is disabled.
func (svc *Service) Storage() *persistence.Storage {
	return svc.storage
}

// SetExclusive installs the function snapshots run under, so a snapshot
// never observes a unit of work halfway through.
func (svc *Service) SetExclusive(exclusive func(fn func())) {
	svc.exclusive = exclusive
}

// Persist snapshots pairs, balances and wrapper markets.
func (svc *Service) Persist() error {
	if svc.storage == nil {
		return nil
	}
	var (
		pairs    []domain.Pair
		balances []ledger.Balance
		markets  []lending.Market
		err      error
	)
	svc.exclusive(func() {
		pairs, err = svc.pool.ListPairs(context.Background())
		balances = svc.ledger.Snapshot()
		markets = svc.lending.Markets()
	})
	if err != nil {
		return err
	}
	return svc.storage.Snapshot(pairs, balances, markets)
}

func (svc *Service) restore() error {
	markets, err := svc.storage.LoadMarkets()
	if err != nil {
		return err
	}
	for _, m := range markets {
		if _, err := svc.lending.AddMarket(m.Underlying, m.Wrapped.Code, m.RateBps); err != nil {
			svc.logger.Warn().Err(err).Str("market", m.Wrapped.Code).Msg("[chainService] failed to restore market, skipping")
		}
	}

	pairs, err := svc.storage.LoadPairs()
	if err != nil {
		return err
	}
	svc.pool.Restore(pairs)

	balances, err := svc.storage.LoadBalances()
	if err != nil {
		return err
	}
	svc.ledger.Restore(balances)

	svc.logger.Info().
		Int("pairs", len(pairs)).
		Int("balances", len(balances)).
		Int("markets", len(markets)).
		Msg("[chainService] state restored")
	return nil
}

func (svc *Service) processPersistence() {
	defer svc.wg.Done()
	interval := time.Duration(svc.persistConf.PersistInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-svc.done:
			return
		case <-ticker.C:
			if err := svc.Persist(); err != nil {
				svc.logger.Error().Err(err).Msg("[chainService] failed to persist state")
				continue
			}
			svc.logger.Debug().Msg("[chainService] persisted state")
		}
	}
}
