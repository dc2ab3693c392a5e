package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/zap-engine/internal/adapters/ledger"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

const (
	PairsBucket    = "pairs"
	BalancesBucket = "balances"
	MarketsBucket  = "markets"
	ReceiptsBucket = "receipts"

	// balances are rewritten as one document so holdings that went to zero
	// disappear on the next save
	balancesKey = "snapshot"

	// schemaKey is written to every bucket on open so reads never hit a
	// missing bucket
	schemaKey     = "_schema"
	schemaVersion = "1"

	DefaultDBPath = "./data/zap.db"
)

type StoredAsset struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
	Ledger    string `json:"ledger"`
}

type StoredQuantity struct {
	StoredAsset
	Amount int64 `json:"amount"`
}

type StoredPair struct {
	ID             string         `json:"id"`
	Reserve0       StoredQuantity `json:"reserve0"`
	Reserve1       StoredQuantity `json:"reserve1"`
	Liquidity      StoredQuantity `json:"liquidity"`
	Amplifier      uint64         `json:"amplifier"`
	TradeFeeBps    uint64         `json:"tradeFeeBps"`
	ProtocolFeeBps uint64         `json:"protocolFeeBps"`
}

type StoredBalance struct {
	Account  string         `json:"account"`
	Quantity StoredQuantity `json:"quantity"`
}

type StoredMarket struct {
	Underlying StoredAsset `json:"underlying"`
	Wrapped    StoredAsset `json:"wrapped"`
	RateBps    uint64      `json:"rateBps"`
}

type StoredReceipt struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Steps     []string `json:"steps"`
	StartedAt int64    `json:"startedAt"`
	Duration  int64    `json:"duration"`
}

// Storage keeps pairs, balances, wrapper markets and receipts in BoltDB. It
// also serves as the receipt journal of the unit-of-work executor.
type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

var _ txn.Journal = (*Storage)(nil)

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}
	if err := s.ensureBuckets(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("[zapStorage] opened database")
	return s, nil
}

func (s *Storage) ensureBuckets() error {
	for _, bucket := range []string{PairsBucket, BalancesBucket, MarketsBucket, ReceiptsBucket} {
		if err := s.db.Set(bucket, []byte(schemaKey), []byte(schemaVersion)); err != nil {
			return fmt.Errorf("failed to initialise bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) SavePairs(pairs []domain.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	for _, pair := range pairs {
		data, err := sonic.Marshal(pairToStored(pair))
		if err != nil {
			return fmt.Errorf("failed to marshal pair %s: %w", pair.ID, err)
		}

		value := data
		op := &boltdb.WriteOperation{
			Bucket: []byte(PairsBucket),
			Key:    []byte(pair.ID),
			Value:  &value,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add pair %s to batch: %w", pair.ID, err)
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(pairs)).Msg("[zapStorage] FAILED to execute batch")
		return err
	}

	log.Debug().Int("count", len(pairs)).Msg("[zapStorage] saved pair batch")
	return nil
}

func (s *Storage) LoadPairs() ([]domain.Pair, error) {
	data, err := s.db.List(PairsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}

	pairs := make([]domain.Pair, 0, len(data))
	failed := 0
	for id, value := range data {
		if id == schemaKey {
			continue
		}
		var stored StoredPair
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("pair", id).Err(err).Msg("[zapStorage] failed to unmarshal pair, skipping")
			failed++
			continue
		}
		pair, err := storedToPair(&stored)
		if err != nil {
			log.Error().Str("pair", id).Err(err).Msg("[zapStorage] failed to convert stored pair, skipping")
			failed++
			continue
		}
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })

	log.Info().
		Int("total_in_db", len(pairs)+failed).
		Int("loaded", len(pairs)).
		Int("failed", failed).
		Msg("[zapStorage] pair loading completed")
	return pairs, nil
}

func (s *Storage) SaveBalances(balances []ledger.Balance) error {
	stored := make([]StoredBalance, 0, len(balances))
	for _, b := range balances {
		stored = append(stored, StoredBalance{Account: b.Account.String(), Quantity: quantityToStored(b.Amount)})
	}
	data, err := sonic.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}
	return s.db.Set(BalancesBucket, []byte(balancesKey), data)
}

func (s *Storage) LoadBalances() ([]ledger.Balance, error) {
	data, err := s.db.List(BalancesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	value, ok := data[balancesKey]
	if !ok {
		return nil, nil
	}

	var stored []StoredBalance
	if err := sonic.Unmarshal(value, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balances: %w", err)
	}
	out := make([]ledger.Balance, 0, len(stored))
	for _, sb := range stored {
		account, err := solana.PublicKeyFromBase58(sb.Account)
		if err != nil {
			log.Warn().Str("account", sb.Account).Err(err).Msg("[zapStorage] invalid account, skipping")
			continue
		}
		q, err := storedToQuantity(sb.Quantity)
		if err != nil {
			log.Warn().Str("account", sb.Account).Err(err).Msg("[zapStorage] invalid balance, skipping")
			continue
		}
		out = append(out, ledger.Balance{Account: account, Amount: q})
	}
	return out, nil
}

func (s *Storage) SaveMarkets(markets []lending.Market) error {
	for _, m := range markets {
		data, err := sonic.Marshal(StoredMarket{
			Underlying: assetToStored(m.Underlying),
			Wrapped:    assetToStored(m.Wrapped),
			RateBps:    m.RateBps,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal market %s: %w", m.Wrapped.Code, err)
		}
		if err := s.db.Set(MarketsBucket, []byte(m.Wrapped.Code), data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) LoadMarkets() ([]lending.Market, error) {
	data, err := s.db.List(MarketsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	out := make([]lending.Market, 0, len(data))
	for code, value := range data {
		if code == schemaKey {
			continue
		}
		var stored StoredMarket
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("market", code).Err(err).Msg("[zapStorage] failed to unmarshal market, skipping")
			continue
		}
		underlying, err := storedToAsset(stored.Underlying)
		if err != nil {
			log.Warn().Str("market", code).Err(err).Msg("[zapStorage] invalid market, skipping")
			continue
		}
		wrapped, err := storedToAsset(stored.Wrapped)
		if err != nil {
			log.Warn().Str("market", code).Err(err).Msg("[zapStorage] invalid market, skipping")
			continue
		}
		out = append(out, lending.Market{Underlying: underlying, Wrapped: wrapped, RateBps: stored.RateBps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wrapped.Code < out[j].Wrapped.Code })
	return out, nil
}

// Append implements txn.Journal.
func (s *Storage) Append(_ context.Context, r txn.Receipt) error {
	data, err := sonic.Marshal(StoredReceipt{
		ID:        r.ID,
		Label:     r.Label,
		Steps:     r.Steps,
		StartedAt: r.StartedAt.UnixMilli(),
		Duration:  r.Duration.Microseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return s.db.Set(ReceiptsBucket, []byte(r.ID), data)
}

// Receipts returns every journaled receipt, oldest first.
func (s *Storage) Receipts() ([]txn.Receipt, error) {
	data, err := s.db.List(ReceiptsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	out := make([]txn.Receipt, 0, len(data))
	for id, value := range data {
		if id == schemaKey {
			continue
		}
		var stored StoredReceipt
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("receipt", id).Err(err).Msg("[zapStorage] failed to unmarshal receipt, skipping")
			continue
		}
		out = append(out, txn.Receipt{
			ID:        stored.ID,
			Label:     stored.Label,
			Steps:     stored.Steps,
			StartedAt: time.UnixMilli(stored.StartedAt),
			Duration:  time.Duration(stored.Duration) * time.Microsecond,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Snapshot saves pairs, balances and markets in one pass.
func (s *Storage) Snapshot(pairs []domain.Pair, balances []ledger.Balance, markets []lending.Market) error {
	start := time.Now()
	defer func() { metrics.SnapshotDuration.Set(time.Since(start).Seconds()) }()

	if err := s.SavePairs(pairs); err != nil {
		return err
	}
	if err := s.SaveMarkets(markets); err != nil {
		return err
	}
	return s.SaveBalances(balances)
}

func assetToStored(a domain.Asset) StoredAsset {
	return StoredAsset{Code: a.Code, Precision: a.Precision, Ledger: a.Ledger.String()}
}

func quantityToStored(q domain.Quantity) StoredQuantity {
	return StoredQuantity{StoredAsset: assetToStored(q.Asset), Amount: q.Amount}
}

func pairToStored(p domain.Pair) *StoredPair {
	return &StoredPair{
		ID:             p.ID,
		Reserve0:       quantityToStored(p.Reserve0),
		Reserve1:       quantityToStored(p.Reserve1),
		Liquidity:      quantityToStored(p.Liquidity),
		Amplifier:      p.Curve.Amplifier,
		TradeFeeBps:    p.Curve.TradeFeeBps,
		ProtocolFeeBps: p.Curve.ProtocolFeeBps,
	}
}

func storedToAsset(s StoredAsset) (domain.Asset, error) {
	ledgerKey, err := solana.PublicKeyFromBase58(s.Ledger)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("invalid ledger: %w", err)
	}
	return domain.NewAsset(s.Code, s.Precision, ledgerKey)
}

func storedToQuantity(s StoredQuantity) (domain.Quantity, error) {
	asset, err := storedToAsset(s.StoredAsset)
	if err != nil {
		return domain.Quantity{}, err
	}
	return domain.NewQuantity(s.Amount, asset), nil
}

func storedToPair(stored *StoredPair) (domain.Pair, error) {
	reserve0, err := storedToQuantity(stored.Reserve0)
	if err != nil {
		return domain.Pair{}, fmt.Errorf("invalid reserve0: %w", err)
	}
	reserve1, err := storedToQuantity(stored.Reserve1)
	if err != nil {
		return domain.Pair{}, fmt.Errorf("invalid reserve1: %w", err)
	}
	liquidity, err := storedToQuantity(stored.Liquidity)
	if err != nil {
		return domain.Pair{}, fmt.Errorf("invalid liquidity: %w", err)
	}
	pair := domain.Pair{
		ID:        stored.ID,
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		Liquidity: liquidity,
		Curve: domain.CurveParams{
			Amplifier:      stored.Amplifier,
			TradeFeeBps:    stored.TradeFeeBps,
			ProtocolFeeBps: stored.ProtocolFeeBps,
		},
	}
	if err := pair.Validate(); err != nil {
		return domain.Pair{}, err
	}
	return pair, nil
}
