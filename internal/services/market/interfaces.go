package market

import (
	"context"

	"github.com/hxuan190/zap-engine/internal/domain"
)

// PairSource is the pool contract read interface. Every call reflects the
// latest committed pool state.
type PairSource interface {
	GetPair(ctx context.Context, pairID string) (*domain.Pair, error)
	ListPairs(ctx context.Context) ([]domain.Pair, error)
}

// PairValidator decides whether a pair can take zap traffic.
type PairValidator interface {
	// IsReady checks if a pair is ready for deposits and withdrawals
	IsReady(pair *domain.Pair) bool

	// Name identifies the validator in logs
	Name() string
}
