package http

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

func parseAccount(field, raw string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidQuantity, field, raw)
	}
	return key, nil
}

func optionalLedger(raw string) (*solana.PublicKey, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := parseAccount("ledger", raw)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// resolveQuantity reads a human amount of the asset named by code, and by
// ledger when several ledgers issue that code.
func resolveQuantity(svc *zap.Service, code, ledger, amount string) (domain.Quantity, error) {
	l, err := optionalLedger(ledger)
	if err != nil {
		return domain.Quantity{}, err
	}
	asset, err := svc.FindAsset(code, l)
	if err != nil {
		return domain.Quantity{}, err
	}
	return domain.ParseQuantity(amount, asset)
}
