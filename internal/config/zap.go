package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"
)

// Seeds of the accounts derived when no address is configured.
const (
	RoutingSeed  = "zap-routing"
	PoolSeed     = "zap-pool"
	LendingSeed  = "zap-lending"
	OperatorSeed = "zap-operator"
	FeeSeed      = "zap-fee"
)

type ZapConfig struct {
	// RoutingAccount is the zap's own account. Transfers to it trigger runs.
	RoutingAccount solana.PublicKey
	// PoolAccount hosts the stableswap pool and issues LP assets.
	PoolAccount solana.PublicKey
	// LendingAccount hosts the lending wrapper and issues wrapped assets.
	LendingAccount solana.PublicKey
	// OperatorAccount is the only caller allowed to flush and administer.
	// Admin requests must be signed by its key.
	OperatorAccount solana.PublicKey
	// FeeAccount collects protocol fees.
	FeeAccount solana.PublicKey
	// ReservedAccounts are senders whose transfers never trigger a run.
	ReservedAccounts []solana.PublicKey

	WorkingPrecision      uint8
	SplitMaxIterations    int
	SplitToleranceDivisor uint64
	TradeFeeBps           uint64
	ProtocolFeeBps        uint64
}

func (c *ZapConfig) Key() string {
	return ZAP_CONFIG_KEY
}

func (c *ZapConfig) Load() error {
	var err error
	if c.RoutingAccount, err = accountFromEnv("ZAP_ROUTING_ACCOUNT", RoutingSeed); err != nil {
		return err
	}
	if c.PoolAccount, err = accountFromEnv("ZAP_POOL_ACCOUNT", PoolSeed); err != nil {
		return err
	}
	if c.LendingAccount, err = accountFromEnv("ZAP_LENDING_ACCOUNT", LendingSeed); err != nil {
		return err
	}
	if c.OperatorAccount, err = accountFromEnv("ZAP_OPERATOR_ACCOUNT", OperatorSeed); err != nil {
		return err
	}
	if c.FeeAccount, err = accountFromEnv("ZAP_FEE_ACCOUNT", FeeSeed); err != nil {
		return err
	}
	if c.ReservedAccounts, err = parseAccounts(common.GetEnvOrDefault("ZAP_RESERVED_ACCOUNTS", "")); err != nil {
		return err
	}

	c.WorkingPrecision = uint8(common.GetEnvOrDefaultInt("ZAP_WORKING_PRECISION", 18))
	c.SplitMaxIterations = common.GetEnvOrDefaultInt("ZAP_SPLIT_MAX_ITERATIONS", 20)
	if c.SplitToleranceDivisor, err = strconv.ParseUint(common.GetEnvOrDefault("ZAP_SPLIT_TOLERANCE_DIVISOR", "1000000"), 10, 64); err != nil {
		return fmt.Errorf("invalid ZAP_SPLIT_TOLERANCE_DIVISOR: %w", err)
	}
	c.TradeFeeBps = uint64(common.GetEnvOrDefaultInt("ZAP_TRADE_FEE_BPS", 4))
	c.ProtocolFeeBps = uint64(common.GetEnvOrDefaultInt("ZAP_PROTOCOL_FEE_BPS", 0))
	return c.Validate()
}

func (c *ZapConfig) Validate() error {
	if c.RoutingAccount.IsZero() || c.PoolAccount.IsZero() || c.OperatorAccount.IsZero() {
		return errors.New("invalid zap config: routing, pool and operator accounts are required")
	}
	if c.RoutingAccount.Equals(c.PoolAccount) || c.RoutingAccount.Equals(c.LendingAccount) {
		return errors.New("invalid zap config: routing account must differ from pool and lending accounts")
	}
	if c.WorkingPrecision == 0 || c.WorkingPrecision > 36 {
		return fmt.Errorf("invalid zap config: working precision %d out of range", c.WorkingPrecision)
	}
	if c.SplitMaxIterations <= 0 {
		return errors.New("invalid zap config: split iterations must be positive")
	}
	if c.SplitToleranceDivisor == 0 {
		return errors.New("invalid zap config: split tolerance divisor must be positive")
	}
	if c.TradeFeeBps+c.ProtocolFeeBps >= 10000 {
		return errors.New("invalid zap config: fees must stay below 10000 bps")
	}
	return nil
}

// UsesDefaultOperator reports whether the operator is still the address
// derived from OperatorSeed, which anyone can compute.
func (c *ZapConfig) UsesDefaultOperator() bool {
	return c.OperatorAccount.Equals(DeriveAccount(OperatorSeed))
}

// CheckOperator refuses the derived operator outside the dev environment.
func (c *ZapConfig) CheckOperator(env ServerEnv) error {
	if env != DevEnv && c.UsesDefaultOperator() {
		return fmt.Errorf("invalid zap config: ZAP_OPERATOR_ACCOUNT must be set in %s", env)
	}
	return nil
}

// IsReserved reports whether transfers from account are ignored.
func (c *ZapConfig) IsReserved(account solana.PublicKey) bool {
	if account.Equals(c.PoolAccount) || account.Equals(c.LendingAccount) {
		return true
	}
	for _, r := range c.ReservedAccounts {
		if r.Equals(account) {
			return true
		}
	}
	return false
}

// DeriveAccount returns the deterministic address for seed.
func DeriveAccount(seed string) solana.PublicKey {
	key, err := solana.CreateWithSeed(solana.SystemProgramID, seed, solana.SystemProgramID)
	if err != nil {
		panic(err)
	}
	return key
}

func accountFromEnv(name, seed string) (solana.PublicKey, error) {
	raw := common.GetEnvOrDefault(name, "")
	if raw == "" {
		return DeriveAccount(seed), nil
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}

func parseAccounts(raw string) ([]solana.PublicKey, error) {
	var out []solana.PublicKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(part)
		if err != nil {
			return nil, fmt.Errorf("invalid reserved account %q: %w", part, err)
		}
		out = append(out, key)
	}
	return out, nil
}
