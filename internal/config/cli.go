package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PairFlags describes a pair given on the command line.
type PairFlags struct {
	Pair           string
	Code0          string
	Code1          string
	Precision0     uint8
	Precision1     uint8
	Reserve0       string
	Reserve1       string
	Amplifier      uint64
	TradeFeeBps    uint64
	ProtocolFeeBps uint64
}

// CLIConfig holds configuration for the zapctl commands.
type CLIConfig struct {
	PairFlags
	Quantity         string
	Asset            string
	Target           string
	WorkingPrecision uint8
	LogLevel         string
	JSON             bool
}

// LoadCLI merges config file, environment variables, and flags into CLIConfig.
func LoadCLI(cfgFile string, flags *pflag.FlagSet) (CLIConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ZAPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pair", "USDTUSDC")
	v.SetDefault("code0", "USDT")
	v.SetDefault("code1", "USDC")
	v.SetDefault("precision0", 4)
	v.SetDefault("precision1", 4)
	v.SetDefault("reserve0", "10000000.0000")
	v.SetDefault("reserve1", "10000000.0000")
	v.SetDefault("amplifier", 200)
	v.SetDefault("trade-fee-bps", 4)
	v.SetDefault("protocol-fee-bps", 0)
	v.SetDefault("working-precision", 18)
	v.SetDefault("log-level", "info")
	v.SetDefault("json", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return CLIConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return CLIConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("zapctl")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return CLIConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := CLIConfig{
		PairFlags: PairFlags{
			Pair:           strings.ToUpper(v.GetString("pair")),
			Code0:          strings.ToUpper(v.GetString("code0")),
			Code1:          strings.ToUpper(v.GetString("code1")),
			Precision0:     uint8(v.GetUint("precision0")),
			Precision1:     uint8(v.GetUint("precision1")),
			Reserve0:       v.GetString("reserve0"),
			Reserve1:       v.GetString("reserve1"),
			Amplifier:      v.GetUint64("amplifier"),
			TradeFeeBps:    v.GetUint64("trade-fee-bps"),
			ProtocolFeeBps: v.GetUint64("protocol-fee-bps"),
		},
		Quantity:         v.GetString("quantity"),
		Asset:            strings.ToUpper(v.GetString("asset")),
		Target:           strings.ToUpper(v.GetString("target")),
		WorkingPrecision: uint8(v.GetUint("working-precision")),
		LogLevel:         v.GetString("log-level"),
		JSON:             v.GetBool("json"),
	}
	if cfg.Quantity == "" {
		return CLIConfig{}, fmt.Errorf("quantity is required")
	}
	return cfg, nil
}
