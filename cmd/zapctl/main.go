package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "zapctl",
		Short:        "Offline stableswap zap calculator",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("pair", "USDTUSDC", "pair id, the liquidity symbol code")
	flags.String("code0", "USDT", "reserve 0 symbol code")
	flags.String("code1", "USDC", "reserve 1 symbol code")
	flags.Uint8("precision0", 4, "reserve 0 decimals")
	flags.Uint8("precision1", 4, "reserve 1 decimals")
	flags.String("reserve0", "10000000.0000", "reserve 0 amount")
	flags.String("reserve1", "10000000.0000", "reserve 1 amount")
	flags.Uint64("amplifier", 200, "stableswap amplifier")
	flags.Uint64("trade-fee-bps", 4, "trade fee in basis points")
	flags.Uint64("protocol-fee-bps", 0, "protocol fee in basis points")
	flags.Uint8("working-precision", 18, "fixed point working decimals")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("json", false, "print JSON")

	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Show how a single-asset deposit would be split",
		RunE:  runSplit,
	}
	splitCmd.Flags().String("quantity", "", "input amount, for example 1000.0000")
	splitCmd.Flags().String("asset", "", "input symbol code (defaults to code0)")
	root.AddCommand(splitCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a plain swap against the pair",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("quantity", "", "input amount")
	quoteCmd.Flags().String("asset", "", "input symbol code (defaults to code0)")
	root.AddCommand(quoteCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a full deposit, and optionally a withdrawal, against an in-memory pool",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("quantity", "", "deposit amount")
	simulateCmd.Flags().String("asset", "", "deposit symbol code (defaults to code0)")
	simulateCmd.Flags().String("target", "", "withdraw the received liquidity into this symbol")
	root.AddCommand(simulateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
