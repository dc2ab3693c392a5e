package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, config.CLIConfig, *sandbox, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadCLI(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, cfg, nil, err
	}
	services.ConfigureLogging(cfg.LogLevel, config.DevEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	sb, err := newSandbox(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, cfg, nil, err
	}
	return ctx, stop, cfg, sb, nil
}

func runSplit(cmd *cobra.Command, _ []string) error {
	ctx, stop, cfg, sb, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	in, err := sb.input(cfg)
	if err != nil {
		return err
	}
	split, err := sb.svc.PreviewSplit(ctx, sb.pair.ID, in)
	if err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(cmd.OutOrStdout(), split)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s => %s + %s (swap %s, %d iterations)\n",
		in, split.ToLegA, split.ToLegB, split.SwapIn, split.Iterations)
	return nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop, cfg, sb, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	in, err := sb.input(cfg)
	if err != nil {
		return err
	}
	quote, err := sb.svc.QuoteSwap(ctx, sb.pair.ID, in)
	if err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(cmd.OutOrStdout(), quote)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s => %s (protocol fee %s)\n", quote.AmountIn, quote.AmountOut, quote.ProtocolFee)
	return nil
}

type simulation struct {
	Deposit  *zap.Result       `json:"deposit"`
	Withdraw *zap.Result       `json:"withdraw,omitempty"`
	Balances []domain.Quantity `json:"balances"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx, stop, cfg, sb, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	in, err := sb.input(cfg)
	if err != nil {
		return err
	}
	out := simulation{}
	if out.Deposit, err = sb.send(ctx, in, sb.pair.ID, true); err != nil {
		return err
	}
	if cfg.Target != "" {
		if out.Withdraw, err = sb.send(ctx, out.Deposit.Delivered, cfg.Target, false); err != nil {
			return err
		}
	}
	out.Balances = sb.ledger.Balances(sb.user)

	if cfg.JSON {
		return printJSON(cmd.OutOrStdout(), out)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "deposit  %s => %s\n", in, out.Deposit.Delivered)
	for _, r := range out.Deposit.Refunds {
		fmt.Fprintf(w, "  refund %s\n", r)
	}
	if out.Withdraw != nil {
		fmt.Fprintf(w, "withdraw %s => %s\n", out.Deposit.Delivered, out.Withdraw.Delivered)
	}
	for _, b := range out.Balances {
		fmt.Fprintf(w, "balance  %s\n", b)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
