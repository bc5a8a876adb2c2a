package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func denominateCmd() *cobra.Command {
	var (
		chainId, source, target, amount string
		from, to                        int64
	)
	cmd := &cobra.Command{
		Use:   "denominate",
		Short: "Convert a token amount into another token using end of window prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			for name, address := range map[string]string{"source": source, "target": target} {
				if !common.IsHexAddress(address) {
					return fmt.Errorf("--%s must be a hex address", name)
				}
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			if to == 0 {
				to = time.Now().Unix()
			}
			if from > to {
				return fmt.Errorf("--from must not be after --to")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			services, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			result, err := services.Engine.DenominateAs(cmd.Context(), source, target, value, from, to, chains.ParseChainId(chainId))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&chainId, "chain", string(chains.Mainnet), "chain id")
	cmd.Flags().StringVar(&source, "source", "", "source token address")
	cmd.Flags().StringVar(&target, "target", "", "target token address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount of the source token")
	cmd.Flags().Int64Var(&from, "from", 0, "window start, unix seconds")
	cmd.Flags().Int64Var(&to, "to", 0, "window end, unix seconds (default now)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "Print the chain registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			overrides, err := loadOverrides(cmd.Context())
			if err != nil {
				return err
			}
			registry := chains.NewRegistry(cfg.Endpoints(), chains.WithOverrides(overrides...))
			return printJSON(registry.Chains())
		},
	}
}
