package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandwichfarm/herdwatch/internal/config"
	"github.com/sandwichfarm/herdwatch/internal/identity"
	"github.com/sandwichfarm/herdwatch/internal/lightning"
	internalnostr "github.com/sandwichfarm/herdwatch/internal/nostr"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

// lookupTimeout reads enrichment.lookup_timeout_ms from the config when one
// is given and falls back to the default otherwise
func lookupTimeout(configPath string) (time.Duration, error) {
	if configPath == "" {
		return config.Default().Enrichment.LookupTimeout(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.Enrichment.LookupTimeout(), nil
}

func checkCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a payout address or identity proof",
	}
	cmd.AddCommand(checkLUD16Cmd(configPath))
	cmd.AddCommand(checkNIP05Cmd(configPath))
	cmd.AddCommand(checkRelaysCmd(configPath))
	return cmd
}

func checkRelaysCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "relays",
		Short: "Fetch the NIP-11 document of every configured seed relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			relays := config.Default().Relays
			if *configPath != "" {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
				relays = cfg.Relays
			}
			if len(relays.Seeds) == 0 {
				return internalnostr.ErrNoRelays
			}

			ctx := cmdContext(cmd)
			client := internalnostr.New(ctx, &relays, ops.Discard())
			defer client.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, check := range client.CheckRelays(ctx) {
				if check.Err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", check.URL, check.Err)
					continue
				}
				zaps := "no"
				if check.Info.Supports(internalnostr.NIPZaps) {
					zaps = "yes"
				}
				fmt.Fprintf(out, "✓ %s (%s %s) zaps=%s latency=%s\n",
					check.URL, check.Info.Software, check.Info.Version, zaps, check.Latency.Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d relay(s) failed", failed)
			}
			return nil
		},
	}
}

func checkLUD16Cmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lud16 <address>",
		Short: "Validate a lightning address against its LNURL-pay endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := lookupTimeout(*configPath)
			if err != nil {
				return err
			}
			v := lightning.NewAddressValidator(timeout)
			if err := v.Validate(cmdContext(cmd), args[0]); err != nil {
				return fmt.Errorf("%s is not a valid payout address: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid payout address\n", args[0])
			return nil
		},
	}
}

func checkNIP05Cmd(configPath *string) *cobra.Command {
	var pubkey string

	cmd := &cobra.Command{
		Use:   "nip05 <identifier>",
		Short: "Resolve a NIP-05 identifier, optionally checking it maps to --pubkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := lookupTimeout(*configPath)
			if err != nil {
				return err
			}
			v := identity.NewVerifier(timeout)
			ctx := cmdContext(cmd)

			if pubkey != "" {
				if err := v.Verify(ctx, args[0], pubkey); err != nil {
					return fmt.Errorf("%s does not verify: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s verified for %s\n", args[0], pubkey)
				return nil
			}

			resolved, err := v.Resolve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s does not resolve: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], resolved)
			return nil
		},
	}
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "Expected hex pubkey")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
