package cli

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

func (a *app) deriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive program addresses without touching the node",
	}

	var vaultMint string
	var tokenExtensions bool
	offer := &cobra.Command{
		Use:   "offer <id>",
		Short: "Offer address and bump, plus the vault when --mint-a is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := a.deriver()
			if err != nil {
				return err
			}
			addr, bump, err := d.OfferAddress(id)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"id":      id,
				"address": addr.String(),
				"bump":    bump,
			}
			if vaultMint != "" {
				mint, err := solana.PublicKeyFromBase58(vaultMint)
				if err != nil {
					return fmt.Errorf("--mint-a: %w", err)
				}
				vault, err := d.VaultAddress(addr, mint, program.TokenProgramFor(tokenExtensions))
				if err != nil {
					return err
				}
				out["vault"] = vault.String()
			}
			return printJSON(cmd, out)
		},
	}
	offer.Flags().StringVar(&vaultMint, "mint-a", "", "offered mint, to derive the vault")
	offer.Flags().BoolVar(&tokenExtensions, "token-extensions", false, "use the Token-2022 program")

	var holdingExtensions bool
	holding := &cobra.Command{
		Use:   "holding <owner> <mint>",
		Short: "Associated token account of a wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}
			mint, err := solana.PublicKeyFromBase58(args[1])
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}
			d, err := a.deriver()
			if err != nil {
				return err
			}
			addr, err := d.HoldingAddress(owner, mint, program.TokenProgramFor(holdingExtensions))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"address": addr.String()})
		},
	}
	holding.Flags().BoolVar(&holdingExtensions, "token-extensions", false, "use the Token-2022 program")

	cmd.AddCommand(offer, holding)
	return cmd
}
