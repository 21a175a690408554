package cli

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

type offerOutput struct {
	ID                 uint64 `json:"id"`
	Address            string `json:"address"`
	Maker              string `json:"maker"`
	TokenMintA         string `json:"token_mint_a"`
	TokenMintB         string `json:"token_mint_b"`
	TokenBWantedAmount string `json:"token_b_wanted_amount"`
	Bump               uint8  `json:"bump"`
}

func newOfferOutput(addr solana.PublicKey, o *program.Offer) offerOutput {
	return offerOutput{
		ID:                 o.ID,
		Address:            addr.String(),
		Maker:              o.Maker.String(),
		TokenMintA:         o.TokenMintA.String(),
		TokenMintB:         o.TokenMintB.String(),
		TokenBWantedAmount: strconv.FormatUint(o.TokenBWantedAmount, 10),
		Bump:               o.Bump,
	}
}

func (a *app) offersCmd() *cobra.Command {
	var maker string
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List open offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *solana.PublicKey
			if maker != "" {
				key, err := solana.PublicKeyFromBase58(maker)
				if err != nil {
					return fmt.Errorf("--maker: %w", err)
				}
				filter = &key
			}

			planner, _, err := a.planner()
			if err != nil {
				return err
			}
			snap, err := planner.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := make([]offerOutput, 0, len(snap.Offers))
			for _, e := range snap.Offers {
				if filter != nil && !e.Offer.Maker.Equals(*filter) {
					continue
				}
				out = append(out, newOfferOutput(e.Address, e.Offer))
			}
			for _, s := range snap.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", s.Address, s.Reason)
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&maker, "maker", "", "only list offers made by this wallet")
	return cmd
}

func (a *app) offerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offer <id>",
		Short: "Show one offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			planner, _, err := a.planner()
			if err != nil {
				return err
			}
			offer, addr, err := planner.FetchOffer(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, newOfferOutput(addr, offer))
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offer id %q", s)
	}
	return id, nil
}
