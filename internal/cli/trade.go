package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

type planOutput struct {
	Action       string   `json:"action"`
	TradeID      uint64   `json:"trade_id"`
	Payer        string   `json:"payer"`
	OfferAddress string   `json:"offer_address"`
	Vault        string   `json:"vault"`
	Operations   []string `json:"operations"`
	Transaction  string   `json:"transaction,omitempty"`
	Signature    string   `json:"signature,omitempty"`
}

type tradeFlags struct {
	wallet          string
	tokenExtensions bool
}

func (f *tradeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "plan for this wallet and print the unsigned transaction")
	cmd.Flags().BoolVar(&f.tokenExtensions, "token-extensions", false, "use the Token-2022 program")
}

func (a *app) makeCmd() *cobra.Command {
	var (
		tf              tradeFlags
		id              uint64
		mintA, mintB    string
		offered, wanted string
	)
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Offer token A in exchange for token B",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			offeredMint, err := solana.PublicKeyFromBase58(mintA)
			if err != nil {
				return fmt.Errorf("--mint-a: %w", err)
			}
			wantedMint, err := solana.PublicKeyFromBase58(mintB)
			if err != nil {
				return fmt.Errorf("--mint-b: %w", err)
			}
			return a.runPlan(cmd, tf, func(ctx context.Context, p *trade.Planner, wallet solana.PublicKey) (*trade.Plan, error) {
				return p.PlanCreate(ctx, trade.CreateIntent{
					TradeID:             id,
					Maker:               wallet,
					TokenMintA:          offeredMint,
					TokenMintB:          wantedMint,
					TokenAOfferedAmount: offered,
					TokenBWantedAmount:  wanted,
					TokenExtensions:     tf.tokenExtensions,
				})
			})
		},
	}
	tf.register(cmd)
	cmd.Flags().Uint64Var(&id, "id", 0, "offer id")
	cmd.Flags().StringVar(&mintA, "mint-a", "", "mint of the offered token")
	cmd.Flags().StringVar(&mintB, "mint-b", "", "mint of the wanted token")
	cmd.Flags().StringVar(&offered, "offered", "", "offered amount of token A, in display units")
	cmd.Flags().StringVar(&wanted, "wanted", "", "wanted amount of token B, in display units")
	for _, name := range []string{"id", "mint-a", "mint-b", "offered", "wanted"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) takeCmd() *cobra.Command {
	var tf tradeFlags
	cmd := &cobra.Command{
		Use:   "take <id>",
		Short: "Pay token B and receive the vaulted token A",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.runPlan(cmd, tf, func(ctx context.Context, p *trade.Planner, wallet solana.PublicKey) (*trade.Plan, error) {
				return p.PlanAccept(ctx, trade.AcceptIntent{
					TradeID:         id,
					Taker:           wallet,
					TokenExtensions: tf.tokenExtensions,
				})
			})
		},
	}
	tf.register(cmd)
	return cmd
}

func (a *app) refundCmd() *cobra.Command {
	var tf tradeFlags
	cmd := &cobra.Command{
		Use:   "refund <id>",
		Short: "Close your offer and return token A",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.runPlan(cmd, tf, func(ctx context.Context, p *trade.Planner, wallet solana.PublicKey) (*trade.Plan, error) {
				return p.PlanCancel(ctx, trade.CancelIntent{
					TradeID:         id,
					Caller:          wallet,
					TokenExtensions: tf.tokenExtensions,
				})
			})
		},
	}
	tf.register(cmd)
	return cmd
}

func (a *app) runPlan(
	cmd *cobra.Command,
	tf tradeFlags,
	build func(ctx context.Context, p *trade.Planner, wallet solana.PublicKey) (*trade.Plan, error),
) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	wallet, key, err := a.wallet(tf.wallet)
	if err != nil {
		return err
	}
	planner, c, err := a.planner()
	if err != nil {
		return err
	}
	plan, err := build(ctx, planner, wallet)
	if err != nil {
		return err
	}

	asm := escrow.NewAssembler(c, escrow.FeeOptions{
		ComputeUnitLimit: a.cfg.Chain.ComputeUnitLimit,
		ComputeUnitPrice: a.cfg.Chain.ComputeUnitPrice,
	})
	tx, err := asm.Assemble(ctx, plan.Instructions, plan.Payer)
	if err != nil {
		return err
	}

	out := planOutput{
		Action:       string(plan.Action),
		TradeID:      plan.TradeID,
		Payer:        plan.Payer.String(),
		OfferAddress: plan.OfferAddress.String(),
		Vault:        plan.Vault.String(),
		Operations:   make([]string, len(plan.Operations)),
	}
	for i, op := range plan.Operations {
		out.Operations[i] = op.Kind().String()
	}

	if key == nil {
		if out.Transaction, err = tx.ToBase64(); err != nil {
			return err
		}
		return printJSON(cmd, out)
	}

	sig, err := asm.SignAndSend(ctx, tx, key)
	if err != nil {
		return err
	}
	out.Signature = sig.String()
	log.WithFields(log.Fields{
		"action":    plan.Action,
		"trade_id":  plan.TradeID,
		"signature": out.Signature,
	}).Info("transaction sent")
	return printJSON(cmd, out)
}
