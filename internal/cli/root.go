// Package cli implements escrowctl, a command line client that plans,
// signs and sends escrow trades straight against a Solana node.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/config"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

// chain is what the commands need from a node connection.
type chain interface {
	escrow.Ledger
	escrow.Broadcaster
}

type app struct {
	v   *viper.Viper
	cfg *config.AppConfig
	// dial opens the node connection.
	dial func(cfg *config.AppConfig) (chain, error)
}

// Execute runs escrowctl with os.Args.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(dialRPC)
}

func newRootCommand(dial func(cfg *config.AppConfig) (chain, error)) *cobra.Command {
	a := &app{v: config.New(), dial: dial}

	root := &cobra.Command{
		Use:   "escrowctl",
		Short: "Plan, sign and send Anchor escrow trades",
		Long: `escrowctl reads open offers from the escrow program and builds the
make, take and refund transactions for them. With a keypair it signs and
sends them; with --wallet it prints the unsigned transaction instead.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(a.v)
			if err != nil {
				return err
			}
			log.SetLevel(cfg.Service.LogLevel)
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "configuration file (json, yaml or toml)")
	flags.String("rpc-url", "", "Solana JSON-RPC endpoint")
	flags.String("commitment", "", "commitment level: processed, confirmed or finalized")
	flags.String("keypair", "", "solana-keygen file used to sign")
	flags.String("log-level", "", "logrus level")
	flags.Uint64("compute-unit-price", 0, "priority fee in micro-lamports per compute unit")
	flags.Uint32("compute-unit-limit", 0, "compute unit limit per transaction")

	bind := map[string]string{
		"config":             config.ConfigFileKey,
		"rpc-url":            config.RPCURLKey,
		"commitment":         config.CommitmentKey,
		"keypair":            config.KeypairPathKey,
		"log-level":          config.LogLevelKey,
		"compute-unit-price": config.ComputeUnitPriceKey,
		"compute-unit-limit": config.ComputeUnitLimitKey,
	}
	for flag, key := range bind {
		// Only errors on a nil flag.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.offersCmd(),
		a.offerCmd(),
		a.makeCmd(),
		a.takeCmd(),
		a.refundCmd(),
		a.deriveCmd(),
	)
	return root
}

func dialRPC(cfg *config.AppConfig) (chain, error) {
	c, err := escrow.NewRPCClient(escrow.RPCClientConfig{
		RPCURL:     cfg.Chain.RPCURL,
		Commitment: cfg.Chain.Commitment,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) deriver() (*program.Deriver, error) {
	return program.NewDeriver(program.EscrowProgramID, a.cfg.Chain.DerivationCacheSize)
}

func (a *app) planner() (*trade.Planner, chain, error) {
	c, err := a.dial(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	d, err := a.deriver()
	if err != nil {
		return nil, nil, err
	}
	return trade.NewPlanner(c, d), c, nil
}

// wallet resolves the acting wallet. An explicit address means unsigned
// output; otherwise the configured keypair is loaded.
func (a *app) wallet(address string) (solana.PublicKey, solana.PrivateKey, error) {
	if address != "" {
		pub, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return solana.PublicKey{}, nil, fmt.Errorf("--wallet: %w", err)
		}
		return pub, nil, nil
	}
	if a.cfg.Chain.KeypairPath == "" {
		return solana.PublicKey{}, nil, fmt.Errorf("either --wallet or --keypair is required")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(a.cfg.Chain.KeypairPath)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return key.PublicKey(), key, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
