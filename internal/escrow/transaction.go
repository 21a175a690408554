package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// ErrInvalidSignatures is returned by Relay when a transaction is missing a
// signature or carries one that does not verify.
var ErrInvalidSignatures = errors.New("invalid transaction signatures")

// FeeOptions prepends compute-budget instructions when non-zero.
type FeeOptions struct {
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

// BuildTransaction assembles an unsigned transaction paid by payer. The
// instruction order of ixs is preserved after any compute-budget prefix.
func BuildTransaction(ixs []solana.Instruction, payer solana.PublicKey, blockhash solana.Hash, fees FeeOptions) (*solana.Transaction, error) {
	if len(ixs) == 0 {
		return nil, fmt.Errorf("no instructions to assemble")
	}

	all := make([]solana.Instruction, 0, len(ixs)+2)
	if fees.ComputeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(fees.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit limit: %w", err)
		}
		all = append(all, ix)
	}
	if fees.ComputeUnitPrice > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(fees.ComputeUnitPrice).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit price: %w", err)
		}
		all = append(all, ix)
	}
	all = append(all, ixs...)

	tx, err := solana.NewTransaction(all, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("new transaction: %w", err)
	}
	return tx, nil
}

// Assembler fetches a recent blockhash and builds transactions with fixed
// fee options.
type Assembler struct {
	broadcaster Broadcaster
	fees        FeeOptions
}

func NewAssembler(b Broadcaster, fees FeeOptions) *Assembler {
	return &Assembler{broadcaster: b, fees: fees}
}

// Assemble returns the unsigned transaction for ixs.
func (a *Assembler) Assemble(ctx context.Context, ixs []solana.Instruction, payer solana.PublicKey) (*solana.Transaction, error) {
	blockhash, err := a.broadcaster.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTransaction(ixs, payer, blockhash, a.fees)
}

// SignAndSend signs tx with the given keys and broadcasts it.
func (a *Assembler) SignAndSend(ctx context.Context, tx *solana.Transaction, keys ...solana.PrivateKey) (solana.Signature, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}
	return a.broadcaster.Broadcast(ctx, tx)
}

// Relay verifies the signatures of a wallet-signed transaction and
// broadcasts it unchanged.
func (a *Assembler) Relay(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignatures, err)
	}
	return a.broadcaster.Broadcast(ctx, tx)
}
