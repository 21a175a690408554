package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/config"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

type cliEnv struct {
	ledger  *escrow.MemoryLedger
	key     solana.PrivateKey
	keyPath string
	mintA   solana.PublicKey
	mintB   solana.PublicKey
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	key := solana.NewWallet().PrivateKey

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	raw, err := json.Marshal(values)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(keyPath, raw, 0o600))

	env := &cliEnv{
		ledger:  escrow.NewMemoryLedger(),
		key:     key,
		keyPath: keyPath,
		mintA:   solana.NewWallet().PublicKey(),
		mintB:   solana.NewWallet().PublicKey(),
	}
	require.NoError(t, env.ledger.PutMint(env.mintA, program.TokenProgramID, 6))
	require.NoError(t, env.ledger.PutMint(env.mintB, program.TokenProgramID, 6))
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(func(*config.AppConfig) (chain, error) { return e.ledger, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--keypair", e.keyPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) putOffer(t *testing.T, id uint64, maker solana.PublicKey) {
	t.Helper()
	_, err := e.ledger.PutOffer(program.EscrowProgramID, &program.Offer{
		ID:                 id,
		Maker:              maker,
		TokenMintA:         e.mintA,
		TokenMintB:         e.mintB,
		TokenBWantedAmount: 2_000_000,
	})
	require.NoError(t, err)
}

func TestDeriveOffer(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "derive", "offer", "42", "--mint-a", env.mintA.String())
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "6c35rENSbeH1dqrRYA8U77vj92WSyzsL1PYu58ffykdw", got["address"])
	assert.Equal(t, float64(254), got["bump"])
	assert.NotEmpty(t, got["vault"])
}

func TestProgramIDIgnoresEnvironment(t *testing.T) {
	t.Setenv("ESCROW_PROGRAM_ID", solana.NewWallet().PublicKey().String())
	env := newCLIEnv(t)
	out, err := env.run(t, "derive", "offer", "42")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "6c35rENSbeH1dqrRYA8U77vj92WSyzsL1PYu58ffykdw", got["address"])

	_, err = env.run(t, "--program-id", solana.NewWallet().PublicKey().String(), "derive", "offer", "42")
	require.Error(t, err)
}

func TestDeriveHoldingRejectsOffCurveOwner(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "derive", "holding", "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T", env.mintA.String())
	require.ErrorIs(t, err, program.ErrOwnerOffCurve)
}

func TestMakeSignsAndSends(t *testing.T) {
	env := newCLIEnv(t)
	holding, err := program.DeriveHoldingAddress(env.key.PublicKey(), env.mintA, program.TokenProgramID, false)
	require.NoError(t, err)
	require.NoError(t, env.ledger.PutHolding(holding, env.key.PublicKey(), env.mintA, program.TokenProgramID, 5_000_000))

	out, err := env.run(t, "make",
		"--id", "7",
		"--mint-a", env.mintA.String(),
		"--mint-b", env.mintB.String(),
		"--offered", "1.5",
		"--wanted", "2",
	)
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"make_offer"}, got.Operations)
	assert.NotEmpty(t, got.Signature)
	assert.Empty(t, got.Transaction)

	sent := env.ledger.Broadcasted()
	require.Len(t, sent, 1)
	require.NoError(t, sent[0].VerifySignatures())
}

func TestMakeInsufficientBalance(t *testing.T) {
	env := newCLIEnv(t)
	holding, err := program.DeriveHoldingAddress(env.key.PublicKey(), env.mintA, program.TokenProgramID, false)
	require.NoError(t, err)
	require.NoError(t, env.ledger.PutHolding(holding, env.key.PublicKey(), env.mintA, program.TokenProgramID, 1))

	_, err = env.run(t, "make",
		"--id", "7",
		"--mint-a", env.mintA.String(),
		"--mint-b", env.mintB.String(),
		"--offered", "1",
		"--wanted", "1",
	)
	require.ErrorIs(t, err, trade.ErrInsufficientBalance)
	assert.Empty(t, env.ledger.Broadcasted())
}

func TestTakeWithWalletPrintsUnsignedTransaction(t *testing.T) {
	env := newCLIEnv(t)
	maker := solana.NewWallet().PublicKey()
	taker := solana.NewWallet().PublicKey()
	env.putOffer(t, 3, maker)
	holding, err := program.DeriveHoldingAddress(taker, env.mintB, program.TokenProgramID, false)
	require.NoError(t, err)
	require.NoError(t, env.ledger.PutHolding(holding, taker, env.mintB, program.TokenProgramID, 2_000_000))

	out, err := env.run(t, "take", "3", "--wallet", taker.String())
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, taker.String(), got.Payer)
	assert.Empty(t, got.Signature)

	tx, err := solana.TransactionFromBase64(got.Transaction)
	require.NoError(t, err)
	assert.True(t, tx.Message.AccountKeys[0].Equals(taker))
	assert.Empty(t, env.ledger.Broadcasted())
}

func TestRefundByNonMaker(t *testing.T) {
	env := newCLIEnv(t)
	env.putOffer(t, 3, solana.NewWallet().PublicKey())

	_, err := env.run(t, "refund", "3")
	require.ErrorIs(t, err, trade.ErrNotAuthorized)
}

func TestOffersAndOffer(t *testing.T) {
	env := newCLIEnv(t)
	env.putOffer(t, 1, env.key.PublicKey())
	env.putOffer(t, 2, solana.NewWallet().PublicKey())

	out, err := env.run(t, "offers")
	require.NoError(t, err)
	var all []offerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all, 2)

	out, err = env.run(t, "offers", "--maker", env.key.PublicKey().String())
	require.NoError(t, err)
	var mine []offerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(1), mine[0].ID)

	out, err = env.run(t, "offer", "2")
	require.NoError(t, err)
	var one offerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &one))
	assert.Equal(t, "2000000", one.TokenBWantedAmount)

	_, err = env.run(t, "offer", "9")
	require.ErrorIs(t, err, trade.ErrTradeNotFound)
}
