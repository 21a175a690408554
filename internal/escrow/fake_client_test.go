package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

var (
	usdcMint   = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	wrappedSOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

func TestMemoryLedgerAbsentAccount(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	addr := solana.NewWallet().PublicKey()

	acct, err := ledger.GetAccount(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, acct)

	ok, err := ledger.Exists(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	amount, found, err := ledger.GetAssetHolding(ctx, addr)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, amount)
}

func TestMemoryLedgerHoldingAndMint(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	owner := solana.NewWallet().PublicKey()
	holding, err := program.DeriveHoldingAddress(owner, usdcMint, program.TokenProgramID, false)
	require.NoError(t, err)

	require.NoError(t, ledger.PutHolding(holding, owner, usdcMint, program.TokenProgramID, 2_500_000))
	require.NoError(t, ledger.PutMint(usdcMint, program.TokenProgramID, 6))

	amount, found, err := ledger.GetAssetHolding(ctx, holding)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(2_500_000), amount)

	decimals, err := ledger.GetAssetDecimals(ctx, usdcMint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)

	_, err = ledger.GetAssetDecimals(ctx, wrappedSOL)
	require.Error(t, err)
}

func TestMemoryLedgerPrefixScan(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	maker := solana.NewWallet().PublicKey()

	for id := uint64(1); id <= 3; id++ {
		_, err := ledger.PutOffer(program.EscrowProgramID, &program.Offer{
			ID:                 id,
			Maker:              maker,
			TokenMintA:         usdcMint,
			TokenMintB:         wrappedSOL,
			TokenBWantedAmount: id * 10,
		})
		require.NoError(t, err)
	}
	// same prefix, different owner
	ledger.Put(solana.NewWallet().PublicKey(), Account{Owner: program.TokenProgramID, Data: program.OfferDiscriminator[:]})
	// right owner, different prefix
	ledger.Put(solana.NewWallet().PublicKey(), Account{Owner: program.EscrowProgramID, Data: []byte{1, 2, 3}})

	got, err := ledger.GetAccountsByPrefix(ctx, program.EscrowProgramID, program.OfferDiscriminator[:])
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.Negative(t, compareKeys(got[i-1].Address, got[i].Address), "results sorted by address")
	}
}

func TestMemoryLedgerFailWith(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.FailWith = errors.New("node down")
	ctx := context.Background()

	_, err := ledger.GetAccount(ctx, usdcMint)
	require.EqualError(t, err, "node down")
	_, _, err = ledger.GetAssetHolding(ctx, usdcMint)
	require.Error(t, err)
	_, err = ledger.LatestBlockhash(ctx)
	require.Error(t, err)
	require.Error(t, ledger.Ping(ctx))
}

func TestMemoryLedgerBroadcastUnsigned(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	payer := solana.NewWallet().PublicKey()

	tx := testTransaction(t, ledger, payer)
	sig1, err := ledger.Broadcast(ctx, tx)
	require.NoError(t, err)
	sig2, err := ledger.Broadcast(ctx, tx)
	require.NoError(t, err)

	assert.False(t, sig1.IsZero())
	assert.NotEqual(t, sig1, sig2)
	assert.Len(t, ledger.Broadcasted(), 2)
}

func compareKeys(a, b solana.PublicKey) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
