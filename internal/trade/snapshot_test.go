package trade

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

// scanLedger returns a fixed account list regardless of the prefix filter.
type scanLedger struct {
	escrow.Ledger
	accounts []escrow.KeyedAccount
	err      error
}

func (s scanLedger) GetAccountsByPrefix(context.Context, solana.PublicKey, []byte) ([]escrow.KeyedAccount, error) {
	return s.accounts, s.err
}

func offerAccount(id uint64) escrow.KeyedAccount {
	return escrow.KeyedAccount{
		Address: solana.NewWallet().PublicKey(),
		Account: escrow.Account{
			Owner: program.EscrowProgramID,
			Data: program.EncodeOffer(&program.Offer{
				ID:                 id,
				Maker:              solana.NewWallet().PublicKey(),
				TokenMintA:         solana.NewWallet().PublicKey(),
				TokenMintB:         solana.NewWallet().PublicKey(),
				TokenBWantedAmount: id * 100,
			}),
		},
	}
}

func newScanPlanner(t *testing.T, ledger escrow.Ledger) *Planner {
	t.Helper()
	d, err := program.NewDeriver(program.EscrowProgramID, 0)
	require.NoError(t, err)
	return NewPlanner(ledger, d)
}

func TestSnapshotSkipsUnrelatedAccounts(t *testing.T) {
	first, second := offerAccount(9), offerAccount(2)
	unrelated := escrow.KeyedAccount{
		Address: solana.NewWallet().PublicKey(),
		Account: escrow.Account{Owner: program.EscrowProgramID, Data: make([]byte, program.OfferSize)},
	}
	ledger := scanLedger{accounts: []escrow.KeyedAccount{first, unrelated, second}}

	snap, err := newScanPlanner(t, ledger).Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Offers, 2)
	assert.Equal(t, uint64(9), snap.Offers[0].Offer.ID)
	assert.Equal(t, first.Address, snap.Offers[0].Address)
	assert.Equal(t, uint64(2), snap.Offers[1].Offer.ID)

	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, unrelated.Address, snap.Skipped[0].Address)
	assert.ErrorIs(t, snap.Skipped[0].Reason, program.ErrUnrecognizedRecordType)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestSnapshotSkipsTruncatedRecord(t *testing.T) {
	short := offerAccount(1)
	short.Account.Data = short.Account.Data[:program.OfferSize-1]
	ledger := scanLedger{accounts: []escrow.KeyedAccount{short, offerAccount(4)}}

	snap, err := newScanPlanner(t, ledger).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Offers, 1)
	require.Len(t, snap.Skipped, 1)
	assert.ErrorIs(t, snap.Skipped[0].Reason, program.ErrRecordTooShort)

	entry, ok := snap.Find(4)
	require.True(t, ok)
	assert.Equal(t, uint64(400), entry.Offer.TokenBWantedAmount)
	_, ok = snap.Find(1)
	assert.False(t, ok)
}

func TestSnapshotLedgerFailure(t *testing.T) {
	ledger := scanLedger{err: errors.New("timeout")}
	_, err := newScanPlanner(t, ledger).Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSnapshotFromMemoryLedger(t *testing.T) {
	ledger := escrow.NewMemoryLedger()
	for id := uint64(1); id <= 3; id++ {
		_, err := ledger.PutOffer(program.EscrowProgramID, &program.Offer{
			ID:                 id,
			Maker:              solana.NewWallet().PublicKey(),
			TokenMintA:         solana.NewWallet().PublicKey(),
			TokenMintB:         solana.NewWallet().PublicKey(),
			TokenBWantedAmount: 1,
		})
		require.NoError(t, err)
	}

	snap, err := newScanPlanner(t, ledger).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Offers, 3)
	assert.Empty(t, snap.Skipped)
}
