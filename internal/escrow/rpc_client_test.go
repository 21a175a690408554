package escrow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

func TestNewRPCClientValidation(t *testing.T) {
	_, err := NewRPCClient(RPCClientConfig{})
	require.Error(t, err)

	_, err = NewRPCClient(RPCClientConfig{RPCURL: "http://127.0.0.1:8899", Commitment: "eventually"})
	require.Error(t, err)

	c, err := NewRPCClient(RPCClientConfig{RPCURL: "http://127.0.0.1:8899", Commitment: "finalized"})
	require.NoError(t, err)
	assert.Equal(t, "finalized", string(c.commitment))
}

func TestDecodeTokenAccountRoundTrip(t *testing.T) {
	ledger := NewMemoryLedger()
	addr := program.SystemProgramID
	require.NoError(t, ledger.PutHolding(addr, usdcMint, usdcMint, program.TokenProgramID, 77))

	acct, err := ledger.GetAccount(context.Background(), addr)
	require.NoError(t, err)
	amount, err := decodeTokenAmount(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), amount)

	_, err = decodeTokenAmount([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestRPCClientLive(t *testing.T) {
	endpoint := os.Getenv("SOLANA_TEST_RPC")
	if endpoint == "" {
		t.Skip("SOLANA_TEST_RPC not set")
	}

	c, err := NewRPCClient(RPCClientConfig{RPCURL: endpoint})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.Ping(ctx))

	ok, err := c.Exists(ctx, program.TokenProgramID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.LatestBlockhash(ctx)
	require.NoError(t, err)

	_, err = c.GetAccountsByPrefix(ctx, program.EscrowProgramID, program.OfferDiscriminator[:])
	require.NoError(t, err)
}
