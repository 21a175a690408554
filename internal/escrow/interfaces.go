package escrow

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Ledger abstracts the reads the escrow client makes against the chain.
// Absence is reported through found flags, never through errors.
type Ledger interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	Exists(ctx context.Context, address solana.PublicKey) (bool, error)
	GetAccountsByPrefix(ctx context.Context, programID solana.PublicKey, prefix []byte) ([]KeyedAccount, error)
	GetAssetHolding(ctx context.Context, address solana.PublicKey) (amount uint64, found bool, err error)
	GetAssetDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// Broadcaster submits transactions built from a plan. Confirmation polling
// and retries are its own business.
type Broadcaster interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// HealthChecker is implemented by collaborators that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Account is raw account state. A nil *Account means the account does not exist.
type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

type KeyedAccount struct {
	Address solana.PublicKey
	Account Account
}
