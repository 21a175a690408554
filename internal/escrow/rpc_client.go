package escrow

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RPCClient reads the ledger and broadcasts transactions through a Solana
// JSON-RPC node.
type RPCClient struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	cb         *gobreaker.CircuitBreaker
	skipCheck  bool
}

type RPCClientConfig struct {
	RPCURL     string
	Commitment string
	// SkipPreflight disables the node's simulation before broadcasting.
	SkipPreflight bool
}

func NewRPCClient(cfg RPCClientConfig) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment != "" {
		commitment = rpc.CommitmentType(cfg.Commitment)
	}
	switch commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return nil, fmt.Errorf("unsupported commitment %q", cfg.Commitment)
	}

	return &RPCClient{
		client:     rpc.New(cfg.RPCURL),
		commitment: commitment,
		cb:         newCircuitBreaker(cfg.RPCURL),
		skipCheck:  cfg.SkipPreflight,
	}, nil
}

func (c *RPCClient) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		out, err := c.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return (*Account)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		if out == nil || out.Value == nil {
			return (*Account)(nil), nil
		}
		return &Account{
			Owner:    out.Value.Owner,
			Lamports: out.Value.Lamports,
			Data:     accountData(out.Value),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	return res.(*Account), nil
}

func (c *RPCClient) Exists(ctx context.Context, address solana.PublicKey) (bool, error) {
	acct, err := c.GetAccount(ctx, address)
	if err != nil {
		return false, err
	}
	return acct != nil, nil
}

func (c *RPCClient) GetAccountsByPrefix(ctx context.Context, programID solana.PublicKey, prefix []byte) ([]KeyedAccount, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
			Filters: []rpc.RPCFilter{
				{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(prefix)}},
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts %s: %w", programID, err)
	}

	items := res.(rpc.GetProgramAccountsResult)
	out := make([]KeyedAccount, 0, len(items))
	for _, item := range items {
		if item == nil || item.Account == nil {
			continue
		}
		out = append(out, KeyedAccount{
			Address: item.Pubkey,
			Account: Account{
				Owner:    item.Account.Owner,
				Lamports: item.Account.Lamports,
				Data:     accountData(item.Account),
			},
		})
	}
	return out, nil
}

func (c *RPCClient) GetAssetHolding(ctx context.Context, address solana.PublicKey) (uint64, bool, error) {
	acct, err := c.GetAccount(ctx, address)
	if err != nil {
		return 0, false, err
	}
	if acct == nil {
		return 0, false, nil
	}
	amount, err := decodeTokenAmount(acct.Data)
	if err != nil {
		return 0, false, fmt.Errorf("token account %s: %w", address, err)
	}
	return amount, true, nil
}

func (c *RPCClient) GetAssetDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	acct, err := c.GetAccount(ctx, mint)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}
	decimals, err := decodeMintDecimals(acct.Data)
	if err != nil {
		return 0, fmt.Errorf("mint %s: %w", mint, err)
	}
	return decimals, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.client.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipCheck,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func (c *RPCClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	status, err := c.client.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

func accountData(acct *rpc.Account) []byte {
	if acct.Data == nil {
		return nil
	}
	return acct.Data.GetBinary()
}

func decodeTokenAmount(data []byte) (uint64, error) {
	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return 0, fmt.Errorf("decode token account: %w", err)
	}
	return acct.Amount, nil
}

func decodeMintDecimals(data []byte) (uint8, error) {
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return 0, fmt.Errorf("decode mint: %w", err)
	}
	return mint.Decimals, nil
}

// newCircuitBreaker stops hammering a node that keeps failing. It never
// retries: an open breaker fails the read immediately.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > 20 && failureRatio >= 0.7
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.WithField("rpc", name).Warn("rpc node seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.WithField("rpc", name).Info("checking rpc node status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.WithField("rpc", name).Info("rpc node seems ok, restart allowing requests")
			}
		},
	})
}
