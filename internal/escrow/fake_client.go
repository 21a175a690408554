package escrow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	bin "github.com/gagliardetto/binary"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

// MemoryLedger is an in-memory Ledger and Broadcaster for tests and local
// development. Broadcast records transactions instead of sending them.
type MemoryLedger struct {
	mu        sync.RWMutex
	accounts  map[solana.PublicKey]Account
	broadcast []*solana.Transaction
	blockhash solana.Hash
	// FailWith, when set, is returned by every read.
	FailWith error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:  make(map[solana.PublicKey]Account),
		blockhash: solana.HashFromBytes(sha256Sum("memory-ledger")),
	}
}

// Put stores raw account state at address.
func (m *MemoryLedger) Put(address solana.PublicKey, acct Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[address] = acct
}

func (m *MemoryLedger) Delete(address solana.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, address)
}

// PutOffer stores offer at its derived address under programID.
func (m *MemoryLedger) PutOffer(programID solana.PublicKey, offer *program.Offer) (solana.PublicKey, error) {
	addr, _, err := program.DeriveOfferAddress(programID, offer.ID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	m.Put(addr, Account{Owner: programID, Lamports: 1, Data: program.EncodeOffer(offer)})
	return addr, nil
}

// PutHolding stores a token account with the given balance.
func (m *MemoryLedger) PutHolding(address, owner, mint, tokenProgram solana.PublicKey, amount uint64) error {
	acct := token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.Initialized,
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(acct); err != nil {
		return fmt.Errorf("encode token account: %w", err)
	}
	m.Put(address, Account{Owner: tokenProgram, Lamports: 1, Data: buf.Bytes()})
	return nil
}

// PutMint stores a mint with the given decimals.
func (m *MemoryLedger) PutMint(mint, tokenProgram solana.PublicKey, decimals uint8) error {
	acct := token.Mint{
		Supply:        1,
		Decimals:      decimals,
		IsInitialized: true,
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(acct); err != nil {
		return fmt.Errorf("encode mint: %w", err)
	}
	m.Put(mint, Account{Owner: tokenProgram, Lamports: 1, Data: buf.Bytes()})
	return nil
}

func (m *MemoryLedger) GetAccount(_ context.Context, address solana.PublicKey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	acct, ok := m.accounts[address]
	if !ok {
		return nil, nil
	}
	acct.Data = append([]byte(nil), acct.Data...)
	return &acct, nil
}

func (m *MemoryLedger) Exists(ctx context.Context, address solana.PublicKey) (bool, error) {
	acct, err := m.GetAccount(ctx, address)
	if err != nil {
		return false, err
	}
	return acct != nil, nil
}

// GetAccountsByPrefix returns accounts owned by programID whose data starts
// with prefix, sorted by address.
func (m *MemoryLedger) GetAccountsByPrefix(_ context.Context, programID solana.PublicKey, prefix []byte) ([]KeyedAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []KeyedAccount
	for addr, acct := range m.accounts {
		if !acct.Owner.Equals(programID) || !bytes.HasPrefix(acct.Data, prefix) {
			continue
		}
		acct.Data = append([]byte(nil), acct.Data...)
		out = append(out, KeyedAccount{Address: addr, Account: acct})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (m *MemoryLedger) GetAssetHolding(ctx context.Context, address solana.PublicKey) (uint64, bool, error) {
	acct, err := m.GetAccount(ctx, address)
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

func (m *MemoryLedger) GetAssetDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	acct, err := m.GetAccount(ctx, mint)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}
	return decodeMintDecimals(acct.Data)
}

// SetBlockhash replaces the hash LatestBlockhash reports.
func (m *MemoryLedger) SetBlockhash(h solana.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockhash = h
}

func (m *MemoryLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return solana.Hash{}, m.FailWith
	}
	return m.blockhash, nil
}

// Broadcast records tx and returns its first signature, or a hash of the
// message when the transaction is unsigned.
func (m *MemoryLedger) Broadcast(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return solana.Signature{}, m.FailWith
	}
	m.broadcast = append(m.broadcast, tx)
	if len(tx.Signatures) > 0 && !tx.Signatures[0].IsZero() {
		return tx.Signatures[0], nil
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("marshal message: %w", err)
	}
	var sig solana.Signature
	first := sha256.Sum256(msg)
	binary.BigEndian.PutUint64(first[:8], uint64(len(m.broadcast)))
	second := sha256.Sum256(first[:])
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])
	return sig, nil
}

// Broadcasted returns the transactions received so far.
func (m *MemoryLedger) Broadcasted() []*solana.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*solana.Transaction(nil), m.broadcast...)
}

func (m *MemoryLedger) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FailWith
}

func sha256Sum(input string) []byte {
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}
