package program

import (
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
)

// OfferSeed is the constant prefix of every Offer PDA seed list.
const OfferSeed = "offer"

const defaultCacheSize = 1024

// DeriveOfferAddress returns the Offer PDA for id under programID and its bump.
// The id is encoded as 8 little-endian bytes, matching the program's seeds.
func DeriveOfferAddress(programID solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	var idLE [8]byte
	binary.LittleEndian.PutUint64(idLE[:], id)

	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(OfferSeed), idLE[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: offer %d: %v", ErrDerivationExhausted, id, err)
	}
	return addr, bump, nil
}

// DeriveHoldingAddress returns the associated token account of owner for mint.
// Owners without a private key (PDAs) are rejected unless allowOffCurve is set.
func DeriveHoldingAddress(owner, mint, tokenProgram solana.PublicKey, allowOffCurve bool) (solana.PublicKey, error) {
	if !allowOffCurve && !IsOnCurve(owner) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrOwnerOffCurve, owner)
	}

	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: holding of %s for %s: %v", ErrDerivationExhausted, owner, mint, err)
	}
	return addr, nil
}

// IsOnCurve reports whether key is a valid ed25519 point, i.e. whether a
// private key can exist for it.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

type offerAddress struct {
	addr solana.PublicKey
	bump uint8
}

type holdingKey struct {
	owner        solana.PublicKey
	mint         solana.PublicKey
	tokenProgram solana.PublicKey
}

// Deriver memoizes derivations for one escrow program. Safe for concurrent use.
type Deriver struct {
	programID solana.PublicKey
	offers    *lru.Cache[uint64, offerAddress]
	holdings  *lru.Cache[holdingKey, solana.PublicKey]
}

// NewDeriver builds a Deriver keeping up to cacheSize entries per address kind.
func NewDeriver(programID solana.PublicKey, cacheSize int) (*Deriver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	offers, err := lru.New[uint64, offerAddress](cacheSize)
	if err != nil {
		return nil, err
	}
	holdings, err := lru.New[holdingKey, solana.PublicKey](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Deriver{
		programID: programID,
		offers:    offers,
		holdings:  holdings,
	}, nil
}

func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

func (d *Deriver) OfferAddress(id uint64) (solana.PublicKey, uint8, error) {
	if cached, ok := d.offers.Get(id); ok {
		return cached.addr, cached.bump, nil
	}
	addr, bump, err := DeriveOfferAddress(d.programID, id)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	d.offers.Add(id, offerAddress{addr: addr, bump: bump})
	return addr, bump, nil
}

// HoldingAddress derives a wallet's token account. The owner must be on curve.
func (d *Deriver) HoldingAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	return d.holding(owner, mint, tokenProgram, false)
}

// VaultAddress derives the token account owned by an Offer PDA.
func (d *Deriver) VaultAddress(offer, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	return d.holding(offer, mint, tokenProgram, true)
}

func (d *Deriver) holding(owner, mint, tokenProgram solana.PublicKey, allowOffCurve bool) (solana.PublicKey, error) {
	if !allowOffCurve && !IsOnCurve(owner) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrOwnerOffCurve, owner)
	}
	key := holdingKey{owner: owner, mint: mint, tokenProgram: tokenProgram}
	if cached, ok := d.holdings.Get(key); ok {
		return cached, nil
	}
	addr, err := DeriveHoldingAddress(owner, mint, tokenProgram, true)
	if err != nil {
		return solana.PublicKey{}, err
	}
	d.holdings.Add(key, addr)
	return addr, nil
}
