package program

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// OfferSize is the fixed size of an Offer account: discriminator, id, maker,
// mint A, mint B, wanted amount and bump.
const OfferSize = 8 + 8 + 32 + 32 + 32 + 8 + 1

// OfferDiscriminator prefixes every Offer account (sha256("account:Offer")[:8]).
var OfferDiscriminator = [8]byte{215, 88, 60, 71, 170, 162, 73, 229}

// Offer is the on-chain state of one trade.
type Offer struct {
	ID                 uint64
	Maker              solana.PublicKey
	TokenMintA         solana.PublicKey
	TokenMintB         solana.PublicKey
	TokenBWantedAmount uint64
	Bump               uint8
}

// MatchesOfferDiscriminator is a cheap prefilter for bulk scans.
func MatchesOfferDiscriminator(data []byte) bool {
	return len(data) >= len(OfferDiscriminator) && bytes.Equal(data[:len(OfferDiscriminator)], OfferDiscriminator[:])
}

// DecodeOffer parses raw account data. Offsets are fixed by the program; a
// layout change must come with a new discriminator.
func DecodeOffer(data []byte) (*Offer, error) {
	if len(data) < OfferSize {
		return nil, fmt.Errorf("%w: offer needs %d bytes, got %d", ErrRecordTooShort, OfferSize, len(data))
	}
	if !MatchesOfferDiscriminator(data) {
		return nil, fmt.Errorf("%w: discriminator %v", ErrUnrecognizedRecordType, data[:8])
	}

	dec := bin.NewBorshDecoder(data[len(OfferDiscriminator):])
	var (
		offer Offer
		err   error
	)
	if offer.ID, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("decode offer id: %w", err)
	}
	if offer.Maker, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode offer maker: %w", err)
	}
	if offer.TokenMintA, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode offer mint a: %w", err)
	}
	if offer.TokenMintB, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode offer mint b: %w", err)
	}
	if offer.TokenBWantedAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("decode offer wanted amount: %w", err)
	}
	if offer.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("decode offer bump: %w", err)
	}
	return &offer, nil
}

// EncodeOffer lays an Offer out the way the program stores it. The client never
// writes offers on chain; this backs fixtures and the in-memory ledger.
func EncodeOffer(offer *Offer) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(OfferSize)
	enc := bin.NewBorshEncoder(buf)
	_ = enc.WriteBytes(OfferDiscriminator[:], false)
	_ = enc.WriteUint64(offer.ID, binary.LittleEndian)
	_ = enc.WriteBytes(offer.Maker[:], false)
	_ = enc.WriteBytes(offer.TokenMintA[:], false)
	_ = enc.WriteBytes(offer.TokenMintB[:], false)
	_ = enc.WriteUint64(offer.TokenBWantedAmount, binary.LittleEndian)
	_ = enc.WriteUint8(offer.Bump)
	return buf.Bytes()
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}
