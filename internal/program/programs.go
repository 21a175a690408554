// Package program holds the wire contract of the deployed escrow program:
// well-known program ids, address derivation, the Offer account layout and
// the instruction encoder.
package program

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// EscrowProgramID is the deployed escrow program.
	EscrowProgramID = solana.MustPublicKeyFromBase58("6zSSLr3UjdtLcLXRrCSvJAvRHdFbbMnkBjxagfttFR2r")

	SystemProgramID          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID       = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

var (
	ErrUnrecognizedRecordType = errors.New("unrecognized record type")
	ErrRecordTooShort         = errors.New("record too short")
	ErrDerivationExhausted    = errors.New("no viable bump seed")
	ErrOwnerOffCurve          = errors.New("owner is not on the ed25519 curve")
	ErrUnknownOperation       = errors.New("unknown operation")
)

// TokenProgramFor returns the token program that owns mints of the requested
// flavour.
func TokenProgramFor(extensions bool) solana.PublicKey {
	if extensions {
		return Token2022ProgramID
	}
	return TokenProgramID
}
