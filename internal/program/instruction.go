package program

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Kind tags an Operation variant.
type Kind uint8

const (
	KindCreateHolding Kind = iota + 1
	KindCreateTrade
	KindAcceptTrade
	KindCancelTrade
)

func (k Kind) String() string {
	switch k {
	case KindCreateHolding:
		return "create_holding"
	case KindCreateTrade:
		return "make_offer"
	case KindAcceptTrade:
		return "take_offer"
	case KindCancelTrade:
		return "refund_offer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Instruction discriminators of the escrow program, sha256("global:<name>")[:8].
var discriminators = map[Kind][8]byte{
	KindCreateTrade: {214, 98, 97, 35, 59, 12, 44, 178},
	KindAcceptTrade: {128, 156, 242, 207, 237, 192, 103, 240},
	KindCancelTrade: {171, 18, 70, 32, 244, 121, 60, 75},
}

// Discriminator returns the 8-byte prefix of an escrow instruction kind.
func Discriminator(k Kind) ([8]byte, bool) {
	d, ok := discriminators[k]
	return d, ok
}

// Operation is one step of a plan. The set of variants is closed.
type Operation interface {
	Kind() Kind
}

// CreateHolding creates Owner's associated token account for Mint, paid by Payer.
type CreateHolding struct {
	Payer        solana.PublicKey
	Owner        solana.PublicKey
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
}

// CreateTrade is the make_offer instruction.
type CreateTrade struct {
	TradeID             uint64
	Maker               solana.PublicKey
	TokenMintA          solana.PublicKey
	TokenMintB          solana.PublicKey
	TokenAOfferedAmount uint64
	TokenBWantedAmount  uint64
	TokenProgram        solana.PublicKey
}

// AcceptTrade is the take_offer instruction.
type AcceptTrade struct {
	TradeID      uint64
	Taker        solana.PublicKey
	Maker        solana.PublicKey
	TokenMintA   solana.PublicKey
	TokenMintB   solana.PublicKey
	TokenProgram solana.PublicKey
}

// CancelTrade is the refund_offer instruction.
type CancelTrade struct {
	TradeID      uint64
	Maker        solana.PublicKey
	TokenMintA   solana.PublicKey
	TokenProgram solana.PublicKey
}

func (CreateHolding) Kind() Kind { return KindCreateHolding }
func (CreateTrade) Kind() Kind   { return KindCreateTrade }
func (AcceptTrade) Kind() Kind   { return KindAcceptTrade }
func (CancelTrade) Kind() Kind   { return KindCancelTrade }

// Encoder turns operations into program instructions. The escrow program
// indexes accounts positionally, so the order below is part of the wire
// contract.
type Encoder struct {
	deriver *Deriver
}

func NewEncoder(deriver *Deriver) *Encoder {
	return &Encoder{deriver: deriver}
}

// Encode builds the instruction for op.
func (e *Encoder) Encode(op Operation) (solana.Instruction, error) {
	switch o := op.(type) {
	case CreateHolding:
		return e.createHolding(o)
	case CreateTrade:
		return e.createTrade(o)
	case AcceptTrade:
		return e.acceptTrade(o)
	case CancelTrade:
		return e.cancelTrade(o)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

// EncodeAll encodes ops in order.
func (e *Encoder) EncodeAll(ops []Operation) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(ops))
	for i, op := range ops {
		ix, err := e.Encode(op)
		if err != nil {
			return nil, fmt.Errorf("encode operation %d (%s): %w", i, op.Kind(), err)
		}
		out = append(out, ix)
	}
	return out, nil
}

func (e *Encoder) createHolding(o CreateHolding) (solana.Instruction, error) {
	ata, err := e.deriver.HoldingAddress(o.Owner, o.Mint, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(o.Payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(o.Owner, false, false),
		solana.NewAccountMeta(o.Mint, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
		solana.NewAccountMeta(o.TokenProgram, false, false),
	}
	return solana.NewInstruction(AssociatedTokenProgramID, accounts, []byte{}), nil
}

func (e *Encoder) createTrade(o CreateTrade) (solana.Instruction, error) {
	offer, _, err := e.deriver.OfferAddress(o.TradeID)
	if err != nil {
		return nil, err
	}
	makerA, err := e.deriver.HoldingAddress(o.Maker, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	vault, err := e.deriver.VaultAddress(offer, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}

	data, err := payload(KindCreateTrade, o.TradeID, o.TokenAOfferedAmount, o.TokenBWantedAmount)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(AssociatedTokenProgramID, false, false),
		solana.NewAccountMeta(o.TokenProgram, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
		solana.NewAccountMeta(o.Maker, true, true),
		solana.NewAccountMeta(o.TokenMintA, false, false),
		solana.NewAccountMeta(o.TokenMintB, false, false),
		solana.NewAccountMeta(makerA, true, false),
		solana.NewAccountMeta(offer, true, false),
		solana.NewAccountMeta(vault, true, false),
	}
	return solana.NewInstruction(e.deriver.ProgramID(), accounts, data), nil
}

func (e *Encoder) acceptTrade(o AcceptTrade) (solana.Instruction, error) {
	offer, _, err := e.deriver.OfferAddress(o.TradeID)
	if err != nil {
		return nil, err
	}
	vault, err := e.deriver.VaultAddress(offer, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	takerA, err := e.deriver.HoldingAddress(o.Taker, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	takerB, err := e.deriver.HoldingAddress(o.Taker, o.TokenMintB, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	makerB, err := e.deriver.HoldingAddress(o.Maker, o.TokenMintB, o.TokenProgram)
	if err != nil {
		return nil, err
	}

	data, err := payload(KindAcceptTrade)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(AssociatedTokenProgramID, false, false),
		solana.NewAccountMeta(o.TokenProgram, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
		solana.NewAccountMeta(o.Taker, true, true),
		solana.NewAccountMeta(o.Maker, true, false),
		solana.NewAccountMeta(o.TokenMintA, false, false),
		solana.NewAccountMeta(o.TokenMintB, false, false),
		solana.NewAccountMeta(takerA, true, false),
		solana.NewAccountMeta(takerB, true, false),
		solana.NewAccountMeta(makerB, true, false),
		solana.NewAccountMeta(offer, true, false),
		solana.NewAccountMeta(vault, true, false),
	}
	return solana.NewInstruction(e.deriver.ProgramID(), accounts, data), nil
}

func (e *Encoder) cancelTrade(o CancelTrade) (solana.Instruction, error) {
	offer, _, err := e.deriver.OfferAddress(o.TradeID)
	if err != nil {
		return nil, err
	}
	makerA, err := e.deriver.HoldingAddress(o.Maker, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}
	vault, err := e.deriver.VaultAddress(offer, o.TokenMintA, o.TokenProgram)
	if err != nil {
		return nil, err
	}

	data, err := payload(KindCancelTrade)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(o.TokenProgram, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
		solana.NewAccountMeta(o.Maker, true, true),
		solana.NewAccountMeta(o.TokenMintA, false, false),
		solana.NewAccountMeta(makerA, true, false),
		solana.NewAccountMeta(offer, true, false),
		solana.NewAccountMeta(vault, true, false),
	}
	return solana.NewInstruction(e.deriver.ProgramID(), accounts, data), nil
}

// payload is the discriminator of k followed by args as u64 little-endian.
func payload(k Kind, args ...uint64) ([]byte, error) {
	disc, ok := discriminators[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, k)
	}
	buf := new(bytes.Buffer)
	buf.Grow(len(disc) + 8*len(args))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := enc.WriteUint64(arg, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// CreateTradeArgs is the decoded make_offer payload.
type CreateTradeArgs struct {
	TradeID             uint64
	TokenAOfferedAmount uint64
	TokenBWantedAmount  uint64
}

// DecodeCreateTradeArgs parses a make_offer payload, checking its discriminator.
func DecodeCreateTradeArgs(data []byte) (*CreateTradeArgs, error) {
	disc := discriminators[KindCreateTrade]
	if len(data) < len(disc)+24 {
		return nil, fmt.Errorf("%w: make_offer payload has %d bytes", ErrRecordTooShort, len(data))
	}
	if !bytes.Equal(data[:len(disc)], disc[:]) {
		return nil, fmt.Errorf("%w: instruction discriminator %v", ErrUnrecognizedRecordType, data[:len(disc)])
	}
	dec := bin.NewBorshDecoder(data[len(disc):])
	var (
		args CreateTradeArgs
		err  error
	)
	if args.TradeID, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	if args.TokenAOfferedAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	if args.TokenBWantedAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	return &args, nil
}
