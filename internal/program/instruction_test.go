package program

import (
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchorDiscriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type meta struct {
	key      solana.PublicKey
	signer   bool
	writable bool
}

func requireAccounts(t *testing.T, ix solana.Instruction, want []meta) {
	t.Helper()
	got := ix.Accounts()
	require.Len(t, got, len(want))
	for i, m := range want {
		assert.Equal(t, m.key, got[i].PublicKey, "account %d key", i)
		assert.Equal(t, m.signer, got[i].IsSigner, "account %d signer", i)
		assert.Equal(t, m.writable, got[i].IsWritable, "account %d writable", i)
	}
}

func newTestEncoder(t *testing.T) (*Encoder, *Deriver) {
	t.Helper()
	d, err := NewDeriver(EscrowProgramID, 0)
	require.NoError(t, err)
	return NewEncoder(d), d
}

func TestDiscriminatorTable(t *testing.T) {
	names := map[Kind]string{
		KindCreateTrade: "make_offer",
		KindAcceptTrade: "take_offer",
		KindCancelTrade: "refund_offer",
	}
	for kind, name := range names {
		got, ok := Discriminator(kind)
		require.True(t, ok)
		assert.Equal(t, anchorDiscriminator("global", name), got, name)
		assert.Equal(t, name, kind.String())
	}
	assert.Equal(t, anchorDiscriminator("account", "Offer"), OfferDiscriminator)

	_, ok := Discriminator(KindCreateHolding)
	assert.False(t, ok)
}

func TestEncodeCreateTrade(t *testing.T) {
	enc, d := newTestEncoder(t)
	taker := testWallet

	ix, err := enc.Encode(CreateTrade{
		TradeID:             42,
		Maker:               taker,
		TokenMintA:          usdcMint,
		TokenMintB:          wrappedSOL,
		TokenAOfferedAmount: 1_500_000_000,
		TokenBWantedAmount:  3_000_000_000,
		TokenProgram:        TokenProgramID,
	})
	require.NoError(t, err)
	assert.Equal(t, EscrowProgramID, ix.ProgramID())

	makerA, err := d.HoldingAddress(taker, usdcMint, TokenProgramID)
	require.NoError(t, err)

	requireAccounts(t, ix, []meta{
		{AssociatedTokenProgramID, false, false},
		{TokenProgramID, false, false},
		{SystemProgramID, false, false},
		{taker, true, true},
		{usdcMint, false, false},
		{wrappedSOL, false, false},
		{makerA, false, true},
		{offer42Addr, false, true},
		{offer42Vault, false, true},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 32)
	assert.Equal(t, []byte{214, 98, 97, 35, 59, 12, 44, 178}, data[:8])
	assert.Equal(t, []byte{42, 0, 0, 0, 0, 0, 0, 0}, data[8:16])

	args, err := DecodeCreateTradeArgs(data)
	require.NoError(t, err)
	assert.Equal(t, &CreateTradeArgs{TradeID: 42, TokenAOfferedAmount: 1_500_000_000, TokenBWantedAmount: 3_000_000_000}, args)
}

func TestEncodeAcceptTrade(t *testing.T) {
	enc, d := newTestEncoder(t)
	maker := testWallet
	taker := solana.NewWallet().PublicKey()

	ix, err := enc.Encode(AcceptTrade{
		TradeID:      42,
		Taker:        taker,
		Maker:        maker,
		TokenMintA:   usdcMint,
		TokenMintB:   wrappedSOL,
		TokenProgram: TokenProgramID,
	})
	require.NoError(t, err)

	takerA, _ := d.HoldingAddress(taker, usdcMint, TokenProgramID)
	takerB, _ := d.HoldingAddress(taker, wrappedSOL, TokenProgramID)
	makerB, _ := d.HoldingAddress(maker, wrappedSOL, TokenProgramID)

	requireAccounts(t, ix, []meta{
		{AssociatedTokenProgramID, false, false},
		{TokenProgramID, false, false},
		{SystemProgramID, false, false},
		{taker, true, true},
		{maker, false, true},
		{usdcMint, false, false},
		{wrappedSOL, false, false},
		{takerA, false, true},
		{takerB, false, true},
		{makerB, false, true},
		{offer42Addr, false, true},
		{offer42Vault, false, true},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{128, 156, 242, 207, 237, 192, 103, 240}, data)
}

func TestEncodeCancelTrade(t *testing.T) {
	enc, d := newTestEncoder(t)
	maker := testWallet

	ix, err := enc.Encode(CancelTrade{
		TradeID:      42,
		Maker:        maker,
		TokenMintA:   usdcMint,
		TokenProgram: TokenProgramID,
	})
	require.NoError(t, err)

	makerA, _ := d.HoldingAddress(maker, usdcMint, TokenProgramID)
	requireAccounts(t, ix, []meta{
		{TokenProgramID, false, false},
		{SystemProgramID, false, false},
		{maker, true, true},
		{usdcMint, false, false},
		{makerA, false, true},
		{offer42Addr, false, true},
		{offer42Vault, false, true},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{171, 18, 70, 32, 244, 121, 60, 75}, data)
}

func TestEncodeCreateHolding(t *testing.T) {
	enc, _ := newTestEncoder(t)
	payer := solana.NewWallet().PublicKey()

	ix, err := enc.Encode(CreateHolding{
		Payer:        payer,
		Owner:        testWallet,
		Mint:         usdcMint,
		TokenProgram: Token2022ProgramID,
	})
	require.NoError(t, err)
	assert.Equal(t, AssociatedTokenProgramID, ix.ProgramID())

	requireAccounts(t, ix, []meta{
		{payer, true, true},
		{solana.MustPublicKeyFromBase58("GdjpegrtGwU3pgtzPivYVViSA8rmGL248qBVKzsrU3DD"), false, true},
		{testWallet, false, false},
		{usdcMint, false, false},
		{SystemProgramID, false, false},
		{Token2022ProgramID, false, false},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestEncodeTokenExtensionsSwapsProgram(t *testing.T) {
	enc, _ := newTestEncoder(t)
	ix, err := enc.Encode(CancelTrade{
		TradeID:      7,
		Maker:        testWallet,
		TokenMintA:   usdcMint,
		TokenProgram: TokenProgramFor(true),
	})
	require.NoError(t, err)
	assert.Equal(t, Token2022ProgramID, ix.Accounts()[0].PublicKey)
}

func TestEncodeRejectsOffCurveWallet(t *testing.T) {
	enc, _ := newTestEncoder(t)
	_, err := enc.Encode(CancelTrade{
		TradeID:      1,
		Maker:        offCurveKey,
		TokenMintA:   usdcMint,
		TokenProgram: TokenProgramID,
	})
	require.ErrorIs(t, err, ErrOwnerOffCurve)
}

func TestEncodeAllKeepsOrder(t *testing.T) {
	enc, _ := newTestEncoder(t)
	ops := []Operation{
		CreateHolding{Payer: testWallet, Owner: testWallet, Mint: usdcMint, TokenProgram: TokenProgramID},
		CancelTrade{TradeID: 42, Maker: testWallet, TokenMintA: usdcMint, TokenProgram: TokenProgramID},
	}
	ixs, err := enc.EncodeAll(ops)
	require.NoError(t, err)
	require.Len(t, ixs, 2)
	assert.Equal(t, AssociatedTokenProgramID, ixs[0].ProgramID())
	assert.Equal(t, EscrowProgramID, ixs[1].ProgramID())
}

func TestDecodeCreateTradeArgsRejectsOtherKinds(t *testing.T) {
	data, err := payload(KindAcceptTrade, 1, 2, 3)
	require.NoError(t, err)
	_, err = DecodeCreateTradeArgs(data)
	require.ErrorIs(t, err, ErrUnrecognizedRecordType)

	_, err = DecodeCreateTradeArgs(data[:10])
	require.ErrorIs(t, err, ErrRecordTooShort)
}
