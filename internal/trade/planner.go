// Package trade turns create, accept and cancel intents into ordered
// operation lists for a single atomic submission.
package trade

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/amount"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

type CreateIntent struct {
	TradeID             uint64
	Maker               solana.PublicKey
	TokenMintA          solana.PublicKey
	TokenMintB          solana.PublicKey
	TokenAOfferedAmount string
	TokenBWantedAmount  string
	// TokenExtensions selects the Token-2022 program for both mints.
	TokenExtensions bool
}

type AcceptIntent struct {
	TradeID         uint64
	Taker           solana.PublicKey
	TokenExtensions bool
}

type CancelIntent struct {
	TradeID         uint64
	Caller          solana.PublicKey
	TokenExtensions bool
}

// Plan is the output of a successful action: setup operations first, the
// trade operation last, each paired with its encoded instruction.
type Plan struct {
	Action       Action
	TradeID      uint64
	Payer        solana.PublicKey
	OfferAddress solana.PublicKey
	Vault        solana.PublicKey
	// Offer is nil for create plans.
	Offer        *program.Offer
	Operations   []program.Operation
	Instructions []solana.Instruction
}

type Planner struct {
	ledger  escrow.Ledger
	deriver *program.Deriver
	encoder *program.Encoder
	log     *log.Entry
}

func NewPlanner(ledger escrow.Ledger, deriver *program.Deriver) *Planner {
	return &Planner{
		ledger:  ledger,
		deriver: deriver,
		encoder: program.NewEncoder(deriver),
		log:     log.WithField("component", "trade"),
	}
}

// ProgramID is the escrow program plans are built against.
func (p *Planner) ProgramID() solana.PublicKey {
	return p.deriver.ProgramID()
}

// PlanCreate builds the operations that lock TokenAOfferedAmount of mint A
// in a new vault. A missing maker holding for mint A is created first.
func (p *Planner) PlanCreate(ctx context.Context, in CreateIntent) (*Plan, error) {
	fail := failer(ActionCreate, in.TradeID)
	tokenProgram := program.TokenProgramFor(in.TokenExtensions)

	// validating
	if in.TokenMintA.Equals(in.TokenMintB) {
		return nil, fail(StageValidating, fmt.Errorf("%w: offered and wanted mint are both %s", ErrInvalidInput, in.TokenMintA))
	}
	if !program.IsOnCurve(in.Maker) {
		return nil, fail(StageValidating, fmt.Errorf("%w: maker %s is not a wallet address", ErrInvalidInput, in.Maker))
	}
	if err := validatePositive(in.TokenAOfferedAmount); err != nil {
		return nil, fail(StageValidating, fmt.Errorf("%w: offered amount: %v", ErrInvalidInput, err))
	}
	if err := validatePositive(in.TokenBWantedAmount); err != nil {
		return nil, fail(StageValidating, fmt.Errorf("%w: wanted amount: %v", ErrInvalidInput, err))
	}

	// resolving
	offerAddr, _, err := p.deriver.OfferAddress(in.TradeID)
	if err != nil {
		return nil, fail(StageResolving, err)
	}
	vault, err := p.deriver.VaultAddress(offerAddr, in.TokenMintA, tokenProgram)
	if err != nil {
		return nil, fail(StageResolving, err)
	}
	makerA, err := p.deriver.HoldingAddress(in.Maker, in.TokenMintA, tokenProgram)
	if err != nil {
		return nil, fail(StageResolving, err)
	}

	var (
		offerExists          bool
		decimalsA, decimalsB uint8
		balanceA             uint64
		foundA               bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		offerExists, err = p.ledger.Exists(gctx, offerAddr)
		return err
	})
	g.Go(func() (err error) {
		decimalsA, err = p.ledger.GetAssetDecimals(gctx, in.TokenMintA)
		return err
	})
	g.Go(func() (err error) {
		decimalsB, err = p.ledger.GetAssetDecimals(gctx, in.TokenMintB)
		return err
	})
	g.Go(func() (err error) {
		balanceA, foundA, err = p.ledger.GetAssetHolding(gctx, makerA)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fail(StageResolving, err)
	}
	if offerExists {
		return nil, fail(StageResolving, fmt.Errorf("%w: trade %d already exists at %s", ErrInvalidInput, in.TradeID, offerAddr))
	}

	offered, err := parsePositive(in.TokenAOfferedAmount, decimalsA)
	if err != nil {
		return nil, fail(StageResolving, fmt.Errorf("%w: offered amount: %v", ErrInvalidInput, err))
	}
	wanted, err := parsePositive(in.TokenBWantedAmount, decimalsB)
	if err != nil {
		return nil, fail(StageResolving, fmt.Errorf("%w: wanted amount: %v", ErrInvalidInput, err))
	}

	// assembling setup
	var ops []program.Operation
	switch {
	case !foundA:
		ops = append(ops, program.CreateHolding{
			Payer:        in.Maker,
			Owner:        in.Maker,
			Mint:         in.TokenMintA,
			TokenProgram: tokenProgram,
		})
	case balanceA < offered:
		return nil, fail(StageAssemblingSetup, &BalanceError{
			Account:  makerA,
			Mint:     in.TokenMintA,
			Have:     balanceA,
			Need:     offered,
			Decimals: decimalsA,
		})
	}

	ops = append(ops, program.CreateTrade{
		TradeID:             in.TradeID,
		Maker:               in.Maker,
		TokenMintA:          in.TokenMintA,
		TokenMintB:          in.TokenMintB,
		TokenAOfferedAmount: offered,
		TokenBWantedAmount:  wanted,
		TokenProgram:        tokenProgram,
	})

	return p.finish(fail, &Plan{
		Action:       ActionCreate,
		TradeID:      in.TradeID,
		Payer:        in.Maker,
		OfferAddress: offerAddr,
		Vault:        vault,
		Operations:   ops,
	})
}

// PlanAccept builds the operations that swap the taker's mint B for the
// vaulted mint A. Setup order is fixed: taker A, taker B, maker B.
func (p *Planner) PlanAccept(ctx context.Context, in AcceptIntent) (*Plan, error) {
	fail := failer(ActionAccept, in.TradeID)
	tokenProgram := program.TokenProgramFor(in.TokenExtensions)

	if !program.IsOnCurve(in.Taker) {
		return nil, fail(StageValidating, fmt.Errorf("%w: taker %s is not a wallet address", ErrInvalidInput, in.Taker))
	}

	offer, offerAddr, err := p.FetchOffer(ctx, in.TradeID)
	if err != nil {
		return nil, fail(StageResolving, err)
	}
	vault, err := p.deriver.VaultAddress(offerAddr, offer.TokenMintA, tokenProgram)
	if err != nil {
		return nil, fail(StageResolving, err)
	}

	// Fixed slots keep setup order independent of read completion order.
	holdings := [3]struct {
		owner   solana.PublicKey
		mint    solana.PublicKey
		address solana.PublicKey
		amount  uint64
		found   bool
	}{
		{owner: in.Taker, mint: offer.TokenMintA},
		{owner: in.Taker, mint: offer.TokenMintB},
		{owner: offer.Maker, mint: offer.TokenMintB},
	}
	for i := range holdings {
		holdings[i].address, err = p.deriver.HoldingAddress(holdings[i].owner, holdings[i].mint, tokenProgram)
		if err != nil {
			return nil, fail(StageResolving, err)
		}
	}

	var decimalsB uint8
	g, gctx := errgroup.WithContext(ctx)
	for i := range holdings {
		h := &holdings[i]
		g.Go(func() (err error) {
			h.amount, h.found, err = p.ledger.GetAssetHolding(gctx, h.address)
			return err
		})
	}
	g.Go(func() (err error) {
		decimalsB, err = p.ledger.GetAssetDecimals(gctx, offer.TokenMintB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fail(StageAssemblingSetup, err)
	}

	var ops []program.Operation
	takerA, takerB, makerB := holdings[0], holdings[1], holdings[2]
	if !takerA.found {
		ops = append(ops, program.CreateHolding{Payer: in.Taker, Owner: in.Taker, Mint: offer.TokenMintA, TokenProgram: tokenProgram})
	}
	if !takerB.found || takerB.amount < offer.TokenBWantedAmount {
		// Creating the holding would succeed on chain, but the swap would
		// not, so an absent holding fails here too.
		return nil, fail(StageAssemblingSetup, &BalanceError{
			Account:  takerB.address,
			Mint:     offer.TokenMintB,
			Have:     takerB.amount,
			Need:     offer.TokenBWantedAmount,
			Decimals: decimalsB,
			Missing:  !takerB.found,
		})
	}
	if !makerB.found {
		ops = append(ops, program.CreateHolding{Payer: in.Taker, Owner: offer.Maker, Mint: offer.TokenMintB, TokenProgram: tokenProgram})
	}

	ops = append(ops, program.AcceptTrade{
		TradeID:      offer.ID,
		Taker:        in.Taker,
		Maker:        offer.Maker,
		TokenMintA:   offer.TokenMintA,
		TokenMintB:   offer.TokenMintB,
		TokenProgram: tokenProgram,
	})

	return p.finish(fail, &Plan{
		Action:       ActionAccept,
		TradeID:      in.TradeID,
		Payer:        in.Taker,
		OfferAddress: offerAddr,
		Vault:        vault,
		Offer:        offer,
		Operations:   ops,
	})
}

// PlanCancel builds the refund of an open trade back to its maker. Only the
// maker may cancel.
func (p *Planner) PlanCancel(ctx context.Context, in CancelIntent) (*Plan, error) {
	fail := failer(ActionCancel, in.TradeID)
	tokenProgram := program.TokenProgramFor(in.TokenExtensions)

	if in.Caller.IsZero() {
		return nil, fail(StageValidating, fmt.Errorf("%w: caller is required", ErrInvalidInput))
	}

	offer, offerAddr, err := p.FetchOffer(ctx, in.TradeID)
	if err != nil {
		return nil, fail(StageResolving, err)
	}
	if !offer.Maker.Equals(in.Caller) {
		return nil, fail(StageResolving, fmt.Errorf("%w: %s is not the maker of trade %d", ErrNotAuthorized, in.Caller, in.TradeID))
	}
	vault, err := p.deriver.VaultAddress(offerAddr, offer.TokenMintA, tokenProgram)
	if err != nil {
		return nil, fail(StageResolving, err)
	}

	return p.finish(fail, &Plan{
		Action:       ActionCancel,
		TradeID:      in.TradeID,
		Payer:        in.Caller,
		OfferAddress: offerAddr,
		Vault:        vault,
		Offer:        offer,
		Operations: []program.Operation{program.CancelTrade{
			TradeID:      offer.ID,
			Maker:        offer.Maker,
			TokenMintA:   offer.TokenMintA,
			TokenProgram: tokenProgram,
		}},
	})
}

// FetchOffer reads and decodes the trade record for id.
func (p *Planner) FetchOffer(ctx context.Context, id uint64) (*program.Offer, solana.PublicKey, error) {
	addr, _, err := p.deriver.OfferAddress(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	acct, err := p.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, addr, err
	}
	if acct == nil {
		return nil, addr, fmt.Errorf("%w: trade %d at %s", ErrTradeNotFound, id, addr)
	}
	if !acct.Owner.Equals(p.ProgramID()) {
		return nil, addr, fmt.Errorf("%w: %s is owned by %s", program.ErrUnrecognizedRecordType, addr, acct.Owner)
	}
	offer, err := program.DecodeOffer(acct.Data)
	if err != nil {
		return nil, addr, fmt.Errorf("decode trade %d: %w", id, err)
	}
	return offer, addr, nil
}

func (p *Planner) finish(fail func(Stage, error) error, plan *Plan) (*Plan, error) {
	ixs, err := p.encoder.EncodeAll(plan.Operations)
	if err != nil {
		return nil, fail(StageEncoding, err)
	}
	plan.Instructions = ixs

	p.log.WithFields(log.Fields{
		"action":     plan.Action,
		"trade_id":   plan.TradeID,
		"operations": len(plan.Operations),
	}).Debug("plan ready")
	return plan, nil
}

func failer(action Action, id uint64) func(Stage, error) error {
	return func(stage Stage, err error) error {
		return &PlanError{Action: action, Stage: stage, TradeID: id, Err: err}
	}
}

// validatePositive rejects malformed amounts and amounts whose digits are
// all zero, before any ledger read.
func validatePositive(text string) error {
	if err := amount.Validate(text); err != nil {
		return err
	}
	if strings.Trim(strings.TrimSpace(text), "0.") == "" {
		return fmt.Errorf("amount %q must be greater than zero", text)
	}
	return nil
}

// parsePositive also catches amounts that truncate to zero at the mint's
// precision.
func parsePositive(text string, decimals uint8) (uint64, error) {
	v, err := amount.Parse(text, decimals)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("amount %q is zero at %d decimals", text, decimals)
	}
	return v, nil
}
