package trade

import (
	"errors"
	"fmt"

	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/amount"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrTradeNotFound       = errors.New("trade not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMissingFunds        = errors.New("missing funds")
)

// Action names the client action a plan is built for.
type Action string

const (
	ActionCreate Action = "create"
	ActionAccept Action = "accept"
	ActionCancel Action = "cancel"
)

// Stage is a step of the planning state machine.
type Stage int

const (
	StageValidating Stage = iota
	StageResolving
	StageAssemblingSetup
	StageEncoding
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageResolving:
		return "resolving"
	case StageAssemblingSetup:
		return "assembling_setup"
	case StageEncoding:
		return "encoding"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// PlanError reports the action, stage and trade a plan failed on.
type PlanError struct {
	Action  Action
	Stage   Stage
	TradeID uint64
	Err     error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s trade %d: %s: %v", e.Action, e.TradeID, e.Stage, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// BalanceError carries the holding that cannot cover a trade leg.
type BalanceError struct {
	Account  solana.PublicKey
	Mint     solana.PublicKey
	Have     uint64
	Need     uint64
	Decimals uint8
	// Missing is set when the holding account does not exist yet.
	Missing bool
}

// Shortfall is the amount still required, in base units.
func (e *BalanceError) Shortfall() uint64 {
	short, underflow := gethmath.SafeSub(e.Need, e.Have)
	if underflow {
		return 0
	}
	return short
}

func (e *BalanceError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%v: holding %s for mint %s does not exist, need %s",
			ErrMissingFunds, e.Account, e.Mint, amount.Format(e.Need, e.Decimals))
	}
	return fmt.Sprintf("%v: holding %s for mint %s has %s, need %s (short %s)",
		ErrInsufficientBalance, e.Account, e.Mint,
		amount.Format(e.Have, e.Decimals),
		amount.Format(e.Need, e.Decimals),
		amount.Format(e.Shortfall(), e.Decimals))
}

func (e *BalanceError) Unwrap() error {
	if e.Missing {
		return ErrMissingFunds
	}
	return ErrInsufficientBalance
}
