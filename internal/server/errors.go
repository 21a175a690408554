package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/amount"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/idempotency"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

type errorResponse struct {
	Error     string             `json:"error"`
	Action    string             `json:"action,omitempty"`
	Stage     string             `json:"stage,omitempty"`
	TradeID   *uint64            `json:"trade_id,omitempty"`
	Shortfall *shortfallResponse `json:"shortfall,omitempty"`
}

type shortfallResponse struct {
	Account   string `json:"account"`
	Mint      string `json:"mint"`
	Have      string `json:"have"`
	Need      string `json:"need"`
	Shortfall string `json:"shortfall"`
	Decimals  uint8  `json:"decimals"`
	Missing   bool   `json:"missing"`
}

// statusFor maps domain errors onto HTTP status codes. An account at a trade
// address that does not decode as an offer is 422. Anything unknown is
// treated as a ledger failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trade.ErrInvalidInput),
		errors.Is(err, amount.ErrInvalidAmount),
		errors.Is(err, program.ErrOwnerOffCurve),
		errors.Is(err, escrow.ErrInvalidSignatures):
		return http.StatusBadRequest
	case errors.Is(err, trade.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, trade.ErrTradeNotFound):
		return http.StatusNotFound
	case errors.Is(err, idempotency.ErrKeyReused):
		return http.StatusConflict
	case errors.Is(err, trade.ErrInsufficientBalance),
		errors.Is(err, trade.ErrMissingFunds),
		errors.Is(err, program.ErrUnrecognizedRecordType),
		errors.Is(err, program.ErrRecordTooShort):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func errorBody(err error) errorResponse {
	resp := errorResponse{Error: err.Error()}

	var planErr *trade.PlanError
	if errors.As(err, &planErr) {
		id := planErr.TradeID
		resp.Action = string(planErr.Action)
		resp.Stage = planErr.Stage.String()
		resp.TradeID = &id
	}

	var balErr *trade.BalanceError
	if errors.As(err, &balErr) {
		resp.Shortfall = &shortfallResponse{
			Account:   balErr.Account.String(),
			Mint:      balErr.Mint.String(),
			Have:      amount.Format(balErr.Have, balErr.Decimals),
			Need:      amount.Format(balErr.Need, balErr.Decimals),
			Shortfall: amount.Format(balErr.Shortfall(), balErr.Decimals),
			Decimals:  balErr.Decimals,
			Missing:   balErr.Missing,
		}
	}
	return resp
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	writeJSON(w, status, errorBody(err))
	return status
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
