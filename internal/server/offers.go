package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/walletauth"
)

type makeOfferRequest struct {
	TradeID             *uint64 `json:"trade_id"`
	TokenMintA          string  `json:"token_mint_a"`
	TokenMintB          string  `json:"token_mint_b"`
	TokenAOfferedAmount string  `json:"token_a_offered_amount"`
	TokenBWantedAmount  string  `json:"token_b_wanted_amount"`
	TokenExtensions     bool    `json:"token_extensions"`
}

type settleOfferRequest struct {
	TokenExtensions bool `json:"token_extensions"`
}

type offerResponse struct {
	ID                 uint64 `json:"id"`
	Address            string `json:"address"`
	Maker              string `json:"maker"`
	TokenMintA         string `json:"token_mint_a"`
	TokenMintB         string `json:"token_mint_b"`
	TokenBWantedAmount string `json:"token_b_wanted_amount"`
	Bump               uint8  `json:"bump"`
}

type planResponse struct {
	Action       string         `json:"action"`
	TradeID      uint64         `json:"trade_id"`
	Payer        string         `json:"payer"`
	OfferAddress string         `json:"offer_address"`
	Vault        string         `json:"vault"`
	Operations   []string       `json:"operations"`
	Transaction  string         `json:"transaction"`
	Blockhash    string         `json:"recent_blockhash"`
	Offer        *offerResponse `json:"offer,omitempty"`
}

type offerListResponse struct {
	Offers  []offerResponse `json:"offers"`
	Skipped int             `json:"skipped"`
	TakenAt time.Time       `json:"taken_at"`
}

func toOfferResponse(addr solana.PublicKey, o *program.Offer) offerResponse {
	return offerResponse{
		ID:                 o.ID,
		Address:            addr.String(),
		Maker:              o.Maker.String(),
		TokenMintA:         o.TokenMintA.String(),
		TokenMintB:         o.TokenMintB.String(),
		TokenBWantedAmount: strconv.FormatUint(o.TokenBWantedAmount, 10),
		Bump:               o.Bump,
	}
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	s.servePlan(w, r, trade.ActionCreate, func(ctx context.Context, caller solana.PublicKey, body []byte) (*trade.Plan, error) {
		var payload makeOfferRequest
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: invalid json payload", trade.ErrInvalidInput)
		}
		if payload.TradeID == nil {
			return nil, fmt.Errorf("%w: trade_id is required", trade.ErrInvalidInput)
		}
		mintA, err := parseKey("token_mint_a", payload.TokenMintA)
		if err != nil {
			return nil, err
		}
		mintB, err := parseKey("token_mint_b", payload.TokenMintB)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanCreate(ctx, trade.CreateIntent{
			TradeID:             *payload.TradeID,
			Maker:               caller,
			TokenMintA:          mintA,
			TokenMintB:          mintB,
			TokenAOfferedAmount: payload.TokenAOfferedAmount,
			TokenBWantedAmount:  payload.TokenBWantedAmount,
			TokenExtensions:     payload.TokenExtensions,
		})
	})
}

func (s *Server) handleTakeOffer(w http.ResponseWriter, r *http.Request) {
	s.servePlan(w, r, trade.ActionAccept, func(ctx context.Context, caller solana.PublicKey, body []byte) (*trade.Plan, error) {
		id, payload, err := parseSettle(r, body)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanAccept(ctx, trade.AcceptIntent{
			TradeID:         id,
			Taker:           caller,
			TokenExtensions: payload.TokenExtensions,
		})
	})
}

func (s *Server) handleRefundOffer(w http.ResponseWriter, r *http.Request) {
	s.servePlan(w, r, trade.ActionCancel, func(ctx context.Context, caller solana.PublicKey, body []byte) (*trade.Plan, error) {
		id, payload, err := parseSettle(r, body)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanCancel(ctx, trade.CancelIntent{
			TradeID:         id,
			Caller:          caller,
			TokenExtensions: payload.TokenExtensions,
		})
	})
}

// servePlan runs build under the idempotency guard and answers with the
// unsigned transaction for the caller's wallet to sign.
func (s *Server) servePlan(
	w http.ResponseWriter,
	r *http.Request,
	action trade.Action,
	build func(ctx context.Context, caller solana.PublicKey, body []byte) (*trade.Plan, error),
) {
	start := time.Now()
	window := min(s.cfg.Store.IdempotencyWindow, planReplayWindow)
	status, cached := s.idempotent(w, r, window, func(ctx context.Context, body []byte) (int, interface{}, error) {
		caller, ok := walletauth.CallerFrom(ctx)
		if !ok {
			return 0, nil, fmt.Errorf("%w: no authenticated wallet", trade.ErrNotAuthorized)
		}

		plan, err := build(ctx, caller, body)
		if err != nil {
			log.WithFields(log.Fields{
				"action":     action,
				"caller":     caller.String(),
				"request_id": r.Header.Get(headerRequestID),
			}).WithError(err).Info("plan rejected")
			return 0, nil, err
		}

		tx, err := s.assembler.Assemble(ctx, plan.Instructions, plan.Payer)
		if err != nil {
			return 0, nil, fmt.Errorf("assemble transaction: %w", err)
		}
		encoded, err := tx.ToBase64()
		if err != nil {
			return 0, nil, fmt.Errorf("encode transaction: %w", err)
		}

		resp := planResponse{
			Action:       string(plan.Action),
			TradeID:      plan.TradeID,
			Payer:        plan.Payer.String(),
			OfferAddress: plan.OfferAddress.String(),
			Vault:        plan.Vault.String(),
			Operations:   make([]string, len(plan.Operations)),
			Transaction:  encoded,
			Blockhash:    tx.Message.RecentBlockhash.String(),
		}
		for i, op := range plan.Operations {
			resp.Operations[i] = op.Kind().String()
		}
		if plan.Offer != nil {
			offer := toOfferResponse(plan.OfferAddress, plan.Offer)
			resp.Offer = &offer
		}
		return http.StatusCreated, resp, nil
	})

	s.metrics.observePlan(string(action), time.Since(start).Seconds())
	switch {
	case cached:
		s.metrics.incPlan(string(action), "cached")
	case status < 300:
		s.metrics.incPlan(string(action), "created")
	default:
		s.metrics.incPlan(string(action), strconv.Itoa(status))
	}
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseTradeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, addr, err := s.planner.FetchOffer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(addr, offer))
}

// handleListOffers serves the last scan. A scan runs inline when the
// refresher is disabled, when none has succeeded yet, or when fresh=true is
// passed. The maker, mint_a and mint_b query parameters filter the result.
func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := make(map[string]solana.PublicKey)
	for _, name := range []string{"maker", "mint_a", "mint_b"} {
		if v := q.Get(name); v != "" {
			key, err := parseKey(name, v)
			if err != nil {
				writeError(w, err)
				return
			}
			filters[name] = key
		}
	}

	snap := s.refresher.Latest()
	if snap == nil || !s.refresher.Enabled() || q.Get("fresh") == "true" {
		var err error
		snap, err = s.refresher.Refresh(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
	}

	resp := offerListResponse{
		Offers:  make([]offerResponse, 0, len(snap.Offers)),
		Skipped: len(snap.Skipped),
		TakenAt: snap.TakenAt,
	}
	for _, entry := range snap.Offers {
		if key, ok := filters["maker"]; ok && !entry.Offer.Maker.Equals(key) {
			continue
		}
		if key, ok := filters["mint_a"]; ok && !entry.Offer.TokenMintA.Equals(key) {
			continue
		}
		if key, ok := filters["mint_b"]; ok && !entry.Offer.TokenMintB.Equals(key) {
			continue
		}
		resp.Offers = append(resp.Offers, toOfferResponse(entry.Address, entry.Offer))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSettle(r *http.Request, body []byte) (uint64, settleOfferRequest, error) {
	var payload settleOfferRequest
	id, err := parseTradeID(r)
	if err != nil {
		return 0, payload, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return 0, payload, fmt.Errorf("%w: invalid json payload", trade.ErrInvalidInput)
		}
	}
	return id, payload, nil
}

func parseTradeID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: trade id %q", trade.ErrInvalidInput, raw)
	}
	return id, nil
}

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: %s is required", trade.ErrInvalidInput, field)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s: %v", trade.ErrInvalidInput, field, err)
	}
	return key, nil
}
