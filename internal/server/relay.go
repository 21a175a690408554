package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/walletauth"
)

type relayRequest struct {
	Transaction string `json:"transaction"`
}

type relayResponse struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

type dlqEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
	Caller      string    `json:"caller"`
	Transaction string    `json:"transaction"`
	Error       string    `json:"error"`
}

// handleRelay broadcasts a transaction the caller's wallet already signed.
// Broadcast failures are written to the DLQ and never retried here.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	_, cached := s.idempotent(w, r, s.cfg.Store.IdempotencyWindow, func(ctx context.Context, body []byte) (int, interface{}, error) {
		caller, ok := walletauth.CallerFrom(ctx)
		if !ok {
			return 0, nil, fmt.Errorf("%w: no authenticated wallet", trade.ErrNotAuthorized)
		}

		var payload relayRequest
		if err := json.Unmarshal(body, &payload); err != nil || payload.Transaction == "" {
			s.metrics.incRelay("rejected")
			return 0, nil, fmt.Errorf("%w: transaction is required", trade.ErrInvalidInput)
		}
		tx, err := solana.TransactionFromBase64(payload.Transaction)
		if err != nil {
			s.metrics.incRelay("rejected")
			return 0, nil, fmt.Errorf("%w: decode transaction: %v", trade.ErrInvalidInput, err)
		}
		if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(caller) {
			s.metrics.incRelay("rejected")
			return 0, nil, fmt.Errorf("%w: fee payer must be %s", trade.ErrNotAuthorized, caller)
		}

		sig, err := s.assembler.Relay(ctx, tx)
		if errors.Is(err, escrow.ErrInvalidSignatures) {
			s.metrics.incRelay("rejected")
			return 0, nil, err
		}
		if err != nil {
			s.metrics.incRelay("failed")
			s.writeDLQ(dlqEntry{
				Timestamp:   time.Now().UTC(),
				RequestID:   r.Header.Get(headerRequestID),
				Caller:      caller.String(),
				Transaction: payload.Transaction,
				Error:       err.Error(),
			})
			return 0, nil, err
		}

		s.metrics.incRelay("submitted")
		return http.StatusAccepted, relayResponse{Signature: sig.String(), Status: "submitted"}, nil
	})
	if cached {
		s.metrics.incRelay("cached")
	}
}

func (s *Server) writeDLQ(entry dlqEntry) {
	if s.cfg.Service.DLQPath == "" {
		return
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.WithError(err).Error("dlq marshal error")
		return
	}

	if err := os.MkdirAll(s.cfg.Service.DLQPath, 0o755); err != nil {
		log.WithError(err).Error("dlq mkdir error")
		return
	}

	filename := fmt.Sprintf("%d-%s.json", entry.Timestamp.UnixNano(), uuid.NewString())
	path := filepath.Join(s.cfg.Service.DLQPath, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.WithError(err).Error("dlq write error")
	}

	s.updateDLQDepth()
}
