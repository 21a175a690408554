package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
)

type OfferEntry struct {
	Address solana.PublicKey
	Offer   *program.Offer
}

// SkippedAccount is an account returned by the prefix scan that did not
// decode as a trade record.
type SkippedAccount struct {
	Address solana.PublicKey
	Reason  error
}

// Snapshot is the set of open trades at one point in time, in the order the
// ledger reported them.
type Snapshot struct {
	Offers  []OfferEntry
	Skipped []SkippedAccount
	TakenAt time.Time
}

// Find returns the entry for id.
func (s *Snapshot) Find(id uint64) (OfferEntry, bool) {
	for _, e := range s.Offers {
		if e.Offer.ID == id {
			return e, true
		}
	}
	return OfferEntry{}, false
}

// Snapshot scans the ledger for every trade record of the program. A
// malformed account is skipped and reported, never fatal to the scan.
func (p *Planner) Snapshot(ctx context.Context) (*Snapshot, error) {
	accounts, err := p.ledger.GetAccountsByPrefix(ctx, p.ProgramID(), program.OfferDiscriminator[:])
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}

	snap := &Snapshot{
		Offers:  make([]OfferEntry, 0, len(accounts)),
		TakenAt: time.Now().UTC(),
	}
	for _, ka := range accounts {
		if !program.MatchesOfferDiscriminator(ka.Account.Data) {
			snap.skip(ka.Address, program.ErrUnrecognizedRecordType)
			continue
		}
		offer, err := program.DecodeOffer(ka.Account.Data)
		if err != nil {
			snap.skip(ka.Address, err)
			continue
		}
		snap.Offers = append(snap.Offers, OfferEntry{Address: ka.Address, Offer: offer})
	}

	p.log.WithFields(log.Fields{
		"offers":  len(snap.Offers),
		"skipped": len(snap.Skipped),
	}).Debug("trade snapshot")
	return snap, nil
}

func (s *Snapshot) skip(addr solana.PublicKey, reason error) {
	log.WithFields(log.Fields{
		"component": "trade",
		"account":   addr.String(),
	}).WithError(reason).Warn("skipping account in trade scan")
	s.Skipped = append(s.Skipped, SkippedAccount{Address: addr, Reason: reason})
}
