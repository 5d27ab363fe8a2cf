package feed

import (
	"github.com/Aidin1998/obagg/internal/book"
)

// applyResult classifies the outcome of reconciling one delta.
type applyResult int

const (
	// applyAccepted means the delta was applied to the book.
	applyAccepted applyResult = iota
	// applyStale means the delta precedes the current snapshot and was
	// dropped; the book is unchanged.
	applyStale
	// applyOutOfSequence means the delta does not connect to the known
	// sequence; the caller must re-fetch a snapshot.
	applyOutOfSequence
)

// deltaSync reconciles a sequenced delta stream against a REST snapshot.
// After resetFromSnapshot it waits for the first delta whose id range
// brackets lastID+1; from then on every delta must start exactly one past
// the previously applied one. Any violation demands a fresh snapshot.
type deltaSync struct {
	book       *book.Book
	exchange   string
	lastID     uint64
	awaitFirst bool
}

func newDeltaSync(exchange string) *deltaSync {
	return &deltaSync{book: book.New(), exchange: exchange, awaitFirst: true}
}

// resetFromSnapshot replaces the book wholesale with the snapshot contents
// and re-arms the first-delta window. A parse failure leaves the sync in
// the awaiting state with whatever was applied; the caller re-fetches.
func (s *deltaSync) resetFromSnapshot(snap *depthSnapshot) error {
	bids, err := parseLevels(snap.Bids, s.exchange)
	if err != nil {
		return err
	}
	asks, err := parseLevels(snap.Asks, s.exchange)
	if err != nil {
		return err
	}
	s.book.Clear()
	for _, l := range bids {
		s.book.Bids.Upsert(l)
	}
	for _, l := range asks {
		s.book.Asks.Upsert(l)
	}
	s.lastID = snap.LastUpdateID
	s.awaitFirst = true
	return nil
}

// apply reconciles one delta. Level parsing happens before any mutation so
// a malformed delta never leaves the book half-updated.
func (s *deltaSync) apply(u *depthUpdate) (applyResult, error) {
	if u.LastUpdateID <= s.lastID {
		return applyStale, nil
	}
	if s.awaitFirst {
		if u.FirstUpdateID > s.lastID+1 || u.LastUpdateID < s.lastID+1 {
			return applyOutOfSequence, nil
		}
	} else if u.FirstUpdateID != s.lastID+1 {
		return applyOutOfSequence, nil
	}

	bids, err := parseLevels(u.Bids, s.exchange)
	if err != nil {
		return applyStale, err
	}
	asks, err := parseLevels(u.Asks, s.exchange)
	if err != nil {
		return applyStale, err
	}

	for _, l := range bids {
		s.book.ApplyBid(l)
	}
	for _, l := range asks {
		s.book.ApplyAsk(l)
	}
	s.lastID = u.LastUpdateID
	s.awaitFirst = false
	return applyAccepted, nil
}
