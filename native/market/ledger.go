package market

import (
	"fmt"
	"math/big"
)

// kvStore abstracts the subset of state manager functionality required by the
// offer ledger.
type kvStore interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// The ledger's storage layout is the stability contract of the upgrade
// indirection: every logic module version reads and writes these exact keys,
// so swapping the module never disturbs persisted offers.
func offerKey(ns Namespace, id uint64) []byte {
	return []byte(fmt.Sprintf("market/%s/offer/%d", ns, id))
}

func counterKey(ns Namespace) []byte {
	return []byte(fmt.Sprintf("market/%s/next", ns))
}

// storedOffer is the RLP-safe persisted form of an Offer.
type storedOffer struct {
	AssetRegistry string
	AssetID       [32]byte
	Initiator     [20]byte
	Price         *big.Int
	Deadline      uint64
	CreatedAt     uint64
	Ended         bool
}

// Ledger persists offers under dense, monotonically increasing identifiers.
// Ids start at zero per namespace, are assigned in creation order, never
// reused and never decremented. Records are never deleted: ended offers
// remain readable as historical records.
type Ledger struct {
	store kvStore
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store kvStore) *Ledger {
	return &Ledger{store: store}
}

// Append assigns the next counter value in the namespace, stores the offer
// under it and increments the counter. It is the only path that mints new
// offer ids.
func (l *Ledger) Append(ns Namespace, offer *Offer) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, ErrNilState
	}
	if !ns.Valid() {
		return 0, fmt.Errorf("market: invalid namespace %d", ns)
	}
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return 0, err
	}
	var next uint64
	if _, err := l.store.KVGet(counterKey(ns), &next); err != nil {
		return 0, err
	}
	if err := l.store.KVPut(offerKey(ns, next), encodeOffer(sanitized)); err != nil {
		return 0, err
	}
	if err := l.store.KVPut(counterKey(ns), next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// Get returns the offer stored under the id. Ids that were never minted
// report ok == false; callers decide whether that maps to an error or to the
// zero-valued historical record the view accessors expose.
func (l *Ledger) Get(ns Namespace, id uint64) (*Offer, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, ErrNilState
	}
	if !ns.Valid() {
		return nil, false, fmt.Errorf("market: invalid namespace %d", ns)
	}
	stored := new(storedOffer)
	ok, err := l.store.KVGet(offerKey(ns, id), stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return decodeOffer(stored), true, nil
}

// MarkEnded flips the offer's Ended flag to true and persists the record. It
// is the sole writer of Ended: the flag is monotonic and an offer that has
// already ended is rejected with a state-conflict error.
func (l *Ledger) MarkEnded(ns Namespace, id uint64) (*Offer, error) {
	offer, ok, err := l.Get(ns, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	if offer.Ended {
		return nil, ErrOfferEnded
	}
	offer.Ended = true
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return nil, err
	}
	if err := l.store.KVPut(offerKey(ns, id), encodeOffer(sanitized)); err != nil {
		return nil, err
	}
	return sanitized, nil
}

// Count returns the number of offers ever created in the namespace, which is
// also the next id to be minted.
func (l *Ledger) Count(ns Namespace) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, ErrNilState
	}
	var next uint64
	if _, err := l.store.KVGet(counterKey(ns), &next); err != nil {
		return 0, err
	}
	return next, nil
}

func encodeOffer(o *Offer) *storedOffer {
	return &storedOffer{
		AssetRegistry: o.AssetRegistry,
		AssetID:       o.AssetID,
		Initiator:     o.Initiator,
		Price:         o.Price,
		Deadline:      uint64(o.Deadline),
		CreatedAt:     uint64(o.CreatedAt),
		Ended:         o.Ended,
	}
}

func decodeOffer(s *storedOffer) *Offer {
	price := s.Price
	if price == nil {
		price = big.NewInt(0)
	}
	return &Offer{
		AssetRegistry: s.AssetRegistry,
		AssetID:       s.AssetID,
		Initiator:     s.Initiator,
		Price:         new(big.Int).Set(price),
		Deadline:      int64(s.Deadline),
		CreatedAt:     int64(s.CreatedAt),
		Ended:         s.Ended,
	}
}
