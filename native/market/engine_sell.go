package market

import (
	"fmt"
	"math/big"

	"tokenmart/core/events"
)

// SellOfferEngine drives the sell-offer state machine: Open -> {Accepted,
// Cancelled}, both terminal. The referenced asset sits in the custodian's
// escrow from successful creation until the offer ends.
type SellOfferEngine struct {
	state   accountState
	ledger  *Ledger
	custody *Custody
	emitter events.Emitter
	nowFn   func() int64
}

// NewSellOfferEngine constructs a sell-offer engine bound to the supplied
// ledger and custody adapter, with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewSellOfferEngine(ledger *Ledger, custody *Custody) *SellOfferEngine {
	return &SellOfferEngine{
		ledger:  ledger,
		custody: custody,
		emitter: events.NoopEmitter{},
		nowFn:   defaultNow,
	}
}

// SetState configures the account state backend used for payment movement.
func (e *SellOfferEngine) SetState(state accountState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *SellOfferEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the ledger time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *SellOfferEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = defaultNow
		return
	}
	e.nowFn = now
}

func (e *SellOfferEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return defaultNow()
	}
	return e.nowFn()
}

// Create records a new sell offer and moves the asset into escrow. The caller
// must own the asset and must have pre-authorized the custodian to transfer
// it. The id is only emitted as created once the escrow transfer succeeds;
// the surrounding operation unwinds the record on any failure.
func (e *SellOfferEngine) Create(caller [20]byte, registry string, assetID [32]byte, price *big.Int, deadline int64) (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrNilState
	}
	if e.custody == nil {
		return 0, ErrNilRegistry
	}
	if price == nil || price.Sign() <= 0 {
		return 0, ErrNonPositivePrice
	}
	now := e.now()
	if deadline <= now {
		return 0, ErrDeadlineNotFuture
	}
	owner, err := e.custody.OwnerOf(registry, assetID)
	if err != nil {
		return 0, ErrAssetNotFound
	}
	if owner != caller {
		return 0, ErrNotAssetOwner
	}
	custodian := e.custody.Custodian()
	if !e.custody.IsApprovedForTransfer(registry, assetID, custodian) {
		return 0, ErrNotApproved
	}
	offer := &Offer{
		AssetRegistry: registry,
		AssetID:       assetID,
		Initiator:     caller,
		Price:         cloneBigInt(price),
		Deadline:      deadline,
		CreatedAt:     now,
	}
	id, err := e.ledger.Append(NamespaceSell, offer)
	if err != nil {
		return 0, err
	}
	if err := e.custody.SafeTransfer(registry, caller, custodian, assetID, nil); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewSellOfferCreatedEvent(id, offer))
	return id, nil
}

// Accept settles an open sell offer: the asset moves to the accepting caller
// and the attached payment, which must equal the price exactly, is forwarded
// to the initiator. The offer is marked ended strictly before any external
// effect so a reentrant call observes it as already finished.
func (e *SellOfferEngine) Accept(caller [20]byte, id uint64, payment *big.Int) error {
	if e == nil || e.ledger == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilRegistry
	}
	offer, ok, err := e.ledger.Get(NamespaceSell, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Ended {
		return ErrOfferEnded
	}
	if e.now() > offer.Deadline {
		return ErrOfferExpired
	}
	if payment == nil || payment.Cmp(offer.Price) != 0 {
		return ErrWrongPayment
	}
	if _, err := e.ledger.MarkEnded(NamespaceSell, id); err != nil {
		return err
	}
	custodian := e.custody.Custodian()
	if err := e.custody.SafeTransfer(offer.AssetRegistry, custodian, caller, offer.AssetID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := transferPayment(e.state, caller, offer.Initiator, offer.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewSellOfferAcceptedEvent(id, offer, caller))
	return nil
}

// Cancel lets the initiator reclaim the escrowed asset once the deadline has
// strictly passed. Cancellation is expiry-only, not a free withdrawal.
func (e *SellOfferEngine) Cancel(caller [20]byte, id uint64) error {
	if e == nil || e.ledger == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilRegistry
	}
	offer, ok, err := e.ledger.Get(NamespaceSell, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Ended {
		return ErrOfferEnded
	}
	if caller != offer.Initiator {
		return ErrNotInitiator
	}
	if e.now() <= offer.Deadline {
		return ErrDeadlineNotReached
	}
	if _, err := e.ledger.MarkEnded(NamespaceSell, id); err != nil {
		return err
	}
	custodian := e.custody.Custodian()
	if err := e.custody.SafeTransfer(offer.AssetRegistry, custodian, offer.Initiator, offer.AssetID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewSellOfferCancelledEvent(id, offer))
	return nil
}
