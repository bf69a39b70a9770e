package market

import (
	"fmt"
	"math/big"

	"tokenmart/core/events"
)

// BuyOfferEngine drives the buy-offer state machine, the mirror image of the
// sell side: the payment is escrowed at creation and the asset moves only at
// acceptance.
type BuyOfferEngine struct {
	state   accountState
	ledger  *Ledger
	custody *Custody
	emitter events.Emitter
	nowFn   func() int64
}

// NewBuyOfferEngine constructs a buy-offer engine bound to the supplied
// ledger and custody adapter, with a no-op emitter.
func NewBuyOfferEngine(ledger *Ledger, custody *Custody) *BuyOfferEngine {
	return &BuyOfferEngine{
		ledger:  ledger,
		custody: custody,
		emitter: events.NoopEmitter{},
		nowFn:   defaultNow,
	}
}

// SetState configures the account state backend used for payment movement.
func (e *BuyOfferEngine) SetState(state accountState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *BuyOfferEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the ledger time source used by the engine.
func (e *BuyOfferEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = defaultNow
		return
	}
	e.nowFn = now
}

func (e *BuyOfferEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return defaultNow()
	}
	return e.nowFn()
}

// Create records a new buy offer and escrows the attached payment in the
// custodian's account. Only existence of the asset is required; ownership may
// change hands any number of times before acceptance.
func (e *BuyOfferEngine) Create(caller [20]byte, registry string, assetID [32]byte, deadline int64, payment *big.Int) (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrNilState
	}
	if e.custody == nil {
		return 0, ErrNilRegistry
	}
	now := e.now()
	if deadline <= now {
		return 0, ErrDeadlineNotFuture
	}
	if payment == nil || payment.Sign() <= 0 {
		return 0, ErrNonPositivePrice
	}
	if !e.custody.Exists(registry, assetID) {
		return 0, ErrAssetNotFound
	}
	offer := &Offer{
		AssetRegistry: registry,
		AssetID:       assetID,
		Initiator:     caller,
		Price:         cloneBigInt(payment),
		Deadline:      deadline,
		CreatedAt:     now,
	}
	id, err := e.ledger.Append(NamespaceBuy, offer)
	if err != nil {
		return 0, err
	}
	if err := transferPayment(e.state, caller, e.custody.Custodian(), payment); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewBuyOfferCreatedEvent(id, offer))
	return id, nil
}

// Accept settles an open buy offer: the accepting caller must currently own
// the asset and have pre-authorized the custodian (ownership and approval are
// re-checked here, not trusted from creation time). The asset moves to the
// initiator and the escrowed payment is forwarded to the caller. State is
// finalized strictly before any external effect.
func (e *BuyOfferEngine) Accept(caller [20]byte, id uint64) error {
	if e == nil || e.ledger == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilRegistry
	}
	offer, ok, err := e.ledger.Get(NamespaceBuy, id)
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
	owner, err := e.custody.OwnerOf(offer.AssetRegistry, offer.AssetID)
	if err != nil {
		return ErrAssetNotFound
	}
	if owner != caller {
		return ErrNotAssetOwner
	}
	custodian := e.custody.Custodian()
	if !e.custody.IsApprovedForTransfer(offer.AssetRegistry, offer.AssetID, custodian) {
		return ErrNotApproved
	}
	if _, err := e.ledger.MarkEnded(NamespaceBuy, id); err != nil {
		return err
	}
	if err := e.custody.SafeTransfer(offer.AssetRegistry, caller, offer.Initiator, offer.AssetID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := transferPayment(e.state, custodian, caller, offer.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewBuyOfferAcceptedEvent(id, offer, caller))
	return nil
}

// Cancel refunds the escrowed payment to the initiator once the deadline has
// strictly passed.
func (e *BuyOfferEngine) Cancel(caller [20]byte, id uint64) error {
	if e == nil || e.ledger == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilRegistry
	}
	offer, ok, err := e.ledger.Get(NamespaceBuy, id)
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
	if _, err := e.ledger.MarkEnded(NamespaceBuy, id); err != nil {
		return err
	}
	if err := transferPayment(e.state, e.custody.Custodian(), offer.Initiator, offer.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	emitTo(e.emitter, NewBuyOfferCancelledEvent(id, offer))
	return nil
}
