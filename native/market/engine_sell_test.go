package market

import (
	"errors"
	"math/big"
	"testing"

	"tokenmart/core/events"
)

type sellHarness struct {
	engine   *SellOfferEngine
	state    *mockState
	registry *mockRegistry
	recorder *events.Recorder
}

func newSellHarness(t *testing.T) *sellHarness {
	t.Helper()
	state := newMockState()
	registry := newMockRegistry()
	recorder := events.NewRecorder(nil)
	engine := NewSellOfferEngine(NewLedger(state), NewCustody(registry, ProxyAddress()))
	engine.SetState(state)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(fixedNow(1000))
	return &sellHarness{engine: engine, state: state, registry: registry, recorder: recorder}
}

func (h *sellHarness) listAsset(owner [20]byte) {
	h.registry.mint("art", asset(1), owner)
	h.registry.approve("art", asset(1), ProxyAddress())
}

func TestSellOfferLifecycle(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	buyer := addr(2)
	h.listAsset(seller)
	h.state.setBalance(buyer, 500)

	id, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected first id 0, got %d", id)
	}
	owner, err := h.registry.OwnerOf("art", asset(1))
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != ProxyAddress() {
		t.Fatalf("asset not escrowed with custodian")
	}

	if err := h.engine.Accept(buyer, id, big.NewInt(100)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	owner, err = h.registry.OwnerOf("art", asset(1))
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != buyer {
		t.Fatalf("asset not delivered to buyer")
	}
	if got := h.state.balance(seller); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("seller balance %s, want 100", got)
	}
	if got := h.state.balance(buyer); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("buyer balance %s, want 400", got)
	}

	offer, ok, err := h.engine.ledger.Get(NamespaceSell, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !offer.Ended {
		t.Fatalf("accepted offer not ended")
	}

	recorded := h.recorder.Events()
	if len(recorded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recorded))
	}
	if recorded[0].Type != EventTypeSellOfferCreated || recorded[1].Type != EventTypeSellOfferAccepted {
		t.Fatalf("unexpected event sequence %s, %s", recorded[0].Type, recorded[1].Type)
	}
}

func TestSellOfferCreateValidation(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	h.registry.mint("art", asset(1), seller)

	if _, err := h.engine.Create(seller, "art", asset(1), big.NewInt(0), 2000); !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("zero price: expected ErrNonPositivePrice, got %v", err)
	}
	if _, err := h.engine.Create(seller, "art", asset(1), nil, 2000); !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("nil price: expected ErrNonPositivePrice, got %v", err)
	}
	if _, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 1000); !errors.Is(err, ErrDeadlineNotFuture) {
		t.Fatalf("deadline at now: expected ErrDeadlineNotFuture, got %v", err)
	}
	if _, err := h.engine.Create(seller, "art", asset(9), big.NewInt(100), 2000); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("unknown asset: expected ErrAssetNotFound, got %v", err)
	}
	if _, err := h.engine.Create(addr(2), "art", asset(1), big.NewInt(100), 2000); !errors.Is(err, ErrNotAssetOwner) {
		t.Fatalf("non-owner: expected ErrNotAssetOwner, got %v", err)
	}
	if _, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("no approval: expected ErrNotApproved, got %v", err)
	}

	count, err := h.engine.ledger.Count(NamespaceSell)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected creations must not mint ids, count=%d", count)
	}
}

func TestSellOfferAcceptGuards(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	buyer := addr(2)
	h.listAsset(seller)
	h.state.setBalance(buyer, 1000)

	if err := h.engine.Accept(buyer, 7, big.NewInt(100)); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("unknown id: expected ErrOfferNotFound, got %v", err)
	}

	id, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.engine.Accept(buyer, id, big.NewInt(99)); !errors.Is(err, ErrWrongPayment) {
		t.Fatalf("underpayment: expected ErrWrongPayment, got %v", err)
	}
	if err := h.engine.Accept(buyer, id, big.NewInt(101)); !errors.Is(err, ErrWrongPayment) {
		t.Fatalf("overpayment: expected ErrWrongPayment, got %v", err)
	}

	h.engine.SetNowFunc(fixedNow(2001))
	if err := h.engine.Accept(buyer, id, big.NewInt(100)); !errors.Is(err, ErrOfferExpired) {
		t.Fatalf("past deadline: expected ErrOfferExpired, got %v", err)
	}

	// Acceptance exactly at the deadline is still valid.
	h.engine.SetNowFunc(fixedNow(2000))
	if err := h.engine.Accept(buyer, id, big.NewInt(100)); err != nil {
		t.Fatalf("accept at deadline: %v", err)
	}
	if err := h.engine.Accept(buyer, id, big.NewInt(100)); !errors.Is(err, ErrOfferEnded) {
		t.Fatalf("double accept: expected ErrOfferEnded, got %v", err)
	}
}

func TestSellOfferAcceptInsufficientBalance(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	buyer := addr(2)
	h.listAsset(seller)

	id, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.engine.Accept(buyer, id, big.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("unfunded buyer: expected ErrTransferFailed, got %v", err)
	}
}

func TestSellOfferCancel(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	h.listAsset(seller)

	id, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.engine.Cancel(seller, id); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("before deadline: expected ErrDeadlineNotReached, got %v", err)
	}
	h.engine.SetNowFunc(fixedNow(2000))
	if err := h.engine.Cancel(seller, id); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("at deadline: expected ErrDeadlineNotReached, got %v", err)
	}

	h.engine.SetNowFunc(fixedNow(2001))
	if err := h.engine.Cancel(addr(2), id); !errors.Is(err, ErrNotInitiator) {
		t.Fatalf("stranger cancel: expected ErrNotInitiator, got %v", err)
	}
	if err := h.engine.Cancel(seller, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	owner, err := h.registry.OwnerOf("art", asset(1))
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != seller {
		t.Fatalf("asset not returned to initiator")
	}
	if err := h.engine.Cancel(seller, id); !errors.Is(err, ErrOfferEnded) {
		t.Fatalf("double cancel: expected ErrOfferEnded, got %v", err)
	}
}

func TestSellOfferAcceptReentrancy(t *testing.T) {
	h := newSellHarness(t)
	seller := addr(1)
	buyer := addr(2)
	h.listAsset(seller)
	h.state.setBalance(buyer, 1000)

	id, err := h.engine.Create(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A registry that calls back into the engine during delivery observes the
	// offer as already finished.
	var reentrant error
	called := false
	h.registry.transferHook = func() {
		if called {
			return
		}
		called = true
		reentrant = h.engine.Accept(buyer, id, big.NewInt(100))
	}
	if err := h.engine.Accept(buyer, id, big.NewInt(100)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !called {
		t.Fatalf("transfer hook never ran")
	}
	if !errors.Is(reentrant, ErrOfferEnded) {
		t.Fatalf("reentrant accept: expected ErrOfferEnded, got %v", reentrant)
	}
}
