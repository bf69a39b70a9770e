package market

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"tokenmart/core/events"
	"tokenmart/core/state"
	"tokenmart/core/types"
	"tokenmart/native/assets"
	"tokenmart/storage"
	"tokenmart/storage/trie"
)

type proxyHarness struct {
	proxy    *Proxy
	manager  *state.Manager
	registry *assets.Registry
	recorder *events.Recorder
	operator [20]byte
}

func (h *proxyHarness) newModule(t *testing.T, version string) *Module {
	t.Helper()
	module := NewModule(version)
	module.SetState(h.manager)
	module.SetRegistry(h.registry)
	module.SetEmitter(h.recorder)
	module.SetNowFunc(fixedNow(1000))
	return module
}

func (h *proxyHarness) fund(addr [20]byte, amount int64) {
	if err := h.manager.PutAccount(addr[:], &types.Account{Balance: big.NewInt(amount)}); err != nil {
		panic(err)
	}
}

func (h *proxyHarness) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	acc, err := h.manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func newProxyHarness(t *testing.T) *proxyHarness {
	t.Helper()
	db := storage.NewMemDB()
	stateTrie, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	manager := state.NewManager(stateTrie)
	registry := assets.NewRegistry(manager)
	recorder := events.NewRecorder(nil)

	h := &proxyHarness{
		proxy:    NewProxy(stateTrie),
		manager:  manager,
		registry: registry,
		recorder: recorder,
		operator: addr(9),
	}
	h.proxy.SetEmitter(recorder)
	registry.RegisterReceiver(ProxyAddress(), h.proxy.OnAssetReceived)

	module := h.newModule(t, "v1")
	if err := h.proxy.Install(module, h.operator[:]); err != nil {
		t.Fatalf("install: %v", err)
	}
	return h
}

func (h *proxyHarness) listAsset(t *testing.T, owner [20]byte) {
	t.Helper()
	if err := h.registry.Mint("art", asset(1), owner); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.registry.Approve(owner, "art", asset(1), ProxyAddress()); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestProxyInstallDesignatesOperator(t *testing.T) {
	h := newProxyHarness(t)
	operator, ok, err := h.proxy.Operator()
	if err != nil {
		t.Fatalf("operator: %v", err)
	}
	if !ok || operator != h.operator {
		t.Fatalf("operator not designated by install")
	}
	if h.proxy.Version() != "v1" {
		t.Fatalf("unexpected version %q", h.proxy.Version())
	}
}

func TestProxyRequiresImplementation(t *testing.T) {
	db := storage.NewMemDB()
	stateTrie, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	proxy := NewProxy(stateTrie)
	if _, err := proxy.CreateSellOffer(addr(1), "art", asset(1), big.NewInt(1), 2000); !errors.Is(err, ErrNoImplementation) {
		t.Fatalf("expected ErrNoImplementation, got %v", err)
	}
	if err := proxy.Install(nil, nil); !errors.Is(err, ErrNoImplementation) {
		t.Fatalf("nil install: expected ErrNoImplementation, got %v", err)
	}
}

func TestProxyInitializerRunsOnce(t *testing.T) {
	h := newProxyHarness(t)
	v2 := h.newModule(t, "v2")
	if err := h.proxy.Upgrade(h.operator, v2, h.operator[:]); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("re-init on upgrade: expected ErrAlreadyInitialized, got %v", err)
	}
	// The failed upgrade leaves the previous module in place.
	if h.proxy.Version() != "v1" {
		t.Fatalf("failed upgrade must not swap the module, got %q", h.proxy.Version())
	}
}

func TestProxyUpgradeGatedByOperator(t *testing.T) {
	h := newProxyHarness(t)
	v2 := h.newModule(t, "v2")
	if err := h.proxy.Upgrade(addr(5), v2, nil); !errors.Is(err, ErrNotOperator) {
		t.Fatalf("stranger upgrade: expected ErrNotOperator, got %v", err)
	}
	if err := h.proxy.Upgrade(h.operator, v2, nil); err != nil {
		t.Fatalf("operator upgrade: %v", err)
	}
	if h.proxy.Version() != "v2" {
		t.Fatalf("upgrade did not install v2, got %q", h.proxy.Version())
	}

	recorded := h.recorder.Events()
	if len(recorded) == 0 || recorded[len(recorded)-1].Type != EventTypeUpgraded {
		t.Fatalf("upgrade event not emitted")
	}
}

func TestProxyUpgradePreservesOffersAndCustody(t *testing.T) {
	h := newProxyHarness(t)
	seller := addr(1)
	buyer := addr(2)
	h.listAsset(t, seller)
	h.fund(buyer, 500)

	id, err := h.proxy.CreateSellOffer(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.proxy.Upgrade(h.operator, h.newModule(t, "v2"), nil); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	offer := h.proxy.GetSellOffer(id)
	if offer.Initiator != seller || offer.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("offer lost across upgrade: %+v", offer)
	}

	// The new module settles an offer created under the old one; the escrow
	// held by the stable custodian identity remains transferable.
	if err := h.proxy.AcceptSellOffer(buyer, id, big.NewInt(100)); err != nil {
		t.Fatalf("accept after upgrade: %v", err)
	}
	owner, err := h.registry.OwnerOf("art", asset(1))
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != buyer {
		t.Fatalf("asset not delivered after upgrade")
	}
	if got := h.balance(t, seller); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("seller balance %s, want 100", got)
	}
}

func TestProxyRollsBackFailedOperation(t *testing.T) {
	h := newProxyHarness(t)
	bidder := addr(2)
	h.listAsset(t, addr(1))

	// The escrow transfer fails after the offer record is written; the whole
	// operation must unwind, including the minted id.
	if _, err := h.proxy.CreateBuyOffer(bidder, "art", asset(1), 2000, big.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("unfunded bidder: expected ErrTransferFailed, got %v", err)
	}
	if offer := h.proxy.GetBuyOffer(0); offer.Initiator != ([20]byte{}) {
		t.Fatalf("failed creation left a stored offer: %+v", offer)
	}

	h.fund(bidder, 500)
	id, err := h.proxy.CreateBuyOffer(bidder, "art", asset(1), 2000, big.NewInt(100))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 0 {
		t.Fatalf("rolled-back creation consumed id 0, got %d", id)
	}
}

func TestProxyPersistsStateAcrossRestart(t *testing.T) {
	db := storage.NewMemDB()
	operator := addr(9)
	seller := addr(1)
	buyer := addr(2)
	var savedRoot []byte

	open := func(initData []byte) (*Proxy, *state.Manager, *assets.Registry) {
		stateTrie, err := trie.NewTrie(db, savedRoot)
		if err != nil {
			t.Fatalf("open trie: %v", err)
		}
		manager := state.NewManager(stateTrie)
		registry := assets.NewRegistry(manager)
		module := NewModule("v1")
		module.SetState(manager)
		module.SetRegistry(registry)
		module.SetNowFunc(fixedNow(1000))
		proxy := NewProxy(stateTrie)
		proxy.SetCommitHook(func(root common.Hash) error {
			savedRoot = root.Bytes()
			return nil
		})
		registry.RegisterReceiver(ProxyAddress(), proxy.OnAssetReceived)
		if err := proxy.Install(module, initData); err != nil {
			t.Fatalf("install: %v", err)
		}
		return proxy, manager, registry
	}

	proxy, manager, registry := open(operator[:])
	if err := registry.Mint("art", asset(1), seller); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := registry.Approve(seller, "art", asset(1), ProxyAddress()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := manager.PutAccount(buyer[:], &types.Account{Balance: big.NewInt(500)}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	id, err := proxy.CreateSellOffer(seller, "art", asset(1), big.NewInt(100), 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A fresh process reopens the trie at the persisted root and installs the
	// module again without re-running the initializer.
	reopened, _, registry2 := open(nil)
	offer := reopened.GetSellOffer(id)
	if offer.Initiator != seller || offer.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("offer lost across restart: %+v", offer)
	}
	got, ok, err := reopened.Operator()
	if err != nil || !ok || got != operator {
		t.Fatalf("operator lost across restart: ok=%v err=%v", ok, err)
	}
	if err := reopened.AcceptSellOffer(buyer, id, big.NewInt(100)); err != nil {
		t.Fatalf("accept after restart: %v", err)
	}
	owner, err := registry2.OwnerOf("art", asset(1))
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != buyer {
		t.Fatalf("escrow lost across restart, owner %x", owner)
	}
}

func TestProxyViewsNeverFail(t *testing.T) {
	h := newProxyHarness(t)
	offer := h.proxy.GetSellOffer(99)
	if offer.Initiator != ([20]byte{}) || offer.Ended {
		t.Fatalf("unknown id must read as zero-valued record: %+v", offer)
	}
	if offer.Price == nil || offer.Price.Sign() != 0 {
		t.Fatalf("unknown id must carry a zero price")
	}
}

func TestProxyAcknowledgesInboundAssets(t *testing.T) {
	h := newProxyHarness(t)
	ack, err := h.proxy.OnAssetReceived(addr(1), addr(1), asset(1), nil)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if ack != ReceiptAck() {
		t.Fatalf("callback returned wrong acknowledgement")
	}
	if !MatchesAck(ack[:]) {
		t.Fatalf("acknowledgement mismatch")
	}

	// A safe transfer straight into escrow passes the registry's receipt check.
	if err := h.registry.Mint("art", asset(2), addr(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.registry.SafeTransferFrom(addr(1), addr(1), ProxyAddress(), "art", asset(2), nil); err != nil {
		t.Fatalf("safe transfer into escrow: %v", err)
	}
}
