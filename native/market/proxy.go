package market

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokenmart/core/events"
	"tokenmart/storage/trie"
)

// receiptAck is the 4-byte acknowledgement a safe transfer destination must
// return, derived from the canonical callback signature.
var receiptAck = func() [4]byte {
	var ack [4]byte
	copy(ack[:], ethcrypto.Keccak256([]byte("onAssetReceived(address,address,bytes32,bytes)"))[:4])
	return ack
}()

// ReceiptAck returns the acknowledgement value the marketplace reports from
// its inbound asset callback.
func ReceiptAck() [4]byte { return receiptAck }

// proxyAddress is the stable marketplace identity. Escrowed assets and
// payments are held under this address, so custody survives logic upgrades.
var proxyAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("tokenmart/market/proxy"))[12:])
	return addr
}()

// ProxyAddress returns the stable marketplace identity.
func ProxyAddress() [20]byte { return proxyAddress }

// Proxy is the stable marketplace facade. Callers interact with the proxy
// only; the logic behind it can be swapped by the operator without moving any
// escrowed custody or stored offers. Every mutating operation runs against a
// state snapshot and is rolled back wholesale on failure.
type Proxy struct {
	trie     *trie.Trie
	impl     Implementation
	emitter  events.Emitter
	height   uint64
	onCommit func(root common.Hash) error
}

// NewProxy constructs a facade over the provided state trie with no logic
// installed. Install must be called before any operation is usable.
func NewProxy(tr *trie.Trie) *Proxy {
	return &Proxy{trie: tr, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used for upgrade notifications.
// Passing nil resets the emitter to a no-op implementation.
func (p *Proxy) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetCommitHook registers a callback invoked with the new state root after
// every committed mutation. The daemon uses it to persist the root so state
// survives restarts.
func (p *Proxy) SetCommitHook(fn func(root common.Hash) error) {
	p.onCommit = fn
}

// CurrentImplementation returns the address of the installed logic module and
// whether one is installed.
func (p *Proxy) CurrentImplementation() ([20]byte, bool) {
	if p == nil || p.impl == nil {
		return [20]byte{}, false
	}
	return p.impl.Address(), true
}

// Version returns the version label of the installed logic module.
func (p *Proxy) Version() string {
	if p == nil || p.impl == nil {
		return ""
	}
	return p.impl.Version()
}

// Install wires the first logic module behind the facade. It is the
// bootstrap path and is not gated; gating begins once initData designates the
// operator. A non-empty initData runs the module initializer, which fails if
// any prior module already initialized the shared state.
func (p *Proxy) Install(impl Implementation, initData []byte) error {
	if p == nil || p.trie == nil {
		return ErrNilState
	}
	if impl == nil {
		return ErrNoImplementation
	}
	return p.execute(func() error {
		if len(initData) > 0 {
			if err := impl.Init(initData); err != nil {
				return err
			}
		}
		p.impl = impl
		emitTo(p.emitter, NewUpgradedEvent(impl.Version(), impl.Address()))
		return nil
	})
}

// Upgrade swaps the logic module behind the facade. Only the designated
// operator may upgrade. Offers, custody and the operator designation are all
// stored under stable keys, so the new module observes them unchanged.
func (p *Proxy) Upgrade(caller [20]byte, impl Implementation, initData []byte) error {
	if p == nil || p.trie == nil {
		return ErrNilState
	}
	if p.impl == nil {
		return ErrNoImplementation
	}
	if impl == nil {
		return ErrNoImplementation
	}
	operator, ok, err := p.impl.Operator()
	if err != nil {
		return err
	}
	if !ok || caller != operator {
		return ErrNotOperator
	}
	return p.execute(func() error {
		if len(initData) > 0 {
			if err := impl.Init(initData); err != nil {
				return err
			}
		}
		p.impl = impl
		emitTo(p.emitter, NewUpgradedEvent(impl.Version(), impl.Address()))
		return nil
	})
}

// execute runs fn against a snapshot of the state trie. Any error reverts the
// trie to the snapshot, unwinding offer records, balance movement and custody
// registrations made inside the call. On success the trie is committed to the
// backing database and the new root is handed to the commit hook.
func (p *Proxy) execute(fn func() error) error {
	snapshot, err := p.trie.Copy()
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		p.trie.Revert(snapshot)
		return err
	}
	p.height++
	root, err := p.trie.Commit(p.trie.Root(), p.height)
	if err != nil {
		return err
	}
	if p.onCommit != nil {
		return p.onCommit(root)
	}
	return nil
}

func (p *Proxy) implementation() (Implementation, error) {
	if p == nil || p.trie == nil {
		return nil, ErrNilState
	}
	if p.impl == nil {
		return nil, ErrNoImplementation
	}
	return p.impl, nil
}

// CreateSellOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) CreateSellOffer(caller [20]byte, registry string, assetID [32]byte, price *big.Int, deadline int64) (uint64, error) {
	impl, err := p.implementation()
	if err != nil {
		return 0, err
	}
	var id uint64
	err = p.execute(func() error {
		var innerErr error
		id, innerErr = impl.CreateSellOffer(caller, registry, assetID, price, deadline)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AcceptSellOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) AcceptSellOffer(caller [20]byte, id uint64, payment *big.Int) error {
	impl, err := p.implementation()
	if err != nil {
		return err
	}
	return p.execute(func() error {
		return impl.AcceptSellOffer(caller, id, payment)
	})
}

// CancelSellOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) CancelSellOffer(caller [20]byte, id uint64) error {
	impl, err := p.implementation()
	if err != nil {
		return err
	}
	return p.execute(func() error {
		return impl.CancelSellOffer(caller, id)
	})
}

// CreateBuyOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) CreateBuyOffer(caller [20]byte, registry string, assetID [32]byte, deadline int64, payment *big.Int) (uint64, error) {
	impl, err := p.implementation()
	if err != nil {
		return 0, err
	}
	var id uint64
	err = p.execute(func() error {
		var innerErr error
		id, innerErr = impl.CreateBuyOffer(caller, registry, assetID, deadline, payment)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AcceptBuyOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) AcceptBuyOffer(caller [20]byte, id uint64) error {
	impl, err := p.implementation()
	if err != nil {
		return err
	}
	return p.execute(func() error {
		return impl.AcceptBuyOffer(caller, id)
	})
}

// CancelBuyOffer forwards to the installed logic module under rollback
// protection.
func (p *Proxy) CancelBuyOffer(caller [20]byte, id uint64) error {
	impl, err := p.implementation()
	if err != nil {
		return err
	}
	return p.execute(func() error {
		return impl.CancelBuyOffer(caller, id)
	})
}

// GetSellOffer returns the stored sell offer for the id. Unknown ids yield a
// zero-valued record rather than an error so callers can probe freely.
func (p *Proxy) GetSellOffer(id uint64) Offer {
	impl, err := p.implementation()
	if err != nil {
		return Offer{Price: big.NewInt(0)}
	}
	offer, ok, err := impl.SellOffer(id)
	if err != nil || !ok || offer == nil {
		return Offer{Price: big.NewInt(0)}
	}
	return *offer.Clone()
}

// GetBuyOffer returns the stored buy offer for the id. Unknown ids yield a
// zero-valued record rather than an error so callers can probe freely.
func (p *Proxy) GetBuyOffer(id uint64) Offer {
	impl, err := p.implementation()
	if err != nil {
		return Offer{Price: big.NewInt(0)}
	}
	offer, ok, err := impl.BuyOffer(id)
	if err != nil || !ok || offer == nil {
		return Offer{Price: big.NewInt(0)}
	}
	return *offer.Clone()
}

// Operator returns the designated operator identity, with ok == false before
// the initializer has run.
func (p *Proxy) Operator() ([20]byte, bool, error) {
	impl, err := p.implementation()
	if err != nil {
		return [20]byte{}, false, err
	}
	return impl.Operator()
}

// OnAssetReceived acknowledges an inbound safe transfer addressed to the
// marketplace custody. Registries deliver this callback when an asset lands
// in escrow; anything other than the ack return makes the transfer fail on
// the registry side.
func (p *Proxy) OnAssetReceived(operator, from [20]byte, assetID [32]byte, data []byte) ([4]byte, error) {
	emitTo(p.emitter, NewAssetReceivedEvent(operator, from, assetID, data))
	return receiptAck, nil
}

// MatchesAck reports whether the provided bytes equal the callback
// acknowledgement.
func MatchesAck(v []byte) bool {
	return bytes.Equal(v, receiptAck[:])
}
