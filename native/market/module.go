package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokenmart/core/events"
)

// Storage owned by the offer ledger and access control lives at fixed keys
// shared by every module version; upgrading logic never disturbs it.
var (
	initializedKey = []byte("market/initialized")
	operatorKey    = []byte("market/operator")
)

// moduleState is the full state surface a logic module needs: account
// balances for payment movement plus the keyed store backing the offer
// ledger and access control.
type moduleState interface {
	accountState
	kvStore
}

// Implementation is the contract between the stable proxy and a swappable
// logic module. Every operation carries the original caller identity.
type Implementation interface {
	Address() [20]byte
	Version() string
	Initialized() (bool, error)
	Init(data []byte) error
	Operator() ([20]byte, bool, error)

	CreateSellOffer(caller [20]byte, registry string, assetID [32]byte, price *big.Int, deadline int64) (uint64, error)
	AcceptSellOffer(caller [20]byte, id uint64, payment *big.Int) error
	CancelSellOffer(caller [20]byte, id uint64) error
	CreateBuyOffer(caller [20]byte, registry string, assetID [32]byte, deadline int64, payment *big.Int) (uint64, error)
	AcceptBuyOffer(caller [20]byte, id uint64) error
	CancelBuyOffer(caller [20]byte, id uint64) error

	SellOffer(id uint64) (*Offer, bool, error)
	BuyOffer(id uint64) (*Offer, bool, error)
}

// Module is the marketplace logic. Multiple versions can exist side by side;
// they all operate on the same ledger layout, so a module installed behind
// the proxy picks up every offer its predecessors persisted.
type Module struct {
	version string
	addr    [20]byte
	state   moduleState
	ledger  *Ledger
	custody *Custody
	emitter events.Emitter
	nowFn   func() int64
}

// NewModule constructs a logic module identified by its version label. The
// module address is derived deterministically from the label.
func NewModule(version string) *Module {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("market/module/"+version))[12:])
	return &Module{
		version: version,
		addr:    addr,
		emitter: events.NoopEmitter{},
		nowFn:   defaultNow,
	}
}

// Address returns the module's derived identity.
func (m *Module) Address() [20]byte { return m.addr }

// Version returns the module's version label.
func (m *Module) Version() string { return m.version }

// SetState configures the state backend used by the module.
func (m *Module) SetState(state moduleState) {
	m.state = state
	m.ledger = NewLedger(state)
}

// SetRegistry configures the external asset registry. Escrowed assets are
// held by the stable proxy identity so they survive module swaps.
func (m *Module) SetRegistry(registry AssetRegistry) {
	m.custody = NewCustody(registry, ProxyAddress())
}

// SetEmitter configures the event emitter used by the module. Passing nil
// resets the emitter to a no-op implementation.
func (m *Module) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetNowFunc overrides the ledger time source, primarily used in tests.
func (m *Module) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = defaultNow
		return
	}
	m.nowFn = now
}

// Initialized reports whether the one-time module initializer has run.
func (m *Module) Initialized() (bool, error) {
	if m == nil || m.state == nil {
		return false, ErrNilState
	}
	var flag bool
	ok, err := m.state.KVGet(initializedKey, &flag)
	if err != nil {
		return false, err
	}
	return ok && flag, nil
}

// Init runs the one-time module initializer. The payload is the 20-byte
// operator identity; the operator is fixed here and unmodifiable afterwards.
// A second invocation fails once any module version reports itself
// initialized.
func (m *Module) Init(data []byte) error {
	if m == nil || m.state == nil {
		return ErrNilState
	}
	done, err := m.Initialized()
	if err != nil {
		return err
	}
	if done {
		return ErrAlreadyInitialized
	}
	if len(data) != 20 {
		return fmt.Errorf("market: init data must be a 20-byte operator identity")
	}
	var operator [20]byte
	copy(operator[:], data)
	if operator == ([20]byte{}) {
		return fmt.Errorf("market: operator must not be the zero identity")
	}
	if err := m.state.KVPut(operatorKey, operator[:]); err != nil {
		return err
	}
	return m.state.KVPut(initializedKey, true)
}

// Operator returns the designated operator identity, with ok == false before
// initialization.
func (m *Module) Operator() ([20]byte, bool, error) {
	if m == nil || m.state == nil {
		return [20]byte{}, false, ErrNilState
	}
	var raw []byte
	ok, err := m.state.KVGet(operatorKey, &raw)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("market: malformed operator record")
	}
	var operator [20]byte
	copy(operator[:], raw)
	return operator, true, nil
}

func (m *Module) sellEngine() (*SellOfferEngine, error) {
	if m == nil || m.state == nil || m.ledger == nil {
		return nil, ErrNilState
	}
	if m.custody == nil {
		return nil, ErrNilRegistry
	}
	eng := NewSellOfferEngine(m.ledger, m.custody)
	eng.SetState(m.state)
	eng.SetEmitter(m.emitter)
	eng.SetNowFunc(m.nowFn)
	return eng, nil
}

func (m *Module) buyEngine() (*BuyOfferEngine, error) {
	if m == nil || m.state == nil || m.ledger == nil {
		return nil, ErrNilState
	}
	if m.custody == nil {
		return nil, ErrNilRegistry
	}
	eng := NewBuyOfferEngine(m.ledger, m.custody)
	eng.SetState(m.state)
	eng.SetEmitter(m.emitter)
	eng.SetNowFunc(m.nowFn)
	return eng, nil
}

// CreateSellOffer implements the Implementation contract.
func (m *Module) CreateSellOffer(caller [20]byte, registry string, assetID [32]byte, price *big.Int, deadline int64) (uint64, error) {
	eng, err := m.sellEngine()
	if err != nil {
		return 0, err
	}
	return eng.Create(caller, registry, assetID, price, deadline)
}

// AcceptSellOffer implements the Implementation contract.
func (m *Module) AcceptSellOffer(caller [20]byte, id uint64, payment *big.Int) error {
	eng, err := m.sellEngine()
	if err != nil {
		return err
	}
	return eng.Accept(caller, id, payment)
}

// CancelSellOffer implements the Implementation contract.
func (m *Module) CancelSellOffer(caller [20]byte, id uint64) error {
	eng, err := m.sellEngine()
	if err != nil {
		return err
	}
	return eng.Cancel(caller, id)
}

// CreateBuyOffer implements the Implementation contract.
func (m *Module) CreateBuyOffer(caller [20]byte, registry string, assetID [32]byte, deadline int64, payment *big.Int) (uint64, error) {
	eng, err := m.buyEngine()
	if err != nil {
		return 0, err
	}
	return eng.Create(caller, registry, assetID, deadline, payment)
}

// AcceptBuyOffer implements the Implementation contract.
func (m *Module) AcceptBuyOffer(caller [20]byte, id uint64) error {
	eng, err := m.buyEngine()
	if err != nil {
		return err
	}
	return eng.Accept(caller, id)
}

// CancelBuyOffer implements the Implementation contract.
func (m *Module) CancelBuyOffer(caller [20]byte, id uint64) error {
	eng, err := m.buyEngine()
	if err != nil {
		return err
	}
	return eng.Cancel(caller, id)
}

// SellOffer returns the stored sell offer for the id.
func (m *Module) SellOffer(id uint64) (*Offer, bool, error) {
	if m == nil || m.ledger == nil {
		return nil, false, ErrNilState
	}
	return m.ledger.Get(NamespaceSell, id)
}

// BuyOffer returns the stored buy offer for the id.
func (m *Module) BuyOffer(id uint64) (*Offer, bool, error) {
	if m == nil || m.ledger == nil {
		return nil, false, ErrNilState
	}
	return m.ledger.Get(NamespaceBuy, id)
}
