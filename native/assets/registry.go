package assets

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Registry errors.
var (
	ErrTokenNotFound   = errors.New("assets: token not found")
	ErrTokenExists     = errors.New("assets: token already minted")
	ErrNotAuthorized   = errors.New("assets: caller not authorized to transfer")
	ErrWrongFrom       = errors.New("assets: from is not the current owner")
	ErrReceiverReject  = errors.New("assets: receiver rejected safe transfer")
	ErrEmptyCollection = errors.New("assets: collection name must not be empty")
	ErrNilState        = errors.New("assets: state not configured")
)

// receiptAck mirrors the acknowledgement expected from safe transfer
// destinations. Derived independently here so the registry does not depend on
// any particular receiver implementation.
var receiptAck = func() [4]byte {
	var ack [4]byte
	copy(ack[:], ethcrypto.Keccak256([]byte("onAssetReceived(address,address,bytes32,bytes)"))[:4])
	return ack
}()

// ReceiverFunc is the callback invoked on a registered destination when a
// token arrives via SafeTransferFrom. The returned acknowledgement must match
// the canonical value or the transfer fails.
type ReceiverFunc func(operator, from [20]byte, assetID [32]byte, data []byte) ([4]byte, error)

// kvStore is the keyed state surface the registry persists token records in.
type kvStore interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

type storedToken struct {
	Owner    [20]byte
	Approved [20]byte
}

// Registry is a state-backed registry of unique tokens grouped into named
// collections. It models the ownership, single-approval and safe-transfer
// semantics the marketplace custody layer relies on.
//
// Registry is not safe for concurrent use; callers are expected to serialize
// access the same way they serialize state access.
type Registry struct {
	state     kvStore
	receivers map[[20]byte]ReceiverFunc
}

// NewRegistry constructs a registry persisting into the provided state.
func NewRegistry(state kvStore) *Registry {
	return &Registry{state: state, receivers: make(map[[20]byte]ReceiverFunc)}
}

// RegisterReceiver wires a callback for a destination address. Transfers to
// addresses without a registered receiver complete without a callback, the
// way plain account destinations do.
func (r *Registry) RegisterReceiver(addr [20]byte, fn ReceiverFunc) {
	if r == nil || fn == nil {
		return
	}
	r.receivers[addr] = fn
}

func tokenKey(collection string, assetID [32]byte) []byte {
	return []byte(fmt.Sprintf("assets/%s/token/%s", collection, hex.EncodeToString(assetID[:])))
}

func (r *Registry) load(collection string, assetID [32]byte) (*storedToken, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	stored := new(storedToken)
	ok, err := r.state.KVGet(tokenKey(collection, assetID), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return stored, nil
}

func (r *Registry) store(collection string, assetID [32]byte, token *storedToken) error {
	return r.state.KVPut(tokenKey(strings.TrimSpace(collection), assetID), token)
}

// Mint records a new token owned by the provided address. Minting an id that
// already exists in the collection fails.
func (r *Registry) Mint(collection string, assetID [32]byte, owner [20]byte) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return ErrEmptyCollection
	}
	if owner == ([20]byte{}) {
		return fmt.Errorf("assets: owner must not be the zero identity")
	}
	existing := new(storedToken)
	ok, err := r.state.KVGet(tokenKey(collection, assetID), existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrTokenExists
	}
	return r.store(collection, assetID, &storedToken{Owner: owner})
}

// OwnerOf returns the current owner of the token.
func (r *Registry) OwnerOf(collection string, assetID [32]byte) ([20]byte, error) {
	stored, err := r.load(collection, assetID)
	if err != nil {
		return [20]byte{}, err
	}
	return stored.Owner, nil
}

// GetApproved returns the single approved operator for the token, which is
// the zero identity when no approval is outstanding.
func (r *Registry) GetApproved(collection string, assetID [32]byte) ([20]byte, error) {
	stored, err := r.load(collection, assetID)
	if err != nil {
		return [20]byte{}, err
	}
	return stored.Approved, nil
}

// Approve grants the operator transfer rights over the token. Only the
// current owner may approve; approving the zero identity clears the slot.
func (r *Registry) Approve(caller [20]byte, collection string, assetID [32]byte, operator [20]byte) error {
	stored, err := r.load(collection, assetID)
	if err != nil {
		return err
	}
	if stored.Owner != caller {
		return ErrNotAuthorized
	}
	stored.Approved = operator
	return r.store(collection, assetID, stored)
}

// TransferFrom moves the token from its current owner to the destination.
// The caller must be the owner or the approved operator, and any outstanding
// approval is cleared by the move.
func (r *Registry) TransferFrom(caller, from, to [20]byte, collection string, assetID [32]byte) error {
	stored, err := r.load(collection, assetID)
	if err != nil {
		return err
	}
	if stored.Owner != from {
		return ErrWrongFrom
	}
	if caller != stored.Owner && caller != stored.Approved {
		return ErrNotAuthorized
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("assets: destination must not be the zero identity")
	}
	stored.Owner = to
	stored.Approved = [20]byte{}
	return r.store(collection, assetID, stored)
}

// SafeTransferFrom behaves like TransferFrom and additionally delivers the
// receipt callback when the destination has a registered receiver. The
// transfer is only considered complete once the callback returns the
// canonical acknowledgement.
func (r *Registry) SafeTransferFrom(caller, from, to [20]byte, collection string, assetID [32]byte, data []byte) error {
	if err := r.TransferFrom(caller, from, to, collection, assetID); err != nil {
		return err
	}
	fn, ok := r.receivers[to]
	if !ok {
		return nil
	}
	ack, err := fn(caller, from, assetID, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceiverReject, err)
	}
	if !bytes.Equal(ack[:], receiptAck[:]) {
		return ErrReceiverReject
	}
	return nil
}
