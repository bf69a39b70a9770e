package market

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tokenmart/core/types"
)

// mockState is an in-memory stand-in for the state manager. Values stored via
// KVPut round-trip through RLP so the tests exercise the same codec the real
// backend uses.
type mockState struct {
	accounts map[[20]byte]*types.Account
	kv       map[string][]byte
}

func newMockState() *mockState {
	return &mockState{
		accounts: make(map[[20]byte]*types.Account),
		kv:       make(map[string][]byte),
	}
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockState) setBalance(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

type mockToken struct {
	owner    [20]byte
	approved [20]byte
}

// mockRegistry implements the AssetRegistry boundary with in-memory tokens.
// transferHook, when set, runs in the middle of every safe transfer so tests
// can model reentrant callers and failing destinations.
type mockRegistry struct {
	tokens       map[string]*mockToken
	failTransfer error
	transferHook func()
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{tokens: make(map[string]*mockToken)}
}

func tokenRef(registry string, assetID [32]byte) string {
	return registry + "/" + hex.EncodeToString(assetID[:])
}

func (r *mockRegistry) mint(registry string, assetID [32]byte, owner [20]byte) {
	r.tokens[tokenRef(registry, assetID)] = &mockToken{owner: owner}
}

func (r *mockRegistry) approve(registry string, assetID [32]byte, operator [20]byte) {
	if tok, ok := r.tokens[tokenRef(registry, assetID)]; ok {
		tok.approved = operator
	}
}

func (r *mockRegistry) OwnerOf(registry string, assetID [32]byte) ([20]byte, error) {
	tok, ok := r.tokens[tokenRef(registry, assetID)]
	if !ok {
		return [20]byte{}, errors.New("token not found")
	}
	return tok.owner, nil
}

func (r *mockRegistry) GetApproved(registry string, assetID [32]byte) ([20]byte, error) {
	tok, ok := r.tokens[tokenRef(registry, assetID)]
	if !ok {
		return [20]byte{}, errors.New("token not found")
	}
	return tok.approved, nil
}

func (r *mockRegistry) TransferFrom(caller, from, to [20]byte, registry string, assetID [32]byte) error {
	if r.failTransfer != nil {
		return r.failTransfer
	}
	tok, ok := r.tokens[tokenRef(registry, assetID)]
	if !ok {
		return errors.New("token not found")
	}
	if tok.owner != from {
		return errors.New("from is not the owner")
	}
	if caller != tok.owner && caller != tok.approved {
		return errors.New("caller not authorized")
	}
	tok.owner = to
	tok.approved = [20]byte{}
	return nil
}

func (r *mockRegistry) SafeTransferFrom(caller, from, to [20]byte, registry string, assetID [32]byte, data []byte) error {
	if err := r.TransferFrom(caller, from, to, registry, assetID); err != nil {
		return err
	}
	if r.transferHook != nil {
		r.transferHook()
	}
	return nil
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func asset(b byte) [32]byte {
	var a [32]byte
	a[31] = b
	return a
}

func fixedNow(at int64) func() int64 {
	return func() int64 { return at }
}
