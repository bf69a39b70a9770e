package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenmart/core/types"
	"tokenmart/storage/trie"
)

// Manager provides a minimal interface for reading and writing marketplace
// state. All values are RLP encoded and stored under keccak256-hashed keys to
// match the requirements of the underlying trie implementation.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var accountPrefix = []byte("account:")

type accountCodec struct {
	Nonce   uint64
	Balance *big.Int
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// GetAccount retrieves the account stored for the provided address. Unknown
// addresses yield a zero-balance account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	data, err := m.trie.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	stored := new(accountCodec)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	balance := stored.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

// PutAccount stores the provided account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance not allowed")
	}
	encoded, err := rlp.EncodeToBytes(&accountCodec{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return err
	}
	return m.trie.Update(accountKey(addr), encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
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
