package types

import "math/big"

// Account tracks the payment balance held by a single identity on the host
// ledger. The marketplace engine debits and credits these balances when
// offers are created, accepted and cancelled.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
