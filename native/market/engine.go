package market

import (
	"fmt"
	"math/big"
	"time"

	"tokenmart/core/events"
	"tokenmart/core/types"
)

// accountState abstracts the subset of state manager functionality the
// engines need to move payment balances.
type accountState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// transferPayment moves payment balance between two accounts. A zero amount
// is a no-op; a negative amount or insufficient source balance fails the
// call.
func transferPayment(state accountState, from, to [20]byte, amount *big.Int) error {
	if state == nil {
		return ErrNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	fromAcc, err := state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("market: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return state.PutAccount(to[:], toAcc)
}

func emitTo(emitter events.Emitter, evt *types.Event) {
	if emitter == nil || evt == nil {
		return
	}
	emitter.Emit(marketEvent{evt: evt})
}

func defaultNow() int64 { return time.Now().Unix() }
