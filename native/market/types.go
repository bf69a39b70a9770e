package market

import (
	"fmt"
	"math/big"
	"strings"
)

// Namespace selects one of the two independent offer id spaces. Sell and buy
// offers are numbered separately, so a sell offer and a buy offer may share
// the same numeric id.
type Namespace uint8

const (
	NamespaceSell Namespace = iota
	NamespaceBuy
)

// Valid reports whether the namespace value is within the supported range.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceSell, NamespaceBuy:
		return true
	default:
		return false
	}
}

func (n Namespace) String() string {
	switch n {
	case NamespaceSell:
		return "sell"
	case NamespaceBuy:
		return "buy"
	default:
		return "unknown"
	}
}

// Offer captures a single fixed-price, single-asset offer. The same shape
// serves both namespaces: for sell offers the asset is escrowed and Price is
// the payment sought, for buy offers the payment is escrowed and the asset is
// sought. Ended flips to true exactly once, on acceptance or cancellation,
// and never reverts.
type Offer struct {
	AssetRegistry string
	AssetID       [32]byte
	Initiator     [20]byte
	Price         *big.Int
	Deadline      int64
	CreatedAt     int64
	Ended         bool
}

// Clone returns a deep copy of the offer so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeOffer validates and normalises the supplied offer definition,
// returning a cloned instance with a trimmed registry identifier and a
// non-nil price. The function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	clone.AssetRegistry = strings.TrimSpace(clone.AssetRegistry)
	if clone.AssetRegistry == "" {
		return nil, fmt.Errorf("market: asset registry required")
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrNonPositivePrice
	}
	if clone.Deadline < 0 {
		return nil, fmt.Errorf("market: negative deadline")
	}
	if clone.CreatedAt < 0 {
		return nil, fmt.Errorf("market: negative creation time")
	}
	return clone, nil
}
