package market

import (
	"encoding/hex"
	"strconv"

	"tokenmart/core/types"
)

const (
	EventTypeSellOfferCreated   = "market.sell.created"
	EventTypeSellOfferAccepted  = "market.sell.accepted"
	EventTypeSellOfferCancelled = "market.sell.cancelled"
	EventTypeBuyOfferCreated    = "market.buy.created"
	EventTypeBuyOfferAccepted   = "market.buy.accepted"
	EventTypeBuyOfferCancelled  = "market.buy.cancelled"
	EventTypeAssetReceived      = "market.asset.received"
	EventTypeUpgraded           = "market.upgraded"
)

// NewSellOfferCreatedEvent returns the canonical payload for a newly created
// sell offer.
func NewSellOfferCreatedEvent(id uint64, o *Offer) *types.Event {
	return newOfferEvent(EventTypeSellOfferCreated, id, o, nil)
}

// NewSellOfferAcceptedEvent returns the payload emitted when a sell offer is
// accepted, including the accepting counterparty.
func NewSellOfferAcceptedEvent(id uint64, o *Offer, counterparty [20]byte) *types.Event {
	return newOfferEvent(EventTypeSellOfferAccepted, id, o, &counterparty)
}

// NewSellOfferCancelledEvent returns the payload emitted when a sell offer is
// cancelled after expiry.
func NewSellOfferCancelledEvent(id uint64, o *Offer) *types.Event {
	return newOfferEvent(EventTypeSellOfferCancelled, id, o, nil)
}

// NewBuyOfferCreatedEvent returns the canonical payload for a newly created
// buy offer.
func NewBuyOfferCreatedEvent(id uint64, o *Offer) *types.Event {
	return newOfferEvent(EventTypeBuyOfferCreated, id, o, nil)
}

// NewBuyOfferAcceptedEvent returns the payload emitted when a buy offer is
// accepted, including the accepting counterparty.
func NewBuyOfferAcceptedEvent(id uint64, o *Offer, counterparty [20]byte) *types.Event {
	return newOfferEvent(EventTypeBuyOfferAccepted, id, o, &counterparty)
}

// NewBuyOfferCancelledEvent returns the payload emitted when a buy offer is
// cancelled after expiry.
func NewBuyOfferCancelledEvent(id uint64, o *Offer) *types.Event {
	return newOfferEvent(EventTypeBuyOfferCancelled, id, o, nil)
}

// NewAssetReceivedEvent records an inbound safe transfer acknowledged by the
// receipt callback.
func NewAssetReceivedEvent(operator, from [20]byte, assetID [32]byte, data []byte) *types.Event {
	attrs := map[string]string{
		"operator": hex.EncodeToString(operator[:]),
		"from":     hex.EncodeToString(from[:]),
		"assetId":  hex.EncodeToString(assetID[:]),
	}
	if len(data) > 0 {
		attrs["data"] = hex.EncodeToString(data)
	}
	return &types.Event{Type: EventTypeAssetReceived, Attributes: attrs}
}

// NewUpgradedEvent records a logic module swap behind the stable facade.
func NewUpgradedEvent(version string, implementation [20]byte) *types.Event {
	return &types.Event{Type: EventTypeUpgraded, Attributes: map[string]string{
		"version":        version,
		"implementation": hex.EncodeToString(implementation[:]),
	}}
}

func newOfferEvent(eventType string, id uint64, o *Offer, counterparty *[20]byte) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(id, 10)
	attrs["registry"] = o.AssetRegistry
	attrs["assetId"] = hex.EncodeToString(o.AssetID[:])
	attrs["initiator"] = hex.EncodeToString(o.Initiator[:])
	attrs["price"] = cloneBigInt(o.Price).String()
	attrs["deadline"] = strconv.FormatInt(o.Deadline, 10)
	attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	if counterparty != nil {
		attrs["counterparty"] = hex.EncodeToString((*counterparty)[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
