package modules

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"tokenmart/core/events"
	"tokenmart/native/market"
)

// MarketModule exposes read helpers for marketplace offers, the installed
// logic version and event history. Mutations are not served over RPC; they
// enter through the transaction path.
type MarketModule struct {
	proxy    *market.Proxy
	recorder *events.Recorder
}

// NewMarketModule constructs a marketplace RPC helper module.
func NewMarketModule(proxy *market.Proxy, recorder *events.Recorder) *MarketModule {
	return &MarketModule{proxy: proxy, recorder: recorder}
}

type getOfferParams struct {
	ID uint64 `json:"id"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

// OfferResult represents a stored offer returned over RPC. Unknown ids yield
// a zero-valued record, mirroring the on-ledger read semantics.
type OfferResult struct {
	ID        uint64 `json:"id"`
	Registry  string `json:"registry"`
	AssetID   string `json:"assetId"`
	Initiator string `json:"initiator"`
	Price     string `json:"price"`
	Deadline  int64  `json:"deadline"`
	CreatedAt int64  `json:"createdAt"`
	Ended     bool   `json:"ended"`
}

// VersionResult describes the logic module currently installed behind the
// marketplace facade.
type VersionResult struct {
	Version        string `json:"version"`
	Implementation string `json:"implementation,omitempty"`
	Custodian      string `json:"custodian"`
}

// MarketEventResult represents an emitted marketplace event.
type MarketEventResult struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

var errModuleOffline = &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "market module not initialised"}

// GetSellOffer fetches the sell offer stored under the provided id.
func (m *MarketModule) GetSellOffer(raw json.RawMessage) (*OfferResult, *ModuleError) {
	if m == nil || m.proxy == nil {
		return nil, errModuleOffline
	}
	params, modErr := parseOfferParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	offer := m.proxy.GetSellOffer(params.ID)
	result := formatOfferResult(params.ID, offer)
	return &result, nil
}

// GetBuyOffer fetches the buy offer stored under the provided id.
func (m *MarketModule) GetBuyOffer(raw json.RawMessage) (*OfferResult, *ModuleError) {
	if m == nil || m.proxy == nil {
		return nil, errModuleOffline
	}
	params, modErr := parseOfferParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	offer := m.proxy.GetBuyOffer(params.ID)
	result := formatOfferResult(params.ID, offer)
	return &result, nil
}

// Version reports the installed logic module and the custodian identity.
func (m *MarketModule) Version(json.RawMessage) (*VersionResult, *ModuleError) {
	if m == nil || m.proxy == nil {
		return nil, errModuleOffline
	}
	custodian := market.ProxyAddress()
	result := &VersionResult{
		Version:   m.proxy.Version(),
		Custodian: "0x" + hex.EncodeToString(custodian[:]),
	}
	if impl, ok := m.proxy.CurrentImplementation(); ok {
		result.Implementation = "0x" + hex.EncodeToString(impl[:])
	}
	return result, nil
}

// ListEvents returns recorded marketplace events, optionally filtered by a
// type prefix and capped by limit.
func (m *MarketModule) ListEvents(raw json.RawMessage) ([]MarketEventResult, *ModuleError) {
	if m == nil || m.recorder == nil {
		return nil, errModuleOffline
	}
	var params listEventsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
		}
	}
	limit := 100
	if params.Limit != nil {
		if *params.Limit <= 0 {
			return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "limit must be positive"}
		}
		limit = *params.Limit
	}
	prefix := strings.TrimSpace(params.Prefix)
	recorded := m.recorder.Events()
	results := make([]MarketEventResult, 0, len(recorded))
	for i, evt := range recorded {
		if prefix != "" && !strings.HasPrefix(evt.Type, prefix) {
			continue
		}
		// Sequences are 1-based, matching the persisted event records.
		results = append(results, MarketEventResult{
			Sequence:   int64(i) + 1,
			Type:       evt.Type,
			Attributes: evt.Attributes,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func parseOfferParams(raw json.RawMessage) (getOfferParams, *ModuleError) {
	var params getOfferParams
	if len(raw) == 0 {
		return params, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "id is required"}
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return params, nil
}

func formatOfferResult(id uint64, offer market.Offer) OfferResult {
	price := "0"
	if offer.Price != nil {
		price = offer.Price.String()
	}
	result := OfferResult{
		ID:        id,
		Registry:  offer.AssetRegistry,
		Price:     price,
		Deadline:  offer.Deadline,
		CreatedAt: offer.CreatedAt,
		Ended:     offer.Ended,
	}
	if offer.AssetID != ([32]byte{}) {
		result.AssetID = "0x" + hex.EncodeToString(offer.AssetID[:])
	}
	if offer.Initiator != ([20]byte{}) {
		result.Initiator = "0x" + hex.EncodeToString(offer.Initiator[:])
	}
	return result
}
