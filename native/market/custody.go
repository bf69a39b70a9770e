package market

// AssetRegistry is the boundary contract toward the external asset registry.
// The engine consumes only this read/write surface; the registry's internal
// implementation is a collaborator concern.
type AssetRegistry interface {
	// OwnerOf returns the current owner of the asset. It fails if the asset
	// does not exist.
	OwnerOf(registry string, assetID [32]byte) ([20]byte, error)
	// GetApproved returns the identity approved to transfer the asset, or
	// the zero address when no approval is outstanding.
	GetApproved(registry string, assetID [32]byte) ([20]byte, error)
	// TransferFrom moves the asset unconditionally on behalf of the caller.
	TransferFrom(caller, from, to [20]byte, registry string, assetID [32]byte) error
	// SafeTransferFrom moves the asset and requires the receiving party to
	// acknowledge receipt via its receipt callback; failure to return the
	// expected acknowledgment aborts the transfer.
	SafeTransferFrom(caller, from, to [20]byte, registry string, assetID [32]byte, data []byte) error
}

// Custody adapts the external asset registry to the checks and movements the
// offer engines need, acting on behalf of the stable custodian identity that
// holds escrowed assets.
type Custody struct {
	registry  AssetRegistry
	custodian [20]byte
}

// NewCustody constructs a custody adapter bound to the provided registry and
// custodian identity.
func NewCustody(registry AssetRegistry, custodian [20]byte) *Custody {
	return &Custody{registry: registry, custodian: custodian}
}

// Custodian returns the identity that holds escrowed assets.
func (c *Custody) Custodian() [20]byte {
	if c == nil {
		return [20]byte{}
	}
	return c.custodian
}

// OwnerOf returns the current owner of the asset, failing when the asset
// does not exist.
func (c *Custody) OwnerOf(registry string, assetID [32]byte) ([20]byte, error) {
	if c == nil || c.registry == nil {
		return [20]byte{}, ErrNilRegistry
	}
	return c.registry.OwnerOf(registry, assetID)
}

// Exists is a non-failing probe around OwnerOf. This is the only place the
// engine reads a collaborator failure as a plain boolean rather than an
// error.
func (c *Custody) Exists(registry string, assetID [32]byte) bool {
	if c == nil || c.registry == nil {
		return false
	}
	_, err := c.registry.OwnerOf(registry, assetID)
	return err == nil
}

// IsApprovedForTransfer reports whether the operator currently holds transfer
// approval for the asset.
func (c *Custody) IsApprovedForTransfer(registry string, assetID [32]byte, operator [20]byte) bool {
	if c == nil || c.registry == nil {
		return false
	}
	approved, err := c.registry.GetApproved(registry, assetID)
	if err != nil {
		return false
	}
	return approved == operator && operator != ([20]byte{})
}

// Transfer moves the asset unconditionally. Used when the caller has already
// been verified as the owner.
func (c *Custody) Transfer(registry string, from, to [20]byte, assetID [32]byte) error {
	if c == nil || c.registry == nil {
		return ErrNilRegistry
	}
	return c.registry.TransferFrom(c.custodian, from, to, registry, assetID)
}

// SafeTransfer moves the asset requiring receipt acknowledgment from the
// destination. Used whenever the destination is the engine itself or an
// arbitrary counterparty, so the asset is never silently lost to a
// non-accepting destination.
func (c *Custody) SafeTransfer(registry string, from, to [20]byte, assetID [32]byte, data []byte) error {
	if c == nil || c.registry == nil {
		return ErrNilRegistry
	}
	return c.registry.SafeTransferFrom(c.custodian, from, to, registry, assetID, data)
}
