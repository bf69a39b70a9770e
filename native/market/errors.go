package market

import "errors"

// Every failure below is a precondition failure: it aborts the whole call and
// leaves all ledger state exactly as it was before the call began.
var (
	// Authorization.
	ErrNotAssetOwner = errors.New("market: caller does not own the asset")
	ErrNotInitiator  = errors.New("market: caller is not the offer initiator")
	ErrNotOperator   = errors.New("market: caller is not the operator")

	// Approval.
	ErrNotApproved = errors.New("market: engine lacks transfer approval for the asset")

	// Validation.
	ErrNonPositivePrice  = errors.New("market: price must be positive")
	ErrDeadlineNotFuture = errors.New("market: deadline must be strictly in the future")
	ErrAssetNotFound     = errors.New("market: asset does not exist")

	// State conflict.
	ErrOfferNotFound      = errors.New("market: offer not found")
	ErrOfferEnded         = errors.New("market: offer already ended")
	ErrOfferExpired       = errors.New("market: offer deadline passed")
	ErrDeadlineNotReached = errors.New("market: offer deadline not yet passed")
	ErrWrongPayment       = errors.New("market: payment must equal the offer price exactly")
	ErrAlreadyInitialized = errors.New("market: module already initialized")

	// Transfer failure: downstream payment or asset movement did not
	// complete. Always wraps the downstream cause.
	ErrTransferFailed = errors.New("market: transfer failed")

	// Wiring.
	ErrNilState         = errors.New("market: state not configured")
	ErrNilRegistry      = errors.New("market: asset registry not configured")
	ErrNoImplementation = errors.New("market: no implementation installed")
)
