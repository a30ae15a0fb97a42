package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every operation that requires a ready
	// billing session when there is none. Nothing reaches the backend in
	// that case.
	ErrNotConnected = errors.New("billing client is not connected")

	// ErrMissingProductID rejects a purchase request with an empty product id.
	ErrMissingProductID = errors.New("product id is required")

	// ErrMissingProductIDs rejects a catalog query with an empty or
	// blank-containing id list.
	ErrMissingProductIDs = errors.New("product ids are required")

	// ErrPurchaseInProgress rejects a purchase request while another one is
	// still awaiting its result. The pending request is left untouched.
	ErrPurchaseInProgress = errors.New("purchase already in progress")

	ErrProductUnavailable = errors.New("product not found or query failed")
	ErrNoOfferDetails     = errors.New("product does not have purchase offer details")

	ErrUserCanceled    = errors.New("user canceled the purchase")
	ErrPurchasePending = errors.New("purchase is pending")
	ErrPurchaseFailed  = errors.New("purchase failed")
)

// BackendError carries a non-OK backend response code out of the operation
// that received it.
type BackendError struct {
	Op   string
	Code ResponseCode
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: backend code %d", e.Op, e.Code)
}

// LaunchError reports a purchase flow that the backend refused to show.
type LaunchError struct {
	Code ResponseCode
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch purchase flow: %d", e.Code)
}
