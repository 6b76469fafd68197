package orders

import (
	"fmt"

	"github.com/printhub/backoffice/internal/shared"
)

// Domain errors for orders.
var (
	// ErrOrderNotFound indicates the requested order was not found.
	ErrOrderNotFound = fmt.Errorf("%w: order", shared.ErrNotFound)
	// ErrItemNotFound indicates an adjustment referenced an item outside the order.
	ErrItemNotFound = fmt.Errorf("%w: item does not belong to order", shared.ErrValidation)

	// Status transition errors.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", shared.ErrInvalidState)
	ErrInspectionPending = fmt.Errorf("%w: file inspection not completed", shared.ErrInvalidState)
	ErrProcessLocked     = fmt.Errorf("%w: process can only change while awaiting receipt", shared.ErrInvalidState)
	ErrNotDeletable      = fmt.Errorf("%w: order cannot be deleted in current status", shared.ErrInvalidState)
	ErrOrderCancelled    = fmt.Errorf("%w: order is cancelled", shared.ErrInvalidState)

	// ErrNoChange marks a request that leaves the order as it is.
	ErrNoChange = fmt.Errorf("%w: order already in requested state", shared.ErrInvalidState)
)
