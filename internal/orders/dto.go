package orders

// CreateRequest is the checkout payload.
type CreateRequest struct {
	ClientID      int64            `json:"client_id" validate:"required,gt=0"`
	PaymentMethod string           `json:"payment_method" validate:"required,max=32"`
	ShippingFee   int64            `json:"shipping_fee" validate:"gte=0"`
	Memo          string           `json:"memo" validate:"max=1000"`
	Items         []ItemRequest    `json:"items" validate:"required,min=1,dive"`
	Shipping      *ShippingRequest `json:"shipping" validate:"omitempty"`
}

// ItemRequest describes one ordered product.
type ItemRequest struct {
	ProductName string `json:"product_name" validate:"required,max=200"`
	FolderName  string `json:"folder_name" validate:"max=255"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
	StagingKey  string `json:"staging_key" validate:"max=255"`
}

// ShippingRequest carries the delivery address.
type ShippingRequest struct {
	RecipientName string `json:"recipient_name" validate:"required,max=100"`
	Phone         string `json:"phone" validate:"max=32"`
	PostalCode    string `json:"postal_code" validate:"max=16"`
	Address       string `json:"address" validate:"max=255"`
	AddressDetail string `json:"address_detail" validate:"max=255"`
	Method        string `json:"method" validate:"max=32"`
}

// StatusRequest moves one order to a new status.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=PENDING_RECEIPT RECEIPT_COMPLETED SHIPPED CANCELLED"`
	Reason string `json:"reason" validate:"max=500"`
}

// ProcessRequest moves the inspection sub-state.
type ProcessRequest struct {
	Process Process `json:"process" validate:"required,oneof=receipt_pending inspection completed"`
	Note    string  `json:"note" validate:"max=500"`
}

// CancelRequest cancels one order.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdjustRequest overrides item quantities or prices and order-level amounts.
type AdjustRequest struct {
	Items            []ItemAdjustment `json:"items" validate:"dive"`
	ShippingFee      *int64           `json:"shipping_fee" validate:"omitempty,gte=0"`
	AdjustmentAmount *int64           `json:"adjustment_amount" validate:"omitempty,gte=0"`
	Memo             *string          `json:"memo" validate:"omitempty,max=1000"`
}

// ItemAdjustment overrides one item.
type ItemAdjustment struct {
	ItemID    int64  `json:"item_id" validate:"required,gt=0"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice *int64 `json:"unit_price" validate:"omitempty,gte=0"`
}

// BulkStatusRequest moves many orders to one status.
type BulkStatusRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Status Status  `json:"status" validate:"required,oneof=RECEIPT_COMPLETED SHIPPED CANCELLED"`
	Reason string  `json:"reason" validate:"max=500"`
}

// BulkRequest targets many orders.
type BulkRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Reason string  `json:"reason" validate:"max=500"`
}

// DuplicateCheckRequest asks whether folders were ordered recently.
type DuplicateCheckRequest struct {
	ClientID    int64    `json:"client_id" validate:"required,gt=0"`
	FolderNames []string `json:"folder_names" validate:"required,min=1"`
}

// BulkError is one failed item of a bulk operation.
type BulkError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BulkResult accumulates per-item outcomes.
type BulkResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Skipped int         `json:"skipped"`
	Errors  []BulkError `json:"errors,omitempty"`
	Created []int64     `json:"created,omitempty"`
}
