package model

// BulkRequest represents a gallery bulk submission
type BulkRequest struct {
	// RequestID is kept loosely typed: non-scalar values are treated as absent.
	RequestID any   `json:"request_id"`
	Items     []any `json:"items" validate:"required"`
}

// BulkItem is the typed item shape accepted from Go callers. Images may hold
// ImageEntry, ImageRecord or generic attribute maps.
type BulkItem struct {
	SKU    string `json:"sku"`
	Images []any  `json:"images"`
}

// ItemStatus reports the outcome of one caller-supplied item
type ItemStatus struct {
	SequenceID   int             `json:"sequence_id"`
	SKUHash      string          `json:"sku_hash"`
	Status       ItemStatusValue `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// BulkResponse is returned by a submission
type BulkResponse struct {
	BatchID      string       `json:"batch_id"`
	ItemStatuses []ItemStatus `json:"item_statuses"`
	HasErrors    bool         `json:"has_errors"`
}

// BulkStatus summarizes the operations of a scheduled batch
type BulkStatus struct {
	BatchID        string                    `json:"batch_id"`
	Description    string                    `json:"description"`
	RequestID      *string                   `json:"request_id,omitempty"`
	OperationCount int                       `json:"operation_count"`
	StatusCounts   map[string]int            `json:"status_counts"`
	Operations     []BulkOperationStatusView `json:"operations"`
}

// BulkOperationStatusView is the per-operation part of BulkStatus
type BulkOperationStatusView struct {
	OperationKey  string  `json:"operation_key"`
	SKU           string  `json:"sku"`
	Status        string  `json:"status"`
	ErrorCode     *int    `json:"error_code,omitempty"`
	ResultMessage *string `json:"result_message,omitempty"`
}
