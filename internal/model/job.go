package model

// GalleryJobPayload is the serialized body of one queued gallery operation
type GalleryJobPayload struct {
	SKU       string        `json:"sku"`
	Images    []ImageRecord `json:"images"`
	RequestID *string       `json:"request_id,omitempty"`
}

// Bulk is one scheduled batch
type Bulk struct {
	UUID        string
	Description string
	RequestID   *string
}

// Operation is one queued unit of work, scoped to a single SKU
type Operation struct {
	ID             int64
	BatchID        string
	OperationKey   string
	SKU            string
	TopicName      string
	SerializedData string
	Status         OperationStatus
}

// TaskEnvelope is the queue message carried by the task broker
type TaskEnvelope struct {
	BatchID        string `json:"batchId"`
	OperationID    int64  `json:"operationId"`
	OperationKey   string `json:"operationKey"`
	SerializedData string `json:"serializedData"`
}

// StatusUpdate holds the fields written when an operation settles
type StatusUpdate struct {
	Status        OperationStatus
	ErrorCode     *int
	ResultMessage *string
}
