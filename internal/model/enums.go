package model

// Item status values reported back to the submitter
type ItemStatusValue string

const (
	ItemStatusAccepted ItemStatusValue = "accepted"
	ItemStatusRejected ItemStatusValue = "rejected"
)

// OperationStatus mirrors the status column of bulk_operations
type OperationStatus int

const (
	OperationStatusComplete           OperationStatus = 1
	OperationStatusRetriablyFailed    OperationStatus = 2
	OperationStatusNotRetriablyFailed OperationStatus = 3
	OperationStatusOpen               OperationStatus = 4
)

func (s OperationStatus) String() string {
	switch s {
	case OperationStatusComplete:
		return "complete"
	case OperationStatusRetriablyFailed:
		return "retriably_failed"
	case OperationStatusNotRetriablyFailed:
		return "not_retriably_failed"
	case OperationStatusOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Terminal reports whether the operation left the open state
func (s OperationStatus) Terminal() bool {
	return s != OperationStatusOpen
}

// Managed role codes owned by gallery reconciliation
const (
	RoleImage       = "image"
	RoleSmallImage  = "small_image"
	RoleThumbnail   = "thumbnail"
	RoleSwatchImage = "swatch_image"

	// RoleNoSelection is the value a cleared role attribute holds
	RoleNoSelection = "no_selection"
)

// Attribute codes
const (
	AttributeMediaGallery = "media_gallery"
)

// Queue topics
const (
	TopicGalleryProcess = "gallery:process"
)
