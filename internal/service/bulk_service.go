package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/metrics"
	"github.com/gallerysync/api/internal/model"
)

// Rejection messages reported per item
const (
	MsgInvalidItemPayload = "Invalid item payload"
	MsgMissingSKU         = "Missing SKU"
	MsgMissingImages      = "Missing images"
	MsgBuildFailed        = "Failed to build queued operation"
	MsgScheduleFailed     = "Failed to schedule bulk operations"
)

// Scheduler stores and enqueues a bulk atomically
type Scheduler interface {
	ScheduleBulk(ctx context.Context, bulk model.Bulk, ops []*model.Operation) error
}

// BulkStatusReader loads the progress of a scheduled bulk
type BulkStatusReader interface {
	BulkStatus(ctx context.Context, batchID string) (*model.BulkStatus, error)
}

// BulkService plans gallery bulk submissions into one operation per SKU
type BulkService struct {
	scheduler   Scheduler
	statuses    BulkStatusReader
	normalizer  *ImageNormalizer
	metrics     *metrics.Metrics
	description string
	logger      zerolog.Logger

	newBatchID func() string
	buildOp    func(batchID string, payload model.GalleryJobPayload) (*model.Operation, error)
}

func NewBulkService(
	scheduler Scheduler,
	statuses BulkStatusReader,
	normalizer *ImageNormalizer,
	m *metrics.Metrics,
	description string,
	logger zerolog.Logger,
) *BulkService {
	return &BulkService{
		scheduler:   scheduler,
		statuses:    statuses,
		normalizer:  normalizer,
		metrics:     m,
		description: description,
		logger:      logger.With().Str("component", "planner").Logger(),
		newBatchID:  func() string { return uuid.New().String() },
		buildOp:     buildOperation,
	}
}

// itemPayload is the extracted form of one caller item
type itemPayload struct {
	sku    string
	images []any
}

type plannedSKU struct {
	sku    string
	images []model.ImageRecord
}

// Submit validates, deduplicates and schedules the items of req. Failures
// are reported per item; Submit itself never fails.
func (s *BulkService) Submit(ctx context.Context, req *model.BulkRequest) *model.BulkResponse {
	batchID := s.newBatchID()
	requestID := NormalizeRequestID(req.RequestID)

	log := s.logger.With().Str("batch_id", batchID).Logger()
	if requestID != nil {
		log = log.With().Str("request_id", *requestID).Logger()
	}

	statuses := make([]model.ItemStatus, len(req.Items))
	skuAt := make(map[int]string)
	valid := make(map[string]*plannedSKU)
	var order []string
	hasErrors := false
	deduped, rejected := 0, 0

	reject := func(i int, sku, msg string) {
		statuses[i] = newItemStatus(i+1, sku, model.ItemStatusRejected, msg)
		rejected++
		hasErrors = true
	}

	for i, raw := range req.Items {
		item, ok := extractItem(raw)
		if !ok {
			reject(i, "", MsgInvalidItemPayload)
			continue
		}

		sku := NormalizeSKU(item.sku)
		if sku == "" {
			reject(i, "", MsgMissingSKU)
			continue
		}

		images := s.normalizer.NormalizeList(item.images)
		if len(images) == 0 {
			reject(i, sku, MsgMissingImages)
			continue
		}
		if msg := firstImageRejection(images); msg != "" {
			reject(i, sku, msg)
			continue
		}

		if p, seen := valid[sku]; seen {
			p.images = images
			deduped++
		} else {
			valid[sku] = &plannedSKU{sku: sku, images: images}
			order = append(order, sku)
		}
		skuAt[i] = sku
	}

	// outcome of each unique SKU, filled once its operation is built or fails
	outcome := make(map[string]string, len(order))
	var ops []*model.Operation
	keys := make(map[string]string, len(order))

	for _, sku := range order {
		op, err := s.buildOp(batchID, model.GalleryJobPayload{
			SKU:       sku,
			Images:    valid[sku].images,
			RequestID: requestID,
		})
		if err == nil {
			if other, taken := keys[op.OperationKey]; taken {
				err = fmt.Errorf("%w: %s and %s", model.ErrOperationKeyCollide, other, sku)
			}
		}
		if err != nil {
			log.Error().Err(err).Str("sku", sku).Msg("failed to build operation payload")
			outcome[sku] = MsgBuildFailed
			continue
		}
		keys[op.OperationKey] = sku
		ops = append(ops, op)
		outcome[sku] = ""
	}

	if len(ops) > 0 {
		err := s.scheduler.ScheduleBulk(ctx, model.Bulk{
			UUID:        batchID,
			Description: s.description,
			RequestID:   requestID,
		}, ops)
		s.metrics.BatchScheduled(err)
		if err != nil {
			log.Error().Err(err).Msg("failed to schedule bulk")
			for _, op := range ops {
				outcome[op.SKU] = MsgScheduleFailed
			}
		}
	} else {
		log.Warn().Msg("no operations were scheduled")
	}

	for i, sku := range skuAt {
		if msg := outcome[sku]; msg != "" {
			reject(i, sku, msg)
			continue
		}
		statuses[i] = newItemStatus(i+1, sku, model.ItemStatusAccepted, "")
	}

	for _, st := range statuses {
		s.metrics.ItemStatus(string(st.Status))
	}

	log.Info().
		Int("total", len(req.Items)).
		Int("valid", len(order)).
		Int("queued", len(ops)).
		Int("deduped", deduped).
		Int("rejected", rejected).
		Msg("planned bulk request")

	return &model.BulkResponse{
		BatchID:      batchID,
		ItemStatuses: statuses,
		HasErrors:    hasErrors,
	}
}

// GetBulkStatus returns the progress of batchID, or model.ErrNotFound
func (s *BulkService) GetBulkStatus(ctx context.Context, batchID string) (*model.BulkStatus, error) {
	return s.statuses.BulkStatus(ctx, batchID)
}

func buildOperation(batchID string, payload model.GalleryJobPayload) (*model.Operation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &model.Operation{
		BatchID:        batchID,
		OperationKey:   OperationKey(batchID, payload.SKU),
		SKU:            payload.SKU,
		TopicName:      model.TopicGalleryProcess,
		SerializedData: string(data),
		Status:         model.OperationStatusOpen,
	}, nil
}

// extractItem accepts typed items and decoded JSON objects. images is kept
// only when it is a list.
func extractItem(raw any) (itemPayload, bool) {
	switch v := raw.(type) {
	case model.BulkItem:
		return itemPayload{sku: v.SKU, images: v.Images}, true
	case *model.BulkItem:
		if v == nil {
			return itemPayload{}, false
		}
		return itemPayload{sku: v.SKU, images: v.Images}, true
	case map[string]any:
		var item itemPayload
		if sku, ok := scalarString(v["sku"]); ok {
			item.sku = sku
		}
		if images, ok := v["images"].([]any); ok {
			item.images = images
		}
		return item, true
	default:
		return itemPayload{}, false
	}
}

func firstImageRejection(images []model.ImageRecord) string {
	for _, img := range images {
		if err := ValidateImage(img); err != nil {
			return err.Error()
		}
	}
	return ""
}

func newItemStatus(seq int, sku string, status model.ItemStatusValue, msg string) model.ItemStatus {
	key := sku
	if key == "" {
		key = "#" + strconv.Itoa(seq)
	}
	sum := md5.Sum([]byte(key))

	st := model.ItemStatus{
		SequenceID: seq,
		SKUHash:    hex.EncodeToString(sum[:]),
		Status:     status,
	}
	if msg != "" {
		st.ErrorMessage = &msg
	}
	return st
}
