package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/gallery"
	"github.com/gallerysync/api/internal/metrics"
	"github.com/gallerysync/api/internal/model"
)

const statusWriteTimeout = 10 * time.Second

// Reconciler applies a desired image set to a product gallery
type Reconciler interface {
	Reconcile(ctx context.Context, sku string, images []model.ImageRecord) (gallery.SyncStats, error)
}

// ImageNormalizer coerces raw decoded image entries into canonical records
type ImageNormalizer interface {
	NormalizeList(images []any) []model.ImageRecord
}

// StatusRecorder persists the terminal status of an operation
type StatusRecorder interface {
	Update(ctx context.Context, batchID string, operationID int64, operationKey string, u model.StatusUpdate) UpdateResult
}

// GalleryWorker consumes gallery operations. Retries are left to asynq: an
// error returned from ProcessTask asks for redelivery.
type GalleryWorker struct {
	reconciler Reconciler
	normalizer ImageNormalizer
	classifier *FailureClassifier
	statuses   StatusRecorder
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewGalleryWorker creates a new gallery worker
func NewGalleryWorker(
	reconciler Reconciler,
	normalizer ImageNormalizer,
	classifier *FailureClassifier,
	statuses StatusRecorder,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *GalleryWorker {
	return &GalleryWorker{
		reconciler: reconciler,
		normalizer: normalizer,
		classifier: classifier,
		statuses:   statuses,
		metrics:    m,
		logger:     logger.With().Str("component", "consumer").Logger(),
	}
}

// ProcessTask handles gallery task processing
func (w *GalleryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var env model.TaskEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		// without an envelope there is no row to settle
		w.logger.Error().Err(err).Msg("failed to unmarshal task envelope")
		return fmt.Errorf("failed to unmarshal task envelope: %v: %w", err, asynq.SkipRetry)
	}
	return w.Process(ctx, env)
}

// settlement is what one processing attempt produced
type settlement struct {
	sku       string
	requestID *string
	err       error
	retriable bool
	result    UpdateResult
}

// Process runs one operation and records its outcome. The status write runs
// on every path, including a panic in the reconciler.
func (w *GalleryWorker) Process(ctx context.Context, env model.TaskEnvelope) error {
	log := w.logger.With().
		Str("batch_id", env.BatchID).
		Int64("operation_id", env.OperationID).
		Str("operation_key", env.OperationKey).
		Logger()

	var s settlement
	func() {
		defer w.settle(ctx, env, &s, log)
		s.sku, s.requestID, s.err = w.execute(ctx, env)
	}()

	return w.resolve(env, s, log)
}

func (w *GalleryWorker) settle(ctx context.Context, env model.TaskEnvelope, s *settlement, log zerolog.Logger) {
	if r := recover(); r != nil {
		s.err = fmt.Errorf("panic while processing operation: %v", r)
	}

	upd := model.StatusUpdate{Status: model.OperationStatusComplete}
	if s.err != nil {
		s.retriable = w.classifier.IsRetriable(s.err)
		upd.Status = model.OperationStatusNotRetriablyFailed
		if s.retriable {
			upd.Status = model.OperationStatusRetriablyFailed
		}
		upd.ErrorCode = errorCode(s.err, s.retriable)
		msg := s.err.Error()
		upd.ResultMessage = &msg

		log.Error().
			Err(s.err).
			Str("sku", s.sku).
			Interface("request_id", s.requestID).
			Bool("retriable", s.retriable).
			Msg("operation failed")
	}

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	s.result = w.statuses.Update(statusCtx, env.BatchID, env.OperationID, env.OperationKey, upd)
	w.metrics.OperationSettled(upd.Status.String())
	w.metrics.StatusWrite(string(s.result))
}

// resolve turns a settlement into the value returned to asynq
func (w *GalleryWorker) resolve(env model.TaskEnvelope, s settlement, log zerolog.Logger) error {
	ref := fmt.Sprintf("batch=%q operation_id=%d operation_key=%q", env.BatchID, env.OperationID, env.OperationKey)

	if s.result == ResultNotFound {
		log.Error().
			Str("sku", s.sku).
			Bool("had_processing_error", s.err != nil).
			Bool("processing_retriable", s.retriable).
			Msg("operation status row not found")
		if s.err != nil && s.retriable {
			return fmt.Errorf("retriable processing failure with missing operation status row for %s: %w", ref, s.err)
		}
		return nil
	}

	if s.err != nil && s.retriable {
		return fmt.Errorf("retriable processing failure for %s: %w", ref, s.err)
	}

	if s.result == ResultError {
		return &model.PipelineError{
			Kind:    model.ErrorKindStatusPersistence,
			Message: "failed to persist operation status for " + ref,
			Err:     errors.Join(model.ErrStatusPersistence, s.err),
		}
	}

	if s.err == nil {
		log.Debug().Str("sku", s.sku).Interface("request_id", s.requestID).Msg("operation processed")
	}
	return nil
}

// execute decodes the operation payload and reconciles it
func (w *GalleryWorker) execute(ctx context.Context, env model.TaskEnvelope) (string, *string, error) {
	data := map[string]any{}
	if env.SerializedData != "" {
		var decoded any
		if err := json.Unmarshal([]byte(env.SerializedData), &decoded); err != nil {
			return "", nil, model.NewShapeError("Message payload is not an object")
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return "", nil, model.NewShapeError("Message payload is not an object")
		}
		data = obj
	}

	sku := strings.TrimSpace(scalarField(data["sku"]))

	var images []any
	if raw, present := data["images"]; present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return sku, nil, model.NewShapeError("images must be an array in the message payload")
		}
		images = list
	}

	var requestID *string
	if rid, ok := data["request_id"].(string); ok {
		requestID = &rid
	}

	if sku == "" {
		return sku, requestID, model.NewShapeError("SKU is empty in the message payload")
	}

	entries := w.normalizer.NormalizeList(images)
	if len(images) > 0 && len(entries) == 0 {
		return sku, requestID, model.NewShapeError("No valid image entries after payload normalization")
	}

	started := time.Now()
	stats, err := w.reconciler.Reconcile(ctx, sku, entries)
	if err != nil {
		return sku, requestID, err
	}
	w.metrics.Reconciled(time.Since(started), stats.Inserted, stats.Updated, stats.SkippedNoop, stats.Invalid)

	return sku, requestID, nil
}

func scalarField(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// errorCode is the transient code for retriable failures and the tagged
// code of the error otherwise.
func errorCode(err error, retriable bool) *int {
	if retriable {
		code := model.ErrorCodeTransientInfra
		return &code
	}
	if code := model.ErrorCodeOf(err); code != nil {
		return code
	}
	code := model.ErrorCodePermanentProcessing
	return &code
}
