package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gallerysync/api/internal/model"
	"github.com/gallerysync/api/pkg/response"
)

// BulkPlanner plans submissions and reports bulk progress
type BulkPlanner interface {
	Submit(ctx context.Context, req *model.BulkRequest) *model.BulkResponse
	GetBulkStatus(ctx context.Context, batchID string) (*model.BulkStatus, error)
}

type BulkHandler struct {
	service   BulkPlanner
	validator *validator.Validate
	maxItems  int
}

func NewBulkHandler(svc BulkPlanner, v *validator.Validate, maxItems int) *BulkHandler {
	return &BulkHandler{
		service:   svc,
		validator: v,
		maxItems:  maxItems,
	}
}

// Submit handles POST /api/bulk/gallery
func (h *BulkHandler) Submit(c *fiber.Ctx) error {
	var req model.BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if h.maxItems > 0 && len(req.Items) > h.maxItems {
		return response.ValidationError(c, fmt.Sprintf("Too many items, at most %d per request", h.maxItems), nil)
	}

	result := h.service.Submit(c.UserContext(), &req)
	return response.Accepted(c, result)
}

// Status handles GET /api/bulk/:batchId/status
func (h *BulkHandler) Status(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	if _, err := uuid.Parse(batchID); err != nil {
		return response.ValidationError(c, "Invalid batch id", nil)
	}

	status, err := h.service.GetBulkStatus(c.UserContext(), batchID)
	if errors.Is(err, model.ErrNotFound) {
		return response.NotFound(c, "Bulk not found")
	}
	if err != nil {
		return response.ServiceError(c, "Failed to load bulk status")
	}

	return response.OK(c, status)
}
