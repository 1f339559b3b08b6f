package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gallerysync/api/internal/model"
	"github.com/gallerysync/api/pkg/response"
)

// GalleryReader loads the stored gallery of a product
type GalleryReader interface {
	ProductGallery(ctx context.Context, sku string) ([]model.GalleryRow, error)
	ProductRoles(ctx context.Context, sku string) (map[string]string, error)
}

type GalleryHandler struct {
	repo GalleryReader
}

func NewGalleryHandler(repo GalleryReader) *GalleryHandler {
	return &GalleryHandler{repo: repo}
}

type galleryImage struct {
	FilePath string  `json:"file_path"`
	Label    string  `json:"label"`
	Position int     `json:"position"`
	Disabled bool    `json:"disabled"`
	Etag     *string `json:"etag,omitempty"`
}

type galleryView struct {
	SKU    string            `json:"sku"`
	Images []galleryImage    `json:"images"`
	Roles  map[string]string `json:"roles"`
}

// Get handles GET /api/gallery/:sku
func (h *GalleryHandler) Get(c *fiber.Ctx) error {
	sku := strings.TrimSpace(c.Params("sku"))
	if sku == "" {
		return response.ValidationError(c, "Missing SKU", nil)
	}

	rows, err := h.repo.ProductGallery(c.UserContext(), sku)
	if err != nil {
		return response.ServiceError(c, "Failed to load gallery")
	}
	roles, err := h.repo.ProductRoles(c.UserContext(), sku)
	if err != nil {
		return response.ServiceError(c, "Failed to load gallery roles")
	}
	if len(rows) == 0 && len(roles) == 0 {
		return response.NotFound(c, "Gallery not found")
	}

	view := galleryView{SKU: sku, Images: make([]galleryImage, 0, len(rows)), Roles: roles}
	for _, r := range rows {
		view.Images = append(view.Images, galleryImage{
			FilePath: r.Path,
			Label:    r.Label,
			Position: r.Position,
			Disabled: r.Disabled,
			Etag:     r.S3Etag,
		})
	}
	return response.OK(c, view)
}
