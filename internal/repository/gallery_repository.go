package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/gallerysync/api/internal/gallery"
	"github.com/gallerysync/api/internal/model"
)

// GalleryRepository stores product galleries and role attributes
type GalleryRepository struct {
	db *DB
}

func NewGalleryRepository(db *DB) *GalleryRepository {
	return &GalleryRepository{db: db}
}

// WithinTx runs fn against a transaction-scoped gallery store
func (r *GalleryRepository) WithinTx(ctx context.Context, fn func(gallery.Store) error) error {
	return r.db.withinTx(ctx, func(run *SQLRunner) error {
		return fn(&galleryStore{run: run})
	})
}

// ProductGallery returns the stored gallery rows of sku ordered by position
func (r *GalleryRepository) ProductGallery(ctx context.Context, sku string) ([]model.GalleryRow, error) {
	run := r.db.runner(r.db.DB)
	rows, err := run.Query(ctx, "gallery_by_sku", `
		SELECT v.value, g.record_id, g.value_id, g.entity_id, g.store_id, g.label, g.position, g.disabled, m.s3_etag
		FROM gallery_records g
		JOIN products p ON p.entity_id = g.entity_id
		JOIN gallery_values v ON v.value_id = g.value_id
		LEFT JOIN gallery_record_meta m ON m.record_id = g.record_id
		WHERE p.sku = ? AND g.store_id = 0
		ORDER BY g.position, g.record_id`, sku)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var out []model.GalleryRow
	for rows.Next() {
		row, err := scanGalleryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ProductRoles returns the role attributes of sku keyed by role code
func (r *GalleryRepository) ProductRoles(ctx context.Context, sku string) (map[string]string, error) {
	run := r.db.runner(r.db.DB)
	rows, err := run.Query(ctx, "roles_by_sku", `
		SELECT pr.role_code, pr.value
		FROM product_roles pr
		JOIN products p ON p.entity_id = pr.entity_id
		WHERE p.sku = ? AND pr.store_id = 0`, sku)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var code, value string
		if err := rows.Scan(&code, &value); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out[code] = value
	}
	return out, rows.Err()
}

// galleryStore implements gallery.Store on one transaction
type galleryStore struct {
	run *SQLRunner
}

var _ gallery.Store = (*galleryStore)(nil)

func (s *galleryStore) ProductIDBySKU(ctx context.Context, sku string) (int64, error) {
	var id int64
	err := s.run.QueryRow(ctx, "product_by_sku", `SELECT entity_id FROM products WHERE sku = ?`, sku).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sku %q: %w", sku, model.ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup product: %w", err)
	}
	return id, nil
}

func (s *galleryStore) AttributeID(ctx context.Context, code string) (int64, error) {
	var id int64
	err := s.run.QueryRow(ctx, "attribute_by_code", `SELECT attribute_id FROM eav_attributes WHERE attribute_code = ?`, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrAttributeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup attribute: %w", err)
	}
	return id, nil
}

func (s *galleryStore) ExistingImages(ctx context.Context, entityID, attributeID int64, paths []string) (map[string]model.GalleryRow, error) {
	out := make(map[string]model.GalleryRow)
	if len(paths) == 0 {
		return out, nil
	}

	args := []any{entityID, attributeID}
	for _, p := range paths {
		args = append(args, p)
	}
	rows, err := s.run.Query(ctx, "gallery_existing", `
		SELECT v.value, g.record_id, g.value_id, g.entity_id, g.store_id, g.label, g.position, g.disabled, m.s3_etag
		FROM gallery_records g
		JOIN gallery_values v ON v.value_id = g.value_id
		LEFT JOIN gallery_record_meta m ON m.record_id = g.record_id
		WHERE g.entity_id = ? AND g.store_id = 0 AND v.attribute_id = ? AND v.value IN (`+placeholders(len(paths))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanGalleryRow(rows)
		if err != nil {
			return nil, err
		}
		out[row.Path] = row
	}
	return out, rows.Err()
}

func (s *galleryStore) ValueIDsByPaths(ctx context.Context, attributeID int64, paths []string) (map[string]int64, error) {
	out := make(map[string]int64)
	if len(paths) == 0 {
		return out, nil
	}

	args := []any{attributeID}
	for _, p := range paths {
		args = append(args, p)
	}
	rows, err := s.run.Query(ctx, "gallery_value_ids", `
		SELECT value, value_id FROM gallery_values
		WHERE attribute_id = ? AND value IN (`+placeholders(len(paths))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var id int64
		if err := rows.Scan(&path, &id); err != nil {
			return nil, fmt.Errorf("scan value id: %w", err)
		}
		out[path] = id
	}
	return out, rows.Err()
}

func (s *galleryStore) InsertOrGetValueID(ctx context.Context, attributeID int64, path string) (int64, error) {
	if _, err := s.run.Exec(ctx, "gallery_value_insert", `
		INSERT INTO gallery_values (attribute_id, value) VALUES (?, ?)
		ON CONFLICT (attribute_id, value) DO NOTHING`, attributeID, path); err != nil {
		return 0, err
	}
	var id int64
	if err := s.run.QueryRow(ctx, "gallery_value_id", `
		SELECT value_id FROM gallery_values WHERE attribute_id = ? AND value = ?`, attributeID, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve value id: %w", err)
	}
	return id, nil
}

func (s *galleryStore) CreateLink(ctx context.Context, valueID, entityID int64) error {
	_, err := s.run.Exec(ctx, "gallery_link_insert", `
		INSERT INTO gallery_value_entities (value_id, entity_id) VALUES (?, ?)
		ON CONFLICT (value_id, entity_id) DO NOTHING`, valueID, entityID)
	return err
}

func (s *galleryStore) InsertValueRecord(ctx context.Context, v model.GalleryValue) error {
	_, err := s.run.Exec(ctx, "gallery_record_insert", `
		INSERT INTO gallery_records (value_id, entity_id, store_id, label, position, disabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (value_id, entity_id, store_id)
		DO UPDATE SET label = excluded.label, position = excluded.position, disabled = excluded.disabled`,
		v.ValueID, v.EntityID, v.StoreID, v.Label, v.Position, boolToInt(v.Disabled))
	return err
}

func (s *galleryStore) UpdateValueRecord(ctx context.Context, recordID int64, v model.GalleryValue) error {
	_, err := s.run.Exec(ctx, "gallery_record_update", `
		UPDATE gallery_records SET label = ?, position = ?, disabled = ? WHERE record_id = ?`,
		v.Label, v.Position, boolToInt(v.Disabled), recordID)
	return err
}

func (s *galleryStore) ValueRecordID(ctx context.Context, valueID, entityID int64, storeID int) (int64, error) {
	var id int64
	err := s.run.QueryRow(ctx, "gallery_record_id", `
		SELECT record_id FROM gallery_records WHERE value_id = ? AND entity_id = ? AND store_id = ?`,
		valueID, entityID, storeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (s *galleryStore) SaveEtag(ctx context.Context, recordID int64, etag *string) error {
	_, err := s.run.Exec(ctx, "gallery_meta_upsert", `
		INSERT INTO gallery_record_meta (record_id, s3_etag) VALUES (?, ?)
		ON CONFLICT (record_id) DO UPDATE SET s3_etag = excluded.s3_etag`, recordID, nullString(etag))
	return err
}

func (s *galleryStore) SetRoles(ctx context.Context, entityID int64, storeID int, values map[string]string) error {
	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		if _, err := s.run.Exec(ctx, "product_role_upsert", `
			INSERT INTO product_roles (entity_id, store_id, role_code, value) VALUES (?, ?, ?, ?)
			ON CONFLICT (entity_id, store_id, role_code) DO UPDATE SET value = excluded.value`,
			entityID, storeID, code, values[code]); err != nil {
			return fmt.Errorf("set role %s: %w", code, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGalleryRow(sc scanner) (model.GalleryRow, error) {
	var (
		row      model.GalleryRow
		disabled int
		etag     sql.NullString
	)
	if err := sc.Scan(&row.Path, &row.RecordID, &row.ValueID, &row.EntityID, &row.StoreID,
		&row.Label, &row.Position, &disabled, &etag); err != nil {
		return model.GalleryRow{}, fmt.Errorf("scan gallery row: %w", err)
	}
	row.Disabled = disabled != 0
	if etag.Valid {
		row.S3Etag = &etag.String
	}
	return row, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
