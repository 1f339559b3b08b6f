package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/model"
)

// defaultStoreID is the admin scope all gallery records and roles live in
const defaultStoreID = 0

// Store is the transaction-scoped storage contract used by reconciliation
type Store interface {
	ProductIDBySKU(ctx context.Context, sku string) (int64, error)
	AttributeID(ctx context.Context, code string) (int64, error)
	ExistingImages(ctx context.Context, entityID, attributeID int64, paths []string) (map[string]model.GalleryRow, error)
	ValueIDsByPaths(ctx context.Context, attributeID int64, paths []string) (map[string]int64, error)
	InsertOrGetValueID(ctx context.Context, attributeID int64, path string) (int64, error)
	CreateLink(ctx context.Context, valueID, entityID int64) error
	InsertValueRecord(ctx context.Context, v model.GalleryValue) error
	UpdateValueRecord(ctx context.Context, recordID int64, v model.GalleryValue) error
	// ValueRecordID returns 0 when no record exists
	ValueRecordID(ctx context.Context, valueID, entityID int64, storeID int) (int64, error)
	SaveEtag(ctx context.Context, recordID int64, etag *string) error
	SetRoles(ctx context.Context, entityID int64, storeID int, values map[string]string) error
}

// Transactor runs fn inside one storage transaction. fn's error rolls the
// transaction back and is returned unchanged.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// MediaStorage answers questions about the files behind gallery paths
type MediaStorage interface {
	// Stat reports existence and the current content tag (nil when unknown)
	Stat(ctx context.Context, path string) (model.MediaObject, error)
	// Remote reports whether the backing store is S3 compatible
	Remote() bool
}

// SyncStats counts what one reconciliation did
type SyncStats struct {
	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	SkippedNoop   int `json:"skipped_noop"`
	Invalid       int `json:"invalid"`
	RolesAssigned int `json:"roles_assigned"`
}

// Processor reconciles the desired image set of a product against the
// stored gallery rows.
type Processor struct {
	tx      Transactor
	media   MediaStorage
	roles   *RoleMapper
	managed ManagedRoles
	attrIDs *lru.Cache[string, int64]
	logger  zerolog.Logger
}

func NewProcessor(tx Transactor, media MediaStorage, roles *RoleMapper, managed ManagedRoles, logger zerolog.Logger) *Processor {
	cache, _ := lru.New[string, int64](32)
	return &Processor{
		tx:      tx,
		media:   media,
		roles:   roles,
		managed: managed,
		attrIDs: cache,
		logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

type desiredImage struct {
	path  string
	image model.ImageRecord
	etag  *string
}

// Reconcile applies images to the gallery of sku in a single transaction.
// An empty image list, or one where no file exists, is a successful no-op.
func (p *Processor) Reconcile(ctx context.Context, sku string, images []model.ImageRecord) (SyncStats, error) {
	var stats SyncStats

	p.logger.Debug().Str("sku", sku).Int("images_received", len(images)).Msg("starting gallery sync")

	if len(images) == 0 {
		p.logger.Warn().Str("sku", sku).Msg("image list is empty, nothing to do")
		return stats, nil
	}

	err := p.tx.WithinTx(ctx, func(store Store) error {
		var txErr error
		stats, txErr = p.reconcile(ctx, store, sku, images)
		return txErr
	})
	if err != nil {
		p.logger.Error().Err(err).Str("sku", sku).Msg("gallery sync failed")
		return SyncStats{}, model.WrapProcessingError(fmt.Sprintf("Failed to sync gallery for SKU %s", sku), err)
	}

	p.logger.Info().
		Str("sku", sku).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("skipped_noop", stats.SkippedNoop).
		Int("invalid", stats.Invalid).
		Int("roles_assigned", stats.RolesAssigned).
		Msg("gallery sync completed")

	return stats, nil
}

func (p *Processor) reconcile(ctx context.Context, store Store, sku string, images []model.ImageRecord) (SyncStats, error) {
	var stats SyncStats

	entityID, err := store.ProductIDBySKU(ctx, sku)
	if err != nil {
		return stats, err
	}
	attributeID, err := p.attributeID(ctx, store, model.AttributeMediaGallery)
	if err != nil {
		return stats, err
	}

	valid, err := p.validImages(ctx, sku, images, &stats)
	if err != nil {
		return stats, err
	}
	if len(valid) == 0 {
		p.logger.Warn().Str("sku", sku).Msg("no valid images after validation")
		return stats, nil
	}

	canonical := make([]string, len(valid))
	for i, d := range valid {
		canonical[i] = d.path
	}
	paths := lookupPaths(canonical)

	existing, err := store.ExistingImages(ctx, entityID, attributeID, paths)
	if err != nil {
		return stats, fmt.Errorf("load existing gallery rows: %w", err)
	}
	valueIDs, err := store.ValueIDsByPaths(ctx, attributeID, paths)
	if err != nil {
		return stats, fmt.Errorf("load gallery value ids: %w", err)
	}

	rolesToUpdate := make(map[string]string)
	for _, d := range valid {
		if err := p.apply(ctx, store, sku, entityID, attributeID, d, existing, valueIDs, &stats); err != nil {
			return stats, err
		}
		for _, role := range p.roles.MapMany(d.image.Roles) {
			if !p.managed.Contains(role) {
				continue
			}
			rolesToUpdate[role] = d.path
		}
	}

	if stats.Invalid > 0 {
		p.logger.Warn().
			Str("sku", sku).
			Int("invalid", stats.Invalid).
			Msg("payload contains invalid images, managed roles follow valid entries only")
	}

	cleared := make(map[string]string)
	for _, code := range p.managed.Codes() {
		cleared[code] = model.RoleNoSelection
	}
	if err := store.SetRoles(ctx, entityID, defaultStoreID, cleared); err != nil {
		return stats, fmt.Errorf("clear managed roles: %w", err)
	}
	if len(rolesToUpdate) > 0 {
		if err := store.SetRoles(ctx, entityID, defaultStoreID, rolesToUpdate); err != nil {
			return stats, fmt.Errorf("assign roles: %w", err)
		}
	}
	stats.RolesAssigned = len(rolesToUpdate)

	return stats, nil
}

// validImages normalizes paths and drops images whose file is missing. A
// repeated path keeps its first position and takes the last payload.
func (p *Processor) validImages(ctx context.Context, sku string, images []model.ImageRecord, stats *SyncStats) ([]desiredImage, error) {
	out := make([]desiredImage, 0, len(images))
	index := make(map[string]int, len(images))

	for _, img := range images {
		path := NormalizePath(img.FilePath)
		if path == "" {
			stats.Invalid++
			p.logger.Error().Str("sku", sku).Msg("skipping image with empty file_path")
			continue
		}

		if i, dup := index[path]; dup {
			out[i].image = img
			continue
		}

		obj, err := p.media.Stat(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("check media %s: %w", path, err)
		}
		if !obj.Exists {
			stats.Invalid++
			p.logger.Error().Str("sku", sku).Str("path", path).Msg("skipping image because file does not exist")
			continue
		}

		index[path] = len(out)
		desired := desiredImage{path: path, image: img}
		if p.media.Remote() {
			desired.etag = normalizeEtag(obj.Etag)
		}
		out = append(out, desired)
	}
	return out, nil
}

func (p *Processor) apply(
	ctx context.Context,
	store Store,
	sku string,
	entityID, attributeID int64,
	d desiredImage,
	existing map[string]model.GalleryRow,
	valueIDs map[string]int64,
	stats *SyncStats,
) error {
	etag := d.etag

	desired := model.GalleryValue{
		EntityID: entityID,
		StoreID:  defaultStoreID,
		Label:    d.image.Label,
		Position: d.image.Position,
		Disabled: d.image.Disabled,
	}

	if row, ok := resolveRow(existing, d.path); ok {
		metaChanged := row.Label != desired.Label || row.Position != desired.Position || row.Disabled != desired.Disabled
		saved := normalizeEtag(row.S3Etag)
		etagChanged := etag != nil && (saved == nil || *saved != *etag)

		if !metaChanged && !etagChanged {
			stats.SkippedNoop++
			return nil
		}
		if metaChanged {
			desired.ValueID = row.ValueID
			if err := store.UpdateValueRecord(ctx, row.RecordID, desired); err != nil {
				return fmt.Errorf("update gallery record %d: %w", row.RecordID, err)
			}
		}
		if etagChanged {
			if err := store.SaveEtag(ctx, row.RecordID, etag); err != nil {
				return fmt.Errorf("save etag for record %d: %w", row.RecordID, err)
			}
		}
		stats.Updated++
		return nil
	}

	valueID := resolveValueID(valueIDs, d.path)
	if valueID == 0 {
		var err error
		valueID, err = store.InsertOrGetValueID(ctx, attributeID, d.path)
		if err != nil {
			return fmt.Errorf("insert gallery value %s: %w", d.path, err)
		}
		valueIDs[d.path] = valueID
	}

	if err := store.CreateLink(ctx, valueID, entityID); err != nil {
		return fmt.Errorf("link gallery value %d: %w", valueID, err)
	}
	desired.ValueID = valueID
	if err := store.InsertValueRecord(ctx, desired); err != nil {
		return fmt.Errorf("insert gallery record for %s: %w", d.path, err)
	}
	recordID, err := store.ValueRecordID(ctx, valueID, entityID, defaultStoreID)
	if err != nil {
		return fmt.Errorf("resolve gallery record for %s: %w", d.path, err)
	}
	if recordID == 0 {
		return fmt.Errorf("failed to resolve media_gallery value record_id for SKU %q and path %q", sku, d.path)
	}
	if err := store.SaveEtag(ctx, recordID, etag); err != nil {
		return fmt.Errorf("save etag for record %d: %w", recordID, err)
	}
	stats.Inserted++
	return nil
}

func (p *Processor) attributeID(ctx context.Context, store Store, code string) (int64, error) {
	if id, ok := p.attrIDs.Get(code); ok {
		return id, nil
	}
	id, err := store.AttributeID(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrAttributeNotFound) {
			return 0, fmt.Errorf("attribute %s: %w", code, err)
		}
		return 0, err
	}
	p.attrIDs.Add(code, id)
	return id, nil
}

func resolveRow(rows map[string]model.GalleryRow, canonical string) (model.GalleryRow, bool) {
	if row, ok := rows[canonical]; ok {
		return row, true
	}
	if legacy := LegacyPath(canonical); legacy != "" {
		if row, ok := rows[legacy]; ok {
			return row, true
		}
	}
	return model.GalleryRow{}, false
}

func resolveValueID(ids map[string]int64, canonical string) int64 {
	if id, ok := ids[canonical]; ok {
		return id
	}
	if legacy := LegacyPath(canonical); legacy != "" {
		return ids[legacy]
	}
	return 0
}

func normalizeEtag(etag *string) *string {
	if etag == nil {
		return nil
	}
	v := strings.Trim(*etag, `"`)
	if v == "" {
		return nil
	}
	return &v
}
