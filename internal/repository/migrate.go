package repository

import (
	"context"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	entity_id {{pk}},
	sku VARCHAR(255) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS eav_attributes (
	attribute_id {{pk}},
	attribute_code VARCHAR(255) NOT NULL UNIQUE
);

INSERT INTO eav_attributes (attribute_code) VALUES ('media_gallery')
ON CONFLICT (attribute_code) DO NOTHING;

CREATE TABLE IF NOT EXISTS gallery_values (
	value_id {{pk}},
	attribute_id BIGINT NOT NULL REFERENCES eav_attributes (attribute_id),
	value VARCHAR(1024) NOT NULL,
	UNIQUE (attribute_id, value)
);

CREATE TABLE IF NOT EXISTS gallery_value_entities (
	value_id BIGINT NOT NULL REFERENCES gallery_values (value_id) ON DELETE CASCADE,
	entity_id BIGINT NOT NULL REFERENCES products (entity_id) ON DELETE CASCADE,
	PRIMARY KEY (value_id, entity_id)
);

CREATE TABLE IF NOT EXISTS gallery_records (
	record_id {{pk}},
	value_id BIGINT NOT NULL REFERENCES gallery_values (value_id) ON DELETE CASCADE,
	entity_id BIGINT NOT NULL REFERENCES products (entity_id) ON DELETE CASCADE,
	store_id INTEGER NOT NULL DEFAULT 0,
	label VARCHAR(255) NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	disabled SMALLINT NOT NULL DEFAULT 0,
	UNIQUE (value_id, entity_id, store_id)
);

CREATE TABLE IF NOT EXISTS gallery_record_meta (
	record_id BIGINT PRIMARY KEY REFERENCES gallery_records (record_id) ON DELETE CASCADE,
	s3_etag VARCHAR(255) NULL
);

CREATE TABLE IF NOT EXISTS product_roles (
	entity_id BIGINT NOT NULL REFERENCES products (entity_id) ON DELETE CASCADE,
	store_id INTEGER NOT NULL DEFAULT 0,
	role_code VARCHAR(64) NOT NULL,
	value VARCHAR(1024) NOT NULL,
	PRIMARY KEY (entity_id, store_id, role_code)
);

CREATE TABLE IF NOT EXISTS bulks (
	uuid VARCHAR(36) PRIMARY KEY,
	description VARCHAR(255) NOT NULL DEFAULT '',
	request_id VARCHAR(255) NULL,
	operation_count INTEGER NOT NULL DEFAULT 0,
	created_at {{now}}
);

CREATE TABLE IF NOT EXISTS bulk_operations (
	id {{pk}},
	bulk_uuid VARCHAR(36) NOT NULL REFERENCES bulks (uuid) ON DELETE CASCADE,
	topic_name VARCHAR(255) NOT NULL,
	operation_key VARCHAR(64) NOT NULL,
	sku VARCHAR(255) NOT NULL,
	serialized_data TEXT NOT NULL,
	status SMALLINT NOT NULL,
	error_code INTEGER NULL,
	result_message TEXT NULL,
	UNIQUE (bulk_uuid, operation_key)
);

CREATE INDEX IF NOT EXISTS idx_bulk_operations_status ON bulk_operations (bulk_uuid, status);
`

// Statements returns the schema statements for dialect, in apply order
func Statements(dialect Dialect) []string {
	var r *strings.Replacer
	switch dialect {
	case DialectPostgres:
		r = strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{now}}", "TIMESTAMPTZ NOT NULL DEFAULT now()",
		)
	default:
		r = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{now}}", "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP",
		)
	}

	var out []string
	for _, stmt := range strings.Split(r.Replace(schema), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *DB) error {
	run := db.runner(db.DB)
	for i, stmt := range Statements(db.dialect) {
		if _, err := run.Exec(ctx, fmt.Sprintf("migrate_%02d", i+1), stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	db.logger.Info().Str("dialect", string(db.dialect)).Msg("schema applied")
	return nil
}
