package sqlstore

import (
	"context"
	"fmt"

	"unfuscator/internal/db"
)

const schemaVersion = 1

func schemaStatements(d db.Dialect) []string {
	return []string{
		d.CreateTableSQL("schema_version", []db.ColumnDef{
			{Name: "version", Type: db.ColTypeInteger},
		}),
		d.CreateTableSQL("maps", []db.ColumnDef{
			{Name: "id", Type: db.ColTypeText, PrimaryKey: true},
			{Name: "source", Type: db.ColTypeText},
			{Name: "records", Type: db.ColTypeInteger, Default: "0"},
			{Name: "loaded_at", Type: db.ColTypeInteger},
		}),
		d.CreateIndexSQL("maps", "idx_maps_source", []string{"source"}, false),
		d.CreateTableSQL("mappings", []db.ColumnDef{
			{Name: "id", Type: db.ColTypeAutoIncrement},
			{Name: "map_id", Type: db.ColTypeText},
			{Name: "version", Type: db.ColTypeText, Nullable: true},
			{Name: "obfuscated", Type: db.ColTypeText},
			{Name: "unobfuscated", Type: db.ColTypeText},
		}),
		d.CreateIndexSQL("mappings", "idx_mappings_obfuscated", []string{"obfuscated"}, false),
		d.CreateIndexSQL("mappings", "idx_mappings_map", []string{"map_id"}, false),
	}
}

func initSchema(ctx context.Context, database db.DB) error {
	var version int
	err := database.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == nil {
		if version > schemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
		}
		return nil
	}
	// sql.ErrNoRows: empty schema_version; any other error: no table yet.
	// Both mean a fresh database.
	for _, stmt := range schemaStatements(database.Dialect()) {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	insert := fmt.Sprintf("INSERT INTO schema_version (version) VALUES (%s)", database.Dialect().Placeholder(1))
	if _, err := database.ExecContext(ctx, insert, schemaVersion); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}
