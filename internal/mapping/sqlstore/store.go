// Package sqlstore implements mapping.Store on SQLite or PostgreSQL through
// the internal/db adapter.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"unfuscator/internal/db"
	"unfuscator/internal/mapping"
	"unfuscator/internal/version"
)

// Store is a database-backed mapping store. Each Insert is recorded as a
// map load in the maps table and runs in a single transaction.
type Store struct {
	db      db.DB
	dialect db.Dialect
}

var (
	_ mapping.Store          = (*Store)(nil)
	_ mapping.SourceInserter = (*Store)(nil)
	_ mapping.StatsProvider  = (*Store)(nil)
	_ mapping.Exporter       = (*Store)(nil)
)

// Open opens the database described by cfg and prepares the schema.
func Open(ctx context.Context, cfg db.Config) (*Store, error) {
	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, creating the schema if needed.
func New(ctx context.Context, database db.DB) (*Store, error) {
	if err := initSchema(ctx, database); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: database, dialect: database.Dialect()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the records stored under obfuscated, in insertion order.
func (s *Store) Get(ctx context.Context, obfuscated string) ([]mapping.Record, error) {
	query := fmt.Sprintf(`SELECT id, version, obfuscated, unobfuscated
		FROM mappings
		WHERE obfuscated = %s
		ORDER BY id`, s.dialect.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, obfuscated)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var records []mapping.Record
	for rows.Next() {
		var (
			r   mapping.Record
			ver sql.NullString
		)
		if err := rows.Scan(&r.ID, &ver, &r.Obfuscated, &r.Unobfuscated); err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		r.Version = ver.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Insert stores records as an anonymous map load.
func (s *Store) Insert(ctx context.Context, records iter.Seq2[mapping.Record, error]) (int, error) {
	return s.InsertSource(ctx, "", records)
}

// InsertSource stores records loaded from source in one transaction,
// replacing any earlier load of the same source. If the sequence fails the
// transaction is rolled back and the store is unchanged.
func (s *Store) InsertSource(ctx context.Context, source string, records iter.Seq2[mapping.Record, error]) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if source != "" {
		if err := s.dropSource(ctx, tx, source); err != nil {
			return 0, err
		}
	}

	mapID := uuid.NewString()
	insertMap := s.dialect.InsertSQL("maps", []string{"id", "source", "records", "loaded_at"})
	if _, err := tx.ExecContext(ctx, insertMap, mapID, source, 0, time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("recording map load: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		s.dialect.InsertSQL("mappings", []string{"map_id", "version", "obfuscated", "unobfuscated"}))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for r, err := range records {
		if err != nil {
			return 0, err
		}
		if err := r.Validate(); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, mapID, nullString(r.Version), r.Obfuscated, r.Unobfuscated); err != nil {
			return 0, fmt.Errorf("inserting %q: %w", r.Obfuscated, err)
		}
		n++
	}

	update := fmt.Sprintf("UPDATE maps SET records = %s WHERE id = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	if _, err := tx.ExecContext(ctx, update, n, mapID); err != nil {
		return 0, fmt.Errorf("recording map size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return n, nil
}

func (s *Store) dropSource(ctx context.Context, tx db.Tx, source string) error {
	p := s.dialect.Placeholder(1)
	deleteMappings := fmt.Sprintf("DELETE FROM mappings WHERE map_id IN (SELECT id FROM maps WHERE source = %s)", p)
	if _, err := tx.ExecContext(ctx, deleteMappings, source); err != nil {
		return fmt.Errorf("clearing mappings for %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM maps WHERE source = %s", p), source); err != nil {
		return fmt.Errorf("clearing map record for %s: %w", source, err)
	}
	return nil
}

// Versions returns the distinct versions present, ascending, nil first.
func (s *Store) Versions(ctx context.Context) ([]*version.Version, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT version FROM mappings")
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		texts = append(texts, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return mapping.ParseVersions(texts)
}

// Stats counts records, distinct versions and named map loads.
func (s *Store) Stats(ctx context.Context) (mapping.Stats, error) {
	var st mapping.Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mappings").Scan(&st.Records); err != nil {
		return st, fmt.Errorf("counting mappings: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM (SELECT DISTINCT version FROM mappings) v").Scan(&st.Versions); err != nil {
		return st, fmt.Errorf("counting versions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM maps WHERE source <> ''").Scan(&st.Maps); err != nil {
		return st, fmt.Errorf("counting maps: %w", err)
	}
	return st, nil
}

// Export yields every record ordered by source, then insertion.
func (s *Store) Export(ctx context.Context) iter.Seq2[mapping.SourcedRecord, error] {
	return func(yield func(mapping.SourcedRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT mp.source, m.id, m.version, m.obfuscated, m.unobfuscated
			FROM mappings m
			JOIN maps mp ON mp.id = m.map_id
			ORDER BY mp.source, m.id`)
		if err != nil {
			yield(mapping.SourcedRecord{}, fmt.Errorf("querying mappings: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sr  mapping.SourcedRecord
				ver sql.NullString
			)
			if err := rows.Scan(&sr.Source, &sr.ID, &ver, &sr.Obfuscated, &sr.Unobfuscated); err != nil {
				yield(mapping.SourcedRecord{}, fmt.Errorf("scanning mapping: %w", err))
				return
			}
			sr.Version = ver.String
			if !yield(sr, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(mapping.SourcedRecord{}, err)
		}
	}
}

// Sources lists the named map loads, most recent first.
func (s *Store) Sources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, records, loaded_at FROM maps WHERE source <> '' ORDER BY loaded_at DESC, source")
	if err != nil {
		return nil, fmt.Errorf("querying maps: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var (
			src      Source
			loadedAt int64
		)
		if err := rows.Scan(&src.ID, &src.Path, &src.Records, &loadedAt); err != nil {
			return nil, fmt.Errorf("scanning map: %w", err)
		}
		src.LoadedAt = time.Unix(loadedAt, 0)
		out = append(out, src)
	}
	return out, rows.Err()
}

// Source describes one loaded map file.
type Source struct {
	ID       string    `json:"id" yaml:"id"`
	Path     string    `json:"path" yaml:"path"`
	Records  int64     `json:"records" yaml:"records"`
	LoadedAt time.Time `json:"loaded_at" yaml:"loaded_at"`
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
