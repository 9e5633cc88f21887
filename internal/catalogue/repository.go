package catalogue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/icetech/icetray/internal/icecube"
)

// Repository defines the interface for catalogue persistence.
// This abstraction allows SQLite in production and an in-memory mock in tests.
type Repository interface {
	// Get retrieves an IceCube by name.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, name string) (*Entry, error)

	// List retrieves all IceCubes ordered by name.
	List(ctx context.Context) ([]Entry, error)

	// Save inserts the entry or replaces the stored cube with the same name.
	// On return ID and CreatedAt reflect the stored row.
	Save(ctx context.Context, entry *Entry) error

	// Delete removes an IceCube by name. Build history is kept.
	// Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, name string) error

	// RecordBuild appends a build to the history.
	RecordBuild(ctx context.Context, rec BuildRecord) error

	// ListBuilds returns the most recent builds for name, newest first.
	// A limit of zero or less returns all of them.
	ListBuilds(ctx context.Context, name string, limit int) ([]BuildRecord, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The schema must already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectEntry = `
	SELECT id, name, target_file, document, created_at, updated_at
	FROM icecubes`

// Get retrieves an IceCube by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectEntry+` WHERE name = ?`, name)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying icecube %q: %w", name, err)
	}
	return entry, nil
}

// List retrieves all IceCubes ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying icecubes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning icecube: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating icecubes: %w", err)
	}
	return entries, nil
}

// Save upserts by name, keeping the original id and created_at.
func (r *SQLiteRepository) Save(ctx context.Context, entry *Entry) error {
	dev := entry.Device
	docJSON, err := json.Marshal(dev.Document())
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	query := `
		INSERT INTO icecubes (
			id, name, target_file, document, read_count, write_count,
			db_text, proto_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			target_file = excluded.target_file,
			document    = excluded.document,
			read_count  = excluded.read_count,
			write_count = excluded.write_count,
			db_text     = excluded.db_text,
			proto_text  = excluded.proto_text,
			updated_at  = excluded.updated_at
		RETURNING id, created_at`

	var createdAt string
	err = r.db.QueryRowContext(ctx, query,
		entry.ID,
		dev.Name(),
		dev.TargetFile(),
		string(docJSON),
		dev.CountRead(),
		dev.CountWrite(),
		dev.DBText(),
		dev.ProtoText(),
		entry.CreatedAt.UTC().Format(timeLayout),
		entry.UpdatedAt.UTC().Format(timeLayout),
	).Scan(&entry.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("saving icecube %q: %w", dev.Name(), err)
	}

	entry.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	return nil
}

// Delete removes an IceCube by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM icecubes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting icecube: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordBuild appends a build to the history.
func (r *SQLiteRepository) RecordBuild(ctx context.Context, rec BuildRecord) error {
	query := `
		INSERT INTO builds (
			id, icecube, source, result, error, read_count, write_count,
			duration_us, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Source,
		rec.Result,
		nullableString(rec.Error),
		rec.ReadCount,
		rec.WriteCount,
		rec.Duration.Microseconds(),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording build: %w", err)
	}
	return nil
}

// ListBuilds returns the most recent builds for name, newest first.
func (r *SQLiteRepository) ListBuilds(ctx context.Context, name string, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, icecube, source, result, error, read_count, write_count,
			duration_us, created_at
		FROM builds
		WHERE icecube = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var errText sql.NullString
		var durationUS int64
		var createdAt string
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Source, &rec.Result, &errText,
			&rec.ReadCount, &rec.WriteCount, &durationUS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		rec.Error = errText.String
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating builds: %w", err)
	}
	return records, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry rebuilds the Device from the stored canonical document.
func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var name, targetFile, docJSON, createdAt, updatedAt string

	if err := scanner.Scan(&e.ID, &name, &targetFile, &docJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var doc icecube.Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptEntry, name, err)
	}
	dev, err := icecube.FromDocument(doc, icecube.WithTargetFile(targetFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptEntry, name, err)
	}
	e.Device = dev

	e.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	e.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
