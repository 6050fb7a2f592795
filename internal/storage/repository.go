package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("Record schema ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// List returns the records of kind passing filter, in insertion order.
func (r *SQLiteRepository) List(ctx context.Context, kind core.Kind, filter store.Filter) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	rows, err := r.queries.ListRecordsByKind(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}
	out := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode record %s: %w", row.ID, err)
		}
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	rec.ID = uuid.NewString()
	rec.Payload = rec.Payload.Clone()

	dateRaw, format, err := encodeDate(rec.Date, rec.DateFormat)
	if err != nil {
		return core.Record{}, err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return core.Record{}, fmt.Errorf("encode payload: %w", err)
	}

	if err := r.queries.CreateRecord(ctx, CreateRecordParams{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		DateRaw:    dateRaw,
		DateFormat: string(format),
		Payload:    string(payload),
	}); err != nil {
		return core.Record{}, fmt.Errorf("create record: %w", err)
	}

	r.logger.DebugContext(ctx, "Record saved to SQLite", log.FieldKind, rec.Kind, log.FieldRecordID, rec.ID)
	rec.DateFormat = format
	return rec, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, kind core.Kind, id string, patch store.Patch) (core.Record, error) {
	if id == "" {
		return core.Record{}, core.ErrEmptyID
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	row, err := q.GetRecord(ctx, string(kind), id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%w: %s/%s", core.ErrRecordNotFound, kind, id)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	current, err := decodeRow(row)
	if err != nil {
		return core.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}

	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		return core.Record{}, err
	}
	dateRaw, format, err := encodeDate(updated.Date, updated.DateFormat)
	if err != nil {
		return core.Record{}, err
	}
	payload, err := json.Marshal(updated.Payload)
	if err != nil {
		return core.Record{}, fmt.Errorf("encode payload: %w", err)
	}

	if _, err := q.UpdateRecord(ctx, UpdateRecordParams{
		DateRaw:    dateRaw,
		DateFormat: string(format),
		Payload:    string(payload),
		Kind:       string(kind),
		ID:         id,
	}); err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, fmt.Errorf("commit: %w", err)
	}

	updated.DateFormat = format
	return updated, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, kind core.Kind, id string) error {
	if id == "" {
		return core.ErrEmptyID
	}
	n, err := r.queries.DeleteRecord(ctx, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrRecordNotFound, kind, id)
	}
	r.logger.DebugContext(ctx, "Record deleted from SQLite", log.FieldKind, kind, log.FieldRecordID, id)
	return nil
}

// encodeDate stores the date as JSON next to its format so it reads back in
// the representation it was written in. Time values are kept as RFC 3339
// text with their offset.
func encodeDate(date any, format core.DateFormat) (sql.NullString, core.DateFormat, error) {
	switch v := date.(type) {
	case nil:
		return sql.NullString{}, format, nil
	case *time.Time:
		if v == nil {
			return sql.NullString{}, format, nil
		}
		date = *v
	}
	if t, ok := date.(time.Time); ok {
		return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}, core.FormatNative, nil
	}
	b, err := json.Marshal(date)
	if err != nil {
		return sql.NullString{}, "", fmt.Errorf("encode date: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, format, nil
}

func decodeRow(row RecordRow) (core.Record, error) {
	rec := core.Record{
		ID:         row.ID,
		Kind:       core.Kind(row.Kind),
		DateFormat: core.DateFormat(row.DateFormat),
		Payload:    core.Payload{},
	}
	if err := json.Unmarshal([]byte(row.Payload), &rec.Payload); err != nil {
		return core.Record{}, fmt.Errorf("payload: %w", err)
	}
	if !row.DateRaw.Valid {
		return rec, nil
	}
	if rec.DateFormat == core.FormatNative {
		t, err := time.Parse(time.RFC3339Nano, row.DateRaw.String)
		if err != nil {
			return core.Record{}, fmt.Errorf("date: %w", err)
		}
		rec.Date = t
		return rec, nil
	}
	if err := json.Unmarshal([]byte(row.DateRaw.String), &rec.Date); err != nil {
		return core.Record{}, fmt.Errorf("date: %w", err)
	}
	return rec, nil
}
