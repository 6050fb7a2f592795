package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// RecordRow is one row of the records table.
type RecordRow struct {
	ID         string
	Kind       string
	DateRaw    sql.NullString
	DateFormat string
	Payload    string
}

const createRecord = `INSERT INTO records (id, kind, date_raw, date_format, payload)
VALUES (?, ?, ?, ?, ?)`

type CreateRecordParams struct {
	ID         string
	Kind       string
	DateRaw    sql.NullString
	DateFormat string
	Payload    string
}

func (q *Queries) CreateRecord(ctx context.Context, arg CreateRecordParams) error {
	_, err := q.db.ExecContext(ctx, createRecord, arg.ID, arg.Kind, arg.DateRaw, arg.DateFormat, arg.Payload)
	return err
}

const getRecord = `SELECT id, kind, date_raw, date_format, payload
FROM records WHERE kind = ? AND id = ?`

func (q *Queries) GetRecord(ctx context.Context, kind, id string) (RecordRow, error) {
	var r RecordRow
	err := q.db.QueryRowContext(ctx, getRecord, kind, id).
		Scan(&r.ID, &r.Kind, &r.DateRaw, &r.DateFormat, &r.Payload)
	return r, err
}

const listRecordsByKind = `SELECT id, kind, date_raw, date_format, payload
FROM records WHERE kind = ? ORDER BY rowid`

func (q *Queries) ListRecordsByKind(ctx context.Context, kind string) ([]RecordRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecordsByKind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.DateRaw, &r.DateFormat, &r.Payload); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const updateRecord = `UPDATE records
SET date_raw = ?, date_format = ?, payload = ?, updated_at = CURRENT_TIMESTAMP
WHERE kind = ? AND id = ?`

type UpdateRecordParams struct {
	DateRaw    sql.NullString
	DateFormat string
	Payload    string
	Kind       string
	ID         string
}

func (q *Queries) UpdateRecord(ctx context.Context, arg UpdateRecordParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRecord, arg.DateRaw, arg.DateFormat, arg.Payload, arg.Kind, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteRecord = `DELETE FROM records WHERE kind = ? AND id = ?`

func (q *Queries) DeleteRecord(ctx context.Context, kind, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRecord, kind, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
