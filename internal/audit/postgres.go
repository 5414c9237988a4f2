package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	meta := []byte("{}")
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, subject, resource, action, result, service, metadata, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Subject, rec.Resource, rec.Action, rec.Result, rec.Service, meta, rec.OccurredAt)
	return err
}

func (s *PGStore) ListBySubject(ctx context.Context, subject string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, subject, resource, action, result, service, metadata, occurred_at
		from audit_log
		where subject = $1
		order by occurred_at desc, id desc
		limit $2
	`, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, subject, resource, action, result, service, metadata, occurred_at
		from audit_log
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec  Record
			meta []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Resource, &rec.Action, &rec.Result, &rec.Service, &meta, &rec.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
