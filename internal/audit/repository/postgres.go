package repository

import (
	"context"
	"fmt"
	"time"

	domain "github.com/corvusHold/mailrelay/internal/audit/domain"
	"github.com/corvusHold/mailrelay/internal/platform/store"
)

type PostgresRepository struct {
	db store.DBTX
}

func New(db store.DBTX) *PostgresRepository { return &PostgresRepository{db: db} }

var _ domain.Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Insert(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO email_logs (client_id, from_address, to_address, subject, body)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, sent_at`,
		e.ClientID, e.From, e.To, e.Subject, e.Body,
	).Scan(&e.ID, &e.SentAt)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("insert email log: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (domain.Entry, error) {
	var e domain.Entry
	err := r.db.QueryRow(ctx,
		`SELECT el.id, el.client_id, c.name, el.sent_at, el.from_address, el.to_address, el.subject, COALESCE(el.body, '')
		   FROM email_logs el JOIN clients c ON el.client_id = c.id
		  WHERE el.id = $1`, id,
	).Scan(&e.ID, &e.ClientID, &e.ClientName, &e.SentAt, &e.From, &e.To, &e.Subject, &e.Body)
	if store.IsNotFound(err) {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get email log: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_logs WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge email logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_logs`)
	if err != nil {
		return 0, fmt.Errorf("purge all email logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM email_logs`)
}

func (r *PostgresRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM email_logs WHERE sent_at >= $1`, since)
}

func (r *PostgresRepository) CountClients(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM clients`)
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]domain.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT el.id, el.client_id, c.name, el.sent_at, el.from_address, el.to_address, el.subject, COALESCE(el.body, '')
		   FROM email_logs el JOIN clients c ON el.client_id = c.id
		  ORDER BY el.sent_at DESC, el.id DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent email logs: %w", err)
	}
	defer rows.Close()
	out := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.ClientName, &e.SentAt, &e.From, &e.To, &e.Subject, &e.Body); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
