package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/platform/store"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

type PostgresRepository struct{ db store.DBTX }

func New(db store.DBTX) *PostgresRepository { return &PostgresRepository{db: db} }

var _ sdomain.Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Get(ctx context.Context, key string, clientID *uuid.UUID) (string, bool, error) {
	var v string
	if clientID != nil {
		err := r.db.QueryRow(ctx,
			`SELECT value FROM app_settings WHERE key = $1 AND client_id = $2`, key, *clientID).Scan(&v)
		if err == nil {
			return v, true, nil
		}
		if !store.IsNotFound(err) {
			return "", false, fmt.Errorf("get client setting: %w", err)
		}
	}
	err := r.db.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1 AND client_id IS NULL`, key).Scan(&v)
	if store.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get global setting: %w", err)
	}
	return v, true, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, key string, clientID *uuid.UUID, value string, secret bool) error {
	var err error
	if clientID == nil {
		_, err = r.db.Exec(ctx,
			`INSERT INTO app_settings (id, key, value, is_secret) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (key) WHERE client_id IS NULL
			 DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret, updated_at = now()`,
			uuid.New(), key, value, secret)
	} else {
		_, err = r.db.Exec(ctx,
			`INSERT INTO app_settings (id, client_id, key, value, is_secret) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (client_id, key) WHERE client_id IS NOT NULL
			 DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret, updated_at = now()`,
			uuid.New(), *clientID, key, value, secret)
	}
	if store.IsForeignKeyViolation(err, "app_settings_client_id_fkey") {
		return cdomain.ErrClientNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, clientID *uuid.UUID) ([]sdomain.Setting, error) {
	q, args := `SELECT key, value, is_secret FROM app_settings WHERE client_id IS NULL ORDER BY key`, []any{}
	if clientID != nil {
		q, args = `SELECT key, value, is_secret FROM app_settings WHERE client_id = $1 ORDER BY key`, []any{*clientID}
	}
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()
	var out []sdomain.Setting
	for rows.Next() {
		st := sdomain.Setting{ClientID: clientID}
		if err := rows.Scan(&st.Key, &st.Value, &st.Secret); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
