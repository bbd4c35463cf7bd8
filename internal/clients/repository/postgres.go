package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/platform/store"
)

const (
	constraintClientName   = "clients_name_key"
	constraintClientAPIKey = "clients_api_key_key"
	constraintDomainPair   = "domains_client_domain_key"
	constraintDomainClient = "domains_client_id_fkey"
)

type PostgresRepository struct {
	db store.DBTX
}

func New(db store.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ domain.Repository = (*PostgresRepository)(nil)

const clientColumns = `id, name, api_key, created_at`

func scanClient(row pgx.Row) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.Name, &c.APIKey, &c.CreatedAt)
	return c, err
}

func (r *PostgresRepository) CreateClient(ctx context.Context, id uuid.UUID, name, apiKey string) (domain.Client, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO clients (id, name, api_key) VALUES ($1, $2, $3) RETURNING `+clientColumns,
		id, name, apiKey)
	c, err := scanClient(row)
	switch {
	case store.IsUniqueViolation(err, constraintClientName):
		return domain.Client{}, domain.ErrDuplicateName
	case store.IsUniqueViolation(err, constraintClientAPIKey):
		return domain.Client{}, domain.ErrDuplicateAPIKey
	case err != nil:
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if store.IsNotFound(err) {
		return domain.Client{}, domain.ErrClientNotFound
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetClientByAPIKey(ctx context.Context, apiKey string) (domain.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE api_key = $1`, apiKey))
	if store.IsNotFound(err) {
		return domain.Client{}, domain.ErrClientNotFound
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("get client by api key: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	out := []domain.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

const domainColumns = `id, client_id, domain_name, verified, verified_at, COALESCE(dkim_selector, ''), COALESCE(dkim_public_key, ''), created_at`

func scanDomain(row pgx.Row) (domain.Domain, error) {
	var d domain.Domain
	err := row.Scan(&d.ID, &d.ClientID, &d.Name, &d.Verified, &d.VerifiedAt, &d.DKIMSelector, &d.DKIMPublicKey, &d.CreatedAt)
	return d, err
}

func (r *PostgresRepository) CreateDomain(ctx context.Context, id, clientID uuid.UUID, name string) (domain.Domain, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO domains (id, client_id, domain_name) VALUES ($1, $2, $3) RETURNING `+domainColumns,
		id, clientID, name)
	d, err := scanDomain(row)
	if store.IsUniqueViolation(err, constraintDomainPair) {
		return domain.Domain{}, domain.ErrDuplicateDomain
	}
	if store.IsForeignKeyViolation(err, constraintDomainClient) {
		return domain.Domain{}, domain.ErrClientNotFound
	}
	if err != nil {
		return domain.Domain{}, fmt.Errorf("insert domain: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (domain.Domain, error) {
	d, err := scanDomain(r.db.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1 AND client_id = $2`, domainID, clientID))
	if store.IsNotFound(err) {
		return domain.Domain{}, domain.ErrDomainNotFound
	}
	if err != nil {
		return domain.Domain{}, fmt.Errorf("get domain: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListDomains(ctx context.Context, clientID uuid.UUID) ([]domain.Domain, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE client_id = $1 ORDER BY domain_name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	out := []domain.Domain{}
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT domain_name FROM domains WHERE client_id = $1 AND verified = TRUE ORDER BY domain_name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list verified domains: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan domain name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// MarkDomainVerified is a no-op for an already verified domain; verified_at
// keeps the first verification time.
func (r *PostgresRepository) MarkDomainVerified(ctx context.Context, domainID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE domains SET verified = TRUE, verified_at = COALESCE(verified_at, $2) WHERE id = $1`, domainID, at)
	if err != nil {
		return fmt.Errorf("mark domain verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDomainNotFound
	}
	return nil
}
