package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scribehub/scribe-auth/internal/domain"
)

// PostgresClientRepo implements ClientRepository on pgx.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

var _ ClientRepository = (*PostgresClientRepo)(nil)

func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: pool}
}

const clientColumns = `id, client_id, secret_hash, owner_id, name, description, redirect_uris, scopes, app_type, active, created_at, updated_at`

const insertClientSQL = `INSERT INTO client_applications (id, client_id, secret_hash, owner_id, name, description, redirect_uris, scopes, app_type, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + clientColumns

func (r *PostgresClientRepo) Create(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error) {
	row := r.db.QueryRow(ctx, insertClientSQL,
		client.ID,
		client.ClientID,
		client.SecretHash,
		client.OwnerID,
		client.Name,
		client.Description,
		client.RedirectURIs,
		client.Scopes,
		string(client.AppType),
		client.Active,
	)
	inserted, err := scanClient(row)
	if err != nil {
		return domain.ClientApplication{}, fmt.Errorf("create client: %w", err)
	}
	return inserted, nil
}

const getClientByIDSQL = `SELECT ` + clientColumns + ` FROM client_applications WHERE id = $1`

func (r *PostgresClientRepo) GetByID(ctx context.Context, id int64) (domain.ClientApplication, error) {
	client, err := scanClient(r.db.QueryRow(ctx, getClientByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientApplication{}, domain.ErrClientNotFound
		}
		return domain.ClientApplication{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

const getClientByClientIDSQL = `SELECT ` + clientColumns + ` FROM client_applications WHERE client_id = $1`

func (r *PostgresClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.ClientApplication, error) {
	client, err := scanClient(r.db.QueryRow(ctx, getClientByClientIDSQL, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientApplication{}, domain.ErrClientNotFound
		}
		return domain.ClientApplication{}, fmt.Errorf("get client by client_id: %w", err)
	}
	return client, nil
}

const listClientsByOwnerSQL = `SELECT ` + clientColumns + ` FROM client_applications WHERE owner_id = $1 ORDER BY created_at`

func (r *PostgresClientRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.ClientApplication, error) {
	rows, err := r.db.Query(ctx, listClientsByOwnerSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.ClientApplication
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

const updateClientSQL = `UPDATE client_applications
SET name = $2, description = $3, redirect_uris = $4, scopes = $5, active = $6, updated_at = now()
WHERE id = $1
RETURNING ` + clientColumns

func (r *PostgresClientRepo) Update(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error) {
	row := r.db.QueryRow(ctx, updateClientSQL,
		client.ID,
		client.Name,
		client.Description,
		client.RedirectURIs,
		client.Scopes,
		client.Active,
	)
	updated, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientApplication{}, domain.ErrClientNotFound
		}
		return domain.ClientApplication{}, fmt.Errorf("update client: %w", err)
	}
	return updated, nil
}

const deleteClientSQL = `DELETE FROM client_applications WHERE id = $1`

func (r *PostgresClientRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deleteClientSQL, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (domain.ClientApplication, error) {
	var (
		client  domain.ClientApplication
		appType string
	)
	if err := row.Scan(
		&client.ID,
		&client.ClientID,
		&client.SecretHash,
		&client.OwnerID,
		&client.Name,
		&client.Description,
		&client.RedirectURIs,
		&client.Scopes,
		&appType,
		&client.Active,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return domain.ClientApplication{}, err
	}
	client.AppType = domain.AppType(appType)
	return client, nil
}
