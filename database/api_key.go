/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/model"
)

const apiKeyColumns = `api_key_id, name, key_hash, masked_key, created_by, created_at, last_used_at, revoked_at`

func scanAPIKey(row rowScanner) (*model.APIKey, error) {
	key := &model.APIKey{}
	var lastUsedAt, revokedAt sql.NullTime
	err := row.Scan(&key.APIKeyID, &key.Name, &key.KeyHash, &key.MaskedKey, &key.CreatedBy, &key.CreatedAt, &lastUsedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	key.LastUsedAt = timePtr(lastUsedAt)
	key.RevokedAt = timePtr(revokedAt)
	return key, nil
}

// CreateAPIKey stores a key record. Only the hash of the secret is persisted.
func (d Datasource) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO paylancer.api_keys (api_key_id, name, key_hash, masked_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, key.APIKeyID, key.Name, key.KeyHash, key.MaskedKey, key.CreatedBy, key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, "API key already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create API key", err)
	}
	return nil
}

func (d Datasource) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	return d.getAPIKey(ctx, `SELECT `+apiKeyColumns+` FROM paylancer.api_keys WHERE key_hash = $1`, hash)
}

func (d Datasource) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	return d.getAPIKey(ctx, `SELECT `+apiKeyColumns+` FROM paylancer.api_keys WHERE api_key_id = $1`, id)
}

func (d Datasource) getAPIKey(ctx context.Context, query string, arg string) (*model.APIKey, error) {
	key, err := scanAPIKey(d.Conn.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "API key not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve API key", err)
	}
	return key, nil
}

// ListAPIKeys lists keys newest first. An empty createdBy lists every key.
func (d Datasource) ListAPIKeys(ctx context.Context, createdBy string) ([]model.APIKey, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if createdBy == "" {
		rows, err = d.Conn.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM paylancer.api_keys ORDER BY created_at DESC`)
	} else {
		rows, err = d.Conn.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM paylancer.api_keys WHERE created_by = $1 ORDER BY created_at DESC`, createdBy)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list API keys", err)
	}
	defer rows.Close()

	keys := []model.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan API key", err)
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over API keys", err)
	}
	return keys, nil
}

// SetAPIKeyRevoked revokes a key when revokedAt is set and restores it when nil.
func (d Datasource) SetAPIKeyRevoked(ctx context.Context, id string, revokedAt *time.Time) (*model.APIKey, error) {
	key, err := scanAPIKey(d.Conn.QueryRowContext(ctx, `
		UPDATE paylancer.api_keys
		SET revoked_at = $1
		WHERE api_key_id = $2
		RETURNING `+apiKeyColumns, nullTime(revokedAt), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "API key not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update API key", err)
	}
	return key, nil
}

func (d Datasource) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM paylancer.api_keys WHERE api_key_id = $1`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete API key", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "API key not found", nil)
	}
	return nil
}

// UpdateLastUsed updates the last_used_at timestamp for an API key to the current time.
func (d Datasource) UpdateLastUsed(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `UPDATE paylancer.api_keys SET last_used_at = $1 WHERE api_key_id = $2`, time.Now().UTC(), id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update API key usage", err)
	}
	return nil
}
