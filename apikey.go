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
package paylancer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/model"
)

const (
	maxAPIKeyNameLength = 100
	apiKeyCacheTTL      = time.Minute
	apiKeyCachePrefix   = "apikey:"

	APIKeyActionCreate  = "create"
	APIKeyActionRevoke  = "revoke"
	APIKeyActionRestore = "restore"
)

// DeveloperAuth is a wallet's personal-sign proof for a self-service key action.
type DeveloperAuth struct {
	Address   string
	Nonce     string
	Signature string
}

// ListAPIKeys lists keys, all of them when createdBy is empty.
func (p *Paylancer) ListAPIKeys(ctx context.Context, createdBy string) ([]model.APIKey, error) {
	return p.datasource.ListAPIKeys(ctx, strings.ToLower(strings.TrimSpace(createdBy)))
}

// CreateAPIKey issues a key and returns it with its secret. The secret is not
// stored and cannot be shown again.
func (p *Paylancer) CreateAPIKey(ctx context.Context, name, createdBy string) (*model.APIKey, string, error) {
	name = model.Truncate(strings.TrimSpace(name), maxAPIKeyNameLength)
	if name == "" {
		return nil, "", invalidInput("name is required")
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		createdBy = "admin"
	}

	key, secret, err := model.NewAPIKey(name, createdBy)
	if err != nil {
		return nil, "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to generate API key", err)
	}
	if err := p.datasource.CreateAPIKey(ctx, key); err != nil {
		return nil, "", err
	}
	return key, secret, nil
}

// SetAPIKeyStatus revokes or restores a key.
func (p *Paylancer) SetAPIKeyStatus(ctx context.Context, id, action string) (*model.APIKey, error) {
	var revokedAt *time.Time
	switch action {
	case APIKeyActionRevoke:
		now := p.now().UTC()
		revokedAt = &now
	case APIKeyActionRestore:
	default:
		return nil, invalidInput("action must be revoke or restore")
	}

	key, err := p.datasource.SetAPIKeyRevoked(ctx, id, revokedAt)
	if err != nil {
		return nil, err
	}
	p.forgetAPIKey(ctx, key.KeyHash)
	return key, nil
}

// DeleteAPIKey removes a key permanently.
func (p *Paylancer) DeleteAPIKey(ctx context.Context, id string) error {
	key, err := p.datasource.GetAPIKeyByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.datasource.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	p.forgetAPIKey(ctx, key.KeyHash)
	return nil
}

// BuildAPIKeyMessage is the text a developer wallet signs for a key action.
func BuildAPIKeyMessage(action, address, nonce string) string {
	return fmt.Sprintf("Paylancer API Key\naction:%s\naddress:%s\nnonce:%s", action, strings.ToLower(address), nonce)
}

// VerifyDeveloperSignature checks that auth was signed recently by its address
// for the given action.
func (p *Paylancer) VerifyDeveloperSignature(ctx context.Context, action string, auth DeveloperAuth) error {
	address := strings.TrimSpace(auth.Address)
	if !eip3009.IsAddress(address) {
		return invalidInput("address must be a valid address")
	}
	if strings.TrimSpace(auth.Signature) == "" {
		return invalidInput("signature is required")
	}
	issuedMs, err := strconv.ParseInt(strings.TrimSpace(auth.Nonce), 10, 64)
	if err != nil {
		return invalidInput("nonce must be a unix millisecond timestamp")
	}

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	age := p.now().Sub(time.UnixMilli(issuedMs))
	if age < 0 {
		age = -age
	}
	if age > cfg.Jobs.SignatureMaxAge() {
		return apierror.NewAPIError(apierror.ErrUnauthorized, "Signature expired", nil)
	}

	message := BuildAPIKeyMessage(action, address, strings.TrimSpace(auth.Nonce))
	valid, err := p.verifier.VerifyPersonalMessage(ctx, address, message, strings.TrimSpace(auth.Signature))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to verify signature", err)
	}
	if !valid {
		return apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid signature", nil)
	}
	return nil
}

// ListDeveloperAPIKeys lists the keys owned by a wallet.
func (p *Paylancer) ListDeveloperAPIKeys(ctx context.Context, address string) ([]model.APIKey, error) {
	if !eip3009.IsAddress(address) {
		return nil, invalidInput("address must be a valid address")
	}
	return p.ListAPIKeys(ctx, address)
}

// CreateDeveloperAPIKey issues a key owned by the signing wallet.
func (p *Paylancer) CreateDeveloperAPIKey(ctx context.Context, name string, auth DeveloperAuth) (*model.APIKey, string, error) {
	if err := p.VerifyDeveloperSignature(ctx, APIKeyActionCreate, auth); err != nil {
		return nil, "", err
	}
	return p.CreateAPIKey(ctx, name, strings.TrimSpace(auth.Address))
}

// UpdateDeveloperAPIKey revokes or restores a key owned by the signing wallet.
func (p *Paylancer) UpdateDeveloperAPIKey(ctx context.Context, id, action string, auth DeveloperAuth) (*model.APIKey, error) {
	if action != APIKeyActionRevoke && action != APIKeyActionRestore {
		return nil, invalidInput("action must be revoke or restore")
	}
	if err := p.VerifyDeveloperSignature(ctx, action, auth); err != nil {
		return nil, err
	}

	key, err := p.datasource.GetAPIKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !key.IsOwnedBy(strings.TrimSpace(auth.Address)) {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "API key does not belong to this address", nil)
	}
	return p.SetAPIKeyStatus(ctx, id, action)
}

// AuthenticateAPIKey resolves a presented key to its record. Usage is
// recorded in the background.
func (p *Paylancer) AuthenticateAPIKey(ctx context.Context, raw string) (*model.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "API key is required", nil)
	}
	hash := model.HashKey(raw)

	key, err := p.lookupAPIKey(ctx, hash)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid API key", nil)
		}
		return nil, err
	}
	if key.IsRevoked() {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "API key has been revoked", nil)
	}

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.datasource.UpdateLastUsed(ctx, id); err != nil {
			logrus.WithError(err).WithField("api_key_id", id).Warn("failed to record API key usage")
		}
	}(key.APIKeyID)

	return key, nil
}

func (p *Paylancer) lookupAPIKey(ctx context.Context, hash string) (*model.APIKey, error) {
	cacheKey := apiKeyCachePrefix + hash
	if p.cache != nil {
		var cached model.APIKey
		found, err := p.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			logrus.WithError(err).Warn("api key cache read failed")
		}
		if found {
			return &cached, nil
		}
	}

	key, err := p.datasource.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, key, apiKeyCacheTTL); err != nil {
			logrus.WithError(err).Warn("api key cache write failed")
		}
	}
	return key, nil
}

func (p *Paylancer) forgetAPIKey(ctx context.Context, hash string) {
	if p.cache == nil || hash == "" {
		return
	}
	if err := p.cache.Delete(ctx, apiKeyCachePrefix+hash); err != nil {
		logrus.WithError(err).Warn("api key cache invalidation failed")
	}
}
