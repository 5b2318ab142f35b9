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

package model

import (
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/paylancer/paylancer"
	"github.com/paylancer/paylancer/model"
)

type TransitionJob struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expectedStatus,omitempty"`
	Facilitator    string `json:"facilitator,omitempty"`
	ExecutedTxHash string `json:"executedTxHash,omitempty"`
	FailReason     string `json:"failReason,omitempty"`
}

type CreateAPIKey struct {
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy,omitempty"`
}

type UpdateAPIKey struct {
	Action string `json:"action"`
}

// DeveloperAuth is the wallet proof sent with every self-service key request.
// Nonce is accepted either as a JSON number or a numeric string.
type DeveloperAuth struct {
	Address   string      `json:"address"`
	Nonce     json.Number `json:"nonce"`
	Signature string      `json:"signature"`
}

type CreateDeveloperAPIKey struct {
	Name string `json:"name"`
	DeveloperAuth
}

type UpdateDeveloperAPIKey struct {
	Action string `json:"action"`
	DeveloperAuth
}

func keyActionRule() validation.Rule {
	return validation.In(paylancer.APIKeyActionRevoke, paylancer.APIKeyActionRestore).
		Error("action must be revoke or restore")
}

func (t *TransitionJob) ValidateTransitionJob() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Status, validation.Required.Error("status is required")),
	)
}

func (k *CreateAPIKey) ValidateCreateAPIKey() error {
	k.Name = strings.TrimSpace(k.Name)
	return validation.ValidateStruct(k,
		validation.Field(&k.Name, validation.Required.Error("name is required")),
	)
}

func (k *UpdateAPIKey) ValidateUpdateAPIKey() error {
	return validation.ValidateStruct(k,
		validation.Field(&k.Action, validation.Required.Error("action is required"), keyActionRule()),
	)
}

func (d *DeveloperAuth) validateDeveloperAuth() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Address, validation.Required.Error("address is required")),
		validation.Field(&d.Nonce, validation.Required.Error("nonce is required")),
		validation.Field(&d.Signature, validation.Required.Error("signature is required")),
	)
}

func (k *CreateDeveloperAPIKey) ValidateCreateDeveloperAPIKey() error {
	k.Name = strings.TrimSpace(k.Name)
	if err := validation.ValidateStruct(k,
		validation.Field(&k.Name, validation.Required.Error("name is required")),
	); err != nil {
		return err
	}
	return k.validateDeveloperAuth()
}

func (k *UpdateDeveloperAPIKey) ValidateUpdateDeveloperAPIKey() error {
	if err := validation.ValidateStruct(k,
		validation.Field(&k.Action, validation.Required.Error("action is required"), keyActionRule()),
	); err != nil {
		return err
	}
	return k.validateDeveloperAuth()
}

func (t *TransitionJob) ToTransitionRequest() model.JobTransitionRequest {
	return model.JobTransitionRequest{
		Status:         strings.TrimSpace(t.Status),
		ExpectedStatus: strings.TrimSpace(t.ExpectedStatus),
		Facilitator:    strings.TrimSpace(t.Facilitator),
		ExecutedTxHash: strings.TrimSpace(t.ExecutedTxHash),
		FailReason:     strings.TrimSpace(t.FailReason),
	}
}

func (d DeveloperAuth) ToDeveloperAuth() paylancer.DeveloperAuth {
	return paylancer.DeveloperAuth{
		Address:   strings.TrimSpace(d.Address),
		Nonce:     d.Nonce.String(),
		Signature: strings.TrimSpace(d.Signature),
	}
}
