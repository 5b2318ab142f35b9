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
	"time"

	"github.com/paylancer/paylancer/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	job         // Interface for job lifecycle operations
	reservation // Interface for creation idempotency guards
	jobEvent    // Interface for the audit trail
	apiKey      // Interface for API key storage
	cleanup     // Interface for the expiry sweep
}

type job interface {
	CreateJob(ctx context.Context, job *model.Job) (*model.Job, error)                                                  // Inserts a new pending job
	GetJobByID(ctx context.Context, id string) (*model.Job, error)                                                      // Retrieves a job by ID
	FindJob(ctx context.Context, jobID, paymentID string) (*model.Job, error)                                           // Retrieves the newest job matching an ID and/or payment ID
	GetAllJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)                             // Lists jobs, newest first, optionally by status
	UpdateJobStatus(ctx context.Context, id string, expected model.JobStatus, update model.JobStatusUpdate) (*model.Job, error) // Conditionally moves a job from expected to update.Status
}

type reservation interface {
	CreateReservation(ctx context.Context, rsv *model.Reservation) (*model.Reservation, error) // Inserts a pending reservation, conflicting on (payment_id, authorization_nonce)
	CompleteReservation(ctx context.Context, id, jobID string) error                          // Marks a reservation completed for a job
	FailReservation(ctx context.Context, id, reason string) error                             // Marks a reservation failed
}

type jobEvent interface {
	RecordJobEvent(ctx context.Context, event *model.JobEvent) error                        // Appends an audit event
	GetRecentJobEvents(ctx context.Context, jobID, paymentID string, limit int) ([]model.JobEvent, error) // Lists the newest events for a job or payment
}

type apiKey interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error                                           // Stores a hashed API key
	GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)                             // Looks a key up by its hash
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)                                 // Looks a key up by ID
	ListAPIKeys(ctx context.Context, createdBy string) ([]model.APIKey, error)                           // Lists keys, all of them when createdBy is empty
	SetAPIKeyRevoked(ctx context.Context, id string, revokedAt *time.Time) (*model.APIKey, error)        // Revokes or restores a key
	DeleteAPIKey(ctx context.Context, id string) error                                                   // Permanently removes a key
	UpdateLastUsed(ctx context.Context, id string) error                                                 // Records key usage
}

type cleanup interface {
	ExpirePendingJobs(ctx context.Context, now time.Time) (int64, error)             // Moves pending jobs past expires_at to expired
	ExpirePendingReservations(ctx context.Context, now time.Time) (int64, error)     // Moves pending reservations past expires_at to expired
	DeleteTerminalReservations(ctx context.Context, before time.Time) (int64, error) // Deletes terminal reservations that expired before the cutoff
}
