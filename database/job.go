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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/model"
)

const jobColumns = `job_id, chain_id, token, token_symbol, recipient, status, authorization_payload, main, bundle,
	bundle_signature, bundle_deadline, payment_id, x402_payment_id, merchant_id, main_amount, fee_amount,
	valid_after, valid_before, expires_at, taken_by, taken_at, executed_tx_hash, executed_at, fail_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		tokenSymbol, bundleSignature, paymentID, x402PaymentID, merchantID sql.NullString
		mainAmount, feeAmount, takenBy, executedTxHash, failReason      sql.NullString
		authJSON, mainJSON, bundleJSON                                  []byte
		bundleDeadline                                                  sql.NullInt64
		takenAt, executedAt                                             sql.NullTime
		status                                                          string
	)

	err := row.Scan(
		&job.JobID, &job.ChainID, &job.Token, &tokenSymbol, &job.Recipient, &status,
		&authJSON, &mainJSON, &bundleJSON,
		&bundleSignature, &bundleDeadline, &paymentID, &x402PaymentID, &merchantID, &mainAmount, &feeAmount,
		&job.ValidAfter, &job.ValidBefore, &job.ExpiresAt, &takenBy, &takenAt, &executedTxHash, &executedAt, &failReason,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.TokenSymbol = tokenSymbol.String
	job.BundleSignature = bundleSignature.String
	job.PaymentID = paymentID.String
	job.X402PaymentID = x402PaymentID.String
	job.MerchantID = merchantID.String
	job.MainAmount = mainAmount.String
	job.FeeAmount = feeAmount.String
	job.TakenBy = takenBy.String
	job.TakenAt = timePtr(takenAt)
	job.ExecutedTxHash = executedTxHash.String
	job.ExecutedAt = timePtr(executedAt)
	job.FailReason = failReason.String
	if bundleDeadline.Valid {
		deadline := bundleDeadline.Int64
		job.BundleDeadline = &deadline
	}

	if job.AuthorizationPayload, err = unmarshalAuthorization(authJSON); err != nil {
		return nil, err
	}
	if job.Main, err = unmarshalAuthorization(mainJSON); err != nil {
		return nil, err
	}
	if len(bundleJSON) > 0 && string(bundleJSON) != "null" {
		job.Bundle = &model.BundleRecord{}
		if err := json.Unmarshal(bundleJSON, job.Bundle); err != nil {
			return nil, fmt.Errorf("decode bundle: %w", err)
		}
	}
	return job, nil
}

func unmarshalAuthorization(data []byte) (*model.AuthorizationRecord, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	auth := &model.AuthorizationRecord{}
	if err := json.Unmarshal(data, auth); err != nil {
		return nil, fmt.Errorf("decode authorization: %w", err)
	}
	return auth, nil
}

// CreateJob inserts a pending job. A duplicate job_id is reported as a conflict.
func (d Datasource) CreateJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Saving job to db")
	defer span.End()

	authJSON, err := marshalJSONB(job.AuthorizationPayload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal authorization", err)
	}
	bundleJSON, err := marshalJSONB(job.Bundle)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal bundle", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	var deadline sql.NullInt64
	if job.BundleDeadline != nil {
		deadline = sql.NullInt64{Int64: *job.BundleDeadline, Valid: true}
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO paylancer.jobs (job_id, chain_id, token, token_symbol, recipient, status, authorization_payload, bundle,
			bundle_signature, bundle_deadline, payment_id, x402_payment_id, merchant_id, main_amount, fee_amount,
			valid_after, valid_before, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		job.JobID, job.ChainID, job.Token, nullString(job.TokenSymbol), job.Recipient, string(job.Status), authJSON, bundleJSON,
		nullString(job.BundleSignature), deadline, nullString(job.PaymentID), nullString(job.X402PaymentID), nullString(job.MerchantID),
		nullString(job.MainAmount), nullString(job.FeeAmount),
		job.ValidAfter, job.ValidBefore, job.ExpiresAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Job with this ID already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save job", err)
	}

	return job, nil
}

func (d Datasource) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Fetching job from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM paylancer.jobs WHERE job_id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return job, nil
}

// FindJob returns the newest job matching the given job ID and/or payment ID.
// At least one of them must be set.
func (d Datasource) FindJob(ctx context.Context, jobID, paymentID string) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Looking up job status")
	defer span.End()

	var (
		conditions []string
		args       []interface{}
	)
	if jobID != "" {
		args = append(args, jobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if paymentID != "" {
		args = append(args, paymentID)
		conditions = append(conditions, fmt.Sprintf("(payment_id = $%d OR x402_payment_id = $%d)", len(args), len(args)))
	}
	if len(conditions) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "jobId or paymentId is required", nil)
	}

	query := `SELECT ` + jobColumns + ` FROM paylancer.jobs WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(d.Conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return job, nil
}

// GetAllJobs lists jobs newest first. An empty status lists every job.
func (d Datasource) GetAllJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	ctx, span := tracer.Start(ctx, "Listing jobs from db")
	defer span.End()

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = d.Conn.QueryContext(ctx, `SELECT `+jobColumns+` FROM paylancer.jobs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = d.Conn.QueryContext(ctx, `SELECT `+jobColumns+` FROM paylancer.jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, string(status), limit)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve jobs", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job data", err)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}

	return jobs, nil
}

// UpdateJobStatus writes a transition only if the job is still in the expected
// status. When another writer got there first no row matches and a conflict
// is returned.
func (d Datasource) UpdateJobStatus(ctx context.Context, id string, expected model.JobStatus, update model.JobStatusUpdate) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Updating job status")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE paylancer.jobs
		SET status = $1, taken_by = $2, taken_at = $3, executed_tx_hash = $4, executed_at = $5, fail_reason = $6, updated_at = $7
		WHERE job_id = $8 AND status = $9
		RETURNING `+jobColumns,
		string(update.Status), nullString(update.TakenBy), nullTime(update.TakenAt), nullString(update.ExecutedTxHash),
		nullTime(update.ExecutedAt), nullString(update.FailReason), time.Now().UTC(), id, string(expected),
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Job status was updated by another process", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update job status", err)
	}
	return job, nil
}
