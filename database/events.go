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
	"fmt"
	"strings"
	"time"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/model"
)

// RecordJobEvent appends an entry to the audit trail.
func (d Datasource) RecordJobEvent(ctx context.Context, event *model.JobEvent) error {
	ctx, span := tracer.Start(ctx, "Recording job event")
	defer span.End()

	if event.EventID == "" {
		event.EventID = model.GenerateUUIDWithSuffix("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalJSONB(event.Metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	var statusCode sql.NullInt64
	if event.StatusCode != 0 {
		statusCode = sql.NullInt64{Int64: int64(event.StatusCode), Valid: true}
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO paylancer.job_events (event_id, event_type, status_code, message, job_id, payment_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.EventID, string(event.EventType), statusCode, nullString(event.Message), nullString(event.JobID),
		nullString(event.PaymentID), metadata, event.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job event", err)
	}
	return nil
}

// GetRecentJobEvents returns the newest events for a job, a payment, or either.
// The zero payment id is shared by every job without a reference and never
// widens the lookup.
func (d Datasource) GetRecentJobEvents(ctx context.Context, jobID, paymentID string, limit int) ([]model.JobEvent, error) {
	ctx, span := tracer.Start(ctx, "Fetching recent job events")
	defer span.End()

	var (
		conditions []string
		args       []interface{}
	)
	if jobID != "" {
		args = append(args, jobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if paymentID != "" && !strings.EqualFold(paymentID, eip3009.ZeroPaymentID) {
		args = append(args, paymentID)
		conditions = append(conditions, fmt.Sprintf("payment_id = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return []model.JobEvent{}, nil
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT event_id, event_type, status_code, message, job_id, payment_id, metadata, created_at
		FROM paylancer.job_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " OR "), len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job events", err)
	}
	defer rows.Close()

	events := []model.JobEvent{}
	for rows.Next() {
		var (
			event                    model.JobEvent
			eventType                string
			statusCode               sql.NullInt64
			message, jID, paymentRef sql.NullString
			metadata                 []byte
		)
		if err := rows.Scan(&event.EventID, &eventType, &statusCode, &message, &jID, &paymentRef, &metadata, &event.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job event", err)
		}
		event.EventType = model.JobEventType(eventType)
		event.StatusCode = int(statusCode.Int64)
		event.Message = message.String
		event.JobID = jID.String
		event.PaymentID = paymentRef.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over job events", err)
	}
	return events, nil
}
