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

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/model"
)

// CreateReservation inserts a pending reservation. The unique index on
// (payment_id, authorization_nonce) makes the insert itself the duplicate
// check, so concurrent submissions of one payment see exactly one success.
func (d Datasource) CreateReservation(ctx context.Context, rsv *model.Reservation) (*model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "Reserving job creation")
	defer span.End()

	now := time.Now().UTC()
	rsv.CreatedAt = now
	rsv.UpdatedAt = now

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO paylancer.job_reservations (reservation_id, payment_id, authorization_nonce, chain_id, token, wallet, merchant_id,
			valid_after, valid_before, bundle_deadline, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		rsv.ReservationID, rsv.PaymentID, rsv.AuthorizationNonce, rsv.ChainID, rsv.Token, rsv.Wallet, nullString(rsv.MerchantID),
		rsv.ValidAfter, rsv.ValidBefore, rsv.BundleDeadline, string(rsv.Status), rsv.ExpiresAt, rsv.CreatedAt, rsv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "A job for this paymentId and nonce already exists", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reserve job", err)
	}

	return rsv, nil
}

func (d Datasource) CompleteReservation(ctx context.Context, id, jobID string) error {
	ctx, span := tracer.Start(ctx, "Completing reservation")
	defer span.End()

	return d.resolveReservation(ctx, `
		UPDATE paylancer.job_reservations
		SET status = $1, job_id = $2, updated_at = $3
		WHERE reservation_id = $4 AND status = $5
	`, string(model.ReservationCompleted), jobID, time.Now().UTC(), id, string(model.ReservationPending))
}

func (d Datasource) FailReservation(ctx context.Context, id, reason string) error {
	ctx, span := tracer.Start(ctx, "Failing reservation")
	defer span.End()

	return d.resolveReservation(ctx, `
		UPDATE paylancer.job_reservations
		SET status = $1, fail_reason = $2, updated_at = $3
		WHERE reservation_id = $4 AND status = $5
	`, string(model.ReservationFailed), model.Truncate(reason, model.MaxReservationFailReason), time.Now().UTC(), id, string(model.ReservationPending))
}

func (d Datasource) resolveReservation(ctx context.Context, query string, args ...interface{}) error {
	result, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update reservation", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Pending reservation not found", nil)
	}
	return nil
}
