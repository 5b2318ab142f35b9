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

// ExpirePendingJobs moves pending jobs whose window has closed to expired.
// Jobs already taken by a facilitator are left alone.
func (d Datasource) ExpirePendingJobs(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "Expiring pending jobs")
	defer span.End()

	return d.sweep(ctx, "Failed to expire jobs", `
		UPDATE paylancer.jobs
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2
	`, string(model.JobStatusExpired), now, string(model.JobStatusPending))
}

// ExpirePendingReservations closes reservations that were never resolved,
// e.g. because the process died between reserving and saving the job.
func (d Datasource) ExpirePendingReservations(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "Expiring pending reservations")
	defer span.End()

	return d.sweep(ctx, "Failed to expire reservations", `
		UPDATE paylancer.job_reservations
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2
	`, string(model.ReservationExpired), now, string(model.ReservationPending))
}

// DeleteTerminalReservations removes resolved reservations that expired before the cutoff.
func (d Datasource) DeleteTerminalReservations(ctx context.Context, before time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "Deleting stale reservations")
	defer span.End()

	return d.sweep(ctx, "Failed to delete reservations", `
		DELETE FROM paylancer.job_reservations
		WHERE status IN ($1, $2, $3) AND expires_at < $4
	`, string(model.ReservationCompleted), string(model.ReservationFailed), string(model.ReservationExpired), before)
}

func (d Datasource) sweep(ctx context.Context, failure, query string, args ...interface{}) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, failure, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return n, nil
}
