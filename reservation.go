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

	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/model"
)

// Reserve claims the (paymentId, nonce) pair of a validated submission.
// A duplicate claim fails with a conflict.
func (p *Paylancer) Reserve(ctx context.Context, job *model.NormalizedJob) (*model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "Reserve")
	defer span.End()

	return p.datasource.CreateReservation(ctx, model.NewReservation(job))
}

// markReservationCompleted links a reservation to the job it produced.
// Failures are logged only; the job row is authoritative once it exists.
func (p *Paylancer) markReservationCompleted(ctx context.Context, reservationID, jobID string) {
	if err := p.datasource.CompleteReservation(ctx, reservationID, jobID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"reservation_id": reservationID,
			"job_id":         jobID,
		}).Warn("failed to mark reservation completed")
	}
}

// markReservationFailed releases a reservation that did not produce a job.
func (p *Paylancer) markReservationFailed(ctx context.Context, reservationID, reason string) {
	reason = model.Truncate(reason, model.MaxReservationFailReason)
	if err := p.datasource.FailReservation(ctx, reservationID, reason); err != nil {
		logrus.WithError(err).WithField("reservation_id", reservationID).Warn("failed to mark reservation failed")
	}
}
