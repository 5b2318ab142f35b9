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
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/model"
)

func transitionNotAllowed(from, to model.JobStatus) error {
	return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transition from %s to %s is not allowed", from, to), nil)
}

// TransitionJob moves a job to the requested status. The write is conditioned
// on the job still being in the expected status, so of two facilitators racing
// for the same job exactly one wins and the other gets a conflict.
func (p *Paylancer) TransitionJob(ctx context.Context, id string, req model.JobTransitionRequest) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "TransitionJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	rawStatus := strings.TrimSpace(req.Status)
	if rawStatus == "" {
		return nil, invalidInput("status is required")
	}
	next, ok := model.ParseJobStatus(rawStatus)
	if !ok {
		return nil, invalidInput("invalid status %q", rawStatus)
	}

	var expected model.JobStatus
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok = model.ParseJobStatus(raw)
		if !ok {
			return nil, invalidInput("invalid expectedStatus %q", raw)
		}
		if !expected.CanTransitionTo(next) {
			return nil, p.rejectTransition(ctx, id, "", expected, next, transitionNotAllowed(expected, next))
		}
	}

	current, err := p.datasource.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected == "" {
		expected = current.Status
		if !expected.CanTransitionTo(next) {
			return nil, p.rejectTransition(ctx, id, current.PaymentID, expected, next, transitionNotAllowed(expected, next))
		}
	}

	update, err := p.buildStatusUpdate(current, next, req)
	if err != nil {
		return nil, err
	}

	job, err := p.datasource.UpdateJobStatus(ctx, id, expected, update)
	if err != nil {
		span.RecordError(err)
		if apierror.IsCode(err, apierror.ErrConflict) {
			return nil, p.rejectTransition(ctx, id, current.PaymentID, expected, next, err)
		}
		return nil, err
	}

	p.LogJobEvent(ctx, model.JobEvent{
		EventType:  model.EventStatusChanged,
		StatusCode: http.StatusOK,
		Message:    fmt.Sprintf("status changed from %s to %s", expected, next),
		JobID:      job.JobID,
		PaymentID:  job.PaymentID,
		Metadata: map[string]interface{}{
			"from": string(expected),
			"to":   string(next),
		},
	})
	p.sendWebhook(ctx, NewWebhook{Event: "job." + string(next), Payload: job})

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "from": expected, "to": next}).Info("job status changed")
	return job, nil
}

// rejectTransition records a refused status change and hands err back.
func (p *Paylancer) rejectTransition(ctx context.Context, jobID, paymentID string, from, to model.JobStatus, err error) error {
	p.LogJobEvent(ctx, model.JobEvent{
		EventType:  model.EventStatusConflict,
		StatusCode: apierror.MapErrorToHTTPStatus(err),
		Message:    publicMessage(err),
		JobID:      jobID,
		PaymentID:  paymentID,
		Metadata: map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		},
	})
	return err
}

// buildStatusUpdate computes every lifecycle column for the new status.
// Columns the transition does not touch keep their stored values.
func (p *Paylancer) buildStatusUpdate(current *model.Job, next model.JobStatus, req model.JobTransitionRequest) (model.JobStatusUpdate, error) {
	now := p.now().UTC()
	update := model.JobStatusUpdate{
		Status:         next,
		TakenBy:        current.TakenBy,
		TakenAt:        current.TakenAt,
		ExecutedTxHash: current.ExecutedTxHash,
		ExecutedAt:     current.ExecutedAt,
		FailReason:     current.FailReason,
	}
	facilitator := strings.TrimSpace(req.Facilitator)

	switch next {
	case model.JobStatusProcessing:
		if !eip3009.IsAddress(facilitator) {
			return update, invalidInput("facilitator address is required for processing status")
		}
		update.TakenBy = eip3009.ChecksumAddress(facilitator)
		update.TakenAt = &now
		update.FailReason = ""
	case model.JobStatusExecuted:
		txHash := strings.TrimSpace(req.ExecutedTxHash)
		if txHash == "" {
			return update, invalidInput("executedTxHash is required when marking executed")
		}
		update.ExecutedTxHash = txHash
		update.ExecutedAt = &now
		update.FailReason = ""
		if update.TakenBy == "" && facilitator != "" {
			if !eip3009.IsAddress(facilitator) {
				return update, invalidInput("facilitator must be a valid address")
			}
			update.TakenBy = eip3009.ChecksumAddress(facilitator)
			if update.TakenAt == nil {
				update.TakenAt = &now
			}
		}
	case model.JobStatusFailed:
		reason := strings.TrimSpace(req.FailReason)
		if reason == "" {
			return update, invalidInput("failReason is required when marking failed")
		}
		update.FailReason = reason
		update.ExecutedTxHash = ""
		update.ExecutedAt = nil
	case model.JobStatusCancelled:
		update.FailReason = strings.TrimSpace(req.FailReason)
		update.ExecutedTxHash = ""
		update.ExecutedAt = nil
	default:
		return update, transitionNotAllowed(current.Status, next)
	}
	return update, nil
}
