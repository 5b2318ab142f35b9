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
	"math/big"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/internal/notification"
	"github.com/paylancer/paylancer/internal/tokens"
	"github.com/paylancer/paylancer/model"
)

// CreateJob validates a submission, reserves its (paymentId, nonce) pair,
// verifies both payer signatures and stores the job as pending.
//
// The reservation and the job insert are separate writes. If anything fails
// after the reservation was taken it is marked failed rather than rolled back,
// and once the job exists its row is authoritative.
func (p *Paylancer) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "CreateJob")
	defer span.End()

	paymentID := attemptedPaymentID(req)
	p.LogJobEvent(ctx, model.JobEvent{
		EventType: model.EventReceived,
		Message:   "job submission received",
		PaymentID: paymentID,
	})

	normalized, err := ValidateJobCreatePayload(req)
	if err != nil {
		span.RecordError(err)
		return nil, p.rejectJob(ctx, model.EventValidationFailed, paymentID, err)
	}
	paymentID = normalized.PaymentID
	span.SetAttributes(attribute.String("payment.id", paymentID))

	if err := CheckCreationWindow(normalized, p.nowUnix()); err != nil {
		return nil, p.rejectJob(ctx, model.EventValidationFailed, paymentID, err)
	}

	reservation, err := p.Reserve(ctx, normalized)
	if err != nil {
		eventType := model.EventAPIError
		if apierror.IsCode(err, apierror.ErrConflict) {
			eventType = model.EventReservationConflict
		}
		return nil, p.rejectJob(ctx, eventType, paymentID, err)
	}

	if err := p.verifyJobSignatures(ctx, normalized); err != nil {
		p.markReservationFailed(ctx, reservation.ReservationID, publicMessage(err))
		eventType := model.EventValidationFailed
		if apierror.MapErrorToHTTPStatus(err) >= http.StatusInternalServerError {
			eventType = model.EventAPIError
		}
		return nil, p.rejectJob(ctx, eventType, paymentID, err)
	}

	job, err := p.datasource.CreateJob(ctx, newJob(normalized))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job insert failed")
		p.markReservationFailed(ctx, reservation.ReservationID, publicMessage(err))
		return nil, p.rejectJob(ctx, model.EventAPIError, paymentID, err)
	}

	p.markReservationCompleted(ctx, reservation.ReservationID, job.JobID)
	p.LogJobEvent(ctx, model.JobEvent{
		EventType:  model.EventJobSaved,
		StatusCode: http.StatusCreated,
		Message:    "job saved",
		JobID:      job.JobID,
		PaymentID:  job.PaymentID,
	})
	p.sendWebhook(ctx, NewWebhook{Event: "job.created", Payload: job})

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "payment_id": job.PaymentID}).Info("job created")
	return job, nil
}

// RejectMalformedJob records a submission whose body could not be decoded
// and returns the error the caller should see. decodeErr stays in the logs.
func (p *Paylancer) RejectMalformedJob(ctx context.Context, decodeErr error) error {
	ctx, span := tracer.Start(ctx, "RejectMalformedJob")
	defer span.End()
	span.RecordError(decodeErr)

	logrus.WithError(decodeErr).Debug("job submission body could not be decoded")
	p.LogJobEvent(ctx, model.JobEvent{
		EventType: model.EventReceived,
		Message:   "job submission received",
	})
	return p.rejectJob(ctx, model.EventValidationFailed, "", invalidInput("Invalid JSON payload"))
}

// GetJob returns a single job by ID.
func (p *Paylancer) GetJob(ctx context.Context, id string) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "GetJob")
	defer span.End()
	return p.datasource.GetJobByID(ctx, id)
}

// ListJobs lists jobs newest first. status may be empty; limit is clamped to
// the configured window.
func (p *Paylancer) ListJobs(ctx context.Context, status string, limit int) ([]model.Job, error) {
	ctx, span := tracer.Start(ctx, "ListJobs")
	defer span.End()

	var filter model.JobStatus
	if status != "" {
		parsed, ok := model.ParseJobStatus(status)
		if !ok {
			return nil, invalidInput("invalid status filter %q", status)
		}
		filter = parsed
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return p.datasource.GetAllJobs(ctx, filter, cfg.Jobs.ClampListLimit(limit))
}

// verifyJobSignatures checks the authorization against the token's domain and
// the bundle against the executor's. A signature from anyone but the payer is
// a validation error; a failure to verify at all is a dependency error.
func (p *Paylancer) verifyJobSignatures(ctx context.Context, job *model.NormalizedJob) error {
	cfg, err := config.Fetch()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to verify signatures", err)
	}
	if !eip3009.IsAddress(cfg.Executor.ContractAddress) {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Executor contract address is not configured", nil)
	}
	token, ok := tokens.FindTokenConfig(job.ChainID, job.Token)
	if !ok {
		return invalidInput("token is not supported on this chain")
	}

	authTyped := eip3009.BuildAuthorizationTypedData(
		eip3009.TokenDomain{Name: token.Domain.Name, Version: token.Domain.Version, Address: token.Address},
		job.ChainID,
		eip3009.TransferAuthorization{
			From:        job.Authorization.From,
			To:          job.Authorization.To,
			Value:       job.Value,
			ValidAfter:  big.NewInt(job.ValidAfter),
			ValidBefore: big.NewInt(job.ValidBefore),
			Nonce:       job.Authorization.Nonce,
		},
	)
	valid, err := p.verifier.VerifyTypedData(ctx, job.Authorization.From, authTyped, job.Authorization.Signature)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to verify authorization signature", err)
	}
	if !valid {
		return invalidInput("authorization signature is invalid")
	}

	bundleTyped := eip3009.BuildBundleTypedData(cfg.Executor.ContractAddress, job.ChainID, eip3009.BundleMessage{
		Payer:      job.Bundle.Payer,
		Token:      job.Token,
		Recipient:  job.Recipient,
		MainAmount: job.MainAmount,
		FeeAmount:  job.FeeAmount,
		PaymentID:  job.PaymentID,
		Deadline:   big.NewInt(job.BundleDeadline),
	})
	valid, err = p.verifier.VerifyTypedData(ctx, job.Bundle.Payer, bundleTyped, job.BundleSignature)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to verify bundle signature", err)
	}
	if !valid {
		return invalidInput("bundle signature is invalid")
	}
	return nil
}

func newJob(n *model.NormalizedJob) *model.Job {
	auth := n.Authorization
	bundle := n.Bundle
	deadline := n.BundleDeadline
	return &model.Job{
		JobID:                model.GenerateUUIDWithSuffix("job"),
		ChainID:              n.ChainID,
		Token:                n.Token,
		TokenSymbol:          n.TokenSymbol,
		Recipient:            n.Recipient,
		Status:               model.JobStatusPending,
		AuthorizationPayload: &auth,
		Bundle:               &bundle,
		BundleSignature:      n.BundleSignature,
		BundleDeadline:       &deadline,
		PaymentID:            n.PaymentID,
		X402PaymentID:        n.X402PaymentID,
		MerchantID:           n.MerchantID,
		MainAmount:           n.MainAmount.String(),
		FeeAmount:            n.FeeAmount.String(),
		ValidAfter:           n.ValidAfter,
		ValidBefore:          n.ValidBefore,
		ExpiresAt:            n.ExpiresAt(),
	}
}

// rejectJob records why a submission was turned away and hands err back.
// Dependency failures are also reported to operators.
func (p *Paylancer) rejectJob(ctx context.Context, eventType model.JobEventType, paymentID string, err error) error {
	status := apierror.MapErrorToHTTPStatus(err)
	p.LogJobEvent(ctx, model.JobEvent{
		EventType:  eventType,
		StatusCode: status,
		Message:    publicMessage(err),
		PaymentID:  paymentID,
	})
	if status >= http.StatusInternalServerError {
		notification.NotifyError(err)
	}
	return err
}

// publicMessage is the part of err that is safe to show a caller.
func publicMessage(err error) string {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

// GetJobStatus looks a job up by job ID and/or payment ID and attaches its most
// recent audit events. A failure to load events still returns the job.
func (p *Paylancer) GetJobStatus(ctx context.Context, jobID, paymentID string) (*model.JobStatusView, error) {
	ctx, span := tracer.Start(ctx, "GetJobStatus")
	defer span.End()

	jobID = strings.TrimSpace(jobID)
	paymentID = strings.TrimSpace(paymentID)
	if jobID == "" && paymentID == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "paymentId or jobId is required", nil)
	}
	if paymentID != "" {
		normalized, err := eip3009.NormalizePaymentID(paymentID)
		if err != nil {
			return nil, invalidInput("paymentId must be at most 32 bytes")
		}
		paymentID = normalized
	}

	job, err := p.datasource.FindJob(ctx, jobID, paymentID)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	eventPaymentID := job.PaymentID
	if strings.EqualFold(eventPaymentID, eip3009.ZeroPaymentID) {
		eventPaymentID = ""
	}
	events, err := p.datasource.GetRecentJobEvents(ctx, job.JobID, eventPaymentID, cfg.Jobs.StatusEventsLimit)
	if err != nil {
		logrus.WithError(err).WithField("job_id", job.JobID).Warn("failed to load job events")
		events = []model.JobEvent{}
	}
	if events == nil {
		events = []model.JobEvent{}
	}

	return &model.JobStatusView{Job: job, Events: events}, nil
}
