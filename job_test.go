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
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paylancer/paylancer/database/mocks"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/model"
)

func expectReservation(ds *mocks.MockDataSource, nonce string) *mock.Call {
	return ds.On("CreateReservation", mock.Anything, mock.MatchedBy(func(r *model.Reservation) bool {
		return r.AuthorizationNonce == nonce && r.Status == model.ReservationPending
	})).Return(&model.Reservation{ReservationID: "rsv_1", AuthorizationNonce: nonce}, nil)
}

func expectSavedJob(ds *mocks.MockDataSource) *model.Job {
	saved := &model.Job{}
	ds.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job")).
		Run(func(args mock.Arguments) {
			*saved = *args.Get(1).(*model.Job)
		}).
		Return(saved, nil)
	return saved
}

func TestCreateJobAcceptsSignedSubmission(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())

	var reserved *model.Reservation
	expectReservation(ds, signed.nonce).Run(func(args mock.Arguments) {
		reserved = args.Get(1).(*model.Reservation)
	})
	expectSavedJob(ds)
	ds.On("CompleteReservation", mock.Anything, "rsv_1", mock.AnythingOfType("string")).Return(nil)

	job, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Contains(t, job.JobID, "job_")
	assert.Equal(t, int64(137), job.ChainID)
	assert.Equal(t, "USDC", job.TokenSymbol)
	assert.Equal(t, "1000000", job.MainAmount)
	assert.Equal(t, "1000", job.FeeAmount)
	assert.Equal(t, testPaymentID(t), job.PaymentID)
	assert.Equal(t, "1001000", string(job.AuthorizationPayload.Value))
	require.NotNil(t, job.BundleDeadline)
	assert.Equal(t, testNow.Unix()+540, *job.BundleDeadline)
	assert.Equal(t, time.Unix(testNow.Unix()+540, 0).UTC(), job.ExpiresAt)

	require.NotNil(t, reserved)
	assert.Equal(t, testPaymentID(t), reserved.PaymentID)
	assert.Equal(t, job.ExpiresAt, reserved.ExpiresAt)

	ds.AssertCalled(t, "CompleteReservation", mock.Anything, "rsv_1", job.JobID)
	assert.Equal(t, []model.JobEventType{model.EventReceived, model.EventJobSaved}, events.types())
	assert.Equal(t, http.StatusCreated, events.last().StatusCode)
}

func TestCreateJobRejectsZeroAmountBeforeReserving(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	params := defaultJobParams()
	params.mainAmount = 0
	signed := newSignedRequest(t, params)

	_, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.Error(t, err)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, "mainAmount and feeAmount must be greater than zero", apiErr.Message)
	assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))

	ds.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	assert.Equal(t, []model.JobEventType{model.EventReceived, model.EventValidationFailed}, events.types())
	assert.Equal(t, testPaymentID(t), events.last().PaymentID)
	assert.Equal(t, http.StatusBadRequest, events.last().StatusCode)
}

func TestRejectMalformedJobRecordsValidationFailure(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)

	err := newTestService(ds).RejectMalformedJob(context.Background(), errors.New("unexpected EOF"))
	require.Error(t, err)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid JSON payload", apiErr.Message)
	assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))

	assert.Equal(t, []model.JobEventType{model.EventReceived, model.EventValidationFailed}, events.types())
	assert.Equal(t, "Invalid JSON payload", events.last().Message)
	assert.Equal(t, http.StatusBadRequest, events.last().StatusCode)
	assert.Empty(t, events.last().PaymentID)
	ds.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
}

func TestCreateJobRejectsExpiredWindows(t *testing.T) {
	setupTestConfig(t)

	tests := []struct {
		name    string
		clock   time.Time
		message string
	}{
		{"authorization expired", testNow.Add(601 * time.Second), "Authorization has already expired"},
		{"deadline passed", testNow.Add(540 * time.Second), "bundle deadline has passed"},
		{"not yet valid", testNow.Add(-121 * time.Second), "authorization is not yet valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := new(mocks.MockDataSource)
			recordEvents(ds, nil)
			signed := newSignedRequest(t, defaultJobParams())
			clock := tt.clock

			_, err := New(ds, WithClock(func() time.Time { return clock })).CreateJob(context.Background(), signed.req)
			require.Error(t, err)
			apiErr, ok := apierror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, apiErr.Message)
			ds.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateJobReservationConflict(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())

	ds.On("CreateReservation", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrConflict, "A job for this paymentId and nonce already exists", nil))

	_, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
	ds.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	assert.Equal(t, model.EventReservationConflict, events.last().EventType)
	assert.Equal(t, http.StatusConflict, events.last().StatusCode)
}

func TestCreateJobConcurrentDuplicatesCreateOneJob(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())

	// the unique index lets exactly one insert through
	expectReservation(ds, signed.nonce).Once()
	ds.On("CreateReservation", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrConflict, "A job for this paymentId and nonce already exists", nil)).Once()
	expectSavedJob(ds)
	ds.On("CompleteReservation", mock.Anything, "rsv_1", mock.Anything).Return(nil)

	svc := newTestService(ds)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateJob(context.Background(), signed.req)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apierror.IsCode(err, apierror.ErrConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	ds.AssertNumberOfCalls(t, "CreateJob", 1)
}

func TestCreateJobRejectsBundleSignedByAnotherKey(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())
	other := newSignedRequest(t, defaultJobParams())
	signed.req.BundleSignature = other.req.BundleSignature

	expectReservation(ds, signed.nonce)
	ds.On("FailReservation", mock.Anything, "rsv_1", "bundle signature is invalid").Return(nil)

	_, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, "bundle signature is invalid", apiErr.Message)

	ds.AssertCalled(t, "FailReservation", mock.Anything, "rsv_1", "bundle signature is invalid")
	ds.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	assert.Equal(t, model.EventValidationFailed, events.last().EventType)
}

func TestCreateJobVerifierFailureIsDependencyError(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())

	verifier := new(mockVerifier)
	verifier.On("VerifyTypedData", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("rpc unavailable"))

	expectReservation(ds, signed.nonce)
	ds.On("FailReservation", mock.Anything, "rsv_1", mock.AnythingOfType("string")).Return(nil)

	_, err := newTestService(ds, WithVerifier(verifier)).CreateJob(context.Background(), signed.req)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierror.MapErrorToHTTPStatus(err))
	assert.Equal(t, model.EventAPIError, events.last().EventType)
	ds.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestCreateJobInsertFailureReleasesReservation(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)
	signed := newSignedRequest(t, defaultJobParams())

	expectReservation(ds, signed.nonce)
	ds.On("CreateJob", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save job", nil))
	ds.On("FailReservation", mock.Anything, "rsv_1", "Failed to save job").Return(nil)

	_, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierror.MapErrorToHTTPStatus(err))
	ds.AssertCalled(t, "FailReservation", mock.Anything, "rsv_1", "Failed to save job")
	ds.AssertNotCalled(t, "CompleteReservation", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, model.EventAPIError, events.last().EventType)
}

func TestCreateJobIgnoresBookkeepingFailures(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	recordEvents(ds, errors.New("events table unavailable"))
	signed := newSignedRequest(t, defaultJobParams())

	expectReservation(ds, signed.nonce)
	expectSavedJob(ds)
	ds.On("CompleteReservation", mock.Anything, "rsv_1", mock.Anything).Return(errors.New("connection reset"))

	job, err := newTestService(ds).CreateJob(context.Background(), signed.req)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestListJobs(t *testing.T) {
	setupTestConfig(t)
	ctx := context.Background()

	t.Run("clamps the limit", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("GetAllJobs", mock.Anything, model.JobStatusPending, 200).Return([]model.Job{{JobID: "job_1"}}, nil)

		jobs, err := newTestService(ds).ListJobs(ctx, "pending", 5000)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("defaults the limit", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("GetAllJobs", mock.Anything, model.JobStatus(""), 50).Return([]model.Job{}, nil)

		_, err := newTestService(ds).ListJobs(ctx, "", 0)
		require.NoError(t, err)
		ds.AssertExpectations(t)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		_, err := newTestService(ds).ListJobs(ctx, "done", 10)
		assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))
		ds.AssertNotCalled(t, "GetAllJobs", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetJobStatus(t *testing.T) {
	setupTestConfig(t)
	ctx := context.Background()
	paymentID := testPaymentID(t)
	job := &model.Job{JobID: "job_1", PaymentID: paymentID, Status: model.JobStatusPending}

	t.Run("requires a key", func(t *testing.T) {
		_, err := newTestService(new(mocks.MockDataSource)).GetJobStatus(ctx, " ", "")
		require.Error(t, err)
		apiErr, _ := apierror.As(err)
		assert.Equal(t, "paymentId or jobId is required", apiErr.Message)
	})

	t.Run("normalizes the payment id", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("FindJob", mock.Anything, "", paymentID).Return(job, nil)
		ds.On("GetRecentJobEvents", mock.Anything, "job_1", paymentID, 3).
			Return([]model.JobEvent{{EventType: model.EventJobSaved}}, nil)

		view, err := newTestService(ds).GetJobStatus(ctx, "", testPaymentRef)
		require.NoError(t, err)
		assert.Equal(t, "job_1", view.Job.JobID)
		assert.Len(t, view.Events, 1)
	})

	t.Run("returns the job when events fail", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("FindJob", mock.Anything, "job_1", "").Return(job, nil)
		ds.On("GetRecentJobEvents", mock.Anything, "job_1", paymentID, 3).Return(nil, errors.New("timeout"))

		view, err := newTestService(ds).GetJobStatus(ctx, "job_1", "")
		require.NoError(t, err)
		assert.NotNil(t, view.Events)
		assert.Empty(t, view.Events)
	})

	t.Run("zero payment id only matches the job", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		unreferenced := &model.Job{JobID: "job_2", PaymentID: eip3009.ZeroPaymentID, Status: model.JobStatusPending}
		ds.On("FindJob", mock.Anything, "job_2", "").Return(unreferenced, nil)
		ds.On("GetRecentJobEvents", mock.Anything, "job_2", "", 3).
			Return([]model.JobEvent{{EventType: model.EventJobSaved, JobID: "job_2"}}, nil)

		view, err := newTestService(ds).GetJobStatus(ctx, "job_2", "")
		require.NoError(t, err)
		require.Len(t, view.Events, 1)
		assert.Equal(t, "job_2", view.Events[0].JobID)
		ds.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("FindJob", mock.Anything, "job_missing", "").
			Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil))

		_, err := newTestService(ds).GetJobStatus(ctx, "job_missing", "")
		assert.Equal(t, http.StatusNotFound, apierror.MapErrorToHTTPStatus(err))
	})
}
