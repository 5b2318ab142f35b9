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
	"net/http"
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

func pendingJob() *model.Job {
	return &model.Job{JobID: "job_1", PaymentID: "0x01", Status: model.JobStatusPending}
}

func TestTransitionJobToProcessing(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)

	var update model.JobStatusUpdate
	ds.On("GetJobByID", mock.Anything, "job_1").Return(pendingJob(), nil)
	ds.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusPending, mock.AnythingOfType("model.JobStatusUpdate")).
		Run(func(args mock.Arguments) { update = args.Get(3).(model.JobStatusUpdate) }).
		Return(&model.Job{JobID: "job_1", Status: model.JobStatusProcessing}, nil)

	job, err := newTestService(ds).TransitionJob(context.Background(), "job_1", model.JobTransitionRequest{
		Status:      "processing",
		Facilitator: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)

	assert.Equal(t, model.JobStatusProcessing, update.Status)
	assert.Equal(t, eip3009.ChecksumAddress(testFacilitator), update.TakenBy)
	require.NotNil(t, update.TakenAt)
	assert.Equal(t, testNow, *update.TakenAt)
	assert.Empty(t, update.FailReason)
	assert.Equal(t, model.EventStatusChanged, events.last().EventType)
}

func TestTransitionJobRacingFacilitators(t *testing.T) {
	setupTestConfig(t)
	ds := new(mocks.MockDataSource)
	events := recordEvents(ds, nil)

	ds.On("GetJobByID", mock.Anything, "job_1").Return(pendingJob(), nil)
	ds.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusPending, mock.Anything).
		Return(&model.Job{JobID: "job_1", Status: model.JobStatusProcessing}, nil).Once()
	ds.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusPending, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrConflict, "Job status was updated by another process", nil)).Once()

	svc := newTestService(ds)
	_, err := svc.TransitionJob(context.Background(), "job_1", model.JobTransitionRequest{
		Status: "processing", ExpectedStatus: "pending", Facilitator: testFacilitator,
	})
	require.NoError(t, err)

	_, err = svc.TransitionJob(context.Background(), "job_1", model.JobTransitionRequest{
		Status: "processing", ExpectedStatus: "pending", Facilitator: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
	apiErr, _ := apierror.As(err)
	assert.Equal(t, "Job status was updated by another process", apiErr.Message)

	assert.Equal(t, []model.JobEventType{model.EventStatusChanged, model.EventStatusConflict}, events.types())
	conflict := events.last()
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)
	assert.Equal(t, "job_1", conflict.JobID)
	assert.Equal(t, "0x01", conflict.PaymentID)
	assert.Equal(t, "pending", conflict.Metadata["from"])
	assert.Equal(t, "processing", conflict.Metadata["to"])
}

func TestTransitionJobRejectsIllegalTransitions(t *testing.T) {
	setupTestConfig(t)
	ctx := context.Background()

	t.Run("checked before storage", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		events := recordEvents(ds, nil)
		_, err := newTestService(ds).TransitionJob(ctx, "job_1", model.JobTransitionRequest{
			Status: "processing", ExpectedStatus: "executed", Facilitator: testFacilitator,
		})
		require.Error(t, err)
		apiErr, _ := apierror.As(err)
		assert.Equal(t, "Transition from executed to processing is not allowed", apiErr.Message)
		assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
		ds.AssertNotCalled(t, "GetJobByID", mock.Anything, mock.Anything)
		assert.Equal(t, []model.JobEventType{model.EventStatusConflict}, events.types())
		assert.Equal(t, "job_1", events.last().JobID)
	})

	t.Run("against the stored status", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		events := recordEvents(ds, nil)
		ds.On("GetJobByID", mock.Anything, "job_1").Return(&model.Job{JobID: "job_1", Status: model.JobStatusCancelled}, nil)

		_, err := newTestService(ds).TransitionJob(ctx, "job_1", model.JobTransitionRequest{Status: "failed", FailReason: "reverted"})
		require.Error(t, err)
		apiErr, _ := apierror.As(err)
		assert.Equal(t, "Transition from cancelled to failed is not allowed", apiErr.Message)
		ds.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, model.EventStatusConflict, events.last().EventType)
		assert.Equal(t, "Transition from cancelled to failed is not allowed", events.last().Message)
		assert.Equal(t, "cancelled", events.last().Metadata["from"])
	})

	t.Run("processing cannot be cancelled", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		recordEvents(ds, nil)
		ds.On("GetJobByID", mock.Anything, "job_1").Return(&model.Job{JobID: "job_1", Status: model.JobStatusProcessing}, nil)

		_, err := newTestService(ds).TransitionJob(ctx, "job_1", model.JobTransitionRequest{Status: "cancelled"})
		assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
	})
}

func TestTransitionJobFieldRequirements(t *testing.T) {
	setupTestConfig(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     model.JobTransitionRequest
		message string
	}{
		{"missing status", model.JobTransitionRequest{}, "status is required"},
		{"unknown status", model.JobTransitionRequest{Status: "done"}, `invalid status "done"`},
		{"processing without facilitator", model.JobTransitionRequest{Status: "processing"}, "facilitator address is required for processing status"},
		{"processing with bad facilitator", model.JobTransitionRequest{Status: "processing", Facilitator: "0x123"}, "facilitator address is required for processing status"},
		{"executed without hash", model.JobTransitionRequest{Status: "executed"}, "executedTxHash is required when marking executed"},
		{"failed without reason", model.JobTransitionRequest{Status: "failed", FailReason: "  "}, "failReason is required when marking failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := new(mocks.MockDataSource)
			ds.On("GetJobByID", mock.Anything, "job_1").Return(pendingJob(), nil)

			_, err := newTestService(ds).TransitionJob(ctx, "job_1", tt.req)
			require.Error(t, err)
			apiErr, ok := apierror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))
			ds.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTransitionJobLifecycleColumns(t *testing.T) {
	setupTestConfig(t)
	takenAt := testNow.Add(-time.Minute)
	executedAt := testNow.Add(-30 * time.Second)

	tests := []struct {
		name    string
		current model.Job
		req     model.JobTransitionRequest
		check   func(t *testing.T, u model.JobStatusUpdate)
	}{
		{
			name:    "executed keeps the recorded facilitator",
			current: model.Job{Status: model.JobStatusProcessing, TakenBy: testFacilitator, TakenAt: &takenAt, FailReason: "retrying"},
			req:     model.JobTransitionRequest{Status: "executed", ExecutedTxHash: "0xabc", Facilitator: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"},
			check: func(t *testing.T, u model.JobStatusUpdate) {
				assert.Equal(t, testFacilitator, u.TakenBy)
				assert.Equal(t, &takenAt, u.TakenAt)
				assert.Equal(t, "0xabc", u.ExecutedTxHash)
				require.NotNil(t, u.ExecutedAt)
				assert.Equal(t, testNow, *u.ExecutedAt)
				assert.Empty(t, u.FailReason)
			},
		},
		{
			name:    "executed records a facilitator when none was taken",
			current: model.Job{Status: model.JobStatusPending},
			req:     model.JobTransitionRequest{Status: "executed", ExecutedTxHash: "0xabc", Facilitator: testFacilitator},
			check: func(t *testing.T, u model.JobStatusUpdate) {
				assert.Equal(t, eip3009.ChecksumAddress(testFacilitator), u.TakenBy)
				require.NotNil(t, u.TakenAt)
			},
		},
		{
			name:    "failed clears execution fields",
			current: model.Job{Status: model.JobStatusProcessing, TakenBy: testFacilitator, TakenAt: &takenAt, ExecutedTxHash: "0xabc", ExecutedAt: &executedAt},
			req:     model.JobTransitionRequest{Status: "failed", FailReason: "execution reverted"},
			check: func(t *testing.T, u model.JobStatusUpdate) {
				assert.Equal(t, "execution reverted", u.FailReason)
				assert.Empty(t, u.ExecutedTxHash)
				assert.Nil(t, u.ExecutedAt)
				assert.Equal(t, testFacilitator, u.TakenBy)
			},
		},
		{
			name:    "cancelled takes an optional reason",
			current: model.Job{Status: model.JobStatusPending},
			req:     model.JobTransitionRequest{Status: "cancelled"},
			check: func(t *testing.T, u model.JobStatusUpdate) {
				assert.Equal(t, model.JobStatusCancelled, u.Status)
				assert.Empty(t, u.FailReason)
				assert.Nil(t, u.ExecutedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := new(mocks.MockDataSource)
			recordEvents(ds, nil)
			current := tt.current
			current.JobID = "job_1"

			var update model.JobStatusUpdate
			ds.On("GetJobByID", mock.Anything, "job_1").Return(&current, nil)
			ds.On("UpdateJobStatus", mock.Anything, "job_1", current.Status, mock.Anything).
				Run(func(args mock.Arguments) { update = args.Get(3).(model.JobStatusUpdate) }).
				Return(&model.Job{JobID: "job_1"}, nil)

			_, err := newTestService(ds).TransitionJob(context.Background(), "job_1", tt.req)
			require.NoError(t, err)
			tt.check(t, update)
		})
	}
}
