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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/paylancer/paylancer/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Job methods

func (m *MockDataSource) CreateJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) FindJob(ctx context.Context, jobID, paymentID string) (*model.Job, error) {
	args := m.Called(ctx, jobID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetAllJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Job), args.Error(1)
}

func (m *MockDataSource) UpdateJobStatus(ctx context.Context, id string, expected model.JobStatus, update model.JobStatusUpdate) (*model.Job, error) {
	args := m.Called(ctx, id, expected, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

// Reservation methods

func (m *MockDataSource) CreateReservation(ctx context.Context, rsv *model.Reservation) (*model.Reservation, error) {
	args := m.Called(ctx, rsv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *MockDataSource) CompleteReservation(ctx context.Context, id, jobID string) error {
	args := m.Called(ctx, id, jobID)
	return args.Error(0)
}

func (m *MockDataSource) FailReservation(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// Job event methods

func (m *MockDataSource) RecordJobEvent(ctx context.Context, event *model.JobEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) GetRecentJobEvents(ctx context.Context, jobID, paymentID string, limit int) ([]model.JobEvent, error) {
	args := m.Called(ctx, jobID, paymentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.JobEvent), args.Error(1)
}

// API key methods

func (m *MockDataSource) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDataSource) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKey), args.Error(1)
}

func (m *MockDataSource) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKey), args.Error(1)
}

func (m *MockDataSource) ListAPIKeys(ctx context.Context, createdBy string) ([]model.APIKey, error) {
	args := m.Called(ctx, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.APIKey), args.Error(1)
}

func (m *MockDataSource) SetAPIKeyRevoked(ctx context.Context, id string, revokedAt *time.Time) (*model.APIKey, error) {
	args := m.Called(ctx, id, revokedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKey), args.Error(1)
}

func (m *MockDataSource) DeleteAPIKey(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) UpdateLastUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Cleanup methods

func (m *MockDataSource) ExpirePendingJobs(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ExpirePendingReservations(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) DeleteTerminalReservations(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}
