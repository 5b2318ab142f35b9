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
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paylancer/paylancer/database/mocks"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/executor"
	"github.com/paylancer/paylancer/model"
)

var (
	storedR         = "0x" + strings.Repeat("ab", 32)
	storedS         = "0x" + strings.Repeat("cd", 32)
	storedPaymentID = "0x" + strings.Repeat("12", 32)
	storedNonce     = "0x" + strings.Repeat("01", 32)
	storedBundleSig = "0x" + strings.Repeat("ef", 65)
)

func storedJob() *model.Job {
	now := testNow.Unix()
	deadline := now + 540
	return &model.Job{
		JobID:     "job_1",
		ChainID:   137,
		Token:     usdcPolygon,
		Recipient: testRecipient,
		Status:    model.JobStatusPending,
		AuthorizationPayload: &model.AuthorizationRecord{
			From:        "0x1111111111111111111111111111111111111111",
			To:          testExecutor,
			Value:       "1001000",
			ValidAfter:  model.NumericFromBig(big.NewInt(now - 120)),
			ValidBefore: model.NumericFromBig(big.NewInt(now + 600)),
			Nonce:       storedNonce,
			Signature:   storedR + strings.TrimPrefix(storedS, "0x") + "1c",
		},
		BundleSignature: storedBundleSig,
		BundleDeadline:  &deadline,
		PaymentID:       storedPaymentID,
		MainAmount:      "1000000",
		FeeAmount:       "1000",
	}
}

func TestNormalizeJobExecutionUnifiedShape(t *testing.T) {
	n, err := NormalizeJobExecution(storedJob())
	require.NoError(t, err)

	args := n.Args()
	assert.Equal(t, storedPaymentID, args.PaymentID)
	assert.Equal(t, usdcPolygon, args.Token)
	assert.Equal(t, testRecipient, args.Recipient)
	assert.Equal(t, uint8(28), args.Authorization.V)
	assert.Equal(t, storedR, args.Authorization.R)
	assert.Equal(t, storedS, args.Authorization.S)
	assert.Equal(t, model.Numeric("1001000"), args.Authorization.Value)
	assert.Equal(t, model.Numeric("1000000"), args.MainAmount)
	assert.Equal(t, model.Numeric("1000"), args.FeeAmount)
	assert.Equal(t, model.NumericFromBig(big.NewInt(testNow.Unix()+540)), args.Deadline)
	assert.Equal(t, storedBundleSig, args.BundleSignature)
}

func TestNormalizeJobExecutionLegacyShape(t *testing.T) {
	now := testNow.Unix()
	job := &model.Job{
		JobID:         "job_legacy",
		ChainID:       137,
		Token:         usdcPolygon,
		Status:        model.JobStatusPending,
		X402PaymentID: "x402-abc",
		Main: &model.AuthorizationRecord{
			From:        "0x1111111111111111111111111111111111111111",
			To:          testExecutor,
			Value:       "1001000",
			ValidAfter:  "0",
			ValidBefore: model.NumericFromBig(big.NewInt(now + 600)),
			Nonce:       strings.ToUpper(storedNonce[2:]),
			V:           "1",
			R:           storedR,
			S:           storedS,
		},
		Bundle: &model.BundleRecord{
			Recipient:  testRecipient,
			MainAmount: "1000000",
			FeeAmount:  "1000",
			Deadline:   model.NumericFromBig(big.NewInt(now + 300)),
			Signature:  storedBundleSig,
		},
	}
	job.Main.Nonce = "0x" + job.Main.Nonce

	n, err := NormalizeJobExecution(job)
	require.NoError(t, err)

	assert.Equal(t, uint8(28), n.V)
	assert.Equal(t, storedNonce, n.Nonce)
	assert.Equal(t, testRecipient, n.Recipient)
	assert.Equal(t, big.NewInt(now+300), n.Deadline)
	assert.Equal(t, storedBundleSig, n.BundleSignature)
	assert.True(t, strings.HasPrefix(n.PaymentID, "0x"+hexutil.Encode([]byte("x402-abc"))[2:]))
	assert.Len(t, n.PaymentID, 66)
}

func TestNormalizeJobExecutionRejectsBrokenJobs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j *model.Job)
		message string
	}{
		{"no authorization", func(j *model.Job) { j.AuthorizationPayload = nil }, "job has no authorization payload"},
		{"value mismatch", func(j *model.Job) { j.AuthorizationPayload.Value = "1001001" }, "authorization value does not equal main+fee amounts"},
		{"missing signature", func(j *model.Job) { j.AuthorizationPayload.Signature = "" }, "authorization signature is missing"},
		{"missing bundle signature", func(j *model.Job) { j.BundleSignature = "" }, "bundle signature must be 65 bytes"},
		{"missing deadline", func(j *model.Job) { j.BundleDeadline = nil }, "bundle deadline is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := storedJob()
			tt.mutate(job)

			_, err := NormalizeJobExecution(job)
			require.Error(t, err)
			apiErr, ok := apierror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestValidateBeforeExecution(t *testing.T) {
	base, err := NormalizeJobExecution(storedJob())
	require.NoError(t, err)
	now := testNow.Unix()

	tests := []struct {
		name    string
		now     int64
		mutate  func(n *NormalizedExecution)
		message string
	}{
		{"live", now, nil, ""},
		{"authorization expired", now + 600, nil, "authorization has expired"},
		{"deadline passed while pending", now + 540, nil, "bundle deadline has passed"},
		{"not yet valid", now - 121, nil, "authorization is not yet valid"},
		{"zero main amount", now, func(n *NormalizedExecution) { n.MainAmount = big.NewInt(0) }, "main amount must be greater than zero"},
		{"zero fee amount", now, func(n *NormalizedExecution) { n.FeeAmount = big.NewInt(0) }, "fee amount must be greater than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := *base
			if tt.mutate != nil {
				tt.mutate(&n)
			}
			err := ValidateBeforeExecution(&n, tt.now)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			apiErr, _ := apierror.As(err)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestPrepareExecution(t *testing.T) {
	setupTestConfig(t)
	ctx := context.Background()

	t.Run("encodes the executor call", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("GetJobByID", mock.Anything, "job_1").Return(storedJob(), nil)

		plan, err := newTestService(ds).PrepareExecution(ctx, "job_1")
		require.NoError(t, err)

		method := executor.ABI().Methods[executor.MethodExecuteAuthorizedTransfer]
		assert.True(t, strings.HasPrefix(plan.Calldata, hexutil.Encode(method.ID)))
		assert.Equal(t, testExecutor, plan.Executor)
		assert.Equal(t, int64(137), plan.ChainID)
		assert.Equal(t, storedPaymentID, plan.Args.PaymentID)
	})

	t.Run("pending job past its validity window", func(t *testing.T) {
		ds := new(mocks.MockDataSource)
		ds.On("GetJobByID", mock.Anything, "job_1").Return(storedJob(), nil)
		late := testNow.Add(10 * time.Minute)

		_, err := New(ds, WithClock(func() time.Time { return late })).PrepareExecution(ctx, "job_1")
		require.Error(t, err)
		apiErr, _ := apierror.As(err)
		assert.Equal(t, "authorization has expired", apiErr.Message)
		assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))
	})

	t.Run("terminal job", func(t *testing.T) {
		job := storedJob()
		job.Status = model.JobStatusExecuted
		ds := new(mocks.MockDataSource)
		ds.On("GetJobByID", mock.Anything, "job_1").Return(job, nil)

		_, err := newTestService(ds).PrepareExecution(ctx, "job_1")
		assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
	})
}
