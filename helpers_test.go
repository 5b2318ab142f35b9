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
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/database/mocks"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/model"
)

const (
	testExecutor    = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testRecipient   = "0x3333333333333333333333333333333333333333"
	testFacilitator = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	usdcPolygon     = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	testPaymentRef  = "order-123"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

func setupTestConfig(t *testing.T) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		ProjectName: "Paylancer",
		Redis:       config.RedisConfig{Dns: "localhost:6379"},
		Executor:    config.ExecutorConfig{ContractAddress: testExecutor},
	})
}

func newTestService(ds *mocks.MockDataSource, opts ...Option) *Paylancer {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(ds, opts...)
}

// signedRequest is a job submission signed by a freshly generated payer.
type signedRequest struct {
	key   *ecdsa.PrivateKey
	payer string
	nonce string
	req   *model.CreateJobRequest
}

type jobParams struct {
	mainAmount  int64
	feeAmount   int64
	validAfter  int64
	validBefore int64
	deadline    int64
}

func defaultJobParams() jobParams {
	now := testNow.Unix()
	return jobParams{
		mainAmount:  1_000_000,
		feeAmount:   1_000,
		validAfter:  now - 120,
		validBefore: now + 600,
		deadline:    now + 540,
	}
}

func newSignedRequest(t *testing.T, p jobParams) *signedRequest {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	nonce := hexutil.Encode(crypto.Keccak256([]byte(payer + time.Now().String())))
	paymentID, err := eip3009.NormalizePaymentID(testPaymentRef)
	require.NoError(t, err)

	mainAmount := big.NewInt(p.mainAmount)
	feeAmount := big.NewInt(p.feeAmount)
	value := new(big.Int).Add(mainAmount, feeAmount)

	authSig := signTyped(t, key, eip3009.BuildAuthorizationTypedData(
		eip3009.TokenDomain{Name: "USD Coin (PoS)", Version: "1", Address: usdcPolygon},
		137,
		eip3009.TransferAuthorization{
			From:        payer,
			To:          testExecutor,
			Value:       value,
			ValidAfter:  big.NewInt(p.validAfter),
			ValidBefore: big.NewInt(p.validBefore),
			Nonce:       nonce,
		},
	))
	bundleSig := signTyped(t, key, eip3009.BuildBundleTypedData(testExecutor, 137, eip3009.BundleMessage{
		Payer:      payer,
		Token:      usdcPolygon,
		Recipient:  testRecipient,
		MainAmount: mainAmount,
		FeeAmount:  feeAmount,
		PaymentID:  paymentID,
		Deadline:   big.NewInt(p.deadline),
	}))

	chainID := json.Number("137")
	return &signedRequest{
		key:   key,
		payer: payer,
		nonce: nonce,
		req: &model.CreateJobRequest{
			ChainID:   &chainID,
			Token:     usdcPolygon,
			Recipient: testRecipient,
			Authorization: &model.AuthorizationRecord{
				From:        payer,
				To:          testExecutor,
				Value:       model.NumericFromBig(value),
				ValidAfter:  model.NumericFromBig(big.NewInt(p.validAfter)),
				ValidBefore: model.NumericFromBig(big.NewInt(p.validBefore)),
				Nonce:       nonce,
				Signature:   authSig,
			},
			Bundle: &model.BundleRecord{
				Payer:      payer,
				Token:      usdcPolygon,
				Recipient:  testRecipient,
				MainAmount: model.NumericFromBig(mainAmount),
				FeeAmount:  model.NumericFromBig(feeAmount),
				PaymentID:  testPaymentRef,
				Deadline:   model.NumericFromBig(big.NewInt(p.deadline)),
			},
			BundleSignature: bundleSig,
			MainAmount:      model.NumericFromBig(mainAmount),
			FeeAmount:       model.NumericFromBig(feeAmount),
		},
	}
}

func signTyped(t *testing.T, key *ecdsa.PrivateKey, td apitypes.TypedData) string {
	t.Helper()
	sig, err := eip3009.SignTypedData(key, td)
	require.NoError(t, err)
	return sig
}

func testPaymentID(t *testing.T) string {
	t.Helper()
	id, err := eip3009.NormalizePaymentID(testPaymentRef)
	require.NoError(t, err)
	return id
}

// eventRecorder collects every audit event the service writes.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func recordEvents(ds *mocks.MockDataSource, err error) *eventRecorder {
	rec := &eventRecorder{}
	ds.On("RecordJobEvent", mock.Anything, mock.AnythingOfType("*model.JobEvent")).
		Run(func(args mock.Arguments) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.events = append(rec.events, *args.Get(1).(*model.JobEvent))
		}).
		Return(err)
	return rec
}

func (r *eventRecorder) types() []model.JobEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JobEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *eventRecorder) last() model.JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// mockVerifier lets tests control signature verification outcomes.
type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyTypedData(ctx context.Context, signer string, typedData apitypes.TypedData, signature string) (bool, error) {
	args := m.Called(ctx, signer, typedData, signature)
	return args.Bool(0), args.Error(1)
}

func (m *mockVerifier) VerifyPersonalMessage(ctx context.Context, address, message, signature string) (bool, error) {
	args := m.Called(ctx, address, message, signature)
	return args.Bool(0), args.Error(1)
}
