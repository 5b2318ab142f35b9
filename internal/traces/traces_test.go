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
package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupOTelSDK(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")

	ctx := context.Background()
	shutdown, err := SetupOTelSDK(ctx, "paylancer-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("paylancer.test").Start(ctx, "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// nothing is listening, so the flush is cut short
	flushCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = shutdown(flushCtx)
	assert.NoError(t, shutdown(ctx))
}

func TestNewPropagator(t *testing.T) {
	fields := newPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}
