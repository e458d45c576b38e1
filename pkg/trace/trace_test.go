// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "engine.call")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { RecordError(span, errors.New("boom")) })
}

func TestExtractInject_RoundTrip(t *testing.T) {
	SetupPropagator()

	traceID, _ := oteltrace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := oteltrace.SpanIDFromHex("00f067aa0ba902b7")
	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: oteltrace.FlagsSampled})

	header := http.Header{}
	Inject(oteltrace.ContextWithSpanContext(context.Background(), sc), propagation.HeaderCarrier(header))
	assert.NotEmpty(t, header.Get("traceparent"))

	got := oteltrace.SpanContextFromContext(Extract(context.Background(), propagation.HeaderCarrier(header)))
	assert.Equal(t, traceID, got.TraceID())
}
