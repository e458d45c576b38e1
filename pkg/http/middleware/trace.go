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

package middleware

import (
	"strings"

	"github.com/go-arcade/aps/pkg/trace"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TraceMiddleware opens a server span per request and puts it on the user context.
func TraceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.MapCarrier{}
		c.Request().Header.VisitAll(func(k, v []byte) {
			carrier.Set(strings.ToLower(string(k)), string(v))
		})
		ctx := trace.Extract(c.UserContext(), carrier)

		ctx, span := trace.StartSpan(ctx, "http.server.request", oteltrace.WithSpanKind(oteltrace.SpanKindServer))
		defer span.End()
		trace.AddSpanAttributes(span,
			attribute.String("http.method", c.Method()),
			attribute.String("http.path", c.Path()),
		)

		c.SetUserContext(ctx)
		err := c.Next()

		status := c.Response().StatusCode()
		trace.AddSpanAttributes(span, attribute.Int("http.status_code", status))
		if err != nil {
			trace.RecordError(span, err)
		}
		return err
	}
}
