// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud: this file wraps the BigQuery streaming inserter with a rate
// limiter. Streaming inserts are quota bound per table; the wrapper makes a
// caller wait for a token instead of letting the API reject the row.
package cloud

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RowInserter is the subset of *bigquery.Inserter the sinks use.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// QuotaAwareInserter decorates a RowInserter with a token bucket.
type QuotaAwareInserter struct {
	Inserter  RowInserter
	RateLimit *rate.Limiter
}

// NewQuotaAwareInserter allows up to requestsPerSecond Put calls per second
// with a burst of the same size. A non-positive rate disables limiting.
func NewQuotaAwareInserter(wrapped RowInserter, requestsPerSecond int) *QuotaAwareInserter {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = requestsPerSecond
	}
	return &QuotaAwareInserter{Inserter: wrapped, RateLimit: rate.NewLimiter(limit, burst)}
}

// Put waits for a token, then forwards to the wrapped inserter.
func (q *QuotaAwareInserter) Put(ctx context.Context, src interface{}) error {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return q.Inserter.Put(ctx, src)
}
