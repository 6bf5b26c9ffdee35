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

// Package cloud: this file holds the destinations an EpochReport can be sent
// to once an epoch and its validation pass are complete.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// ReportSink receives one EpochReport per completed epoch.
type ReportSink interface {
	Emit(ctx context.Context, report model.EpochReport) error
}

// LogReportSink writes each report as a structured log line.
type LogReportSink struct {
	Logger *slog.Logger // Nil means slog.Default().
}

func (s *LogReportSink) Emit(ctx context.Context, report model.EpochReport) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "epoch complete",
		"run_id", report.RunId,
		"epoch", report.Epoch,
		"epochs", report.Epochs,
		"loss", report.Loss,
		"accuracy", report.Accuracy,
		"validation_accuracy", report.ValidationAccuracy,
		"duration_seconds", report.DurationSeconds,
	)
	return nil
}

// BigQueryReportSink streams each report as one row of the epoch table.
type BigQueryReportSink struct {
	inserter RowInserter
}

// NewBigQueryReportSink wraps inserter, typically
// client.Dataset(ds).Table(t).Inserter() behind a QuotaAwareInserter.
func NewBigQueryReportSink(inserter RowInserter) *BigQueryReportSink {
	return &BigQueryReportSink{inserter: inserter}
}

func (s *BigQueryReportSink) Emit(ctx context.Context, report model.EpochReport) error {
	if err := s.inserter.Put(ctx, report); err != nil {
		return fmt.Errorf("failed to insert epoch %d of run %s: %w", report.Epoch, report.RunId, err)
	}
	return nil
}

// PublishFunc sends one message and blocks until the server acknowledges it.
type PublishFunc func(ctx context.Context, data []byte, attributes map[string]string) error

// TopicPublisher adapts a Pub/Sub topic to a PublishFunc.
func TopicPublisher(topic *pubsub.Topic) PublishFunc {
	return func(ctx context.Context, data []byte, attributes map[string]string) error {
		result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
		_, err := result.Get(ctx)
		return err
	}
}

// PubSubReportSink publishes each report as a JSON message.
type PubSubReportSink struct {
	publish PublishFunc
}

func NewPubSubReportSink(publish PublishFunc) *PubSubReportSink {
	return &PubSubReportSink{publish: publish}
}

func (s *PubSubReportSink) Emit(ctx context.Context, report model.EpochReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal epoch report: %w", err)
	}
	attributes := map[string]string{
		"run_id": report.RunId,
		"epoch":  strconv.Itoa(report.Epoch),
	}
	if err := s.publish(ctx, data, attributes); err != nil {
		return fmt.Errorf("failed to publish epoch %d of run %s: %w", report.Epoch, report.RunId, err)
	}
	return nil
}
