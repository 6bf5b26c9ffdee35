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

// Package cloud: this file builds ServiceClients, the container of every
// external client a command needs. Clients are only created for the services
// the configuration enables, so a purely local run needs no credentials.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
)

// ServiceClients holds the initialized clients.
type ServiceClients struct {
	Fetcher        *ArtifactFetcher
	BiqQueryClient *bigquery.Client // Nil unless a project and epoch table are configured.
	PubsubClient   *pubsub.Client   // Nil unless a project and epoch topic are configured.
	epochTopic     *pubsub.Topic
}

// NewCloudServiceClients creates the clients enabled by config.
//
// Inputs:
//   - ctx: The root context; it bounds the lifetime of the clients.
//   - config: The loaded configuration.
//
// Outputs:
//   - *ServiceClients: The clients.
//   - error: The first client that failed to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clients := &ServiceClients{Fetcher: NewArtifactFetcher(config)}
	project := config.Application.GoogleProjectId

	if project != "" && config.BigQueryDataSource.EpochTable != "" {
		bc, err := bigquery.NewClient(ctx, project)
		if err != nil {
			return nil, fmt.Errorf("failed to create bigquery client: %w", err)
		}
		clients.BiqQueryClient = bc
	}

	if project != "" && config.TopicPublication.EpochTopic != "" {
		pc, err := pubsub.NewClient(ctx, project)
		if err != nil {
			clients.Close()
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		clients.PubsubClient = pc
		clients.epochTopic = pc.Topic(config.TopicPublication.EpochTopic)
	}
	return clients, nil
}

// ReportSinks returns the cloud sinks the configuration enables, in the order
// BigQuery, Pub/Sub.
func (c *ServiceClients) ReportSinks(config *Config) []ReportSink {
	sinks := make([]ReportSink, 0, 2)
	if c.BiqQueryClient != nil {
		table := c.BiqQueryClient.Dataset(config.BigQueryDataSource.DatasetName).Table(config.BigQueryDataSource.EpochTable)
		inserter := NewQuotaAwareInserter(table.Inserter(), config.BigQueryDataSource.InsertsPerSecond)
		sinks = append(sinks, NewBigQueryReportSink(inserter))
	}
	if c.epochTopic != nil {
		sinks = append(sinks, NewPubSubReportSink(TopicPublisher(c.epochTopic)))
	}
	return sinks
}

// Close releases every client.
func (c *ServiceClients) Close() {
	if c.epochTopic != nil {
		c.epochTopic.Stop()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.Fetcher != nil {
		c.Fetcher.Close()
	}
	slog.Debug("closed service clients")
}
