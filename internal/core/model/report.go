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

// Package model defines the core data structures for the application.
// This file, `report.go`, contains the persistent record of a training run:
// one EpochReport per completed epoch. Reports are streamed to BigQuery,
// published to Pub/Sub and served by the status API, so the struct carries
// both `bigquery` and `json` tags.
package model

import "time"

// EpochReport summarizes one training epoch and its validation pass.
type EpochReport struct {
	RunId              string    `json:"run_id" bigquery:"run_id"`
	Epoch              int       `json:"epoch" bigquery:"epoch"` // 1-based.
	Epochs             int       `json:"epochs" bigquery:"epochs"`
	Loss               float64   `json:"loss" bigquery:"loss"`         // Mean cross-entropy per training sample.
	Accuracy           float64   `json:"accuracy" bigquery:"accuracy"` // Training accuracy in [0, 1].
	ValidationAccuracy float64   `json:"validation_accuracy" bigquery:"validation_accuracy"`
	TrainSamples       int       `json:"train_samples" bigquery:"train_samples"`
	ValidationSamples  int       `json:"validation_samples" bigquery:"validation_samples"`
	DurationSeconds    float64   `json:"duration_seconds" bigquery:"duration_seconds"`
	CreateDate         time.Time `json:"create_date" bigquery:"create_date"`
}

// RunSummary is the state of a training run as exposed by the status API.
type RunSummary struct {
	RunId     string       `json:"run_id"`
	State     string       `json:"state"` // "pending", "training", "done" or "failed".
	Epoch     int          `json:"epoch"`
	Epochs    int          `json:"epochs"`
	StartedAt time.Time    `json:"started_at"`
	Error     string       `json:"error,omitempty"`
	Latest    *EpochReport `json:"latest,omitempty"`
}

// Run states reported in RunSummary.State.
const (
	RunStatePending  = "pending"
	RunStateTraining = "training"
	RunStateDone     = "done"
	RunStateFailed   = "failed"
)
