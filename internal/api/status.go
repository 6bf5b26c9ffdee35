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

// Package api serves the training status endpoints. The StatusTracker is
// registered with the training loop as both a report sink and a run observer;
// the gin router reads from it on its own goroutine.
package api

import (
	"context"
	"sync"
	"time"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// StatusTracker keeps the state of the current training run in memory.
type StatusTracker struct {
	mu      sync.RWMutex
	summary model.RunSummary
	epochs  []model.EpochReport
	now     func() time.Time
}

// NewStatusTracker returns a tracker in the pending state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		summary: model.RunSummary{State: model.RunStatePending},
		epochs:  make([]model.EpochReport, 0),
		now:     time.Now,
	}
}

// RunStarted resets the tracker for a new run.
func (s *StatusTracker) RunStarted(runID string, epochs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = model.RunSummary{
		RunId:     runID,
		State:     model.RunStateTraining,
		Epochs:    epochs,
		StartedAt: s.now().UTC(),
	}
	s.epochs = make([]model.EpochReport, 0, epochs)
}

// RunFinished marks the run done, or failed when err is non-nil.
func (s *StatusTracker) RunFinished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.summary.State = model.RunStateFailed
		s.summary.Error = err.Error()
		return
	}
	s.summary.State = model.RunStateDone
}

// Emit records a completed epoch.
func (s *StatusTracker) Emit(_ context.Context, report model.EpochReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs = append(s.epochs, report)
	s.summary.Epoch = report.Epoch
	if s.summary.RunId == "" {
		s.summary.RunId = report.RunId
	}
	if s.summary.Epochs == 0 {
		s.summary.Epochs = report.Epochs
	}
	latest := report
	s.summary.Latest = &latest
	return nil
}

// Summary returns a copy of the run summary.
func (s *StatusTracker) Summary() model.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.summary
	if out.Latest != nil {
		latest := *out.Latest
		out.Latest = &latest
	}
	return out
}

// Epochs returns the reports with Epoch greater than since, oldest first.
func (s *StatusTracker) Epochs(since int) []model.EpochReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EpochReport, 0, len(s.epochs))
	for _, r := range s.epochs {
		if r.Epoch > since {
			out = append(out, r)
		}
	}
	return out
}

// Epoch returns the report for a 1-based epoch number.
func (s *StatusTracker) Epoch(epoch int) (model.EpochReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.epochs {
		if r.Epoch == epoch {
			return r, true
		}
	}
	return model.EpochReport{}, false
}
