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

// Package commands: this file defines EmitReport, which hands an epoch report
// to one ReportSink. The training loop builds one EmitReport per configured
// sink into a chain that continues on failure, so a BigQuery outage does not
// keep the Pub/Sub event or the status tracker from seeing the epoch.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// EmitReport sends the model.EpochReport under ParamReport to its sink.
type EmitReport struct {
	cor.BaseCommand
	sink cloud.ReportSink
}

func NewEmitReport(name string, sink cloud.ReportSink) *EmitReport {
	out := &EmitReport{BaseCommand: *cor.NewBaseCommand(name), sink: sink}
	out.WithInput(ParamReport)
	return out
}

func (c *EmitReport) Execute(context cor.Context) {
	report, ok := context.Get(c.GetInputParam()).(model.EpochReport)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected model.EpochReport, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	if err := c.sink.Emit(context.GetContext(), report); err != nil {
		slog.WarnContext(context.GetContext(), "failed to emit epoch report", "sink", c.GetName(), "epoch", report.Epoch, "error", err)
		c.Fail(context, fmt.Errorf("emit epoch %d: %w", report.Epoch, err))
		return
	}
	c.Succeed(context, report)
}
