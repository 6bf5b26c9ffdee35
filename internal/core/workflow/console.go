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

package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// ConsoleReportSink prints each epoch in the human readable training format:
//
//	Epoch 1/10, Loss: 3.9120, Acc: 0.0312
//	Validation Acc: 0.0417
type ConsoleReportSink struct {
	W io.Writer
}

func (s *ConsoleReportSink) Emit(_ context.Context, report model.EpochReport) error {
	_, err := fmt.Fprintf(s.W, "Epoch %d/%d, Loss: %.4f, Acc: %.4f\nValidation Acc: %.4f\n",
		report.Epoch, report.Epochs, report.Loss, report.Accuracy, report.ValidationAccuracy)
	return err
}
