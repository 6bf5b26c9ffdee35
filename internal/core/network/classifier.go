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

// Package network wraps the clip classifier backbone behind a small interface.
// The training loop and the inference chain depend on Classifier only, so they
// can be exercised with a scripted fake and the backbone can be swapped without
// touching either pipeline.
package network

import (
	"math"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// Classifier maps a batch of normalized clips to per-class logits and can be
// trained with explicit gradients.
type Classifier interface {
	// Forward returns one row of NumClasses logits per clip in the batch.
	Forward(batch model.ClipBatch) ([][]float32, error)
	// Backward propagates the gradient of the loss with respect to the logits
	// of the most recent Forward call. It fails in eval mode.
	Backward(gradLogits [][]float32) error
	// Step applies one optimizer update with the accumulated gradients.
	Step(learningRate float32)
	// SetTraining switches between train and eval mode.
	SetTraining(training bool)
	Training() bool
	NumClasses() int
	// Save writes the current weights to path.
	Save(path string) error
}

// CrossEntropy computes the mean softmax cross-entropy of logits against
// integer labels together with its gradient with respect to the logits.
//
// Inputs:
//   - logits: One row per sample.
//   - labels: The true class of each sample.
//
// Outputs:
//   - float64: Mean loss over the batch.
//   - [][]float32: d(mean loss)/d(logits), i.e. (softmax - onehot) / batch.
//   - int: Number of rows whose argmax equals the label.
func CrossEntropy(logits [][]float32, labels []int) (float64, [][]float32, int) {
	batch := len(logits)
	if batch == 0 {
		return 0, nil, 0
	}
	var total float64
	correct := 0
	grads := make([][]float32, batch)
	for i, row := range logits {
		probs := model.Softmax(row)
		label := labels[i]
		// Clamp so a saturated softmax cannot produce +Inf.
		total += -math.Log(math.Max(float64(probs[label]), 1e-12))
		if model.Argmax(row) == label {
			correct++
		}
		grad := make([]float32, len(row))
		for j, p := range probs {
			grad[j] = p / float32(batch)
		}
		grad[label] -= 1 / float32(batch)
		grads[i] = grad
	}
	return total / float64(batch), grads, correct
}
