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
// This file, `transient.go`, contains the request and result types of a single
// inference call. They live only for the duration of one Predict invocation and
// are handed between the commands of the inference chain.
package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// InferenceRequest carries the arguments of one prediction.
type InferenceRequest struct {
	VideoPath   string   // Local path, frame directory, gs:// or s3:// URI.
	WeightsPath string   // Local path, gs:// or s3:// URI of the weight bundle.
	NumClasses  int      // Size of the classifier head.
	TopK        int      // Number of ranked predictions to return.
	ClassNames  []string // Optional line-indexed names; nil means fall back to class_<idx>.
}

// Prediction is one ranked entry of a ClassificationResult.
type Prediction struct {
	Rank        int     `json:"rank"` // 1-based.
	Index       int     `json:"index"`
	Probability float32 `json:"probability"`
	Name        string  `json:"name"`
}

// ClassificationResult holds the top-k predictions for one clip, most probable first.
type ClassificationResult struct {
	VideoPath   string       `json:"video_path"`
	Predictions []Prediction `json:"predictions"`
}

// Lines renders the result in the console format, one line per prediction.
func (r ClassificationResult) Lines() []string {
	out := make([]string, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		out = append(out, fmt.Sprintf("Top%d: %s  prob=%.4f  (idx=%d)", p.Rank, p.Name, p.Probability, p.Index))
	}
	return out
}

// String joins Lines with newlines.
func (r ClassificationResult) String() string {
	return strings.Join(r.Lines(), "\n")
}

// Softmax converts logits to probabilities. The maximum logit is subtracted
// first so large logits do not overflow.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// TopK ranks probabilities in descending order and keeps the first k.
// Ties are broken by the lower class index. k is clamped to len(probs);
// a non-positive k yields an empty result.
//
// Inputs:
//   - probs: Per-class probabilities, indexed by class.
//   - k: The requested number of predictions.
//   - names: Optional class-name table; see ResolveName.
//
// Outputs:
//   - []Prediction: Ranked predictions with 1-based ranks.
func TopK(probs []float32, k int, names []string) []Prediction {
	if k > len(probs) {
		k = len(probs)
	}
	if k <= 0 {
		return []Prediction{}
	}
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})
	out := make([]Prediction, k)
	for r := 0; r < k; r++ {
		idx := order[r]
		out[r] = Prediction{
			Rank:        r + 1,
			Index:       idx,
			Probability: probs[idx],
			Name:        ResolveName(names, idx),
		}
	}
	return out
}

// Argmax returns the index of the largest value, preferring the lower index on ties.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
