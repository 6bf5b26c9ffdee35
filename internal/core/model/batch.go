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
// This file defines the batch variants consumed by the training loop.
//
// A dataset source may deliver either (clips, labels) or (clips, aux, labels),
// where aux is side data (e.g. audio) the classifier ignores. The shape is
// resolved once, at the dataset boundary, by NewBatch. The training loop only
// ever sees the Batch interface.
package model

import "fmt"

// Batch is a mini-batch of labeled clips.
type Batch interface {
	Clips() ClipBatch
	Labels() []int
	Validate() error
}

// LabeledBatch is the two-part batch variant.
type LabeledBatch struct {
	ClipData  ClipBatch
	LabelData []int
}

func (b LabeledBatch) Clips() ClipBatch { return b.ClipData }
func (b LabeledBatch) Labels() []int    { return b.LabelData }

// Validate checks that every clip has exactly one label.
func (b LabeledBatch) Validate() error {
	return validateCounts("LabeledBatch", b.ClipData, b.LabelData)
}

// LabeledBatchWithAux is the three-part batch variant. Aux is carried but unused.
type LabeledBatchWithAux struct {
	ClipData  ClipBatch
	Aux       any
	LabelData []int
}

func (b LabeledBatchWithAux) Clips() ClipBatch { return b.ClipData }
func (b LabeledBatchWithAux) Labels() []int    { return b.LabelData }

func (b LabeledBatchWithAux) Validate() error {
	return validateCounts("LabeledBatchWithAux", b.ClipData, b.LabelData)
}

func validateCounts(kind string, clips ClipBatch, labels []int) error {
	if clips.Size() != len(labels) {
		return &BatchFormatError{
			Type:   kind,
			Length: len(labels),
			Reason: fmt.Sprintf("%d clips but %d labels", clips.Size(), len(labels)),
		}
	}
	return nil
}

// NewBatch resolves a raw tuple into a Batch.
//
// Inputs:
//   - parts: Either (ClipBatch, []int) or (ClipBatch, any, []int).
//
// Outputs:
//   - Batch: The resolved variant.
//   - error: A BatchFormatError naming the observed type and length for any other shape.
func NewBatch(parts ...any) (Batch, error) {
	switch len(parts) {
	case 2:
		clips, ok1 := parts[0].(ClipBatch)
		labels, ok2 := parts[1].([]int)
		if !ok1 || !ok2 {
			return nil, &BatchFormatError{Type: describeParts(parts), Length: 2}
		}
		b := LabeledBatch{ClipData: clips, LabelData: labels}
		return b, b.Validate()
	case 3:
		clips, ok1 := parts[0].(ClipBatch)
		labels, ok2 := parts[2].([]int)
		if !ok1 || !ok2 {
			return nil, &BatchFormatError{Type: describeParts(parts), Length: 3}
		}
		b := LabeledBatchWithAux{ClipData: clips, Aux: parts[1], LabelData: labels}
		return b, b.Validate()
	default:
		return nil, &BatchFormatError{Type: describeParts(parts), Length: len(parts)}
	}
}

func describeParts(parts []any) string {
	out := "("
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%T", p)
	}
	return out + ")"
}
