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

// Package video implements the clip pipeline shared by training and inference:
// uniform temporal sampling to a fixed frame count followed by resizing,
// normalization and axis reordering into the network layout.
//
// Both stages are pure functions of their input. They allocate their output
// and never modify or alias the clip they are given.
package video

import (
	"fmt"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// DefaultFrames is the number of frames fed to the network per clip.
const DefaultFrames = 16

// SampleIndices returns the frame indices Sample picks from a clip of total
// frames. When total >= n the indices are an evenly spaced float32 ramp from 0
// to total-1, truncated toward zero. When total < n every frame is taken once
// and the last index is repeated until there are n entries.
func SampleIndices(total, n int) []int {
	indices := make([]int, n)
	if total < n {
		for i := range indices {
			indices[i] = min(i, total-1)
		}
		return indices
	}
	for i, v := range linspace(0, float32(total-1), n) {
		indices[i] = int(v)
	}
	return indices
}

// linspace mirrors the two-sided float32 evaluation used by common tensor
// libraries: the first half counts up from start, the second half counts down
// from end, so both endpoints are exact.
func linspace(start, end float32, steps int) []float32 {
	out := make([]float32, steps)
	if steps == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float32(steps-1)
	half := steps / 2
	for i := 0; i < steps; i++ {
		if i < half {
			out[i] = start + step*float32(i)
		} else {
			out[i] = end - step*float32(steps-i-1)
		}
	}
	return out
}

// Sample selects exactly n frames from clip.
//
// Inputs:
//   - clip: A [T, H, W, C] clip with T >= 1.
//   - n: The number of frames to keep, n >= 1.
//
// Outputs:
//   - model.RawClip: A new [n, H, W, C] clip. Padded frames are byte copies of the last frame.
//   - error: A ShapeError for a clip that is not rank 4 or has no frames.
func Sample(clip model.RawClip, n int) (model.RawClip, error) {
	if n < 1 {
		return model.RawClip{}, fmt.Errorf("sample: frame count must be positive, got %d", n)
	}
	if clip.Rank() != model.RawClipRank {
		return model.RawClip{}, &model.ShapeError{Op: "sample", Shape: clip.Shape, Want: "rank 4 [T,H,W,C]"}
	}
	total := clip.Frames()
	if total == 0 {
		return model.RawClip{}, &model.ShapeError{Op: "sample", Shape: clip.Shape, Want: "at least one frame"}
	}
	if !model.PositiveShape(clip.Shape) {
		return model.RawClip{}, &model.ShapeError{Op: "sample", Shape: clip.Shape, Want: "positive dimensions"}
	}
	if len(clip.Data) != model.ShapeProduct(clip.Shape) {
		return model.RawClip{}, &model.ShapeError{Op: "sample", Shape: clip.Shape,
			Want: fmt.Sprintf("%d samples, got %d", model.ShapeProduct(clip.Shape), len(clip.Data))}
	}

	out := model.NewRawClip(n, clip.Shape[model.AxisHeight], clip.Shape[model.AxisWidth], clip.Shape[model.AxisChannel])
	for i, src := range SampleIndices(total, n) {
		copy(out.Frame(i), clip.Frame(src))
	}
	return out, nil
}
