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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides factory functions for synthetic clips with known
// content. The pipeline tests use them to check sampling and normalization
// against values that can be computed by hand, and the `--dry-run` mode of the
// inference command feeds one through the network to validate a weight file
// without a decoder.
package model

// GetExampleFrameClip creates a clip whose every sample in frame t equals t
// (modulo 256). Sampling such a clip makes the chosen frame indices directly
// visible in the data.
//
// Inputs:
//   - frames, height, width: Clip geometry; channels are always 3.
//
// Outputs:
//   - RawClip: The synthetic clip.
func GetExampleFrameClip(frames, height, width int) RawClip {
	clip := NewRawClip(frames, height, width, 3)
	for t := 0; t < frames; t++ {
		frame := clip.Frame(t)
		for i := range frame {
			frame[i] = uint8(t % 256)
		}
	}
	return clip
}

// GetExampleConstantClip creates a clip filled with a single value.
func GetExampleConstantClip(frames, height, width int, value uint8) RawClip {
	clip := NewRawClip(frames, height, width, 3)
	for i := range clip.Data {
		clip.Data[i] = value
	}
	return clip
}

// GetExampleClassNames returns the first few HMDB51 class names in sorted order.
func GetExampleClassNames() []string {
	return []string{"brush_hair", "cartwheel", "catch"}
}
