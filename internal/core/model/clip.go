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
// This file, `clip.go`, contains the tensor-like containers that flow through
// the video pipeline. They are transient: a clip is created per inference call
// or per training batch and discarded once the forward pass has consumed it.
//
// Layouts:
//   - RawClip: uint8 samples laid out as [T, H, W, C] (frames, rows, columns, channels).
//   - NormalizedClip: float32 samples laid out as [C, T, H, W].
//   - ClipBatch: float32 samples laid out as [B, C, T, H, W].
//
// All data slices are row-major and contiguous. Each pipeline stage allocates
// its own output; no stage aliases the buffer of the stage before it.
package model

import "fmt"

// Axis positions of a RawClip shape.
const (
	AxisTime    = 0
	AxisHeight  = 1
	AxisWidth   = 2
	AxisChannel = 3
)

// RawClipRank is the only rank accepted for decoded clips.
const RawClipRank = 4

// RawClip is a decoded video clip as produced by a decoder. Shape is kept as a
// slice, rather than fixed fields, so that malformed decoder output can be
// represented and rejected with a ShapeError.
type RawClip struct {
	Shape []int   // Expected [T, H, W, C].
	Data  []uint8 // Row-major samples; len(Data) == product(Shape).
}

// NewRawClip allocates a zeroed RawClip of the given geometry.
func NewRawClip(frames, height, width, channels int) RawClip {
	return RawClip{
		Shape: []int{frames, height, width, channels},
		Data:  make([]uint8, frames*height*width*channels),
	}
}

// Rank returns the number of axes in the clip.
func (c RawClip) Rank() int {
	return len(c.Shape)
}

// Frames returns the length of the time axis, or 0 for a clip with no axes.
func (c RawClip) Frames() int {
	if len(c.Shape) == 0 {
		return 0
	}
	return c.Shape[AxisTime]
}

// FrameSize is the number of samples in one frame (H*W*C). It assumes a rank-4 clip.
func (c RawClip) FrameSize() int {
	return c.Shape[AxisHeight] * c.Shape[AxisWidth] * c.Shape[AxisChannel]
}

// Frame returns the samples of frame t. The returned slice aliases the clip.
func (c RawClip) Frame(t int) []uint8 {
	size := c.FrameSize()
	return c.Data[t*size : (t+1)*size]
}

// String renders the clip geometry, e.g. "RawClip[16 240 320 3]".
func (c RawClip) String() string {
	return fmt.Sprintf("RawClip%v", c.Shape)
}

// NormalizedClip is the network-ready tensor for one clip, laid out as
// [C, T, H, W] in float32.
type NormalizedClip struct {
	Shape []int
	Data  []float32
}

// DType reports the element type of the normalized tensor.
func (c NormalizedClip) DType() string {
	return "float32"
}

// At returns the sample at (channel, frame, y, x).
func (c NormalizedClip) At(ch, t, y, x int) float32 {
	frames, height, width := c.Shape[1], c.Shape[2], c.Shape[3]
	return c.Data[((ch*frames+t)*height+y)*width+x]
}

// Len is the number of float32 samples in the clip.
func (c NormalizedClip) Len() int {
	return len(c.Data)
}

// ClipBatch stacks normalized clips along a leading batch axis: [B, C, T, H, W].
type ClipBatch struct {
	Shape []int
	Data  []float32
}

// Size returns the batch dimension.
func (b ClipBatch) Size() int {
	if len(b.Shape) == 0 {
		return 0
	}
	return b.Shape[0]
}

// SampleLen is the number of float32 values per batch element.
func (b ClipBatch) SampleLen() int {
	if b.Size() == 0 {
		return 0
	}
	return len(b.Data) / b.Size()
}

// Sample returns the flattened [C, T, H, W] data of element i. The slice aliases the batch.
func (b ClipBatch) Sample(i int) []float32 {
	n := b.SampleLen()
	return b.Data[i*n : (i+1)*n]
}

// Stack copies clips into a new ClipBatch. All clips must share one shape.
//
// Inputs:
//   - clips: The normalized clips to stack, in batch order.
//
// Outputs:
//   - ClipBatch: A batch whose shape is [len(clips)] + clips[0].Shape.
//   - error: A ShapeError when the clips disagree on shape or the list is empty.
func Stack(clips ...NormalizedClip) (ClipBatch, error) {
	if len(clips) == 0 {
		return ClipBatch{}, &ShapeError{Op: "stack", Shape: nil, Want: "at least one clip"}
	}
	first := clips[0]
	out := ClipBatch{
		Shape: append([]int{len(clips)}, first.Shape...),
		Data:  make([]float32, 0, len(clips)*len(first.Data)),
	}
	for _, c := range clips {
		if !sameShape(c.Shape, first.Shape) {
			return ClipBatch{}, &ShapeError{Op: "stack", Shape: c.Shape, Want: fmt.Sprint(first.Shape)}
		}
		out.Data = append(out.Data, c.Data...)
	}
	return out, nil
}

// Unsqueeze adds a leading batch dimension of size 1.
func Unsqueeze(clip NormalizedClip) ClipBatch {
	data := make([]float32, len(clip.Data))
	copy(data, clip.Data)
	return ClipBatch{Shape: append([]int{1}, clip.Shape...), Data: data}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PositiveShape reports whether every dimension of shape is at least 1.
func PositiveShape(shape []int) bool {
	for _, d := range shape {
		if d < 1 {
			return false
		}
	}
	return len(shape) > 0
}

// ShapeProduct multiplies the dimensions of a shape; an empty shape has product 0.
func ShapeProduct(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}
