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

package video

import (
	"fmt"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// Kinetics-400 channel statistics, in RGB order.
var (
	DefaultMean = []float32{0.43216, 0.394666, 0.37645}
	DefaultStd  = []float32{0.22803, 0.22145, 0.216989}
)

// Default spatial size of a network input frame.
const (
	DefaultHeight = 112
	DefaultWidth  = 112
)

// PreprocessConfig holds the target frame size and per-channel statistics.
type PreprocessConfig struct {
	Height int       `toml:"height"`
	Width  int       `toml:"width"`
	Mean   []float32 `toml:"mean"`
	Std    []float32 `toml:"std"`
}

// DefaultPreprocessConfig returns the 112x112 Kinetics configuration.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Height: DefaultHeight,
		Width:  DefaultWidth,
		Mean:   append([]float32(nil), DefaultMean...),
		Std:    append([]float32(nil), DefaultStd...),
	}
}

// Validate checks the configuration for internal consistency.
func (c PreprocessConfig) Validate() error {
	if c.Height < 1 || c.Width < 1 {
		return fmt.Errorf("preprocess: invalid target size %dx%d", c.Height, c.Width)
	}
	if len(c.Mean) == 0 || len(c.Mean) != len(c.Std) {
		return fmt.Errorf("preprocess: mean has %d channels, std has %d", len(c.Mean), len(c.Std))
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("preprocess: std[%d] is zero", i)
		}
	}
	return nil
}

// Preprocessor turns sampled uint8 clips into normalized float32 tensors.
type Preprocessor struct {
	cfg PreprocessConfig
}

// NewPreprocessor validates cfg and returns a Preprocessor for it.
func NewPreprocessor(cfg PreprocessConfig) (*Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{cfg: cfg}, nil
}

// Config returns the configuration the preprocessor was built with.
func (p *Preprocessor) Config() PreprocessConfig {
	return p.cfg
}

// Process converts a [T, H, W, C] uint8 clip into a [C, T, h, w] float32 clip.
// Each frame channel is scaled to [0, 1], bilinearly resized to the target
// size, then normalized with the channel mean and std.
//
// Inputs:
//   - clip: A rank-4 clip whose channel count matches the configured statistics.
//
// Outputs:
//   - model.NormalizedClip: A new contiguous tensor.
//   - error: A ShapeError for any other rank, channel count or data length.
func (p *Preprocessor) Process(clip model.RawClip) (model.NormalizedClip, error) {
	if clip.Rank() != model.RawClipRank {
		return model.NormalizedClip{}, &model.ShapeError{Op: "preprocess", Shape: clip.Shape, Want: "rank 4 [T,H,W,C]"}
	}
	if !model.PositiveShape(clip.Shape) {
		return model.NormalizedClip{}, &model.ShapeError{Op: "preprocess", Shape: clip.Shape, Want: "positive dimensions"}
	}
	frames := clip.Shape[model.AxisTime]
	inH, inW := clip.Shape[model.AxisHeight], clip.Shape[model.AxisWidth]
	channels := clip.Shape[model.AxisChannel]
	if channels != len(p.cfg.Mean) {
		return model.NormalizedClip{}, &model.ShapeError{Op: "preprocess", Shape: clip.Shape,
			Want: fmt.Sprintf("%d channels", len(p.cfg.Mean))}
	}
	if len(clip.Data) != model.ShapeProduct(clip.Shape) {
		return model.NormalizedClip{}, &model.ShapeError{Op: "preprocess", Shape: clip.Shape,
			Want: fmt.Sprintf("non-empty frames with %d samples", len(clip.Data))}
	}

	outH, outW := p.cfg.Height, p.cfg.Width
	out := model.NormalizedClip{
		Shape: []int{channels, frames, outH, outW},
		Data:  make([]float32, channels*frames*outH*outW),
	}
	plane := make([]float32, inH*inW)
	rows, cols := resizeTaps(inH, outH), resizeTaps(inW, outW)

	for t := 0; t < frames; t++ {
		frame := clip.Frame(t)
		for c := 0; c < channels; c++ {
			// [T,H,W,C] -> one [H,W] plane of channel c, scaled to [0, 1].
			for i := range plane {
				plane[i] = float32(frame[i*channels+c]) / 255
			}
			// Write straight into the [C,T,h,w] slot of this plane.
			offset := (c*frames + t) * outH * outW
			dst := out.Data[offset : offset+outH*outW]
			resizePlane(plane, inW, dst, outW, rows, cols)
			mean, std := p.cfg.Mean[c], p.cfg.Std[c]
			for i, v := range dst {
				dst[i] = (v - mean) / std
			}
		}
	}
	return out, nil
}

// Transform applies Sample and then Process. It is the single clip pipeline
// used by both the dataset loader and the inference chain.
type Transform struct {
	Frames       int
	Preprocessor *Preprocessor
}

// NewTransform builds a Transform with the given frame count and preprocessing.
func NewTransform(frames int, cfg PreprocessConfig) (*Transform, error) {
	pre, err := NewPreprocessor(cfg)
	if err != nil {
		return nil, err
	}
	if frames < 1 {
		return nil, fmt.Errorf("transform: frame count must be positive, got %d", frames)
	}
	return &Transform{Frames: frames, Preprocessor: pre}, nil
}

// Apply samples clip to the configured frame count and normalizes it.
func (t *Transform) Apply(clip model.RawClip) (model.NormalizedClip, error) {
	sampled, err := Sample(clip, t.Frames)
	if err != nil {
		return model.NormalizedClip{}, err
	}
	return t.Preprocessor.Process(sampled)
}
