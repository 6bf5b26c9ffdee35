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

package network

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/openfluke/loom/nn"
)

// ModelID is the id of the classifier inside a weight bundle.
const ModelID = "clipnet"

// activationLinear falls through every loom activation switch to the identity.
// The classifier head uses it so its outputs are raw logits.
const activationLinear nn.ActivationType = -1

// Architecture describes the ClipNet geometry. The time axis is folded into
// the channel axis, so a [C, T, H, W] clip is read as C*T planes of H x W.
type Architecture struct {
	Channels   int
	Frames     int
	Height     int
	Width      int
	Filters    []int // Output channels of each stride-2 3x3 convolution.
	NumClasses int
}

// DefaultArchitecture is the 3x16x112x112 network used for HMDB51.
func DefaultArchitecture(numClasses int) Architecture {
	return Architecture{
		Channels:   3,
		Frames:     16,
		Height:     112,
		Width:      112,
		Filters:    []int{16, 32, 32},
		NumClasses: numClasses,
	}
}

// InputLen is the number of float32 values in one clip.
func (a Architecture) InputLen() int {
	return a.Channels * a.Frames * a.Height * a.Width
}

// Validate rejects geometries the trunk cannot be built for.
func (a Architecture) Validate() error {
	if a.NumClasses < 1 {
		return fmt.Errorf("num_classes must be positive, got %d", a.NumClasses)
	}
	if a.Channels < 1 || a.Frames < 1 || a.Height < 1 || a.Width < 1 {
		return fmt.Errorf("invalid clip geometry %dx%dx%dx%d", a.Channels, a.Frames, a.Height, a.Width)
	}
	return nil
}

// ClipNet is a loom network: a stack of strided 3x3 convolutions with leaky
// ReLU followed by a linear head of NumClasses logits. Parameters are updated
// with Adam (loom AdamW with zero weight decay).
type ClipNet struct {
	arch     Architecture
	net      *nn.Network
	training bool
	batch    int // Batch size of the most recent Forward.
}

// NewClipNet builds a randomly initialized ClipNet and mounts it on device.
func NewClipNet(arch Architecture, device *Device) (*ClipNet, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	net := build(arch)
	if err := device.mount(net); err != nil {
		return nil, err
	}
	return &ClipNet{arch: arch, net: net, training: true}, nil
}

func build(arch Architecture) *nn.Network {
	layers := len(arch.Filters) + 1
	net := nn.NewNetwork(arch.InputLen(), 1, 1, layers)

	h, w, c := arch.Height, arch.Width, arch.Channels*arch.Frames
	for i, filters := range arch.Filters {
		conv := nn.InitConv2DLayer(h, w, c, 3, 2, 1, filters, nn.ActivationLeakyReLU)
		net.SetLayer(0, 0, i, conv)
		h, w, c = conv.OutputHeight, conv.OutputWidth, filters
	}
	net.SetLayer(0, 0, len(arch.Filters), nn.InitDenseLayer(h*w*c, arch.NumClasses, activationLinear))
	return net
}

// LoadClipNet builds the architecture and replaces its parameters with the
// ones stored in the bundle at path.
//
// Inputs:
//   - path: A loom JSON bundle containing a model with id ModelID.
//   - arch: The architecture the bundle must match, including NumClasses.
//   - device: Where to mount the network.
//
// Outputs:
//   - *ClipNet: The loaded network, in eval mode.
//   - error: A *model.WeightLoadError when the file is missing, unreadable or
//     holds parameters of a different shape.
func LoadClipNet(path string, arch Architecture, device *Device) (*ClipNet, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	net := build(arch)
	if err := loadInto(net, path); err != nil {
		return nil, &model.WeightLoadError{Path: path, Err: err}
	}
	if err := device.mount(net); err != nil {
		return nil, err
	}
	return &ClipNet{arch: arch, net: net, training: false}, nil
}

// loadInto copies the kernels and biases of the bundle into net, layer by
// layer. Activations and geometry stay those of net.
func loadInto(net *nn.Network, path string) error {
	loaded, err := nn.LoadModel(path, ModelID)
	if err != nil {
		return err
	}
	if len(loaded.Layers) != len(net.Layers) {
		return fmt.Errorf("bundle has %d layers, architecture has %d", len(loaded.Layers), len(net.Layers))
	}
	for i := range net.Layers {
		dst, src := &net.Layers[i], loaded.Layers[i]
		if dst.Type != src.Type {
			return fmt.Errorf("layer %d: type mismatch", i)
		}
		if len(dst.Kernel) != len(src.Kernel) {
			return fmt.Errorf("layer %d: kernel has %d values, expected %d", i, len(src.Kernel), len(dst.Kernel))
		}
		if len(dst.Bias) != len(src.Bias) {
			return fmt.Errorf("layer %d: bias has %d values, expected %d", i, len(src.Bias), len(dst.Bias))
		}
		copy(dst.Kernel, src.Kernel)
		copy(dst.Bias, src.Bias)
	}
	return nil
}

// Forward runs the batch through the network.
func (c *ClipNet) Forward(batch model.ClipBatch) ([][]float32, error) {
	size := batch.Size()
	if size == 0 || batch.SampleLen() != c.arch.InputLen() || len(batch.Data) != size*c.arch.InputLen() {
		return nil, &model.ShapeError{Op: "forward", Shape: batch.Shape,
			Want: fmt.Sprintf("[B,%d,%d,%d,%d]", c.arch.Channels, c.arch.Frames, c.arch.Height, c.arch.Width)}
	}
	c.net.BatchSize = size
	out, _ := c.net.ForwardCPU(batch.Data)
	if len(out) != size*c.arch.NumClasses {
		return nil, fmt.Errorf("forward: network returned %d values for %d clips", len(out), size)
	}
	c.batch = size
	logits := make([][]float32, size)
	for i := range logits {
		row := make([]float32, c.arch.NumClasses)
		copy(row, out[i*c.arch.NumClasses:(i+1)*c.arch.NumClasses])
		logits[i] = row
	}
	return logits, nil
}

// Backward propagates gradLogits through the network, filling its gradient buffers.
func (c *ClipNet) Backward(gradLogits [][]float32) error {
	if !c.training {
		return errors.New("backward: network is in eval mode")
	}
	if len(gradLogits) != c.batch {
		return fmt.Errorf("backward: %d gradient rows for a batch of %d", len(gradLogits), c.batch)
	}
	flat := make([]float32, 0, len(gradLogits)*c.arch.NumClasses)
	for _, row := range gradLogits {
		flat = append(flat, row...)
	}
	c.net.BackwardCPU(flat)
	return nil
}

// Step applies one Adam update.
func (c *ClipNet) Step(learningRate float32) {
	c.net.ApplyGradientsAdamW(learningRate, 0.9, 0.999, 0)
}

func (c *ClipNet) SetTraining(training bool) {
	c.training = training
}

func (c *ClipNet) Training() bool {
	return c.training
}

func (c *ClipNet) NumClasses() int {
	return c.arch.NumClasses
}

// Architecture returns the geometry the network was built with.
func (c *ClipNet) Architecture() Architecture {
	return c.arch
}

// Save writes the network to path as a loom bundle, creating parent directories.
func (c *ClipNet) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := c.net.SaveModel(path, ModelID); err != nil {
		return fmt.Errorf("failed to save weights to %s: %w", path, err)
	}
	return nil
}

// Close releases resources held by the network.
func (c *ClipNet) Close() {}
