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

package network_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyArchitecture keeps the loom network small enough for unit tests.
func tinyArchitecture(classes int) network.Architecture {
	return network.Architecture{Channels: 3, Frames: 2, Height: 8, Width: 8, Filters: []int{4}, NumClasses: classes}
}

func tinyBatch(size int, arch network.Architecture) model.ClipBatch {
	data := make([]float32, size*arch.InputLen())
	for i := range data {
		data[i] = float32(i%17)/17 - 0.5
	}
	return model.ClipBatch{Shape: []int{size, arch.Channels, arch.Frames, arch.Height, arch.Width}, Data: data}
}

func cpu(t *testing.T) *network.Device {
	device, err := network.ParseDevice("cpu")
	require.NoError(t, err)
	return &device
}

func TestParseDevice(t *testing.T) {
	device, err := network.ParseDevice("")
	require.NoError(t, err)
	assert.Equal(t, network.DeviceAuto, device.Preference)

	device, err = network.ParseDevice(" CPU ")
	require.NoError(t, err)
	assert.Equal(t, "cpu", device.String())

	_, err = network.ParseDevice("tpu")
	assert.Error(t, err)
}

func TestCrossEntropy(t *testing.T) {
	logits := [][]float32{{0, 0}, {10, 0}}
	loss, grads, correct := network.CrossEntropy(logits, []int{1, 0})

	// Row 0 is ln 2, row 1 is nearly 0.
	assert.InDelta(t, (math.Ln2+math.Log(1+math.Exp(-10)))/2, loss, 1e-5)
	// Argmax of a tie is index 0, so only row 1 is correct.
	assert.Equal(t, 1, correct)
	// Gradient rows sum to zero and are scaled by 1/batch.
	assert.InDelta(t, 0.25, grads[0][0], 1e-6)
	assert.InDelta(t, -0.25, grads[0][1], 1e-6)
	assert.InDelta(t, 0, grads[1][0]+grads[1][1], 1e-6)

	loss, grads, correct = network.CrossEntropy(nil, nil)
	assert.Zero(t, loss)
	assert.Nil(t, grads)
	assert.Zero(t, correct)
}

func TestClipNetForward(t *testing.T) {
	arch := tinyArchitecture(5)
	net, err := network.NewClipNet(arch, cpu(t))
	require.NoError(t, err)
	defer net.Close()

	logits, err := net.Forward(tinyBatch(2, arch))
	require.NoError(t, err)
	require.Len(t, logits, 2)
	assert.Len(t, logits[0], 5)
	assert.Equal(t, 5, net.NumClasses())

	// A clip of the wrong size is a shape error.
	_, err = net.Forward(model.ClipBatch{Shape: []int{1, 3}, Data: []float32{1, 2, 3}})
	var shapeErr *model.ShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestClipNetTrainingStep(t *testing.T) {
	arch := tinyArchitecture(3)
	net, err := network.NewClipNet(arch, cpu(t))
	require.NoError(t, err)
	batch := tinyBatch(2, arch)
	labels := []int{0, 2}

	logits, err := net.Forward(batch)
	require.NoError(t, err)
	_, grads, _ := network.CrossEntropy(logits, labels)
	require.NoError(t, net.Backward(grads))
	net.Step(1e-3)

	after, err := net.Forward(batch)
	require.NoError(t, err)
	assert.NotEqual(t, logits, after)

	// Eval mode refuses to backpropagate.
	net.SetTraining(false)
	assert.False(t, net.Training())
	assert.Error(t, net.Backward(grads))
}

func TestClipNetLearnsOnEveryDevice(t *testing.T) {
	for _, pref := range []string{network.DeviceAuto, network.DeviceCPU, network.DeviceGPU} {
		t.Run(pref, func(t *testing.T) {
			device, err := network.ParseDevice(pref)
			require.NoError(t, err)
			arch := tinyArchitecture(3)
			net, err := network.NewClipNet(arch, &device)
			require.NoError(t, err)
			defer net.Close()
			assert.Equal(t, network.DeviceCPU, device.String())

			batch := tinyBatch(2, arch)
			labels := []int{0, 2}
			var first, last float64
			for i := 0; i < 30; i++ {
				logits, err := net.Forward(batch)
				require.NoError(t, err)
				loss, grads, _ := network.CrossEntropy(logits, labels)
				if i == 0 {
					first = loss
				}
				last = loss
				require.NoError(t, net.Backward(grads))
				net.Step(1e-2)
			}
			assert.Less(t, last, first*0.5)
		})
	}
}

func TestClipNetSaveAndLoad(t *testing.T) {
	arch := tinyArchitecture(4)
	net, err := network.NewClipNet(arch, cpu(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "weights", "clipnet.json")
	require.NoError(t, net.Save(path))

	loaded, err := network.LoadClipNet(path, arch, cpu(t))
	require.NoError(t, err)
	assert.False(t, loaded.Training())

	batch := tinyBatch(1, arch)
	want, err := net.Forward(batch)
	require.NoError(t, err)
	got, err := loaded.Forward(batch)
	require.NoError(t, err)
	for i := range want[0] {
		assert.InDelta(t, want[0][i], got[0][i], 1e-5)
	}

	// A head of a different size does not fit the stored parameters.
	_, err = network.LoadClipNet(path, tinyArchitecture(6), cpu(t))
	var loadErr *model.WeightLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)

	// Neither does a file that is not there.
	_, err = network.LoadClipNet(filepath.Join(t.TempDir(), "missing.json"), arch, cpu(t))
	assert.True(t, errors.As(err, &loadErr))
}
