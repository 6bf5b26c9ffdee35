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

package main

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/go-action-recognition/internal/core/dataset"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/workflow"
)

const tinyConfig = `
[logging]
level = "error"

[telemetry]
exporter = "none"

[model]
num_classes = 2
frames = 2
height = 8
width = 8
device = "cpu"

[training]
epochs = 2
batch_size = 1
shuffle = false
`

// makeFrameDataset writes a two-class dataset whose videos are frame
// directories, one train and one test video per class.
func makeFrameDataset(t *testing.T) (root, splits string) {
	t.Helper()
	root, splits = t.TempDir(), t.TempDir()
	shades := map[string]uint8{"run": 40, "wave": 200}
	for class, shade := range shades {
		for _, v := range []string{"v1", "v2"} {
			dir := filepath.Join(root, class, v)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			for f := 0; f < 2; f++ {
				img := imaging.New(8, 8, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
				require.NoError(t, imaging.Save(img, filepath.Join(dir, fmt.Sprintf("frame_%03d.png", f))))
			}
		}
		require.NoError(t, os.WriteFile(filepath.Join(splits, dataset.SplitFileName(class, 1)),
			[]byte("v1 1\nv2 2\nmissing 1\n"), 0o644))
	}
	return root, splits
}

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(tinyConfig), 0o644))
	return dir
}

func TestFlagsOverrideConfig(t *testing.T) {
	dir := writeConfigDir(t)
	opts, fs, err := parseFlags([]string{"--config-dir", dir, "--epochs", "7", "--lr", "0.01", "--fold", "3", "--status-addr", ":9090"}, &bytes.Buffer{})
	require.NoError(t, err)
	config, err := loadConfig(opts.configDir, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, config.Training.Epochs)

	opts.apply(fs, config)
	assert.Equal(t, 7, config.Training.Epochs)
	assert.InDelta(t, 0.01, config.Training.LearningRate, 1e-12)
	assert.Equal(t, 3, config.Training.Fold)
	assert.Equal(t, ":9090", config.Training.StatusAddr)
	assert.Equal(t, 1, config.Training.BatchSize)
}

func TestRunTrainsAndSaves(t *testing.T) {
	root, splits := makeFrameDataset(t)
	out := filepath.Join(t.TempDir(), "weights", "hmdb51.json")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"--config-dir", writeConfigDir(t),
		"--data-root", root, "--splits", splits, "--fold", "1",
		"--out", out, "--status-addr", "127.0.0.1:0",
	}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)

	text := stdout.String()
	assert.True(t, strings.HasPrefix(text, "Using device: cpu\n"), text)
	assert.Contains(t, text, "Epoch 1/2, Loss: ")
	assert.Contains(t, text, "Epoch 2/2, Loss: ")
	assert.Equal(t, 2, strings.Count(text, "Validation Acc: "))
	assert.Contains(t, text, "Saved weights to "+out)

	config, err := loadConfig(writeConfigDir(t), "test")
	require.NoError(t, err)
	device, err := network.ParseDevice(network.DeviceCPU)
	require.NoError(t, err)
	net, err := network.LoadClipNet(out, workflow.Architecture(config, 2), &device)
	require.NoError(t, err)
	net.Close()
}

func TestRunClassCountMismatch(t *testing.T) {
	root, splits := makeFrameDataset(t)
	// An empty config directory keeps the 51-class default.
	err := run(context.Background(), []string{
		"--config-dir", t.TempDir(), "--data-root", root, "--splits", splits,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset has 2 classes but model.num_classes is 51")
}

func TestRunBadFold(t *testing.T) {
	root, splits := makeFrameDataset(t)
	err := run(context.Background(), []string{
		"--config-dir", writeConfigDir(t), "--data-root", root, "--splits", splits, "--fold", "4",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}
