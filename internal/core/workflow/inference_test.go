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

package workflow_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/workflow"
	test "github.com/jaycherian/go-action-recognition/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

// smallConfig shrinks the clip geometry so real networks stay fast.
func smallConfig() *cloud.Config {
	c := *config
	c.Model.Frames = 2
	c.Model.Height = 8
	c.Model.Width = 8
	return &c
}

// descendingLoader returns a fake classifier whose logit for class i is -i.
func descendingLoader(loaded *[]string) commands.ClassifierLoader {
	return func(path string, numClasses int) (network.Classifier, error) {
		if loaded != nil {
			*loaded = append(*loaded, path)
		}
		c := test.NewFakeClassifier(numClasses)
		c.Logits = func([]float32) []float32 {
			row := make([]float32, numClasses)
			for i := range row {
				row[i] = -float32(i)
			}
			return row
		}
		return c, nil
	}
}

func newDecoder() *test.FakeDecoder {
	return &test.FakeDecoder{Clips: map[string]model.RawClip{
		"clip.avi": model.GetExampleFrameClip(5, 10, 12),
	}}
}

func TestPredictResolvesNamesFromFile(t *testing.T) {
	traceContext, span := tracer.Start(ctx, "predict-names-test")
	defer span.End()

	namesFile := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(namesFile, []byte("brush_hair\n\ncartwheel\ncatch\n"), 0o644))
	names, err := model.LoadClassNames(namesFile)
	require.NoError(t, err)
	assert.Equal(t, model.GetExampleClassNames(), names)

	var loaded []string
	wf, err := workflow.NewInferenceWorkflow(smallConfig(), &test.FakeFetcher{}, newDecoder(), descendingLoader(&loaded))
	require.NoError(t, err)

	result, err := wf.Predict(traceContext, model.InferenceRequest{
		VideoPath:   "clip.avi",
		WeightsPath: "weights.json",
		NumClasses:  51,
		TopK:        5,
		ClassNames:  names,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	require.NoError(t, err)

	assert.Equal(t, []string{"weights.json"}, loaded)
	require.Len(t, result.Predictions, 5)
	wantNames := []string{"brush_hair", "cartwheel", "catch", "class_3", "class_4"}
	for i, p := range result.Predictions {
		assert.Equal(t, i+1, p.Rank)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, wantNames[i], p.Name)
	}
	assert.Equal(t, fmt.Sprintf("Top4: class_3  prob=%.4f  (idx=3)", result.Predictions[3].Probability), result.Lines()[3])
}

func TestPredictWithoutNames(t *testing.T) {
	names, err := model.LoadClassNames(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Nil(t, names)

	wf, err := workflow.NewInferenceWorkflow(smallConfig(), &test.FakeFetcher{}, newDecoder(), descendingLoader(nil))
	require.NoError(t, err)
	result, err := wf.Predict(ctx, model.InferenceRequest{
		VideoPath: "clip.avi", WeightsPath: "w.json", NumClasses: 3, TopK: 5, ClassNames: names,
	})
	require.NoError(t, err)

	// k is capped by the number of classes.
	require.Len(t, result.Predictions, 3)
	for i, p := range result.Predictions {
		assert.Equal(t, "class_"+string(rune('0'+i)), p.Name)
	}
	var total float32
	for _, p := range result.Predictions {
		total += p.Probability
	}
	assert.InDelta(t, 1, total, 1e-5)
}

func TestPredictErrors(t *testing.T) {
	wf, err := workflow.NewInferenceWorkflow(smallConfig(), &test.FakeFetcher{}, newDecoder(), descendingLoader(nil))
	require.NoError(t, err)

	_, err = wf.Predict(ctx, model.InferenceRequest{WeightsPath: "w.json", NumClasses: 3})
	assert.Error(t, err)
	_, err = wf.Predict(ctx, model.InferenceRequest{VideoPath: "clip.avi", WeightsPath: "w.json"})
	assert.Error(t, err)

	_, err = wf.Predict(ctx, model.InferenceRequest{VideoPath: "other.avi", WeightsPath: "w.json", NumClasses: 3, TopK: 1})
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	failing := func(path string, _ int) (network.Classifier, error) {
		return nil, &model.WeightLoadError{Path: path, Err: os.ErrNotExist}
	}
	decoder := newDecoder()
	wf, err = workflow.NewInferenceWorkflow(smallConfig(), &test.FakeFetcher{}, decoder, failing)
	require.NoError(t, err)
	_, err = wf.Predict(ctx, model.InferenceRequest{VideoPath: "clip.avi", WeightsPath: "w.json", NumClasses: 3, TopK: 1})
	var loadErr *model.WeightLoadError
	assert.True(t, errors.As(err, &loadErr))
	// The chain stops before the video is touched.
	assert.Empty(t, decoder.Calls)
}

func TestInferenceWorkflowIsExecutable(t *testing.T) {
	wf, err := workflow.NewInferenceWorkflow(smallConfig(), &test.FakeFetcher{}, newDecoder(), descendingLoader(nil))
	require.NoError(t, err)

	chCtx := cor.NewContext(ctx)
	defer chCtx.Close()
	assert.False(t, wf.IsExecutable(chCtx))
	chCtx.Add(commands.ParamWeightsURI, "w.json")
	chCtx.Add(commands.ParamVideoURI, "clip.avi")
	assert.True(t, wf.IsExecutable(chCtx))
}

func TestPredictWithClipNet(t *testing.T) {
	cfg := smallConfig()
	device, err := network.ParseDevice(network.DeviceCPU)
	require.NoError(t, err)

	net, err := network.NewClipNet(workflow.Architecture(cfg, 51), &device)
	require.NoError(t, err)
	weights := filepath.Join(t.TempDir(), "action_recognition_hmdb51.json")
	require.NoError(t, net.Save(weights))
	net.Close()

	wf, err := workflow.NewInferenceWorkflow(cfg, &test.FakeFetcher{}, newDecoder(), workflow.NewClipNetLoader(cfg, &device))
	require.NoError(t, err)
	result, err := wf.Predict(ctx, model.InferenceRequest{
		VideoPath: "clip.avi", WeightsPath: weights, NumClasses: 51, TopK: 5,
	})
	require.NoError(t, err)
	require.Len(t, result.Predictions, 5)
	for i := 1; i < len(result.Predictions); i++ {
		assert.GreaterOrEqual(t, result.Predictions[i-1].Probability, result.Predictions[i].Probability)
	}

	// A weight file trained for another head size is rejected.
	_, err = wf.Predict(ctx, model.InferenceRequest{
		VideoPath: "clip.avi", WeightsPath: weights, NumClasses: 10, TopK: 5,
	})
	var loadErr *model.WeightLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestArchitectureFollowsConfig(t *testing.T) {
	arch := workflow.Architecture(smallConfig(), 7)
	assert.Equal(t, 3, arch.Channels)
	assert.Equal(t, 2, arch.Frames)
	assert.Equal(t, 8, arch.Height)
	assert.Equal(t, 7, arch.NumClasses)
}
