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

// Package workflow assembles the commands into the two pipelines of the
// application: the inference chain behind Predict and the epoch-based
// TrainingLoop. This file implements the inference workflow.
//
// Chain:
//  1. fetch-weights:   weight URI -> local weight file.
//  2. load-classifier: build the network with a NumClasses head, load the
//     weights, switch to eval mode.
//  3. fetch-video:     video URI -> local path (file or frame directory).
//  4. video-decode:    local path -> RawClip.
//  5. frame-sample:    RawClip -> RawClip with exactly Frames frames.
//  6. clip-preprocess: RawClip -> ClipBatch of one normalized clip.
//  7. forward:         ClipBatch -> softmax probabilities.
//  8. rank:            probabilities -> ClassificationResult.
//
// The chain stops at the first failing command; its error is returned by Predict.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/video"
)

// InferenceWorkflow classifies one clip per Predict call.
type InferenceWorkflow struct {
	cor.BaseCommand
	fetcher      cloud.Fetcher
	decoder      commands.Decoder
	loader       commands.ClassifierLoader
	frames       int
	preprocessor *video.Preprocessor
	chain        cor.Chain
}

// NewInferenceWorkflow builds the inference chain.
//
// Inputs:
//   - config: Supplies the frame count and preprocessing settings.
//   - fetcher: Resolves weight and video URIs to local paths.
//   - decoder: Turns a local path into a RawClip.
//   - loader: Builds and loads the classifier; see NewClipNetLoader.
//
// Outputs:
//   - *InferenceWorkflow: The ready workflow.
//   - error: Invalid preprocessing configuration.
func NewInferenceWorkflow(
	config *cloud.Config,
	fetcher cloud.Fetcher,
	decoder commands.Decoder,
	loader commands.ClassifierLoader) (*InferenceWorkflow, error) {

	frames := config.Model.Frames
	if frames < 1 {
		frames = video.DefaultFrames
	}
	preprocessor, err := video.NewPreprocessor(PreprocessConfig(config))
	if err != nil {
		return nil, err
	}
	out := &InferenceWorkflow{
		BaseCommand:  *cor.NewBaseCommand("inference-workflow"),
		fetcher:      fetcher,
		decoder:      decoder,
		loader:       loader,
		frames:       frames,
		preprocessor: preprocessor,
	}
	out.initializeChain()
	return out, nil
}

func (w *InferenceWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	fetchWeights := commands.NewFetchArtifact("fetch-weights", w.fetcher)
	fetchWeights.WithInput(commands.ParamWeightsURI).WithOutput(commands.ParamWeightsPath)
	out.AddCommand(fetchWeights)

	load := commands.NewLoadClassifier("load-classifier", w.loader)
	load.WithInput(commands.ParamWeightsPath).WithOutput(commands.ParamClassifier)
	out.AddCommand(load)

	fetchVideo := commands.NewFetchArtifact("fetch-video", w.fetcher)
	fetchVideo.WithInput(commands.ParamVideoURI)
	out.AddCommand(fetchVideo)

	out.AddCommand(commands.NewVideoDecode("video-decode", w.decoder))
	out.AddCommand(commands.NewFrameSample("frame-sample", w.frames))
	out.AddCommand(commands.NewClipPreprocess("clip-preprocess", w.preprocessor))
	out.AddCommand(commands.NewForward("forward"))

	rank := commands.NewRank("rank")
	rank.WithOutput(commands.ParamResult)
	out.AddCommand(rank)

	w.chain = out
}

// IsExecutable requires the weight and video URIs on the context.
func (w *InferenceWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil &&
		context.Get(commands.ParamWeightsURI) != nil && context.Get(commands.ParamVideoURI) != nil
}

// Execute runs the chain against a context prepared by the caller.
func (w *InferenceWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Predict runs one request through the chain.
//
// Outputs:
//   - model.ClassificationResult: min(TopK, NumClasses) predictions, most probable first.
//   - error: A *model.WeightLoadError, *model.DecodeError or *model.ShapeError
//     from the failing command, or a request validation error.
func (w *InferenceWorkflow) Predict(ctx context.Context, req model.InferenceRequest) (model.ClassificationResult, error) {
	if req.VideoPath == "" {
		return model.ClassificationResult{}, errors.New("predict: no video path")
	}
	if req.NumClasses < 1 {
		return model.ClassificationResult{}, fmt.Errorf("predict: num classes must be positive, got %d", req.NumClasses)
	}

	chCtx := cor.NewContext(ctx)
	defer chCtx.Close()
	chCtx.Add(commands.ParamWeightsURI, req.WeightsPath)
	chCtx.Add(commands.ParamVideoURI, req.VideoPath)
	chCtx.Add(commands.ParamNumClasses, req.NumClasses)
	chCtx.Add(commands.ParamTopK, req.TopK)
	if req.ClassNames != nil {
		chCtx.Add(commands.ParamClassNames, req.ClassNames)
	}

	w.Execute(chCtx)
	defer closeClassifier(chCtx.Get(commands.ParamClassifier))

	if err := chCtx.Err(); err != nil {
		return model.ClassificationResult{}, err
	}
	result, ok := chCtx.Get(commands.ParamResult).(model.ClassificationResult)
	if !ok {
		return model.ClassificationResult{}, errors.New("predict: chain produced no result")
	}
	return result, nil
}

func closeClassifier(v interface{}) {
	if c, ok := v.(interface{ Close() }); ok {
		c.Close()
	}
}

// PreprocessConfig extracts the preprocessing settings from config, filling
// unset values with the defaults.
func PreprocessConfig(config *cloud.Config) video.PreprocessConfig {
	out := video.DefaultPreprocessConfig()
	if config.Model.Height > 0 {
		out.Height = config.Model.Height
	}
	if config.Model.Width > 0 {
		out.Width = config.Model.Width
	}
	if len(config.Model.Mean) > 0 {
		out.Mean = config.Model.Mean
	}
	if len(config.Model.Std) > 0 {
		out.Std = config.Model.Std
	}
	return out
}

// Architecture returns the ClipNet geometry described by config.
func Architecture(config *cloud.Config, numClasses int) network.Architecture {
	arch := network.DefaultArchitecture(numClasses)
	pre := PreprocessConfig(config)
	arch.Channels = len(pre.Mean)
	arch.Height, arch.Width = pre.Height, pre.Width
	if config.Model.Frames > 0 {
		arch.Frames = config.Model.Frames
	}
	return arch
}

// NewClipNetLoader returns a ClassifierLoader that loads ClipNet weights on device.
func NewClipNetLoader(config *cloud.Config, device *network.Device) commands.ClassifierLoader {
	return func(path string, numClasses int) (network.Classifier, error) {
		return network.LoadClipNet(path, Architecture(config, numClasses), device)
	}
}
