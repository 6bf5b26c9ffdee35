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

// Package test provides shared helpers for the package tests: cached test
// configuration, a scripted Classifier, an in-memory Decoder and a recording
// ReportSink. None of them touch the network, a GPU or ffmpeg.
package test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// StateManager caches the test configuration across tests of one package.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// SetupOS points the config loader at the test configuration
// (`configs/.env.test.toml`, relative to the package under test).
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once and returns the cached copy.
// Missing files leave the built-in defaults in place.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// FakeClassifier is a scripted network.Classifier. Logits decides the output
// row of each sample; when nil every row is all zeros.
type FakeClassifier struct {
	Classes    int
	Logits     func(sample []float32) []float32
	ForwardErr error
	SaveErr    error

	training      bool
	ForwardCalls  int
	BackwardCalls int
	Steps         int
	LastLR        float32
	Grads         [][][]float32 // One entry per Backward call.
	SavedTo       []string
}

func NewFakeClassifier(classes int) *FakeClassifier {
	return &FakeClassifier{Classes: classes}
}

func (f *FakeClassifier) Forward(batch model.ClipBatch) ([][]float32, error) {
	f.ForwardCalls++
	if f.ForwardErr != nil {
		return nil, f.ForwardErr
	}
	out := make([][]float32, batch.Size())
	for i := range out {
		if f.Logits != nil {
			out[i] = f.Logits(batch.Sample(i))
		} else {
			out[i] = make([]float32, f.Classes)
		}
	}
	return out, nil
}

func (f *FakeClassifier) Backward(gradLogits [][]float32) error {
	if !f.training {
		return errors.New("backward called in eval mode")
	}
	f.BackwardCalls++
	f.Grads = append(f.Grads, gradLogits)
	return nil
}

func (f *FakeClassifier) Step(learningRate float32) {
	f.Steps++
	f.LastLR = learningRate
}

func (f *FakeClassifier) SetTraining(training bool) { f.training = training }
func (f *FakeClassifier) Training() bool            { return f.training }
func (f *FakeClassifier) NumClasses() int           { return f.Classes }

func (f *FakeClassifier) Save(path string) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.SavedTo = append(f.SavedTo, path)
	return os.WriteFile(path, []byte(fmt.Sprintf(`{"classes":%d}`, f.Classes)), 0o644)
}

// FakeDecoder serves clips from memory by path.
type FakeDecoder struct {
	Clips map[string]model.RawClip
	Calls []string
}

func (d *FakeDecoder) Decode(_ context.Context, path string) (model.RawClip, error) {
	d.Calls = append(d.Calls, path)
	clip, ok := d.Clips[path]
	if !ok {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: os.ErrNotExist}
	}
	return clip, nil
}

// RecordingSink keeps every report it receives.
type RecordingSink struct {
	mu      sync.Mutex
	Reports []model.EpochReport
	Err     error
}

func (s *RecordingSink) Emit(_ context.Context, report model.EpochReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reports = append(s.Reports, report)
	return s.Err
}

// FakeFetcher resolves URIs through a fixed table; unknown URIs pass through.
type FakeFetcher struct {
	Paths map[string]string
	Err   error
}

func (f *FakeFetcher) Fetch(_ context.Context, uri string) (string, bool, error) {
	if f.Err != nil {
		return "", false, f.Err
	}
	if local, ok := f.Paths[uri]; ok {
		return local, true, nil
	}
	return uri, false, nil
}
