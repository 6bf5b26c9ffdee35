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

package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ClassifierLoader builds a classifier with a numClasses head and loads the
// weights at path into it. The result must already be in eval mode.
type ClassifierLoader func(path string, numClasses int) (network.Classifier, error)

// LoadClassifier reads a local weight path from its input and outputs the
// loaded classifier. The head size comes from ParamNumClasses.
type LoadClassifier struct {
	cor.BaseCommand
	load ClassifierLoader
}

func NewLoadClassifier(name string, load ClassifierLoader) *LoadClassifier {
	return &LoadClassifier{BaseCommand: *cor.NewBaseCommand(name), load: load}
}

func (c *LoadClassifier) Execute(context cor.Context) {
	path, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected a weight path, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	numClasses, _ := context.Get(ParamNumClasses).(int)
	if numClasses < 1 {
		c.Fail(context, fmt.Errorf("%s: num classes must be positive, got %d", c.GetName(), numClasses))
		return
	}
	classifier, err := c.load(path, numClasses)
	if err != nil {
		c.Fail(context, err)
		return
	}
	classifier.SetTraining(false)
	slog.InfoContext(context.GetContext(), "loaded weights", "path", path, "num_classes", numClasses)
	c.Succeed(context, classifier)
}

// Forward runs the classifier held under ParamClassifier on the input
// model.ClipBatch and outputs the softmax probabilities of its first row.
type Forward struct {
	cor.BaseCommand
	latency metric.Float64Histogram
}

func NewForward(name string) *Forward {
	out := &Forward{BaseCommand: *cor.NewBaseCommand(name)}
	latency, err := out.GetMeter().Float64Histogram(name+".latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Forward pass latency"))
	if err != nil {
		slog.Warn("failed to create latency histogram", "command", name, "error", err)
	}
	out.latency = latency
	return out
}

func (c *Forward) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamClassifier) != nil
}

func (c *Forward) Execute(context cor.Context) {
	batch, ok := context.Get(c.GetInputParam()).(model.ClipBatch)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected model.ClipBatch, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	classifier := context.Get(ParamClassifier).(network.Classifier)

	start := time.Now()
	logits, err := classifier.Forward(batch)
	if err != nil {
		c.Fail(context, fmt.Errorf("forward pass failed: %w", err))
		return
	}
	if c.latency != nil {
		c.latency.Record(context.GetContext(), float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.Int("num_classes", classifier.NumClasses())))
	}
	if len(logits) == 0 {
		c.Fail(context, fmt.Errorf("forward pass returned no logits"))
		return
	}
	c.Succeed(context, model.Softmax(logits[0]))
}

// Rank turns the input probabilities into a model.ClassificationResult using
// ParamTopK and the optional ParamClassNames table.
type Rank struct {
	cor.BaseCommand
}

func NewRank(name string) *Rank {
	return &Rank{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *Rank) Execute(context cor.Context) {
	probs, ok := context.Get(c.GetInputParam()).([]float32)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected []float32, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	topK, _ := context.Get(ParamTopK).(int)
	names, _ := context.Get(ParamClassNames).([]string)
	videoPath, _ := context.Get(ParamVideoURI).(string)

	c.Succeed(context, model.ClassificationResult{
		VideoPath:   videoPath,
		Predictions: model.TopK(probs, topK, names),
	})
}
