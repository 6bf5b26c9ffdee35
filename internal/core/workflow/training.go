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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/dataset"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// TrainingConfig is the explicit configuration of one TrainingLoop.
type TrainingConfig struct {
	Epochs             int
	LearningRate       float64
	OutputWeights      string  // Local path or object URI; empty skips saving.
	ProgressLogsPerSec float64 // Batch progress log rate; zero or less disables them.
	RunId              string  // Empty draws a random UUID.
}

// TrainingConfigFrom reads the training section of config.
func TrainingConfigFrom(config *cloud.Config) TrainingConfig {
	return TrainingConfig{
		Epochs:             config.Training.Epochs,
		LearningRate:       config.Training.LearningRate,
		OutputWeights:      config.Training.OutputWeights,
		ProgressLogsPerSec: config.Training.ProgressLogsPerSec,
	}
}

// RunObserver is told when a run starts and ends. Sinks that also implement
// it, such as the status tracker, are notified automatically.
type RunObserver interface {
	RunStarted(runID string, epochs int)
	RunFinished(err error)
}

// TrainingLoop trains a Classifier for a fixed number of epochs. Each epoch
// is a training pass followed by a full validation pass; there is no early
// stopping. The loop is the only writer of the classifier's parameters.
type TrainingLoop struct {
	cfg        TrainingConfig
	classifier network.Classifier
	sinks      []cloud.ReportSink
	observers  []RunObserver
	reports    cor.Chain
	progress   *rate.Limiter
	uploader   cloud.Uploader
	tracer     trace.Tracer
	now        func() time.Time
}

// NewTrainingLoop creates a loop over classifier. Every epoch report is sent
// to each sink in order; a failing sink is logged and does not stop training.
func NewTrainingLoop(cfg TrainingConfig, classifier network.Classifier, sinks ...cloud.ReportSink) *TrainingLoop {
	l := &TrainingLoop{
		cfg:        cfg,
		classifier: classifier,
		sinks:      sinks,
		tracer:     otel.Tracer("training-loop"),
		now:        time.Now,
	}
	if cfg.ProgressLogsPerSec > 0 {
		l.progress = rate.NewLimiter(rate.Limit(cfg.ProgressLogsPerSec), 1)
	}

	chain := cor.NewBaseChain("emit-epoch-report")
	chain.ContinueOnFailure(true)
	for i, sink := range sinks {
		chain.AddCommand(commands.NewEmitReport(fmt.Sprintf("report-sink-%d", i), sink))
		if o, ok := sink.(RunObserver); ok {
			l.observers = append(l.observers, o)
		}
	}
	l.reports = chain
	return l
}

// WithUploader sets the uploader used when OutputWeights is an object URI.
func (l *TrainingLoop) WithUploader(uploader cloud.Uploader) *TrainingLoop {
	l.uploader = uploader
	return l
}

// Run trains for cfg.Epochs epochs and saves the weights.
//
// Inputs:
//   - ctx: Checked between batches; cancellation aborts the run.
//   - train: The training set, reset at the start of every epoch.
//   - validation: The validation set, reset at the start of every pass.
//
// Outputs:
//   - []model.EpochReport: One report per completed epoch.
//   - error: model.ErrEmptyDataset, a *model.BatchFormatError, a classifier
//     failure or a save failure. The reports completed so far are returned
//     alongside the error.
func (l *TrainingLoop) Run(ctx context.Context, train, validation dataset.BatchSource) (reports []model.EpochReport, err error) {
	if l.cfg.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", l.cfg.Epochs)
	}
	runID := l.cfg.RunId
	if runID == "" {
		runID = uuid.NewString()
	}
	for _, o := range l.observers {
		o.RunStarted(runID, l.cfg.Epochs)
	}
	defer func() {
		for _, o := range l.observers {
			o.RunFinished(err)
		}
	}()

	ctx, span := l.tracer.Start(ctx, "training-run", trace.WithAttributes(
		attribute.String("run_id", runID), attribute.Int("epochs", l.cfg.Epochs)))
	defer span.End()
	slog.InfoContext(ctx, "starting training run", "run_id", runID, "epochs", l.cfg.Epochs,
		"train_samples", train.Len(), "validation_samples", validation.Len())

	for epoch := 1; epoch <= l.cfg.Epochs; epoch++ {
		report, err := l.runEpoch(ctx, runID, epoch, train, validation)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return reports, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		reports = append(reports, report)
		l.emit(ctx, report)
	}

	if err := l.save(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reports, err
	}
	span.SetStatus(codes.Ok, "")
	return reports, nil
}

func (l *TrainingLoop) runEpoch(ctx context.Context, runID string, epoch int, train, validation dataset.BatchSource) (model.EpochReport, error) {
	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("epoch-%d", epoch))
	defer span.End()
	start := l.now()

	loss, accuracy, trainSamples, err := l.TrainEpoch(ctx, train)
	if err != nil {
		return model.EpochReport{}, err
	}
	valAccuracy, valSamples, err := l.Validate(ctx, validation)
	if err != nil {
		return model.EpochReport{}, err
	}
	return model.EpochReport{
		RunId:              runID,
		Epoch:              epoch,
		Epochs:             l.cfg.Epochs,
		Loss:               loss,
		Accuracy:           accuracy,
		ValidationAccuracy: valAccuracy,
		TrainSamples:       trainSamples,
		ValidationSamples:  valSamples,
		DurationSeconds:    l.now().Sub(start).Seconds(),
		CreateDate:         l.now(),
	}, nil
}

// TrainEpoch makes one training pass over source: forward, cross-entropy,
// backward and one optimizer step per batch.
//
// Outputs:
//   - loss: Sum of batch loss times batch size, divided by the sample count.
//   - accuracy: Correct predictions divided by the sample count.
//   - samples: The sample count.
//   - err: model.ErrEmptyDataset when the pass saw no samples.
func (l *TrainingLoop) TrainEpoch(ctx context.Context, source dataset.BatchSource) (loss, accuracy float64, samples int, err error) {
	l.classifier.SetTraining(true)
	source.Reset()

	var lossSum float64
	correct, batches := 0, 0
	for {
		batch, err := l.next(ctx, source)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, 0, err
		}
		labels := batch.Labels()
		logits, err := l.forward(batch)
		if err != nil {
			return 0, 0, 0, err
		}
		batchLoss, grads, batchCorrect := network.CrossEntropy(logits, labels)
		if err := l.classifier.Backward(grads); err != nil {
			return 0, 0, 0, fmt.Errorf("backward pass failed: %w", err)
		}
		l.classifier.Step(float32(l.cfg.LearningRate))

		lossSum += batchLoss * float64(len(labels))
		correct += batchCorrect
		samples += len(labels)
		batches++
		if l.progress != nil && l.progress.Allow() {
			slog.InfoContext(ctx, "training progress", "batches", batches, "samples", samples,
				"loss", lossSum/float64(samples))
		}
	}
	if samples == 0 {
		return 0, 0, 0, fmt.Errorf("training pass: %w", model.ErrEmptyDataset)
	}
	return lossSum / float64(samples), float64(correct) / float64(samples), samples, nil
}

// Validate runs source through the classifier in eval mode without updating
// it, then restores train mode.
func (l *TrainingLoop) Validate(ctx context.Context, source dataset.BatchSource) (accuracy float64, samples int, err error) {
	l.classifier.SetTraining(false)
	defer l.classifier.SetTraining(true)
	source.Reset()

	correct := 0
	for {
		batch, err := l.next(ctx, source)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, err
		}
		logits, err := l.forward(batch)
		if err != nil {
			return 0, 0, err
		}
		for i, row := range logits {
			if model.Argmax(row) == batch.Labels()[i] {
				correct++
			}
		}
		samples += len(logits)
	}
	if samples == 0 {
		return 0, 0, fmt.Errorf("validation pass: %w", model.ErrEmptyDataset)
	}
	return float64(correct) / float64(samples), samples, nil
}

// next fetches and validates one batch.
func (l *TrainingLoop) next(ctx context.Context, source dataset.BatchSource) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := source.Next(ctx)
	if err != nil {
		return nil, err
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return batch, nil
}

// forward runs the batch and checks the logits against the labels.
func (l *TrainingLoop) forward(batch model.Batch) ([][]float32, error) {
	labels := batch.Labels()
	logits, err := l.classifier.Forward(batch.Clips())
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}
	if len(logits) != len(labels) {
		return nil, fmt.Errorf("forward pass returned %d rows for %d labels", len(logits), len(labels))
	}
	for i, label := range labels {
		if label < 0 || label >= len(logits[i]) {
			return nil, fmt.Errorf("label %d out of range for %d classes", label, len(logits[i]))
		}
	}
	return logits, nil
}

func (l *TrainingLoop) emit(ctx context.Context, report model.EpochReport) {
	chCtx := cor.NewContext(ctx)
	defer chCtx.Close()
	chCtx.Add(commands.ParamReport, report)
	l.reports.Execute(chCtx)
	if err := chCtx.Err(); err != nil {
		slog.WarnContext(ctx, "some report sinks failed", "epoch", report.Epoch, "error", err)
	}
}

// save writes the weights to OutputWeights, going through a temp file and
// the uploader when it is an object URI.
func (l *TrainingLoop) save(ctx context.Context) error {
	if l.cfg.OutputWeights == "" {
		return nil
	}
	obj, err := cloud.ParseObjectURI(l.cfg.OutputWeights)
	if err != nil {
		return err
	}
	if !obj.IsRemote() {
		if err := l.classifier.Save(obj.Name); err != nil {
			return err
		}
		slog.InfoContext(ctx, "saved weights", "path", obj.Name)
		return nil
	}

	if l.uploader == nil {
		return fmt.Errorf("no uploader configured for %s", l.cfg.OutputWeights)
	}
	dir, err := os.MkdirTemp("", cloud.TempFilePrefix)
	if err != nil {
		return fmt.Errorf("could not create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	local := filepath.Join(dir, filepath.Base(obj.Name))
	if err := l.classifier.Save(local); err != nil {
		return err
	}
	return l.uploader.Upload(ctx, local, l.cfg.OutputWeights)
}
