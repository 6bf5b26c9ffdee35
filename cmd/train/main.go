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

// Command train fits a ClipNet on one HMDB51 fold and writes the weight file
// used by the infer command.
//
//	train --data-root data/hmdb51 --splits data/testTrainMulti_7030_splits --fold 1 --out gs://bucket/action_recognition_hmdb51.json
//
// Each epoch is printed to stdout, logged, and streamed to BigQuery and
// Pub/Sub when those are configured. With --status-addr the run can be
// followed at /api/v1/status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaycherian/go-action-recognition/internal/api"
	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/dataset"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/video"
	"github.com/jaycherian/go-action-recognition/internal/core/workflow"
	"github.com/jaycherian/go-action-recognition/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	config, err := loadConfig(opts.configDir, opts.env)
	if err != nil {
		return err
	}
	opts.apply(fs, config)

	closeLog, err := telemetry.SetupLogging(config)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("failed to shut down telemetry", "error", err)
		}
	}()

	device, err := network.ParseDevice(config.Model.Device)
	if err != nil {
		return err
	}

	split, err := dataset.LoadSplit(config.Training.DataRoot, config.Training.SplitsDir, config.Training.Fold)
	if err != nil {
		return err
	}
	if config.Model.NumClasses != len(split.Classes) {
		return fmt.Errorf("dataset has %d classes but model.num_classes is %d", len(split.Classes), config.Model.NumClasses)
	}

	frames := config.Model.Frames
	if frames < 1 {
		frames = video.DefaultFrames
	}
	transform, err := video.NewTransform(frames, workflow.PreprocessConfig(config))
	if err != nil {
		return err
	}
	decoder := commands.NewAutoDecoder(config.Decoder.FFmpegPath, config.Decoder.FFprobePath)
	train, err := dataset.NewLoader(split.Train, decoder, transform, dataset.LoaderOptions{
		BatchSize: config.Training.BatchSize,
		Shuffle:   config.Training.Shuffle,
		Seed:      config.Training.Seed,
	})
	if err != nil {
		return err
	}
	validation, err := dataset.NewLoader(split.Test, decoder, transform, dataset.LoaderOptions{
		BatchSize: config.Training.BatchSize,
	})
	if err != nil {
		return err
	}

	net, err := network.NewClipNet(workflow.Architecture(config, len(split.Classes)), &device)
	if err != nil {
		return err
	}
	defer net.Close()
	fmt.Fprintf(stdout, "Using device: %s\n", device.String())

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	defer clients.Close()

	sinks := []cloud.ReportSink{&workflow.ConsoleReportSink{W: stdout}, &cloud.LogReportSink{}}
	sinks = append(sinks, clients.ReportSinks(config)...)
	if addr := config.Training.StatusAddr; addr != "" {
		tracker := api.NewStatusTracker()
		srv, err := api.Start(addr, api.NewRouter(config.Application.Name+"-status", tracker))
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				slog.Warn("status server shutdown failed", "error", err)
			}
		}()
		sinks = append(sinks, tracker)
	}

	loop := workflow.NewTrainingLoop(workflow.TrainingConfigFrom(config), net, sinks...).WithUploader(clients.Fetcher)
	if _, err := loop.Run(ctx, train, validation); err != nil {
		return err
	}
	if out := config.Training.OutputWeights; out != "" {
		fmt.Fprintf(stdout, "Saved weights to %s\n", out)
	}
	return nil
}
