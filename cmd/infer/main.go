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

// Command infer classifies a single video clip with a trained ClipNet and
// prints the top-k actions.
//
//	infer --video clip.avi --weights gs://bucket/action_recognition_hmdb51.json --class-names classes.txt
//
// With --gui, or when --video is empty, the clip is chosen in a file dialog.
// Cancelling the dialog exits cleanly with status 0.
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

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/workflow"
	"github.com/jaycherian/go-action-recognition/internal/gui"
	"github.com/jaycherian/go-action-recognition/internal/telemetry"
)

const syntheticVideo = "synthetic"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, gui.ZenityPicker{})
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("inference failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, picker gui.Picker) error {
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
	fmt.Fprintf(stdout, "Using device: %s\n", device.String())

	var decoder commands.Decoder = commands.NewAutoDecoder(config.Decoder.FFmpegPath, config.Decoder.FFprobePath)
	videoPath := syntheticVideo
	if opts.dryRun {
		if decoder, err = newSyntheticDecoder(config); err != nil {
			return err
		}
	} else {
		cwd, _ := os.Getwd()
		videoPath, err = gui.SelectVideo(ctx, picker, opts.video, opts.gui, cwd)
		if errors.Is(err, model.ErrNoSelection) {
			fmt.Fprintln(stdout, "No video selected, exiting.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	fetcher := cloud.NewArtifactFetcher(config)
	defer fetcher.Close()

	names, err := loadClassNames(ctx, fetcher, config.Model.ClassNames)
	if err != nil {
		return err
	}

	wf, err := workflow.NewInferenceWorkflow(config, fetcher, decoder, workflow.NewClipNetLoader(config, &device))
	if err != nil {
		return err
	}
	result, err := wf.Predict(ctx, model.InferenceRequest{
		VideoPath:   videoPath,
		WeightsPath: config.Model.Weights,
		NumClasses:  config.Model.NumClasses,
		TopK:        config.Model.TopK,
		ClassNames:  names,
	})
	if err != nil {
		return err
	}
	slog.Info("classified clip", "video", videoPath, "device", device.String(), "predictions", len(result.Predictions))

	fmt.Fprintln(stdout, "Prediction:")
	for _, line := range result.Lines() {
		fmt.Fprintln(stdout, line)
	}
	if opts.gui {
		gui.ShowPrediction(ctx, picker, result)
	}
	return nil
}
