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
	"context"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

type options struct {
	configDir  string
	env        string
	video      string
	weights    string
	numClasses int
	classNames string
	topK       int
	device     string
	gui        bool
	dryRun     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configDir, "config-dir", "", "directory holding .env.toml and .env.<env>.toml (default $"+cloud.EnvConfigFilePrefix+" or configs)")
	fs.StringVar(&opts.env, "env", "", "configuration runtime (default $"+cloud.EnvConfigRuntime+" or local)")
	fs.StringVar(&opts.video, "video", "", "video file, frame directory, gs:// or s3:// URI; empty opens a file picker")
	fs.StringVar(&opts.weights, "weights", "", "weight file or object URI (default action_recognition_hmdb51.json)")
	fs.IntVar(&opts.numClasses, "num-classes", 0, "number of classes; must match training (default 51)")
	fs.StringVar(&opts.classNames, "class-names", "", "optional file with one class name per line")
	fs.IntVar(&opts.topK, "topk", 0, "number of predictions to print (default 5)")
	fs.StringVar(&opts.device, "device", "", "auto, cpu or gpu (default auto)")
	fs.BoolVar(&opts.gui, "gui", false, "pick the video in a dialog and show the result in a dialog")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "classify a synthetic clip to check the weight file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs, nil
}

// apply overrides config with every flag given on the command line.
func (o *options) apply(fs *flag.FlagSet, config *cloud.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "weights":
			config.Model.Weights = o.weights
		case "num-classes":
			config.Model.NumClasses = o.numClasses
		case "class-names":
			config.Model.ClassNames = o.classNames
		case "topk":
			config.Model.TopK = o.topK
		case "device":
			config.Model.Device = o.device
		}
	})
}

func loadConfig(dir, runtime string) (*cloud.Config, error) {
	if dir == "" {
		dir = os.Getenv(cloud.EnvConfigFilePrefix)
	}
	if dir == "" {
		dir = "configs"
	}
	if runtime == "" {
		runtime = os.Getenv(cloud.EnvConfigRuntime)
	}
	if runtime == "" {
		runtime = cloud.DefaultRuntime
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfigFrom(dir, runtime, config); err != nil {
		return nil, err
	}
	return config, nil
}

// syntheticDecoder returns the same clip for every path.
type syntheticDecoder struct {
	clip model.RawClip
}

func (d syntheticDecoder) Decode(_ context.Context, _ string) (model.RawClip, error) {
	return d.clip, nil
}

func newSyntheticDecoder(config *cloud.Config) (syntheticDecoder, error) {
	m := config.Model
	if m.Frames < 1 || m.Height < 1 || m.Width < 1 {
		return syntheticDecoder{}, errors.New("dry run needs positive model.frames, height and width")
	}
	return syntheticDecoder{clip: model.GetExampleConstantClip(m.Frames, m.Height, m.Width, 128)}, nil
}

// loadClassNames reads the class-name table from a local path or object URI.
func loadClassNames(ctx context.Context, fetcher cloud.Fetcher, uri string) ([]string, error) {
	if uri == "" {
		return nil, nil
	}
	local, temp, err := fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	if temp {
		defer os.Remove(local)
	}
	return model.LoadClassNames(local)
}
