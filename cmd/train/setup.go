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
	"flag"
	"io"
	"os"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
)

type options struct {
	configDir  string
	env        string
	epochs     int
	batchSize  int
	lr         float64
	dataRoot   string
	splits     string
	fold       int
	out        string
	statusAddr string
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configDir, "config-dir", "", "directory holding .env.toml and .env.<env>.toml (default $"+cloud.EnvConfigFilePrefix+" or configs)")
	fs.StringVar(&opts.env, "env", "", "configuration runtime (default $"+cloud.EnvConfigRuntime+" or local)")
	fs.IntVar(&opts.epochs, "epochs", 0, "number of epochs (default 10)")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "clips per batch (default 2)")
	fs.Float64Var(&opts.lr, "lr", 0, "Adam learning rate (default 0.001)")
	fs.StringVar(&opts.dataRoot, "data-root", "", "HMDB51 root with one directory per class")
	fs.StringVar(&opts.splits, "splits", "", "directory holding <class>_test_split<fold>.txt")
	fs.IntVar(&opts.fold, "fold", 0, "split fold, 1 to 3 (default 1)")
	fs.StringVar(&opts.out, "out", "", "output weight file or object URI (default action_recognition_hmdb51.json)")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "listen address of the status API, e.g. :8080; empty disables it")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs, nil
}

// apply overrides config with every flag given on the command line.
func (o *options) apply(fs *flag.FlagSet, config *cloud.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "epochs":
			config.Training.Epochs = o.epochs
		case "batch-size":
			config.Training.BatchSize = o.batchSize
		case "lr":
			config.Training.LearningRate = o.lr
		case "data-root":
			config.Training.DataRoot = o.dataRoot
		case "splits":
			config.Training.SplitsDir = o.splits
		case "fold":
			config.Training.Fold = o.fold
		case "out":
			config.Training.OutputWeights = o.out
		case "status-addr":
			config.Training.StatusAddr = o.statusAddr
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
