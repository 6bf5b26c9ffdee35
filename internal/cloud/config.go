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

// Package cloud holds the application configuration and everything that talks
// to a service outside the process: Cloud Storage and MinIO for artifacts,
// BigQuery and Pub/Sub for training reports.
//
// This file defines the configuration structs. Values are layered in this
// order, later layers winning:
//  1. NewConfig defaults.
//  2. `.env.toml` in the config directory.
//  3. `.env.<runtime>.toml` in the config directory.
//  4. Environment variables named in the `env` tags.
//  5. Command line flags, applied by the cmd packages.
package cloud

// Application holds general settings.
type Application struct {
	Name            string `toml:"name" env:"HAR_APP_NAME"`
	GoogleProjectId string `toml:"google_project_id" env:"HAR_GOOGLE_PROJECT_ID"` // Empty disables BigQuery and Pub/Sub.
	GoogleLocation  string `toml:"location" env:"HAR_GOOGLE_LOCATION"`
	CredentialsFile string `toml:"credentials_file" env:"HAR_CREDENTIALS_FILE"` // Optional service account key for Cloud Storage.
}

// Logging configures the slog handler.
type Logging struct {
	Level string `toml:"level" env:"HAR_LOG_LEVEL"` // debug, info, warn or error.
	File  string `toml:"file" env:"HAR_LOG_FILE"`   // Empty logs to stderr.
}

// Telemetry selects the OpenTelemetry exporters.
type Telemetry struct {
	Exporter string `toml:"exporter" env:"HAR_TELEMETRY_EXPORTER"` // gcp or none.
}

// Model describes the classifier and its preprocessing.
type Model struct {
	NumClasses int       `toml:"num_classes" env:"HAR_NUM_CLASSES"`
	Frames     int       `toml:"frames" env:"HAR_FRAMES"`
	Height     int       `toml:"height"`
	Width      int       `toml:"width"`
	Mean       []float32 `toml:"mean"`
	Std        []float32 `toml:"std"`
	Device     string    `toml:"device" env:"HAR_DEVICE"` // auto, cpu or gpu.
	Weights    string    `toml:"weights" env:"HAR_WEIGHTS"`
	ClassNames string    `toml:"class_names" env:"HAR_CLASS_NAMES"`
	TopK       int       `toml:"top_k" env:"HAR_TOP_K"`
}

// Training configures cmd/train.
type Training struct {
	Epochs             int     `toml:"epochs" env:"HAR_EPOCHS"`
	BatchSize          int     `toml:"batch_size" env:"HAR_BATCH_SIZE"`
	LearningRate       float64 `toml:"learning_rate" env:"HAR_LEARNING_RATE"`
	DataRoot           string  `toml:"data_root" env:"HAR_DATA_ROOT"`
	SplitsDir          string  `toml:"splits_dir" env:"HAR_SPLITS_DIR"`
	Fold               int     `toml:"fold" env:"HAR_FOLD"`
	Shuffle            bool    `toml:"shuffle" env:"HAR_SHUFFLE"`
	Seed               int64   `toml:"seed" env:"HAR_SEED"`
	OutputWeights      string  `toml:"output_weights" env:"HAR_OUTPUT_WEIGHTS"`
	StatusAddr         string  `toml:"status_addr" env:"HAR_STATUS_ADDR"` // Empty disables the status server.
	ProgressLogsPerSec float64 `toml:"progress_logs_per_second"`
}

// Decoder locates the ffmpeg tools.
type Decoder struct {
	FFmpegPath  string `toml:"ffmpeg_path" env:"HAR_FFMPEG_PATH"`
	FFprobePath string `toml:"ffprobe_path" env:"HAR_FFPROBE_PATH"`
}

// MinIO configures s3:// artifact access.
type MinIO struct {
	Endpoint  string `toml:"endpoint" env:"HAR_MINIO_ENDPOINT"` // Empty disables s3:// URIs.
	AccessKey string `toml:"access_key" env:"HAR_MINIO_ACCESS_KEY"`
	SecretKey string `toml:"secret_key" env:"HAR_MINIO_SECRET_KEY"`
	UseSSL    bool   `toml:"use_ssl" env:"HAR_MINIO_USE_SSL"`
	Region    string `toml:"region" env:"HAR_MINIO_REGION"`
}

// BigQueryDataSource names the table epoch reports are streamed into.
type BigQueryDataSource struct {
	DatasetName      string `toml:"dataset" env:"HAR_BQ_DATASET"`
	EpochTable       string `toml:"epoch_table" env:"HAR_BQ_EPOCH_TABLE"` // Empty disables the sink.
	InsertsPerSecond int    `toml:"inserts_per_second"`
}

// TopicPublication names the Pub/Sub topic epoch events are published to.
type TopicPublication struct {
	EpochTopic string `toml:"epoch_topic" env:"HAR_EPOCH_TOPIC"` // Empty disables the sink.
}

// Config is the root of the application configuration.
type Config struct {
	Application        Application        `toml:"application"`
	Logging            Logging            `toml:"logging"`
	Telemetry          Telemetry          `toml:"telemetry"`
	Model              Model              `toml:"model"`
	Training           Training           `toml:"training"`
	Decoder            Decoder            `toml:"decoder"`
	MinIO              MinIO              `toml:"minio"`
	BigQueryDataSource BigQueryDataSource `toml:"big_query_data_source"`
	TopicPublication   TopicPublication   `toml:"topic_publication"`
}

// NewConfig returns a Config populated with the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Application: Application{Name: "action-recognition"},
		Logging:     Logging{Level: "info"},
		Telemetry:   Telemetry{Exporter: "none"},
		Model: Model{
			NumClasses: 51,
			Frames:     16,
			Height:     112,
			Width:      112,
			Mean:       []float32{0.43216, 0.394666, 0.37645},
			Std:        []float32{0.22803, 0.22145, 0.216989},
			Device:     "auto",
			Weights:    "action_recognition_hmdb51.json",
			TopK:       5,
		},
		Training: Training{
			Epochs:             10,
			BatchSize:          2,
			LearningRate:       1e-3,
			Fold:               1,
			Shuffle:            true,
			Seed:               1,
			OutputWeights:      "action_recognition_hmdb51.json",
			ProgressLogsPerSec: 1,
		},
		Decoder:            Decoder{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"},
		BigQueryDataSource: BigQueryDataSource{InsertsPerSecond: 5},
	}
}
