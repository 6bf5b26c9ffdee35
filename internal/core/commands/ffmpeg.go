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

// Package commands holds the decoders and the cor.Command implementations
// the inference chain is assembled from. This file defines FFmpegDecoder,
// which turns a video file into a RawClip by piping raw RGB frames out of
// ffmpeg.
//
// Logic Flow:
//  1. Sniff the first bytes of the file with `filetype`. A file recognised
//     as something other than video (an image, an archive, ...) is rejected
//     before any process is started. Unknown signatures are left to ffmpeg.
//  2. Run ffprobe on the first video stream to learn its width and height.
//  3. Run ffmpeg with autorotation disabled, so the frames keep the probed
//     geometry, and read rgb24 frames from stdout.
//  4. The frame count is the byte count divided by width*height*3.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/h2non/filetype"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// Decoder turns a local path into a RawClip.
type Decoder interface {
	Decode(ctx context.Context, path string) (model.RawClip, error)
}

// Default tool names, resolved through PATH.
const (
	DefaultFFmpegCommand  = "ffmpeg"
	DefaultFFprobeCommand = "ffprobe"
)

// sniffLen is the number of header bytes filetype needs.
const sniffLen = 261

// probeArgs asks for the geometry of the first video stream as JSON.
var probeArgs = []string{"-v", "error", "-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "json"}

// FFmpegDecoder decodes container formats through the ffmpeg command line tools.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegDecoder falls back to the default tool names for empty paths.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = DefaultFFmpegCommand
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = DefaultFFprobeCommand
	}
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Decode implements Decoder. Every failure is a *model.DecodeError.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (model.RawClip, error) {
	if err := SniffVideo(path); err != nil {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: err}
	}
	width, height, err := d.probe(ctx, path)
	if err != nil {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-v", "error", "-noautorotate", "-i", path,
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-vsync", "passthrough", "pipe:1")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: fmt.Errorf("error running ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	clip, err := rawFramesToClip(stdout.Bytes(), width, height)
	if err != nil {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: err}
	}
	return clip, nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func (d *FFmpegDecoder) probe(ctx context.Context, path string) (int, int, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.FFprobePath, append(probeArgs, path)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("error running ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (int, int, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return 0, 0, errors.New("no video stream found")
	}
	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid video geometry %dx%d", s.Width, s.Height)
	}
	return s.Width, s.Height, nil
}

// rawFramesToClip wraps packed rgb24 frames in a RawClip. A trailing partial
// frame is dropped.
func rawFramesToClip(data []byte, width, height int) (model.RawClip, error) {
	frameSize := width * height * 3
	frames := len(data) / frameSize
	if frames == 0 {
		return model.RawClip{}, errors.New("decoder produced no frames")
	}
	return model.RawClip{
		Shape: []int{frames, height, width, 3},
		Data:  data[:frames*frameSize],
	}, nil
}

// SniffVideo rejects files whose signature identifies them as something other
// than video. Files with an unrecognised signature pass.
func SniffVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if n == 0 {
		return errors.New("file is empty")
	}
	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown || filetype.IsVideo(head[:n]) {
		return nil
	}
	return fmt.Errorf("not a video file: detected %s", kind.MIME.Value)
}
