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

	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/video"
)

// VideoDecode reads a local path from its input and outputs the decoded model.RawClip.
type VideoDecode struct {
	cor.BaseCommand
	decoder Decoder
}

func NewVideoDecode(name string, decoder Decoder) *VideoDecode {
	return &VideoDecode{BaseCommand: *cor.NewBaseCommand(name), decoder: decoder}
}

func (c *VideoDecode) Execute(context cor.Context) {
	path, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected a path, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	clip, err := c.decoder.Decode(context.GetContext(), path)
	if err != nil {
		c.Fail(context, err)
		return
	}
	slog.DebugContext(context.GetContext(), "decoded video", "path", path, "shape", clip.Shape)
	c.Succeed(context, clip)
}

// FrameSample reduces or pads the input RawClip to a fixed frame count.
type FrameSample struct {
	cor.BaseCommand
	frames int
}

func NewFrameSample(name string, frames int) *FrameSample {
	return &FrameSample{BaseCommand: *cor.NewBaseCommand(name), frames: frames}
}

func (c *FrameSample) Execute(context cor.Context) {
	clip, ok := context.Get(c.GetInputParam()).(model.RawClip)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected model.RawClip, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	sampled, err := video.Sample(clip, c.frames)
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, sampled)
}

// ClipPreprocess normalizes the input RawClip and outputs a model.ClipBatch of size 1.
type ClipPreprocess struct {
	cor.BaseCommand
	preprocessor *video.Preprocessor
}

func NewClipPreprocess(name string, preprocessor *video.Preprocessor) *ClipPreprocess {
	return &ClipPreprocess{BaseCommand: *cor.NewBaseCommand(name), preprocessor: preprocessor}
}

func (c *ClipPreprocess) Execute(context cor.Context) {
	clip, ok := context.Get(c.GetInputParam()).(model.RawClip)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: expected model.RawClip, got %T", c.GetName(), context.Get(c.GetInputParam())))
		return
	}
	normalized, err := c.preprocessor.Process(clip)
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, model.Unsqueeze(normalized))
}
