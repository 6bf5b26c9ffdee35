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

// Package commands: this file defines FetchArtifact, the command that makes a
// weight file or a video available on local disk.
//
// Local paths pass through untouched. gs:// and s3:// URIs are downloaded to a
// temp file, which is registered on the context so Close removes it once the
// chain is done.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/go-action-recognition/internal/cloud"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
)

// FetchArtifact resolves the URI under its input key to a local path.
type FetchArtifact struct {
	cor.BaseCommand
	fetcher cloud.Fetcher
}

// NewFetchArtifact creates the command. The input and output keys are set by
// the caller with WithInput / WithOutput.
func NewFetchArtifact(name string, fetcher cloud.Fetcher) *FetchArtifact {
	return &FetchArtifact{BaseCommand: *cor.NewBaseCommand(name), fetcher: fetcher}
}

func (c *FetchArtifact) Execute(context cor.Context) {
	uri, ok := context.Get(c.GetInputParam()).(string)
	if !ok || uri == "" {
		c.Fail(context, fmt.Errorf("%s: no artifact uri in %q", c.GetName(), c.GetInputParam()))
		return
	}
	local, temp, err := c.fetcher.Fetch(context.GetContext(), uri)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to fetch %s: %w", uri, err))
		return
	}
	if temp {
		context.AddTempFile(local)
		slog.DebugContext(context.GetContext(), "artifact downloaded", "uri", uri, "path", local)
	}
	c.Succeed(context, local)
}
