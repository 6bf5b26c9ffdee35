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

// Package cor (Chain of Responsibility) is the small execution framework the
// training and inference pipelines are assembled from. A pipeline is a Chain of
// Commands that share one Context. Each command reads its input from the
// context, does one step of work (decode, sample, forward, rank ...) and writes
// its output back. The chain moves each command's output into the next
// command's input slot, so most commands never need to know their neighbours.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Well-known context keys for the piped value.
const (
	// CtxIn holds the value a command consumes when it has no named input.
	CtxIn = "__IN__"
	// CtxOut is where a command without a named output leaves its result.
	CtxOut = "__OUT__"
)

// Context is the state shared by every command of one chain execution.
type Context interface {
	// SetContext replaces the Go context; the chain uses it to nest spans.
	SetContext(ctx context.Context)
	GetContext() context.Context

	// Add stores a value under key and returns the receiver for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records a failure against the name of the command that hit it.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err joins every recorded error, or returns nil when there are none.
	Err() error

	// AddTempFile registers a file to be deleted by Close.
	AddTempFile(file string)
	GetTempFiles() []string

	// Close releases everything registered on the context.
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a pipeline.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the context holds what Execute needs.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of Commands, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps running later commands after one records an error.
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
