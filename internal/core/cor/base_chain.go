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

// Package cor: this file holds BaseChain, the sequential Chain implementation.
//
// Execution of a BaseChain:
//  1. One span covers the whole chain, one child span covers each command.
//  2. Before each command the chain checks the context for recorded errors
//     and stops unless ContinueOnFailure was set.
//  3. A command whose IsExecutable returns false is skipped and its span is
//     marked as an error. It is not recorded on the context.
//  4. After each command the value under CtxOut is moved to CtxIn, which is
//     how one command's result becomes the next one's input.
//  5. The chain span ends with Ok or Error depending on the context.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs its commands in insertion order.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain named name.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the commands in execution order.
func (c *BaseChain) Commands() []Command {
	return c.commands
}

// IsExecutable only needs a Go context; the first command checks its own input.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs the commands against chCtx.
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	chainCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		cmdCtx, cmdSpan := c.Tracer.Start(chainCtx, command.GetName())

		if chCtx.HasErrors() && !c.continueOnFailure {
			cmdSpan.SetStatus(codes.Error, "skipped after earlier failure")
			cmdSpan.End()
			break
		}

		if command.IsExecutable(chCtx) {
			chCtx.SetContext(cmdCtx)
			command.Execute(chCtx)
			// Siblings hang off the chain span, not off each other.
			chCtx.SetContext(chainCtx)
		} else {
			cmdSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
		}

		if err, failed := chCtx.GetErrors()[command.GetName()]; failed {
			cmdSpan.RecordError(err)
			cmdSpan.SetStatus(codes.Error, err.Error())
		} else if chCtx.HasErrors() {
			cmdSpan.SetStatus(codes.Error, "chain has errors")
		} else {
			cmdSpan.SetStatus(codes.Ok, "")
		}
		cmdSpan.End()

		out := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if out != nil {
			chCtx.Add(CtxIn, out)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed")
	} else {
		chainSpan.SetStatus(codes.Ok, "")
	}
}
