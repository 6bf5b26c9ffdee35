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

// Package model defines the core data structures for the application.
// This file holds the error taxonomy shared by the training and inference
// pipelines. Every error here is fatal for the run that raised it; nothing in
// the application retries.
package model

import (
	"errors"
	"fmt"
)

// ErrNoSelection is returned by interactive pickers when the user cancels.
// Callers treat it as a clean exit, not a failure.
var ErrNoSelection = errors.New("no video selected")

// ErrEmptyDataset is returned when an epoch or validation pass sees no samples.
var ErrEmptyDataset = errors.New("dataset produced no samples")

// ShapeError reports a tensor whose layout does not match what an operation expects.
type ShapeError struct {
	Op    string // The operation that rejected the input, e.g. "preprocess".
	Shape []int  // The actual shape observed.
	Want  string // A description of the expected layout.
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got shape %v", e.Op, e.Want, e.Shape)
}

// BatchFormatError reports a batch that is neither (clips, labels) nor
// (clips, aux, labels).
type BatchFormatError struct {
	Type   string // Go type of the observed value.
	Length int    // Number of parts observed, or -1 when the value has no length.
	Reason string
}

func (e *BatchFormatError) Error() string {
	length := "NA"
	if e.Length >= 0 {
		length = fmt.Sprint(e.Length)
	}
	msg := fmt.Sprintf("unexpected batch format: type=%s, len=%s", e.Type, length)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// WeightLoadError reports a weight file that is missing, unreadable, or does not
// fit the constructed architecture.
type WeightLoadError struct {
	Path string
	Err  error
}

func (e *WeightLoadError) Error() string {
	return fmt.Sprintf("failed to load weights from %s: %v", e.Path, e.Err)
}

func (e *WeightLoadError) Unwrap() error {
	return e.Err
}

// DecodeError reports a video the decoder could not read.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode video %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
