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

package dataset

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/video"
)

// BatchSource yields the mini-batches of one pass over a dataset.
type BatchSource interface {
	// Reset starts a new pass.
	Reset()
	// Next returns the next batch, or io.EOF once the pass is exhausted.
	Next(ctx context.Context) (model.Batch, error)
	// Len is the number of samples in one pass.
	Len() int
}

// Loader decodes, samples and normalizes videos into batches, one at a time.
// Loading is serial; there is no prefetch.
type Loader struct {
	samples   []Sample
	order     []int
	pos       int
	batchSize int
	decoder   commands.Decoder
	transform *video.Transform
	shuffle   bool
	rng       *rand.Rand
}

// LoaderOptions configure NewLoader.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
}

// NewLoader creates a loader over samples. With Shuffle set every Reset
// draws a new order from a generator seeded with Seed, so runs repeat.
func NewLoader(samples []Sample, decoder commands.Decoder, transform *video.Transform, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	l := &Loader{
		samples:   samples,
		order:     make([]int, len(samples)),
		batchSize: opts.BatchSize,
		decoder:   decoder,
		transform: transform,
		shuffle:   opts.Shuffle,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
	l.Reset()
	return l, nil
}

func (l *Loader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
	}
	l.pos = 0
}

func (l *Loader) Len() int {
	return len(l.samples)
}

// Next implements BatchSource. The last batch of a pass may be short.
func (l *Loader) Next(ctx context.Context) (model.Batch, error) {
	if l.pos >= len(l.order) {
		return nil, io.EOF
	}
	end := min(l.pos+l.batchSize, len(l.order))
	clips := make([]model.NormalizedClip, 0, end-l.pos)
	labels := make([]int, 0, end-l.pos)
	for _, idx := range l.order[l.pos:end] {
		sample := l.samples[idx]
		raw, err := l.decoder.Decode(ctx, sample.Path)
		if err != nil {
			return nil, err
		}
		clip, err := l.transform.Apply(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to transform %s: %w", sample.Path, err)
		}
		clips = append(clips, clip)
		labels = append(labels, sample.Label)
	}
	l.pos = end

	stacked, err := model.Stack(clips...)
	if err != nil {
		return nil, err
	}
	return model.NewBatch(stacked, labels)
}

// TupleSource resolves pre-built tuples, either (ClipBatch, []int) or
// (ClipBatch, aux, []int), into batches. It is the adapter for sources that
// already produce tensors.
type TupleSource struct {
	Tuples [][]any
	pos    int
}

func (s *TupleSource) Reset() { s.pos = 0 }

func (s *TupleSource) Len() int {
	n := 0
	for _, t := range s.Tuples {
		if len(t) > 0 {
			if clips, ok := t[0].(model.ClipBatch); ok {
				n += clips.Size()
			}
		}
	}
	return n
}

// Next returns a *model.BatchFormatError for a tuple of any other shape.
func (s *TupleSource) Next(_ context.Context) (model.Batch, error) {
	if s.pos >= len(s.Tuples) {
		return nil, io.EOF
	}
	tuple := s.Tuples[s.pos]
	s.pos++
	return model.NewBatch(tuple...)
}
