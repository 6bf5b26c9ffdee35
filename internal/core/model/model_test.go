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

// Package model_test contains unit tests for the data models defined in the
// model package: clip containers, batch variant resolution, ranking and the
// class-name table.
package model_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawClipFrame(t *testing.T) {
	clip := model.GetExampleFrameClip(4, 2, 3)
	assert.Equal(t, 4, clip.Frames())
	assert.Equal(t, 18, clip.FrameSize())
	// Every sample of frame 2 carries the frame number.
	for _, v := range clip.Frame(2) {
		assert.Equal(t, uint8(2), v)
	}
	assert.Equal(t, "RawClip[4 2 3 3]", clip.String())
}

func TestStack(t *testing.T) {
	a := model.NormalizedClip{Shape: []int{3, 1, 1, 1}, Data: []float32{1, 2, 3}}
	b := model.NormalizedClip{Shape: []int{3, 1, 1, 1}, Data: []float32{4, 5, 6}}

	batch, err := model.Stack(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1, 1, 1}, batch.Shape)
	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, []float32{4, 5, 6}, batch.Sample(1))

	// Mismatched shapes are rejected.
	c := model.NormalizedClip{Shape: []int{3, 2, 1, 1}, Data: make([]float32, 6)}
	_, err = model.Stack(a, c)
	var shapeErr *model.ShapeError
	assert.True(t, errors.As(err, &shapeErr))

	// Unsqueeze copies rather than aliasing.
	single := model.Unsqueeze(a)
	single.Data[0] = 99
	assert.Equal(t, float32(1), a.Data[0])
	assert.Equal(t, []int{1, 3, 1, 1, 1}, single.Shape)
}

func TestNewBatch(t *testing.T) {
	clips := model.ClipBatch{Shape: []int{2, 1}, Data: []float32{0, 1}}

	two, err := model.NewBatch(clips, []int{3, 4})
	require.NoError(t, err)
	assert.IsType(t, model.LabeledBatch{}, two)
	assert.Equal(t, []int{3, 4}, two.Labels())

	three, err := model.NewBatch(clips, "audio", []int{1, 2})
	require.NoError(t, err)
	assert.IsType(t, model.LabeledBatchWithAux{}, three)
	assert.Equal(t, 2, three.Clips().Size())

	// A four-part tuple is neither variant.
	_, err = model.NewBatch(clips, 1, 2, []int{1, 2})
	var formatErr *model.BatchFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, 4, formatErr.Length)
	assert.Contains(t, err.Error(), "len=4")

	// Wrong element types are named in the error.
	_, err = model.NewBatch("clips", []int{1})
	require.True(t, errors.As(err, &formatErr))
	assert.Contains(t, formatErr.Type, "string")

	// Clip and label counts must agree.
	_, err = model.NewBatch(clips, []int{1})
	assert.True(t, errors.As(err, &formatErr))
}

func TestSoftmax(t *testing.T) {
	probs := model.Softmax([]float32{1000, 1000})
	assert.InDelta(t, 0.5, probs[0], 1e-6)
	assert.InDelta(t, 0.5, probs[1], 1e-6)

	probs = model.Softmax([]float32{0, 1, 2})
	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, probs[2], probs[1])
	assert.Nil(t, model.Softmax(nil))
}

func TestTopK(t *testing.T) {
	probs := []float32{0.1, 0.4, 0.1, 0.4}

	top := model.TopK(probs, 3, []string{"a", "b"})
	require.Len(t, top, 3)
	// Ties resolve to the lower index.
	assert.Equal(t, 1, top[0].Index)
	assert.Equal(t, 3, top[1].Index)
	assert.Equal(t, 0, top[2].Index)
	assert.Equal(t, "b", top[0].Name)
	assert.Equal(t, "class_3", top[1].Name)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 3, top[2].Rank)

	// k is clamped to the class count and a non-positive k is empty.
	assert.Len(t, model.TopK(probs, 10, nil), 4)
	assert.Empty(t, model.TopK(probs, 0, nil))
	assert.Equal(t, 1, model.Argmax(probs))
}

func TestResultLines(t *testing.T) {
	result := model.ClassificationResult{Predictions: []model.Prediction{
		{Rank: 1, Index: 7, Probability: 0.91234, Name: "climb"},
	}}
	assert.Equal(t, []string{"Top1: climb  prob=0.9123  (idx=7)"}, result.Lines())
}

func TestLoadClassNames(t *testing.T) {
	// Missing and empty paths yield a nil table.
	names, err := model.LoadClassNames("")
	require.NoError(t, err)
	assert.Nil(t, names)
	names, err = model.LoadClassNames(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Nil(t, names)

	path := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(path, []byte("brush_hair\n\n  cartwheel \r\ncatch\n"), 0o644))
	names, err = model.LoadClassNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"brush_hair", "cartwheel", "catch"}, names)

	parsed, err := model.ParseClassNames(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, parsed)
	assert.Equal(t, "class_12", model.ResolveName(names, 12))
}
