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

package gui_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/gui"
)

type fakePicker struct {
	path     string
	err      error
	showErr  error
	picks    int
	titles   []string
	messages []string
}

func (f *fakePicker) PickVideo(_ context.Context, _ string) (string, error) {
	f.picks++
	return f.path, f.err
}

func (f *fakePicker) ShowResult(_ context.Context, title, message string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return f.showErr
}

func TestSelectVideo(t *testing.T) {
	boom := errors.New("no display")
	tests := []struct {
		name      string
		picker    *fakePicker
		flag      string
		force     bool
		want      string
		wantErr   error
		wantPicks int
	}{
		{"flag only", &fakePicker{path: "picked.mp4"}, "flag.mp4", false, "flag.mp4", nil, 0},
		{"empty flag opens picker", &fakePicker{path: "picked.mp4"}, "", false, "picked.mp4", nil, 1},
		{"gui overrides flag", &fakePicker{path: "picked.mp4"}, "flag.mp4", true, "picked.mp4", nil, 1},
		{"cancel keeps flag", &fakePicker{err: model.ErrNoSelection}, "flag.mp4", true, "flag.mp4", nil, 1},
		{"cancel without flag", &fakePicker{err: model.ErrNoSelection}, "", false, "", model.ErrNoSelection, 1},
		{"empty pick without flag", &fakePicker{}, "", true, "", model.ErrNoSelection, 1},
		{"picker failure keeps flag", &fakePicker{err: boom}, "flag.mp4", true, "flag.mp4", nil, 1},
		{"picker failure without flag", &fakePicker{err: boom}, "", false, "", model.ErrNoSelection, 1},
		{"forced picker failure without flag", &fakePicker{err: boom}, "", true, "", model.ErrNoSelection, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gui.SelectVideo(context.Background(), tt.picker, tt.flag, tt.force, ".")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPicks, tt.picker.picks)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestResultMessage(t *testing.T) {
	msg := gui.ResultMessage("/data/clips/wave_01.avi", []string{"Top1: wave  prob=0.9000  (idx=3)", "Top2: run  prob=0.1000  (idx=1)"})
	assert.Equal(t, "Video: wave_01.avi\nTop1: wave  prob=0.9000  (idx=3)\nTop2: run  prob=0.1000  (idx=1)", msg)
}

func TestShowPrediction(t *testing.T) {
	picker := &fakePicker{showErr: errors.New("dialog closed")}
	result := model.ClassificationResult{
		VideoPath:   "clip.mp4",
		Predictions: []model.Prediction{{Rank: 1, Index: 0, Probability: 1, Name: "brush_hair"}},
	}
	gui.ShowPrediction(context.Background(), picker, result)
	assert.DeepEqual(t, []string{gui.ResultTitle}, picker.titles)
	assert.DeepEqual(t, []string{"Video: clip.mp4\nTop1: brush_hair  prob=1.0000  (idx=0)"}, picker.messages)

	empty := &fakePicker{}
	gui.ShowPrediction(context.Background(), empty, model.ClassificationResult{VideoPath: "clip.mp4"})
	assert.Equal(t, 0, len(empty.messages))
}
