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

// Package gui wraps the native dialogs used by the inference command: a file
// picker for the input video and a message box for the prediction.
package gui

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ncruces/zenity"

	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

const (
	PickerTitle = "Select a video to classify"
	ResultTitle = "Prediction"
)

// VideoFilters limits the picker to the container formats the decoder handles.
var VideoFilters = zenity.FileFilters{
	{Name: "Video Files", Patterns: []string{"*.mp4", "*.avi", "*.mov", "*.mkv"}, CaseFold: true},
	{Name: "All Files", Patterns: []string{"*.*"}},
}

// Picker selects an input video and displays a result.
type Picker interface {
	// PickVideo returns the chosen path, or model.ErrNoSelection on cancel.
	PickVideo(ctx context.Context, initialDir string) (string, error)
	ShowResult(ctx context.Context, title, message string) error
}

// ZenityPicker implements Picker with the platform's native dialogs.
type ZenityPicker struct{}

func (ZenityPicker) PickVideo(ctx context.Context, initialDir string) (string, error) {
	opts := []zenity.Option{zenity.Context(ctx), zenity.Title(PickerTitle), VideoFilters}
	if initialDir != "" {
		opts = append(opts, zenity.Filename(initialDir+string(filepath.Separator)))
	}
	path, err := zenity.SelectFile(opts...)
	if errors.Is(err, zenity.ErrCanceled) || (err == nil && path == "") {
		return "", model.ErrNoSelection
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func (ZenityPicker) ShowResult(ctx context.Context, title, message string) error {
	err := zenity.Info(message, zenity.Context(ctx), zenity.Title(title), zenity.InfoIcon)
	if errors.Is(err, zenity.ErrCanceled) {
		return nil
	}
	return err
}

// SelectVideo decides which video to classify. The picker is shown when
// force is set or flagPath is empty; a picked file overrides flagPath. A
// cancelled or failing picker falls back to flagPath; failures are logged.
//
// Outputs:
//   - string: The path to classify.
//   - error: model.ErrNoSelection when neither source yields a path.
func SelectVideo(ctx context.Context, picker Picker, flagPath string, force bool, initialDir string) (string, error) {
	if !force && flagPath != "" {
		return flagPath, nil
	}
	picked, err := picker.PickVideo(ctx, initialDir)
	switch {
	case err == nil && picked != "":
		return picked, nil
	case err != nil && !errors.Is(err, model.ErrNoSelection):
		slog.Warn("video picker unavailable", "error", err, "fallback", flagPath)
	}
	if flagPath == "" {
		return "", model.ErrNoSelection
	}
	return flagPath, nil
}

// ResultMessage formats the dialog body: the video's base name followed by
// the ranked lines.
func ResultMessage(videoPath string, lines []string) string {
	return "Video: " + filepath.Base(videoPath) + "\n" + strings.Join(lines, "\n")
}

// ShowPrediction displays result in a dialog. Dialog failures are logged,
// never returned; the console output has already been written.
func ShowPrediction(ctx context.Context, picker Picker, result model.ClassificationResult) {
	lines := result.Lines()
	if len(lines) == 0 {
		return
	}
	if err := picker.ShowResult(ctx, ResultTitle, ResultMessage(result.VideoPath, lines)); err != nil {
		slog.Warn("failed to show result dialog", "error", err)
	}
}
