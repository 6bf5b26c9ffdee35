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

package commands_test

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/jaycherian/go-action-recognition/internal/core/commands"
	"github.com/jaycherian/go-action-recognition/internal/core/cor"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
	"github.com/jaycherian/go-action-recognition/internal/core/network"
	"github.com/jaycherian/go-action-recognition/internal/core/video"
	test "github.com/jaycherian/go-action-recognition/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, h, c), path))
}

func TestFrameDirDecoder(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; decoding follows file names.
	writeFrame(t, filepath.Join(dir, "frame_002.png"), 4, 3, color.NRGBA{R: 30, G: 40, B: 50, A: 255})
	writeFrame(t, filepath.Join(dir, "frame_001.png"), 4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	clip, err := commands.FrameDirDecoder{}.Decode(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 3}, clip.Shape)
	assert.Equal(t, []uint8{10, 20, 30}, clip.Frame(0)[:3])
	assert.Equal(t, []uint8{30, 40, 50}, clip.Frame(1)[:3])
}

func TestFrameDirDecoderUnpaddedNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "frame_10.png"), 2, 2, color.NRGBA{R: 3, A: 255})
	writeFrame(t, filepath.Join(dir, "frame_2.png"), 2, 2, color.NRGBA{R: 2, A: 255})
	writeFrame(t, filepath.Join(dir, "frame_1.png"), 2, 2, color.NRGBA{R: 1, A: 255})

	clip, err := commands.FrameDirDecoder{}.Decode(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, clip.Shape[0])
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint8(i+1), clip.Frame(i)[0], "frame %d", i)
	}
}

func TestFrameDirDecoderRejectsMixedSizes(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "a.png"), 4, 3, color.NRGBA{A: 255})
	writeFrame(t, filepath.Join(dir, "b.png"), 5, 3, color.NRGBA{A: 255})

	_, err := commands.FrameDirDecoder{}.Decode(context.Background(), dir)
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestFrameDirDecoderEmptyDir(t *testing.T) {
	_, err := commands.FrameDirDecoder{}.Decode(context.Background(), t.TempDir())
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestSniffVideoRejectsImages(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "still.png")
	writeFrame(t, png, 2, 2, color.NRGBA{A: 255})
	assert.Error(t, commands.SniffVideo(png))

	unknown := filepath.Join(dir, "clip.bin")
	require.NoError(t, os.WriteFile(unknown, []byte("not a known signature"), 0o644))
	assert.NoError(t, commands.SniffVideo(unknown))

	empty := filepath.Join(dir, "empty.avi")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Error(t, commands.SniffVideo(empty))
}

func TestFFmpegDecoderFailuresAreDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.avi")
	require.NoError(t, os.WriteFile(path, []byte("not a known signature"), 0o644))

	decoder := commands.NewFFmpegDecoder(filepath.Join(dir, "no-ffmpeg"), filepath.Join(dir, "no-ffprobe"))
	_, err := decoder.Decode(context.Background(), path)
	var decodeErr *model.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, path, decodeErr.Path)

	_, err = decoder.Decode(context.Background(), filepath.Join(dir, "missing.avi"))
	assert.True(t, errors.As(err, &decodeErr))
}

func TestAutoDecoderRoutesDirectories(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.avi")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	frames := &test.FakeDecoder{Clips: map[string]model.RawClip{dir: model.GetExampleFrameClip(2, 2, 2)}}
	videos := &test.FakeDecoder{Clips: map[string]model.RawClip{file: model.GetExampleFrameClip(3, 2, 2)}}
	decoder := &commands.AutoDecoder{Video: videos, Frames: frames}

	clip, err := decoder.Decode(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, clip.Frames())

	clip, err = decoder.Decode(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 3, clip.Frames())

	_, err = decoder.Decode(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

// newPredictChain builds the tail of the inference chain: decode through rank.
func newPredictChain(t *testing.T, decoder commands.Decoder) cor.Chain {
	t.Helper()
	pre, err := video.NewPreprocessor(video.PreprocessConfig{
		Height: 4, Width: 4,
		Mean: video.DefaultMean, Std: video.DefaultStd,
	})
	require.NoError(t, err)
	chain := cor.NewBaseChain("predict-test")
	chain.AddCommand(commands.NewVideoDecode("decode", decoder))
	chain.AddCommand(commands.NewFrameSample("sample", video.DefaultFrames))
	chain.AddCommand(commands.NewClipPreprocess("preprocess", pre))
	chain.AddCommand(commands.NewForward("forward"))
	rank := commands.NewRank("rank")
	rank.WithOutput(commands.ParamResult)
	chain.AddCommand(rank)
	return chain
}

func TestPredictChain(t *testing.T) {
	decoder := &test.FakeDecoder{Clips: map[string]model.RawClip{"clip.avi": model.GetExampleFrameClip(5, 8, 8)}}
	classifier := test.NewFakeClassifier(4)
	classifier.Logits = func(sample []float32) []float32 {
		// [C, T, H, W] with 16 frames of 4x4.
		assert.Equal(t, 3*video.DefaultFrames*4*4, len(sample))
		return []float32{0, 3, 1, 2}
	}

	chCtx := cor.NewContext(context.Background())
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, "clip.avi")
	chCtx.Add(commands.ParamVideoURI, "clip.avi")
	chCtx.Add(commands.ParamClassifier, network.Classifier(classifier))
	chCtx.Add(commands.ParamTopK, 3)
	chCtx.Add(commands.ParamClassNames, []string{"a", "b"})

	newPredictChain(t, decoder).Execute(chCtx)
	require.NoError(t, chCtx.Err())

	result := chCtx.Get(commands.ParamResult).(model.ClassificationResult)
	assert.Equal(t, "clip.avi", result.VideoPath)
	require.Len(t, result.Predictions, 3)
	assert.Equal(t, 1, result.Predictions[0].Index)
	assert.Equal(t, "b", result.Predictions[0].Name)
	assert.Equal(t, 3, result.Predictions[1].Index)
	assert.Equal(t, "class_3", result.Predictions[1].Name)
	assert.Equal(t, 2, result.Predictions[2].Index)
	assert.Equal(t, 1, classifier.ForwardCalls)
}

func TestPredictChainStopsOnDecodeError(t *testing.T) {
	classifier := test.NewFakeClassifier(4)
	chCtx := cor.NewContext(context.Background())
	chCtx.Add(cor.CtxIn, "missing.avi")
	chCtx.Add(commands.ParamClassifier, network.Classifier(classifier))

	newPredictChain(t, &test.FakeDecoder{}).Execute(chCtx)

	var decodeErr *model.DecodeError
	assert.True(t, errors.As(chCtx.Err(), &decodeErr))
	assert.Equal(t, 0, classifier.ForwardCalls)
	assert.Nil(t, chCtx.Get(commands.ParamResult))
}

func TestPreprocessRejectsBadRank(t *testing.T) {
	pre, err := video.NewPreprocessor(video.DefaultPreprocessConfig())
	require.NoError(t, err)
	chCtx := cor.NewContext(context.Background())
	chCtx.Add(cor.CtxIn, model.RawClip{Shape: []int{2, 2, 3}, Data: make([]uint8, 12)})

	cmd := commands.NewClipPreprocess("preprocess", pre)
	cmd.Execute(chCtx)

	var shapeErr *model.ShapeError
	require.True(t, errors.As(chCtx.Err(), &shapeErr))
	assert.Equal(t, []int{2, 2, 3}, shapeErr.Shape)
}

func TestLoadClassifier(t *testing.T) {
	var gotPath string
	var gotClasses int
	load := func(path string, numClasses int) (network.Classifier, error) {
		gotPath, gotClasses = path, numClasses
		c := test.NewFakeClassifier(numClasses)
		c.SetTraining(true)
		return c, nil
	}
	cmd := commands.NewLoadClassifier("load", load)
	cmd.WithInput(commands.ParamWeightsPath).WithOutput(commands.ParamClassifier)

	chCtx := cor.NewContext(context.Background())
	chCtx.Add(commands.ParamWeightsPath, "w.json")
	chCtx.Add(commands.ParamNumClasses, 51)
	require.True(t, cmd.IsExecutable(chCtx))
	cmd.Execute(chCtx)

	require.NoError(t, chCtx.Err())
	assert.Equal(t, "w.json", gotPath)
	assert.Equal(t, 51, gotClasses)
	classifier := chCtx.Get(commands.ParamClassifier).(network.Classifier)
	assert.False(t, classifier.Training())
}

func TestLoadClassifierPropagatesWeightErrors(t *testing.T) {
	load := func(path string, _ int) (network.Classifier, error) {
		return nil, &model.WeightLoadError{Path: path, Err: os.ErrNotExist}
	}
	cmd := commands.NewLoadClassifier("load", load)
	cmd.WithInput(commands.ParamWeightsPath)

	chCtx := cor.NewContext(context.Background())
	chCtx.Add(commands.ParamWeightsPath, "missing.json")
	chCtx.Add(commands.ParamNumClasses, 51)
	cmd.Execute(chCtx)

	var weightErr *model.WeightLoadError
	assert.True(t, errors.As(chCtx.Err(), &weightErr))
	assert.True(t, errors.Is(chCtx.Err(), os.ErrNotExist))
}

func TestFetchArtifactRegistersTempFiles(t *testing.T) {
	dir := t.TempDir()
	downloaded := filepath.Join(dir, "download.json")
	require.NoError(t, os.WriteFile(downloaded, []byte("{}"), 0o644))

	fetcher := &test.FakeFetcher{Paths: map[string]string{"gs://bucket/w.json": downloaded}}
	cmd := commands.NewFetchArtifact("fetch-weights", fetcher)
	cmd.WithInput(commands.ParamWeightsURI).WithOutput(commands.ParamWeightsPath)

	chCtx := cor.NewContext(context.Background())
	chCtx.Add(commands.ParamWeightsURI, "gs://bucket/w.json")
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())
	assert.Equal(t, downloaded, chCtx.Get(commands.ParamWeightsPath))
	assert.Equal(t, []string{downloaded}, chCtx.GetTempFiles())

	chCtx.Close()
	_, err := os.Stat(downloaded)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFetchArtifactFailure(t *testing.T) {
	cmd := commands.NewFetchArtifact("fetch-video", &test.FakeFetcher{Err: errors.New("denied")})
	chCtx := cor.NewContext(context.Background())
	chCtx.Add(cor.CtxIn, "gs://bucket/clip.avi")
	cmd.Execute(chCtx)
	assert.Error(t, chCtx.Err())
	assert.Empty(t, chCtx.GetTempFiles())
}

func TestEmitReport(t *testing.T) {
	sink := &test.RecordingSink{}
	cmd := commands.NewEmitReport("log-sink", sink)

	chCtx := cor.NewContext(context.Background())
	assert.False(t, cmd.IsExecutable(chCtx))

	chCtx.Add(commands.ParamReport, model.EpochReport{RunId: "r", Epoch: 2})
	require.True(t, cmd.IsExecutable(chCtx))
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())
	require.Len(t, sink.Reports, 1)
	assert.Equal(t, 2, sink.Reports[0].Epoch)

	failing := commands.NewEmitReport("bq-sink", &test.RecordingSink{Err: errors.New("quota")})
	failing.Execute(chCtx)
	assert.Error(t, chCtx.Err())
}
