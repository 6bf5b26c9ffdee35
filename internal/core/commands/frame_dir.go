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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jaycherian/go-action-recognition/internal/core/model"
)

// frameExtensions are the image formats FrameDirDecoder reads.
var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// FrameDirDecoder decodes a directory of extracted frames. Frames are taken
// in natural file name order, so frame_2 precedes frame_10, and must all
// share the first frame's size.
type FrameDirDecoder struct{}

// Decode implements Decoder. Every failure is a *model.DecodeError.
func (FrameDirDecoder) Decode(ctx context.Context, dir string) (model.RawClip, error) {
	files, err := listFrames(dir)
	if err != nil {
		return model.RawClip{}, &model.DecodeError{Path: dir, Err: err}
	}

	var clip model.RawClip
	for t, file := range files {
		if err := ctx.Err(); err != nil {
			return model.RawClip{}, &model.DecodeError{Path: dir, Err: err}
		}
		img, err := imaging.Open(file)
		if err != nil {
			return model.RawClip{}, &model.DecodeError{Path: dir, Err: err}
		}
		nrgba := imaging.Clone(img)
		bounds := nrgba.Bounds()
		if t == 0 {
			clip = model.NewRawClip(len(files), bounds.Dy(), bounds.Dx(), 3)
		} else if bounds.Dy() != clip.Shape[model.AxisHeight] || bounds.Dx() != clip.Shape[model.AxisWidth] {
			return model.RawClip{}, &model.DecodeError{Path: dir, Err: fmt.Errorf("frame %s is %dx%d, expected %dx%d",
				filepath.Base(file), bounds.Dx(), bounds.Dy(), clip.Shape[model.AxisWidth], clip.Shape[model.AxisHeight])}
		}
		frame := clip.Frame(t)
		// NRGBA pixels are 4 bytes; drop alpha.
		for i, j := 0, 0; i < len(nrgba.Pix); i, j = i+4, j+3 {
			frame[j] = nrgba.Pix[i]
			frame[j+1] = nrgba.Pix[i+1]
			frame[j+2] = nrgba.Pix[i+2]
		}
	}
	return clip, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.New("directory holds no frame images")
	}
	sort.SliceStable(files, func(i, j int) bool {
		return naturalLess(filepath.Base(files[i]), filepath.Base(files[j]))
	})
	return files, nil
}

// naturalLess orders names with digit runs compared by numeric value.
// Names that compare equal that way fall back to byte order.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if a[i] != b[j] {
			return a[i] < b[j]
		}
		i++
		j++
	}
	if len(a)-i != len(b)-j {
		return len(a)-i < len(b)-j
	}
	return a < b
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// AutoDecoder routes directories to Frames and everything else to Video.
type AutoDecoder struct {
	Video  Decoder
	Frames Decoder
}

// NewAutoDecoder pairs an FFmpegDecoder with a FrameDirDecoder.
func NewAutoDecoder(ffmpegPath, ffprobePath string) *AutoDecoder {
	return &AutoDecoder{Video: NewFFmpegDecoder(ffmpegPath, ffprobePath), Frames: FrameDirDecoder{}}
}

// Decode implements Decoder.
func (d *AutoDecoder) Decode(ctx context.Context, path string) (model.RawClip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.RawClip{}, &model.DecodeError{Path: path, Err: err}
	}
	if info.IsDir() {
		return d.Frames.Decode(ctx, path)
	}
	return d.Video.Decode(ctx, path)
}
