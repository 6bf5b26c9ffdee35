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

// Package dataset adapts the HMDB51 layout to the training loop.
//
// Layout:
//   - Videos live under `<root>/<class>/<video>`.
//   - Each class has one split file per fold, `<splits>/<class>_test_split<fold>.txt`,
//     with one `<video> <tag>` pair per line. Tag 1 marks a training video,
//     tag 2 a test video and tag 0 a video unused by that fold.
//   - Class indices follow the sorted order of the class directories.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Split tags.
const (
	TagUnused = 0
	TagTrain  = 1
	TagTest   = 2
)

// HMDB51 ships three folds.
const (
	MinFold = 1
	MaxFold = 3
)

// Sample is one labeled video.
type Sample struct {
	Path  string
	Label int
	Class string
}

// SplitEntry is one line of a split file.
type SplitEntry struct {
	Video string
	Tag   int
}

// Split is the train and test partition of one fold.
type Split struct {
	Classes []string
	Train   []Sample
	Test    []Sample
}

// SplitFileName returns the split file name of class for fold.
func SplitFileName(class string, fold int) string {
	return fmt.Sprintf("%s_test_split%d.txt", class, fold)
}

// ParseSplitFile reads `<video> <tag>` lines. Blank lines are skipped.
func ParseSplitFile(r io.Reader) ([]SplitEntry, error) {
	entries := make([]SplitEntry, 0)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected `<video> <tag>`, got %q", line, scanner.Text())
		}
		tag, err := strconv.Atoi(fields[1])
		if err != nil || tag < TagUnused || tag > TagTest {
			return nil, fmt.Errorf("line %d: invalid tag %q", line, fields[1])
		}
		entries = append(entries, SplitEntry{Video: fields[0], Tag: tag})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListClasses returns the sorted names of the class directories under root.
func ListClasses(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset root %s: %w", root, err)
	}
	classes := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classes = append(classes, e.Name())
		}
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("dataset root %s holds no class directories", root)
	}
	sort.Strings(classes)
	return classes, nil
}

// LoadSplit builds the train and test samples of fold. Videos named in a
// split file but missing on disk are skipped with a warning.
//
// Inputs:
//   - root: The dataset root holding one directory per class.
//   - splitsDir: The directory holding the split files.
//   - fold: 1, 2 or 3.
//
// Outputs:
//   - *Split: Samples in class order, then split-file order.
//   - error: An invalid fold, an unreadable root or a missing or malformed split file.
func LoadSplit(root, splitsDir string, fold int) (*Split, error) {
	if fold < MinFold || fold > MaxFold {
		return nil, fmt.Errorf("fold must be between %d and %d, got %d", MinFold, MaxFold, fold)
	}
	classes, err := ListClasses(root)
	if err != nil {
		return nil, err
	}
	split := &Split{Classes: classes}
	skipped := 0
	for label, class := range classes {
		entries, err := readSplitFile(filepath.Join(splitsDir, SplitFileName(class, fold)))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.Tag == TagUnused {
				continue
			}
			path := filepath.Join(root, class, entry.Video)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				skipped++
				continue
			}
			sample := Sample{Path: path, Label: label, Class: class}
			if entry.Tag == TagTrain {
				split.Train = append(split.Train, sample)
			} else {
				split.Test = append(split.Test, sample)
			}
		}
	}
	if skipped > 0 {
		slog.Warn("split files name videos missing from the dataset root", "root", root, "fold", fold, "skipped", skipped)
	}
	slog.Info("loaded split", "fold", fold, "classes", len(classes), "train", len(split.Train), "test", len(split.Test))
	return split, nil
}

func readSplitFile(path string) ([]SplitEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open split file: %w", err)
	}
	defer f.Close()
	entries, err := ParseSplitFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse split file %s: %w", path, err)
	}
	return entries, nil
}
