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

package video

// tap describes how one output coordinate blends two input coordinates.
type tap struct {
	lo, hi   int     // Neighbouring source indices; hi == lo at the far edge.
	wLo, wHi float32 // Blend weights, wLo + wHi == 1.
}

// resizeTaps precomputes the half-pixel (align_corners=false) source mapping
// from an axis of length in to one of length out. Source coordinates below
// zero are clamped to zero.
func resizeTaps(in, out int) []tap {
	taps := make([]tap, out)
	scale := float32(in) / float32(out)
	for d := range taps {
		src := scale*(float32(d)+0.5) - 0.5
		if src < 0 {
			src = 0
		}
		lo := int(src)
		hi := lo
		if lo < in-1 {
			hi = lo + 1
		}
		frac := src - float32(lo)
		taps[d] = tap{lo: lo, hi: hi, wLo: 1 - frac, wHi: frac}
	}
	return taps
}

// resizePlane bilinearly resamples a row-major plane of width inW into dst,
// a row-major plane of width outW, using precomputed row and column taps.
func resizePlane(src []float32, inW int, dst []float32, outW int, rows, cols []tap) {
	for y, r := range rows {
		top := src[r.lo*inW : (r.lo+1)*inW]
		bottom := src[r.hi*inW : (r.hi+1)*inW]
		line := dst[y*outW : (y+1)*outW]
		for x, c := range cols {
			line[x] = r.wLo*(c.wLo*top[c.lo]+c.wHi*top[c.hi]) +
				r.wHi*(c.wLo*bottom[c.lo]+c.wHi*bottom[c.hi])
		}
	}
}
