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

// Context keys shared by the inference chain. Values flowing from one command
// straight into the next use cor.CtxIn / cor.CtxOut instead.
const (
	ParamWeightsURI  = "weights_uri"  // string: weight file path or object URI.
	ParamWeightsPath = "weights_path" // string: local weight file.
	ParamVideoURI    = "video_uri"    // string: video path, frame directory or object URI.
	ParamNumClasses  = "num_classes"  // int
	ParamTopK        = "top_k"        // int
	ParamClassNames  = "class_names"  // []string, optional.
	ParamClassifier  = "classifier"   // network.Classifier
	ParamResult      = "result"       // model.ClassificationResult
	ParamReport      = "report"       // model.EpochReport
)
