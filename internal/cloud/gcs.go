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

// Package cloud: this file defines object locators. Weights, class-name files
// and videos may be given as local paths or as `gs://bucket/object`
// (Cloud Storage) or `s3://bucket/object` (MinIO) URIs.
package cloud

import (
	"fmt"
	"strings"
)

// Supported URI schemes.
const (
	SchemeLocal = ""
	SchemeGCS   = "gs"
	SchemeS3    = "s3"
)

// GCSObject locates an object in a bucket store. Despite the name it is used
// for both Cloud Storage and MinIO; Scheme tells them apart.
type GCSObject struct {
	Scheme string // gs or s3; empty for a local path.
	Bucket string
	Name   string // Object name, or the local path when Scheme is empty.
}

// String renders the object back into URI form.
func (o GCSObject) String() string {
	if o.Scheme == SchemeLocal {
		return o.Name
	}
	return fmt.Sprintf("%s://%s/%s", o.Scheme, o.Bucket, o.Name)
}

// IsRemote reports whether the object must be fetched before use.
func (o GCSObject) IsRemote() bool {
	return o.Scheme != SchemeLocal
}

// ParseObjectURI splits a gs:// or s3:// URI into bucket and object. Anything
// without a recognised scheme is treated as a local path.
func ParseObjectURI(uri string) (GCSObject, error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return GCSObject{Name: uri}, nil
	}
	switch scheme {
	case SchemeGCS, SchemeS3:
	default:
		return GCSObject{}, fmt.Errorf("unsupported scheme %q in %s", scheme, uri)
	}
	bucket, name, _ := strings.Cut(rest, "/")
	if bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("uri %s must be %s://bucket/object", uri, scheme)
	}
	return GCSObject{Scheme: scheme, Bucket: bucket, Name: name}, nil
}
