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

// Package cloud: this file implements ArtifactFetcher, which turns a local
// path or an object URI into a local file path.
//
// Logic Flow:
//  1. The URI is parsed with ParseObjectURI. Local paths are returned as is.
//  2. The matching client is created on first use: a Cloud Storage client for
//     gs:// (with the configured credentials file, if any) and a MinIO client
//     for s3://. A run that only touches local files never needs credentials.
//  3. The object is downloaded into a temp file that keeps the object's
//     extension, so later sniffing and decoding see a familiar name.
//  4. The caller owns the temp file and is told so through the returned flag.
package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/api/option"
)

// TempFilePrefix prefixes every downloaded artifact.
const TempFilePrefix = "har-artifact-"

// Fetcher resolves an artifact URI to a local path.
type Fetcher interface {
	// Fetch returns a local path for uri. temp is true when the path is a
	// download the caller must remove.
	Fetch(ctx context.Context, uri string) (localPath string, temp bool, err error)
}

// Uploader publishes a local file to an artifact URI.
type Uploader interface {
	Upload(ctx context.Context, local, uri string) error
}

// ArtifactFetcher is the Fetcher used by both commands.
type ArtifactFetcher struct {
	config *Config

	mu            sync.Mutex
	storageClient *storage.Client
	minioClient   *minio.Client
}

// NewArtifactFetcher returns a fetcher that builds its clients from config on demand.
func NewArtifactFetcher(config *Config) *ArtifactFetcher {
	return &ArtifactFetcher{config: config}
}

// Fetch implements Fetcher.
func (f *ArtifactFetcher) Fetch(ctx context.Context, uri string) (string, bool, error) {
	obj, err := ParseObjectURI(uri)
	if err != nil {
		return "", false, err
	}
	if !obj.IsRemote() {
		return obj.Name, false, nil
	}

	tempFile, err := os.CreateTemp("", TempFilePrefix+"*"+path.Ext(obj.Name))
	if err != nil {
		return "", false, fmt.Errorf("could not create temp file: %w", err)
	}
	local := tempFile.Name()
	_ = tempFile.Close()

	switch obj.Scheme {
	case SchemeGCS:
		err = f.fetchGCS(ctx, obj, local)
	case SchemeS3:
		err = f.fetchS3(ctx, obj, local)
	}
	if err != nil {
		_ = os.Remove(local)
		return "", false, err
	}
	slog.Info("downloaded artifact", "uri", obj.String(), "path", local)
	return local, true, nil
}

func (f *ArtifactFetcher) fetchGCS(ctx context.Context, obj GCSObject, local string) error {
	client, err := f.gcsClient(ctx)
	if err != nil {
		return err
	}
	reader, err := client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to create GCS reader for %s: %w", obj, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close GCS reader", "uri", obj.String(), "error", err)
		}
	}()

	out, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", local, err)
	}
	written, err := io.Copy(out, reader)
	closeErr := out.Close()
	if err != nil {
		return fmt.Errorf("failed to copy %s after %d bytes: %w", obj, written, err)
	}
	return closeErr
}

func (f *ArtifactFetcher) fetchS3(ctx context.Context, obj GCSObject, local string) error {
	client, err := f.s3Client()
	if err != nil {
		return err
	}
	if err := client.FGetObject(ctx, obj.Bucket, obj.Name, local, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", obj, err)
	}
	return nil
}

// Upload copies the local file to uri. A local uri is a plain file copy.
func (f *ArtifactFetcher) Upload(ctx context.Context, local, uri string) error {
	obj, err := ParseObjectURI(uri)
	if err != nil {
		return err
	}
	switch obj.Scheme {
	case SchemeGCS:
		err = f.uploadGCS(ctx, local, obj)
	case SchemeS3:
		err = f.uploadS3(ctx, local, obj)
	default:
		if local == obj.Name {
			return nil
		}
		err = copyFile(local, obj.Name)
	}
	if err != nil {
		return err
	}
	slog.Info("uploaded artifact", "path", local, "uri", obj.String())
	return nil
}

func (f *ArtifactFetcher) uploadGCS(ctx context.Context, local string, obj GCSObject) error {
	client, err := f.gcsClient(ctx)
	if err != nil {
		return err
	}
	in, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", local, err)
	}
	defer in.Close()

	writer := client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	if written, err := io.Copy(writer, in); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy to %s after %d bytes: %w", obj, written, err)
	}
	// The object only exists once Close succeeds.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", obj, err)
	}
	return nil
}

func (f *ArtifactFetcher) uploadS3(ctx context.Context, local string, obj GCSObject) error {
	client, err := f.s3Client()
	if err != nil {
		return err
	}
	if _, err := client.FPutObject(ctx, obj.Bucket, obj.Name, local, minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", obj, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open source file: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("could not open dest file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("could not copy to dest from source: %w", err)
	}
	return out.Close()
}

func (f *ArtifactFetcher) gcsClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storageClient != nil {
		return f.storageClient, nil
	}
	var opts []option.ClientOption
	if f.config.Application.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.config.Application.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	f.storageClient = client
	return client, nil
}

func (f *ArtifactFetcher) s3Client() (*minio.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.minioClient != nil {
		return f.minioClient, nil
	}
	cfg := f.config.MinIO
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3:// artifacts need minio.endpoint to be configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	f.minioClient = client
	return client, nil
}

// Close releases any clients the fetcher created.
func (f *ArtifactFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storageClient != nil {
		_ = f.storageClient.Close()
		f.storageClient = nil
	}
	f.minioClient = nil
}
