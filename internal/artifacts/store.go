// Package artifacts persists the payloads a pipeline produces beyond
// the ledger: step artifacts, SBOM documents and autofix patch bodies.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ArtifactKey locates one step artifact inside the bucket.
func ArtifactKey(projectID, runID, stage, name string) string {
	return path.Join("projects", projectID, "runs", runID, stage, name)
}

// PatchKey locates the diff body for one autofix attempt.
func PatchKey(projectID, autofixRunID string) string {
	return path.Join("projects", projectID, "autofix", autofixRunID, "patch.diff")
}

// MinioStore writes stage payloads and patch bodies to the artifacts
// bucket. It satisfies the executor's artifact store and the autofix
// pipeline's patch store.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) PutArtifact(ctx context.Context, projectID, runID, stage, name string, body []byte, contentType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("artifact store not initialized")
	}
	key := ArtifactKey(strings.TrimSpace(projectID), strings.TrimSpace(runID), strings.TrimSpace(stage), strings.TrimSpace(name))
	if err := s.put(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("put artifact: %w", err)
	}
	return key, nil
}

func (s *MinioStore) PutPatch(ctx context.Context, projectID, autofixRunID string, diff []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("artifact store not initialized")
	}
	key := PatchKey(strings.TrimSpace(projectID), strings.TrimSpace(autofixRunID))
	if err := s.put(ctx, key, diff, "text/x-diff"); err != nil {
		return "", fmt.Errorf("put patch: %w", err)
	}
	return key, nil
}

func (s *MinioStore) put(ctx context.Context, key string, body []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	return err
}
