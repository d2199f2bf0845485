package resultstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"whisperclient/pkg/s3client"
)

type ObjectStore interface {
	ObjectExists(ctx context.Context, bucket, objectName string) (bool, error)
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error
}

var _ ObjectStore = (*s3client.Client)(nil)

// S3 stores results as objects. Absolute keys are reduced to their last two path
// elements so an explicit destination still lands next to the default layout.
type S3 struct {
	Store  ObjectStore
	Bucket string
	Prefix string
	Erase  bool
}

func (s *S3) ObjectName(key string) string {
	if filepath.IsAbs(key) {
		key = filepath.Join(filepath.Base(filepath.Dir(key)), filepath.Base(key))
	}

	return path.Join(strings.Trim(s.Prefix, "/"), filepath.ToSlash(key))
}

func (s *S3) Write(ctx context.Context, key, contentType string, data []byte) (bool, error) {
	name := s.ObjectName(key)

	if !s.Erase {
		exists, err := s.Store.ObjectExists(ctx, s.Bucket, name)
		if err != nil {
			return false, fmt.Errorf("failed to stat object %s: %w", name, err)
		}
		if exists {
			return false, nil
		}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.Store.PutObject(ctx, s.Bucket, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return false, fmt.Errorf("failed to put object %s: %w", name, err)
	}

	return true, nil
}
