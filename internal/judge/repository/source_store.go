package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"codearena/internal/common/storage"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// SourceFetcher resolves sources uploaded to object storage instead of
// being sent inline.
type SourceFetcher interface {
	FetchSource(ctx context.Context, key string) (string, error)
}

// ObjectStore serves submission sources and archives compile diagnostics
// in one bucket.
type ObjectStore struct {
	storage           storage.ObjectStorage
	bucket            string
	diagnosticsPrefix string
}

func NewObjectStore(objectStorage storage.ObjectStorage, bucket, diagnosticsPrefix string) *ObjectStore {
	if diagnosticsPrefix == "" {
		diagnosticsPrefix = "diagnostics"
	}
	return &ObjectStore{
		storage:           objectStorage,
		bucket:            bucket,
		diagnosticsPrefix: strings.TrimSuffix(diagnosticsPrefix, "/"),
	}
}

// FetchSource reads a source object, refusing anything above MaxCodeBytes.
func (s *ObjectStore) FetchSource(ctx context.Context, key string) (string, error) {
	obj, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", appErr.Newf(appErr.ObjectNotFound, "source %s not found", key)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "fetch source failed")
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, model.MaxCodeBytes+1))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	if len(data) > model.MaxCodeBytes {
		return "", appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", model.MaxCodeBytes)
	}
	return string(data), nil
}

// SaveDiagnostics archives compile output under <prefix>/<submission>.log.
func (s *ObjectStore) SaveDiagnostics(ctx context.Context, submissionID, diagnostics string) error {
	key := s.DiagnosticsKey(submissionID)
	if err := s.storage.PutObject(ctx, s.bucket, key, strings.NewReader(diagnostics), int64(len(diagnostics)), "text/plain; charset=utf-8"); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "archive diagnostics failed")
	}
	return nil
}

func (s *ObjectStore) DiagnosticsKey(submissionID string) string {
	return fmt.Sprintf("%s/%s.log", s.diagnosticsPrefix, submissionID)
}
