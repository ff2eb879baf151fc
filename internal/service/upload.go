package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/metrics"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/storage"
)

// Upload kinds become the second segment of the object key.
const (
	UploadSnippet     = "snippets"
	UploadBoilerplate = "boilerplates"
)

// UploadFile is one file from a multipart request. Size is what the
// multipart header declared; the length measured by seeking Body is what
// gets enforced and sent to the store.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

// UploadService puts user files in the object store and returns the
// descriptors that get saved on a snippet or boilerplate.
//
// KEY LAYOUT:
//
//	{userID}/{kind}/{xid}-{sanitized name}
//
// The xid prefix keeps two uploads of "main.go" from overwriting each other.
type UploadService struct {
	store    storage.ObjectStore
	maxBytes int64
	maxFiles int
	logger   *slog.Logger
}

func NewUploadService(store storage.ObjectStore, maxBytes int64, maxFiles int, logger *slog.Logger) *UploadService {
	return &UploadService{store: store, maxBytes: maxBytes, maxFiles: maxFiles, logger: logger}
}

// MaxBytes is the per-file size limit. The handler sizes its multipart
// buffer from it.
func (s *UploadService) MaxBytes() int64 { return s.maxBytes }

// MaxFiles is the per-request file count limit.
func (s *UploadService) MaxFiles() int { return s.maxFiles }

// Upload stores every file or none: if one fails, the ones already written
// are deleted before the error is returned.
func (s *UploadService) Upload(ctx context.Context, userID, kind string, files []UploadFile) ([]model.FileDescriptor, error) {
	if kind != UploadSnippet && kind != UploadBoilerplate {
		return nil, apperror.ValidationFailed("kind", "unknown upload kind")
	}
	if len(files) == 0 {
		return nil, apperror.ValidationFailed("files", "no files uploaded")
	}
	if len(files) > s.maxFiles {
		return nil, apperror.ValidationFailed("files",
			fmt.Sprintf("at most %d files per upload", s.maxFiles))
	}
	for _, f := range files {
		if f.Size > s.maxBytes {
			return nil, apperror.ValidationFailed("files",
				fmt.Sprintf("%s is larger than %d bytes", cleanFileName(f.Name), s.maxBytes))
		}
	}

	out := make([]model.FileDescriptor, 0, len(files))
	for _, f := range files {
		name := cleanFileName(f.Name)
		key := path.Join(userID, kind, xid.New().String()+"-"+name)
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		size, err := measure(f.Body)
		if err == nil && size > s.maxBytes {
			err = apperror.ValidationFailed("files",
				fmt.Sprintf("%s is larger than %d bytes", name, s.maxBytes))
		}
		var url string
		if err == nil {
			url, err = s.store.Put(ctx, key, contentType, f.Body, size)
		}
		if err != nil {
			s.rollback(ctx, out)
			if errors.Is(err, storage.ErrNotConfigured) || errors.Is(err, apperror.ErrValidation) {
				return nil, err
			}
			s.logger.Error("upload failed",
				slog.String("user_id", userID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("uploading %s: %w", name, err)
		}

		metrics.UploadBytes.Add(float64(size))
		out = append(out, model.FileDescriptor{
			URL:  url,
			Name: name,
			Size: size,
			Type: contentType,
			Path: key,
		})
	}

	s.logger.Info("files uploaded",
		slog.String("user_id", userID),
		slog.String("kind", kind),
		slog.Int("count", len(out)),
	)
	return out, nil
}

func (s *UploadService) rollback(ctx context.Context, written []model.FileDescriptor) {
	for _, f := range written {
		if err := s.store.Delete(ctx, f.Path); err != nil {
			s.logger.Warn("upload rollback failed",
				slog.String("key", f.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// cleanFileName keeps the base name and replaces anything outside a
// conservative set with '_'. Never empty.
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 100 {
		out = out[len(out)-100:]
	}
	return out
}

// measure returns the body's length and leaves it rewound.
func measure(body io.ReadSeeker) (int64, error) {
	if body == nil {
		return 0, apperror.ValidationFailed("files", "empty file part")
	}
	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measuring upload: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding upload: %w", err)
	}
	return size, nil
}
