package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/citytours/backend/internal/config"
	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	thumbnailDir    = "thumbnails"
	thumbnailSuffix = "_thumb.jpg"
	uploadsURLPath  = "/uploads"
)

// ObjectMirror receives copies of stored files. Mirror failures never fail a request.
type ObjectMirror interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// StorageService keeps optimized images and thumbnails on the local filesystem.
type StorageService struct {
	root    string
	baseURL string
	mirror  ObjectMirror
	log     zerolog.Logger
}

func NewStorageService(cfg *config.Config, mirror ObjectMirror, log zerolog.Logger) *StorageService {
	return &StorageService{
		root:    cfg.UploadDir,
		baseURL: cfg.PublicBaseURL,
		mirror:  mirror,
		log:     logging.Component(log, "storage"),
	}
}

// ThumbnailName derives the thumbnail file name from the optimized file name.
func ThumbnailName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + thumbnailSuffix
}

func (s *StorageService) URLFor(name string) string {
	return s.baseURL + uploadsURLPath + "/" + name
}

func (s *StorageService) ThumbnailURLFor(name string) string {
	return s.baseURL + uploadsURLPath + "/" + thumbnailDir + "/" + ThumbnailName(name)
}

// Root is the directory served under /uploads.
func (s *StorageService) Root() string {
	return s.root
}

func (s *StorageService) optimizedPath(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

func (s *StorageService) thumbnailPath(name string) string {
	return filepath.Join(s.root, thumbnailDir, ThumbnailName(filepath.Base(name)))
}

// Save writes both variants and returns their public URLs. Nothing is left behind on failure.
func (s *StorageService) Save(ctx context.Context, name string, optimized, thumbnail []byte) (string, string, error) {
	optPath := s.optimizedPath(name)
	if _, err := s.writeFile(optPath, bytes.NewReader(optimized)); err != nil {
		metrics.RecordStorage("local", "save", err)
		return "", "", &StorageError{Op: "write " + name, Err: err}
	}
	if _, err := s.writeFile(s.thumbnailPath(name), bytes.NewReader(thumbnail)); err != nil {
		_ = os.Remove(optPath)
		metrics.RecordStorage("local", "save", err)
		return "", "", &StorageError{Op: "write thumbnail of " + name, Err: err}
	}
	metrics.RecordStorage("local", "save", nil)

	if s.mirror != nil {
		s.mirrorPut(ctx, name, optimized, contentTypeForName(name))
		s.mirrorPut(ctx, thumbnailDir+"/"+ThumbnailName(name), thumbnail, "image/jpeg")
	}

	return s.URLFor(name), s.ThumbnailURLFor(name), nil
}

// Delete removes both variants. Files that are already gone count as deleted.
func (s *StorageService) Delete(ctx context.Context, name string) error {
	var errs []error
	for _, path := range []string{s.optimizedPath(name), s.thumbnailPath(name)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	metrics.RecordStorage("local", "delete", err)

	if s.mirror != nil {
		for _, key := range []string{name, thumbnailDir + "/" + ThumbnailName(name)} {
			if merr := s.mirror.DeleteObject(ctx, key); merr != nil {
				s.log.Warn().Err(merr).Str("key", key).Msg("mirror delete failed")
			}
		}
	}

	if err != nil {
		return &StorageError{Op: "delete " + name, Err: err}
	}
	return nil
}

// Exists reports whether the optimized file of name is on disk.
func (s *StorageService) Exists(name string) bool {
	_, err := os.Stat(s.optimizedPath(name))
	return err == nil
}

// Health checks that the upload directory is writable.
func (s *StorageService) Health(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	probe := filepath.Join(s.root, ".health_check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("upload directory not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

// writeFile streams r into path through a .part file and renames it into place
func (s *StorageService) writeFile(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

func (s *StorageService) mirrorPut(ctx context.Context, key string, data []byte, contentType string) {
	if err := s.mirror.PutObject(ctx, key, data, contentType); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("mirror upload failed")
	}
}

// contentTypeForName returns the content type based on file extension
func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
