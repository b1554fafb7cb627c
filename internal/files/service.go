// Package files implements the upload/delete gateway: spooling multipart
// uploads, checking the shared key, classifying and publishing files, and
// deleting them again.
package files

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/logging"
	"github.com/filedrop/service/internal/storage"
)

// StoredFile is a published file: Name inside the public Subdir.
type StoredFile struct {
	Subdir string
	Name   string
}

// Key is the storage key of the file, e.g. "i/cat.png".
func (f StoredFile) Key() string {
	return f.Subdir + "/" + f.Name
}

// Service contains the gateway logic. It holds no request state.
type Service struct {
	store    storage.Storage
	scratch  afero.Fs
	tmpDir   string
	secret   string
	fileDir  string
	imageDir string
	log      *zap.Logger
	audit    *zap.Logger
}

// NewService creates the scratch directory if absent and returns a Service.
func NewService(cfg *config.Config, store storage.Storage, scratch afero.Fs, log *zap.Logger) (*Service, error) {
	tmpDir := cfg.ScratchDir()
	if err := scratch.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %q: %w", tmpDir, err)
	}
	return &Service{
		store:    store,
		scratch:  scratch,
		tmpDir:   tmpDir,
		secret:   cfg.Key,
		fileDir:  cfg.FileDir,
		imageDir: cfg.ImageDir,
		log:      log,
		audit:    logging.Audit(log),
	}, nil
}

// KeyMatches compares key against the shared secret in constant time.
func (s *Service) KeyMatches(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.secret)) == 1
}

// Spool streams src into a new uniquely named scratch file and returns its path.
// On failure nothing is left behind.
func (s *Service) Spool(src io.Reader) (string, error) {
	p := filepath.Join(s.tmpDir, uuid.NewString())
	f, err := s.scratch.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.Discard(p)
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return p, nil
}

// Discard removes a scratch file that will not be published.
func (s *Service) Discard(tmpPath string) {
	if err := s.scratch.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("remove scratch file", zap.String("path", tmpPath), zap.Error(err))
	}
}

// Classify picks the public subdir for fileName and sanitizes the name.
func (s *Service) Classify(fileName string) StoredFile {
	subdir := s.fileDir
	if isImage(fileName) {
		subdir = s.imageDir
	}
	return StoredFile{Subdir: subdir, Name: sanitizeName(fileName)}
}

// Publish moves the spooled file to its public location, replacing any file
// already published under the same name.
func (s *Service) Publish(ctx context.Context, tmpPath, fileName string) (StoredFile, error) {
	f := s.Classify(fileName)
	s.log.Info("publishing file",
		zap.String("file_name", fileName),
		zap.String("subdir", f.Subdir),
		zap.String("name", f.Name),
		zap.String("tmp_path", tmpPath),
	)
	if err := s.store.Place(ctx, f.Key(), tmpPath); err != nil {
		return StoredFile{}, fmt.Errorf("publish %q: %w", f.Key(), err)
	}
	return f, nil
}

// DeleteParams returns the query of the file's delete URL. It embeds the
// shared secret, so the resulting URL is a bearer credential.
func (s *Service) DeleteParams(f StoredFile) url.Values {
	return url.Values{
		"filename": {f.Name},
		"key":      {s.secret},
		"subdir":   {f.Subdir},
	}
}

// Delete removes a published file after checking the key and the location.
func (s *Service) Delete(ctx context.Context, subdir, name, key string) error {
	if subdir == "" || name == "" || key == "" {
		return ErrMissingParams
	}
	if !s.KeyMatches(key) {
		s.audit.Warn("delete rejected: invalid key",
			zap.String("subdir", subdir),
			zap.String("filename", name),
		)
		return ErrInvalidKey
	}
	if subdir != s.fileDir && subdir != s.imageDir {
		return ErrBadSubdir
	}
	if !validName(name) {
		return ErrBadFilename
	}

	f := StoredFile{Subdir: subdir, Name: name}
	err := s.store.Remove(ctx, f.Key())
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Info("delete target not found", zap.String("key", f.Key()))
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %q: %w", f.Key(), err)
	}
	s.log.Info("deleted file", zap.String("key", f.Key()))
	return nil
}

// Open returns a published file for serving. Names that are not a single
// path element are reported as storage.ErrNotFound.
func (s *Service) Open(ctx context.Context, subdir, name string) (io.ReadSeekCloser, time.Time, error) {
	if !validName(name) {
		return nil, time.Time{}, storage.ErrNotFound
	}
	return s.store.Open(ctx, StoredFile{Subdir: subdir, Name: name}.Key())
}
