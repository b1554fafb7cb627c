package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/storage"
)

const testKey = "s3cret"

type env struct {
	cfg     *config.Config
	fs      afero.Fs
	svc     *Service
	handler *Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Key:            testKey,
		WorkDir:        "data",
		ServeDir:       "public",
		TmpDir:         "tmp",
		FileDir:        "f",
		ImageDir:       "i",
		MaxUploadBytes: 1 << 20,
		UploadTimeout:  time.Minute,
		StorageBackend: config.BackendLocal,
	}
}

func newEnv(t *testing.T, log *zap.Logger, mutate ...func(*config.Config)) *env {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	fs := afero.NewMemMapFs()
	store, err := storage.NewLocalStorage(fs, cfg.ServeRoot(), cfg.Subdirs()...)
	require.NoError(t, err)
	return newEnvWithStore(t, log, cfg, fs, store)
}

func newEnvWithStore(t *testing.T, log *zap.Logger, cfg *config.Config, fs afero.Fs, store storage.Storage) *env {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	svc, err := NewService(cfg, store, fs, log)
	require.NoError(t, err)
	return &env{cfg: cfg, fs: fs, svc: svc, handler: NewHandler(svc, cfg)}
}

// publicPath is where a published file lives on the test filesystem.
func (e *env) publicPath(subdir, name string) string {
	return filepath.Join(e.cfg.ServeRoot(), subdir, name)
}

func (e *env) scratchEntries(t *testing.T) int {
	t.Helper()
	entries, err := afero.ReadDir(e.fs, e.cfg.ScratchDir())
	require.NoError(t, err)
	return len(entries)
}

type part struct {
	field    string
	fileName string
	body     string
}

func filePart(name, body string) part { return part{field: "file", fileName: name, body: body} }
func keyPart(key string) part { return part{field: "key", body: key} }

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		var (
			w   io.Writer
			err error
		)
		if p.fileName != "" {
			w, err = mw.CreateFormFile(p.field, p.fileName)
		} else {
			w, err = mw.CreateFormField(p.field)
		}
		require.NoError(t, err)
		_, err = io.WriteString(w, p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// failingStore lets tests inject storage faults.
type failingStore struct {
	storage.Storage
	err error
}

func (f failingStore) Place(context.Context, string, string) error { return f.err }
func (f failingStore) Remove(context.Context, string) error        { return f.err }

var errDiskFull = errors.New("no space left on device")
