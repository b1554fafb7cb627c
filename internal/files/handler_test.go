package files

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/service/internal/config"
)

type uploadBody struct {
	Success bool `json:"success"`
	File    *struct {
		URL       string `json:"url"`
		DeleteURL string `json:"delete_url"`
	} `json:"file"`
	Error *struct {
		Message string `json:"message"`
		Fix     string `json:"fix"`
	} `json:"error"`
}

func doUpload(t *testing.T, h *Handler, req *http.Request) (*httptest.ResponseRecorder, uploadBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Upload(rr, req)
	var body uploadBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return rr, body
}

func TestUpload_ImageWithKey(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("cat.png", "meow")))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.True(t, body.Success)
	require.NotNil(t, body.File)
	assert.Equal(t, "http://example.com/i/cat.png", body.File.URL)

	b, err := afero.ReadFile(e.fs, e.publicPath("i", "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "meow", string(b))
	assert.Equal(t, 0, e.scratchEntries(t))
}

func TestUpload_UppercaseExtensionIsGenericFile(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("photo.PNG", "x")))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "http://example.com/f/photo.PNG", body.File.URL)
	exists, _ := afero.Exists(e.fs, e.publicPath("f", "photo.PNG"))
	assert.True(t, exists)
}

func TestUpload_KeyAfterFile(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, filePart("a.txt", "x"), keyPart(testKey)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
}

func TestUpload_WrongKeyStillPublishes(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart("wrong"), filePart("cat.png", "meow")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, body.Success)
	require.NotNil(t, body.File)
	assert.Equal(t, "http://example.com/i/cat.png", body.File.URL)

	exists, _ := afero.Exists(e.fs, e.publicPath("i", "cat.png"))
	assert.True(t, exists)
}

func TestUpload_MissingKeyStillPublishes(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, filePart("a.txt", "x")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, body.Success)
	exists, _ := afero.Exists(e.fs, e.publicPath("f", "a.txt"))
	assert.True(t, exists)
}

func TestUpload_StrictModeRejectsWrongKey(t *testing.T) {
	e := newEnv(t, nil, func(c *config.Config) { c.StrictUploadKey = true })

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart("wrong"), filePart("cat.png", "meow")))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, body.Success)
	assert.Equal(t, ErrInvalidKey.Message, body.Error.Message)

	exists, _ := afero.Exists(e.fs, e.publicPath("i", "cat.png"))
	assert.False(t, exists)
	assert.Equal(t, 0, e.scratchEntries(t))
}

func TestUpload_FirstSpaceReplaced(t *testing.T) {
	e := newEnv(t, nil)

	_, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("my file.txt", "x")))
	assert.Equal(t, "http://example.com/f/my_file.txt", body.File.URL)

	_, body = doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("a b c.txt", "x")))
	assert.Equal(t, "http://example.com/f/a_b%20c.txt", body.File.URL)

	exists, _ := afero.Exists(e.fs, e.publicPath("f", "a_b c.txt"))
	assert.True(t, exists)
}

func TestUpload_ReuploadReplaces(t *testing.T) {
	e := newEnv(t, nil)

	doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("a.txt", "first")))
	doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("a.txt", "second")))

	b, err := afero.ReadFile(e.fs, e.publicPath("f", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))
}

func TestUpload_DeleteURL(t *testing.T) {
	e := newEnv(t, nil)

	_, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("cat.png", "meow")))

	u, err := url.Parse(body.File.DeleteURL)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "example.com", u.Host)
	assert.Equal(t, "/delete", u.Path)
	assert.Equal(t, "cat.png", u.Query().Get("filename"))
	assert.Equal(t, testKey, u.Query().Get("key"))
	assert.Equal(t, "i", u.Query().Get("subdir"))
}

func TestUpload_TLSUsesHTTPS(t *testing.T) {
	e := newEnv(t, nil)

	req := multipartRequest(t, keyPart(testKey), filePart("cat.png", "meow"))
	req.TLS = &tls.ConnectionState{}
	_, body := doUpload(t, e.handler, req)

	assert.True(t, strings.HasPrefix(body.File.URL, "https://example.com/"))
	assert.True(t, strings.HasPrefix(body.File.DeleteURL, "https://example.com/delete?"))
}

func TestUpload_ForwardedProtoIgnored(t *testing.T) {
	e := newEnv(t, nil)

	req := multipartRequest(t, keyPart(testKey), filePart("cat.png", "meow"))
	req.Header.Set("X-Forwarded-Proto", "https")
	_, body := doUpload(t, e.handler, req)

	assert.True(t, strings.HasPrefix(body.File.URL, "http://"))
}

func TestUpload_OnlyFirstFileUsed(t *testing.T) {
	e := newEnv(t, nil)

	_, body := doUpload(t, e.handler, multipartRequest(t,
		keyPart(testKey), filePart("one.txt", "1"), filePart("two.txt", "2"),
	))

	assert.Equal(t, "http://example.com/f/one.txt", body.File.URL)
	exists, _ := afero.Exists(e.fs, e.publicPath("f", "two.txt"))
	assert.False(t, exists)
	assert.Equal(t, 0, e.scratchEntries(t))
}

func TestUpload_EmptyFileAccepted(t *testing.T) {
	e := newEnv(t, nil)

	rr, _ := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("empty.txt", "")))

	assert.Equal(t, http.StatusOK, rr.Code)
	info, err := e.fs.Stat(e.publicPath("f", "empty.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestUpload_NoFile(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, body.Success)
	assert.Equal(t, ErrNoFile.Message, body.Error.Message)
}

func TestUpload_DotFileNameRejected(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("..", "x")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrBadFilename.Message, body.Error.Message)
}

func TestUpload_NotMultipart(t *testing.T) {
	e := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"key":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	rr, body := doUpload(t, e.handler, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrBadMultipart.Message, body.Error.Message)
}

func TestUpload_TooLarge(t *testing.T) {
	e := newEnv(t, nil, func(c *config.Config) { c.MaxUploadBytes = 1024 })

	rr, body := doUpload(t, e.handler, multipartRequest(t,
		filePart("big.bin", strings.Repeat("x", 16<<10)), keyPart(testKey),
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, ErrTooLarge.Message, body.Error.Message)
	assert.Equal(t, 0, e.scratchEntries(t))
}

func TestUpload_StorageFaultIs500(t *testing.T) {
	cfg := testConfig()
	fs := afero.NewMemMapFs()
	e := newEnvWithStore(t, nil, cfg, fs, failingStore{err: errDiskFull})

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart("a.txt", "x")))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, body.Success)
	assert.Equal(t, 0, e.scratchEntries(t))
}

func TestUpload_ConcurrentRequestsAreIsolated(t *testing.T) {
	e := newEnv(t, nil)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey
			if i%2 == 1 {
				key = "wrong"
			}
			name := fmt.Sprintf("file-%d.txt", i)
			req := multipartRequest(t, keyPart(key), filePart(name, name))

			rr := httptest.NewRecorder()
			e.handler.Upload(rr, req)

			var body uploadBody
			if !assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body)) {
				return
			}
			assert.Equal(t, i%2 == 0, body.Success, name)
			if assert.NotNil(t, body.File, name) {
				assert.Equal(t, "http://example.com/f/"+name, body.File.URL)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("file-%d.txt", i)
		b, err := afero.ReadFile(e.fs, e.publicPath("f", name))
		require.NoError(t, err)
		assert.Equal(t, name, string(b))
	}
}

func TestDelete_Handler(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, afero.WriteFile(e.fs, e.publicPath("i", "cat.png"), []byte("meow"), 0o644))

	del := func(query string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		e.handler.Delete(rr, httptest.NewRequest(http.MethodGet, "/delete?"+query, nil))
		return rr
	}

	rr := del("filename=cat.png&subdir=i")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":{"message":"Key/urlprefix and/or file name is empty.","fix":"Submit a key and/or file name."}}`, rr.Body.String())

	rr = del("filename=cat.png&key=nope&subdir=i")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":{"message":"Key is invalid.","fix":"Submit a valid key."}}`, rr.Body.String())

	rr = del("filename=cat.png&key=" + testKey + "&subdir=i")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Deleted file cat.png"}`, rr.Body.String())

	rr = del("filename=cat.png&key=" + testKey + "&subdir=i")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":{"message":"Cant find to delete","fix":"None"}}`, rr.Body.String())
}

func TestDelete_StorageFaultIs500(t *testing.T) {
	e := newEnvWithStore(t, nil, testConfig(), afero.NewMemMapFs(), failingStore{err: errDiskFull})

	rr := httptest.NewRecorder()
	e.handler.Delete(rr, httptest.NewRequest(http.MethodGet, "/delete?filename=a.txt&key="+testKey+"&subdir=f", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRoot(t *testing.T) {
	e := newEnv(t, nil)
	rr := httptest.NewRecorder()
	e.handler.Root(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Listing not allowed", rr.Body.String())
}

func TestUpload_ClientDirectoryStripped(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart(`C:\Users\me\dog.png`, "woof")))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, body.File)
	assert.Equal(t, "http://example.com/i/dog.png", body.File.URL)

	b, err := afero.ReadFile(e.fs, e.publicPath("i", "dog.png"))
	require.NoError(t, err)
	assert.Equal(t, "woof", string(b))
}

func TestUpload_DirectoryOnlyNameRejected(t *testing.T) {
	e := newEnv(t, nil)

	rr, body := doUpload(t, e.handler, multipartRequest(t, keyPart(testKey), filePart(`C:\Users\`, "x")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrBadFilename.Message, body.Error.Message)
	assert.Equal(t, 0, e.scratchEntries(t))
}
