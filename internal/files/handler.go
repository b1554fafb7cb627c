package files

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/response"
	"github.com/filedrop/service/internal/storage"
)

// maxKeyBytes bounds how much of a "key" field is read.
const maxKeyBytes = 4 << 10

// Handler holds HTTP handlers for upload, delete and retrieval.
type Handler struct {
	svc       *Service
	maxUpload int64
	timeout   time.Duration
	strict    bool
	log       *zap.Logger
}

// NewHandler creates a new files Handler.
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{
		svc:       svc,
		maxUpload: cfg.MaxUploadBytes,
		timeout:   cfg.UploadTimeout,
		strict:    cfg.StrictUploadKey,
		log:       svc.log,
	}
}

type fileLinks struct {
	URL       string `json:"url"        example:"http://localhost/i/cat.png"`
	DeleteURL string `json:"delete_url" example:"http://localhost/delete?filename=cat.png&key=key&subdir=i"`
}

type uploadResponse struct {
	Success bool       `json:"success"`
	File    *fileLinks `json:"file,omitempty"`
}

// uploadRequest is the per-request state gathered while reading the body.
type uploadRequest struct {
	fileName string
	tmpPath  string
	keyOK    bool
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the file under the image or generic subdir and returns its URL and delete URL. A wrong or missing key answers 400 with success=false.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Param			key		formData	string	true	"Shared secret key"
//	@Success		200		{object}	uploadResponse
//	@Failure		400		{object}	uploadResponse
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, err := h.readUpload(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !req.keyOK {
		h.svc.audit.Warn("upload with invalid key",
			zap.String("file_name", req.fileName),
			zap.String("remote_addr", r.RemoteAddr),
		)
		if h.strict {
			h.svc.Discard(req.tmpPath)
			h.fail(w, r, ErrInvalidKey)
			return
		}
	}

	f, err := h.svc.Publish(ctx, req.tmpPath, req.fileName)
	if err != nil {
		h.svc.Discard(req.tmpPath)
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if !req.keyOK {
		status = http.StatusBadRequest
	}
	response.JSON(w, status, uploadResponse{Success: req.keyOK, File: h.links(r, f)})
}

// readUpload consumes the multipart body. The first file part is spooled to
// scratch as it arrives; later file parts and unknown fields are drained.
func (h *Handler) readUpload(r *http.Request) (*uploadRequest, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, ErrBadMultipart
	}

	req := &uploadRequest{}
	abort := func(err error) (*uploadRequest, error) {
		if req.tmpPath != "" {
			h.svc.Discard(req.tmpPath)
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return abort(bodyError(err))
		}

		raw := part.FileName()
		name := baseName(raw)
		switch {
		case raw != "" && req.tmpPath == "":
			if !validName(name) {
				_ = part.Close()
				return abort(ErrBadFilename)
			}
			src := &recordingReader{r: part}
			tmp, err := h.svc.Spool(src)
			if err != nil {
				_ = part.Close()
				if src.err != nil {
					return abort(bodyError(src.err))
				}
				return abort(err)
			}
			req.fileName, req.tmpPath = name, tmp
			h.log.Info("file received", zap.String("file_name", name), zap.String("tmp_path", tmp))
		case raw == "" && part.FormName() == "key":
			v, err := io.ReadAll(io.LimitReader(part, maxKeyBytes))
			if err != nil {
				_ = part.Close()
				return abort(bodyError(err))
			}
			if h.svc.KeyMatches(string(v)) {
				req.keyOK = true
			}
		default:
			if _, err := io.Copy(io.Discard, part); err != nil {
				_ = part.Close()
				return abort(bodyError(err))
			}
		}
		_ = part.Close()
	}

	if req.tmpPath == "" {
		return nil, ErrNoFile
	}
	return req, nil
}

// links builds the public and delete URLs from the request's own host and
// transport.
func (h *Handler) links(r *http.Request, f StoredFile) *fileLinks {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	file := url.URL{Scheme: scheme, Host: r.Host, Path: "/" + f.Subdir + "/" + f.Name}
	del := url.URL{Scheme: scheme, Host: r.Host, Path: "/delete", RawQuery: h.svc.DeleteParams(f).Encode()}
	return &fileLinks{URL: file.String(), DeleteURL: del.String()}
}

// Delete godoc
//
//	@Summary		Delete a file
//	@Description	Removes a previously uploaded file. The parameters are those embedded in the delete URL.
//	@Tags			files
//	@Produce		json
//	@Param			filename	query		string	true	"Stored file name"
//	@Param			key			query		string	true	"Shared secret key"
//	@Param			subdir		query		string	true	"Public subdir (f or i)"
//	@Success		200			{object}	response.Envelope
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/delete [get]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("filename")
	h.log.Info("delete requested",
		zap.String("filename", name),
		zap.String("subdir", q.Get("subdir")),
	)

	if err := h.svc.Delete(r.Context(), q.Get("subdir"), name, q.Get("key")); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Deleted file "+name)
}

// Serve returns a handler that serves files of one public subdir by exact
// name. There is no directory listing.
func (h *Handler) Serve(subdir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if r.URL.RawPath != "" {
			if unescaped, err := url.PathUnescape(name); err == nil {
				name = unescaped
			}
		}

		rc, modTime, err := h.svc.Open(r.Context(), subdir, name)
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			h.log.Error("open file", zap.String("subdir", subdir), zap.String("name", name), zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = rc.Close() }()

		http.ServeContent(w, r, name, modTime, rc)
	}
}

// Root answers GET / without exposing any listing.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	response.Text(w, http.StatusOK, "Listing not allowed")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fe *Error
	if errors.As(err, &fe) {
		h.log.Info("request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", fe.Status()),
			zap.String("reason", fe.Message),
		)
		response.Error(w, fe.Status(), fe.Message, fe.Fix)
		return
	}
	h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	response.InternalError(w)
}

// bodyError maps a failure reading the request body to a caller-facing error.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrTooLarge
	}
	return ErrBadMultipart
}

// recordingReader remembers the first read error so body faults can be told
// apart from scratch-disk faults.
type recordingReader struct {
	r   io.Reader
	err error
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF && rr.err == nil {
		rr.err = err
	}
	return n, err
}
