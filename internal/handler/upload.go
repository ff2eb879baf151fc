package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/service"
)

// multipartMemory is how much of a multipart body is kept in RAM; the rest
// spills to temp files that are removed when the request ends.
const multipartMemory = 8 << 20

// UploadHandler accepts multipart/form-data with one or more "files" parts
// and answers with the stored file descriptors:
//
//	[{"url":"...","name":"main.go","size":120,"type":"text/x-go","path":"u1/snippets/..."}]
type UploadHandler struct {
	uploads *service.UploadService
	logger  *slog.Logger
}

func NewUploadHandler(uploads *service.UploadService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, logger: logger}
}

// HandleSnippetUpload: POST /api/upload
func (h *UploadHandler) HandleSnippetUpload(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, service.UploadSnippet)
}

// HandleBoilerplateUpload: POST /api/boilerplates/upload
func (h *UploadHandler) HandleBoilerplateUpload(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, service.UploadBoilerplate)
}

func (h *UploadHandler) handle(w http.ResponseWriter, r *http.Request, kind string) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	// Whole-request cap: every file at its limit plus room for the
	// multipart framing.
	limit := h.uploads.MaxBytes()*int64(h.uploads.MaxFiles()) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("files", "upload is too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("files", "expected multipart/form-data with files"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(files)
			writeError(w, err)
			return
		}
		files = append(files, service.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	defer closeAll(files)

	descriptors, err := h.uploads.Upload(r.Context(), userID, kind, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptors)
}

func closeAll(files []service.UploadFile) {
	for _, f := range files {
		if c, ok := f.Body.(multipart.File); ok {
			c.Close()
		}
	}
}
