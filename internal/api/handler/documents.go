package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mw "github.com/kiranshivaraju/pdfgate/internal/api/middleware"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/engine"
)

const (
	contentTypePDF = "application/pdf"
	contentTypeZIP = "application/zip"

	multipartMemory = 32 << 20
)

// Documents serves the metered document actions. Every handler expects the
// Quota middleware to have admitted the request.
type Documents struct {
	engine         engine.Engine
	maxUploadBytes int64
}

// NewDocuments creates the document handlers.
func NewDocuments(eng engine.Engine, maxUploadBytes int64) *Documents {
	return &Documents{engine: eng, maxUploadBytes: maxUploadBytes}
}

// HTMLToPDF handles POST /api/v1/html-to-pdf.
func (d *Documents) HTMLToPDF(w http.ResponseWriter, r *http.Request) {
	var req htmlRequest
	if !d.decodeJSON(w, r, &req) {
		return
	}
	out, err := d.engine.RenderHTML(r.Context(), req.HTML, req.Options.resolve(), watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypePDF, "output.pdf", out)
}

// URLToPDF handles POST /api/v1/url-to-pdf.
func (d *Documents) URLToPDF(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !d.decodeJSON(w, r, &req) {
		return
	}
	out, err := d.engine.RenderURL(r.Context(), req.URL, req.Options.resolve(), watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypePDF, "output.pdf", out)
}

// Merge handles POST /api/v1/merge. Files are merged in upload order.
func (d *Documents) Merge(w http.ResponseWriter, r *http.Request) {
	if !d.parseForm(w, r) {
		return
	}
	headers := r.MultipartForm.File["files"]
	switch {
	case len(headers) < minMergeFiles:
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "At least 2 PDF files required", nil)
		return
	case len(headers) > maxMergeFiles:
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Maximum 50 files allowed", nil)
		return
	}

	files := make([]engine.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
			return
		}
		if !engine.IsPDF(f.Data) {
			response.Error(w, http.StatusBadRequest, "INVALID_PDF",
				fmt.Sprintf("File '%s' is not a valid PDF", fh.Filename), nil)
			return
		}
		files = append(files, f)
	}

	out, err := d.engine.Merge(r.Context(), files, watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypePDF, "merged.pdf", out)
}

// Compress handles POST /api/v1/compress.
func (d *Documents) Compress(w http.ResponseWriter, r *http.Request) {
	file, ok := d.singleUpload(w, r)
	if !ok {
		return
	}
	req := compressRequest{Quality: formValue(r, "quality", string(engine.QualityMedium))}
	if !validate(w, &req) {
		return
	}

	out, err := d.engine.Compress(r.Context(), file, engine.Quality(req.Quality), watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	original, compressed := len(file.Data), len(out)
	reduction := 0.0
	if original > 0 {
		reduction = (1 - float64(compressed)/float64(original)) * 100
	}
	w.Header().Set("X-Original-Size", strconv.Itoa(original))
	w.Header().Set("X-Compressed-Size", strconv.Itoa(compressed))
	w.Header().Set("X-Compression-Ratio", fmt.Sprintf("%.1f%%", reduction))
	response.File(w, contentTypePDF, "compressed.pdf", out)
}

// Split handles POST /api/v1/split and returns a ZIP archive.
func (d *Documents) Split(w http.ResponseWriter, r *http.Request) {
	file, ok := d.singleUpload(w, r)
	if !ok {
		return
	}
	req := splitRequest{Pages: r.FormValue("pages")}
	if !validate(w, &req) {
		return
	}

	out, err := d.engine.Split(r.Context(), file, req.ranges, watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypeZIP, "split_pages.zip", out)
}

// Watermark handles POST /api/v1/watermark.
func (d *Documents) Watermark(w http.ResponseWriter, r *http.Request) {
	file, ok := d.singleUpload(w, r)
	if !ok {
		return
	}
	req := watermarkRequest{
		Text:     r.FormValue("text"),
		Position: formValue(r, "position", "diagonal"),
	}
	var err error
	if req.Opacity, err = formFloat(r, "opacity", 0.3); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "opacity must be a number", nil)
		return
	}
	if req.FontSize, err = formFloat(r, "font_size", 48); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "font_size must be a number", nil)
		return
	}
	if !validate(w, &req) {
		return
	}

	opts := engine.WatermarkOptions{
		Text:     req.Text,
		Opacity:  req.Opacity,
		Position: req.Position,
		FontSize: req.FontSize,
	}
	out, err := d.engine.Watermark(r.Context(), file, opts, watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypePDF, "watermarked.pdf", out)
}

// Protect handles POST /api/v1/protect.
func (d *Documents) Protect(w http.ResponseWriter, r *http.Request) {
	file, ok := d.singleUpload(w, r)
	if !ok {
		return
	}
	req := protectRequest{
		Password:      r.FormValue("password"),
		OwnerPassword: r.FormValue("owner_password"),
	}
	if !validate(w, &req) {
		return
	}

	out, err := d.engine.Protect(r.Context(), file, req.Password, req.OwnerPassword, watermarkRequired(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.File(w, contentTypePDF, "protected.pdf", out)
}

func (d *Documents) decodeJSON(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if r.ContentLength > d.maxUploadBytes {
		writeTooLarge(w, d.maxUploadBytes)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, d.maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, d.maxUploadBytes)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return validate(w, v)
}

func (d *Documents) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > d.maxUploadBytes {
		writeTooLarge(w, d.maxUploadBytes)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, d.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, d.maxUploadBytes)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart/form-data body", nil)
		return false
	}
	return true
}

// singleUpload parses the form and returns the PDF in the "file" field.
func (d *Documents) singleUpload(w http.ResponseWriter, r *http.Request) (engine.File, bool) {
	if !d.parseForm(w, r) {
		return engine.File{}, false
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
		return engine.File{}, false
	}
	f, err := readUpload(headers[0])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
		return engine.File{}, false
	}
	if !engine.IsPDF(f.Data) {
		response.Error(w, http.StatusBadRequest, "INVALID_PDF", "Uploaded file is not a valid PDF", nil)
		return engine.File{}, false
	}
	return f, true
}

func readUpload(fh *multipart.FileHeader) (engine.File, error) {
	src, err := fh.Open()
	if err != nil {
		return engine.File{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return engine.File{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return engine.File{Name: fh.Filename, Data: data}, nil
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

func formFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// watermarkRequired reports the plan's watermark flag. Requests that reached
// a handler without a quota decision are treated as free tier.
func watermarkRequired(r *http.Request) bool {
	d, ok := mw.GetDecision(r)
	if !ok {
		return true
	}
	return d.Limits.WatermarkRequired
}

func validate(w http.ResponseWriter, v validation.Validatable) bool {
	if err := v.Validate(); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), errs)
			return false
		}
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	return true
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		fmt.Sprintf("Request body exceeds %d bytes", limit), nil)
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrEngineRejected):
		response.Error(w, http.StatusUnprocessableEntity, "DOCUMENT_REJECTED", err.Error(), nil)
	case errors.Is(err, engine.ErrEngineTimeout):
		response.Error(w, http.StatusGatewayTimeout, "ENGINE_TIMEOUT",
			"The document engine took too long and the request was cancelled", nil)
	case errors.Is(err, engine.ErrEngineUnavailable):
		slog.Warn("document engine unavailable", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusBadGateway, "ENGINE_UNAVAILABLE",
			"The document engine is not available", nil)
	default:
		slog.Error("document action failed", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
