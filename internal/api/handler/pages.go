package handler

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
)

//go:embed static
var staticFiles embed.FS

// NewLandingHandler serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return pageHandler("static/index.html")
}

// NewDocsHandler serves the interactive API reference at /docs.
func NewDocsHandler() http.HandlerFunc {
	return pageHandler("static/docs.html")
}

// NewRedocHandler serves the ReDoc reference at /redoc.
func NewRedocHandler() http.HandlerFunc {
	return pageHandler("static/redoc.html")
}

// StaticHandler serves embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// NewOpenAPIHandler serves doc as JSON. The document is encoded once.
func NewOpenAPIHandler(doc *openapi3.T) http.HandlerFunc {
	body, err := json.Marshal(doc)
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "OpenAPI document unavailable", nil)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func pageHandler(name string) http.HandlerFunc {
	page, err := staticFiles.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}
