package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPEngine implements Engine against the document service's HTTP API.
type HTTPEngine struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPEngine creates a new document service client.
func NewHTTPEngine(baseURL, token string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

type renderRequest struct {
	HTML      string      `json:"html,omitempty"`
	URL       string      `json:"url,omitempty"`
	Options   PageOptions `json:"options"`
	Watermark bool        `json:"watermark"`
}

func (e *HTTPEngine) RenderHTML(ctx context.Context, html string, opts PageOptions, watermark bool) ([]byte, error) {
	return e.postJSON(ctx, "/v1/render/html", renderRequest{HTML: html, Options: opts, Watermark: watermark})
}

func (e *HTTPEngine) RenderURL(ctx context.Context, url string, opts PageOptions, watermark bool) ([]byte, error) {
	return e.postJSON(ctx, "/v1/render/url", renderRequest{URL: url, Options: opts, Watermark: watermark})
}

func (e *HTTPEngine) Merge(ctx context.Context, files []File, watermark bool) ([]byte, error) {
	return e.postMultipart(ctx, "/v1/merge", files, map[string]string{
		"watermark": strconv.FormatBool(watermark),
	})
}

func (e *HTTPEngine) Compress(ctx context.Context, file File, quality Quality, watermark bool) ([]byte, error) {
	return e.postMultipart(ctx, "/v1/compress", []File{file}, map[string]string{
		"quality":   string(quality),
		"watermark": strconv.FormatBool(watermark),
	})
}

func (e *HTTPEngine) Split(ctx context.Context, file File, pages []PageRange, watermark bool) ([]byte, error) {
	return e.postMultipart(ctx, "/v1/split", []File{file}, map[string]string{
		"pages":     FormatPageRanges(pages),
		"watermark": strconv.FormatBool(watermark),
	})
}

func (e *HTTPEngine) Watermark(ctx context.Context, file File, opts WatermarkOptions, watermark bool) ([]byte, error) {
	return e.postMultipart(ctx, "/v1/watermark", []File{file}, map[string]string{
		"text":           opts.Text,
		"opacity":        strconv.FormatFloat(opts.Opacity, 'f', -1, 64),
		"position":       opts.Position,
		"font_size":      strconv.FormatFloat(opts.FontSize, 'f', -1, 64),
		"free_watermark": strconv.FormatBool(watermark),
	})
}

func (e *HTTPEngine) Protect(ctx context.Context, file File, userPassword, ownerPassword string, watermark bool) ([]byte, error) {
	return e.postMultipart(ctx, "/v1/protect", []File{file}, map[string]string{
		"user_password":  userPassword,
		"owner_password": ownerPassword,
		"watermark":      strconv.FormatBool(watermark),
	})
}

func (e *HTTPEngine) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	e.setHeaders(httpReq)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: engine not ready (status %d)", ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}

func (e *HTTPEngine) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return e.do(httpReq)
}

func (e *HTTPEngine) postMultipart(ctx context.Context, path string, files []File, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("encoding file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("encoding file %s: %w", f.Name, err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("encoding field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(httpReq)
}

func (e *HTTPEngine) do(req *http.Request) ([]byte, error) {
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrEngineRejected, engineMessage(body, resp.StatusCode))
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: status %d", ErrEngineTimeout, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}
}

func (e *HTTPEngine) setHeaders(req *http.Request) {
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
}

type engineError struct {
	Error string `json:"error"`
}

func engineMessage(body []byte, status int) string {
	var ee engineError
	if err := json.Unmarshal(body, &ee); err == nil && ee.Error != "" {
		return ee.Error
	}
	return fmt.Sprintf("status %d", status)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}

// Compile-time check that HTTPEngine implements Engine.
var _ Engine = (*HTTPEngine)(nil)
