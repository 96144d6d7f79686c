// Package mock provides an in-process Engine for tests.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/pdfgate/internal/engine"
)

// SamplePDF is a minimal document that passes engine.IsPDF.
var SamplePDF = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

// MockEngine satisfies engine.Engine. Nil funcs return SamplePDF.
type MockEngine struct {
	Name_          string
	ReadyFunc      func(ctx context.Context) error
	RenderHTMLFunc func(ctx context.Context, html string, opts engine.PageOptions, watermark bool) ([]byte, error)
	RenderURLFunc  func(ctx context.Context, url string, opts engine.PageOptions, watermark bool) ([]byte, error)
	MergeFunc      func(ctx context.Context, files []engine.File, watermark bool) ([]byte, error)
	CompressFunc   func(ctx context.Context, file engine.File, quality engine.Quality, watermark bool) ([]byte, error)
	SplitFunc      func(ctx context.Context, file engine.File, pages []engine.PageRange, watermark bool) ([]byte, error)
	WatermarkFunc  func(ctx context.Context, file engine.File, opts engine.WatermarkOptions, watermark bool) ([]byte, error)
	ProtectFunc    func(ctx context.Context, file engine.File, user, owner string, watermark bool) ([]byte, error)

	calls atomic.Int64
}

// NewMockEngine returns a MockEngine that succeeds on every call.
func NewMockEngine() *MockEngine {
	return &MockEngine{Name_: "mock"}
}

// NewFailingEngine returns a MockEngine whose actions all fail with err.
func NewFailingEngine(err error) *MockEngine {
	return &MockEngine{
		Name_:     "mock-failing",
		ReadyFunc: func(context.Context) error { return err },
		RenderHTMLFunc: func(context.Context, string, engine.PageOptions, bool) ([]byte, error) {
			return nil, err
		},
		RenderURLFunc: func(context.Context, string, engine.PageOptions, bool) ([]byte, error) {
			return nil, err
		},
		MergeFunc: func(context.Context, []engine.File, bool) ([]byte, error) { return nil, err },
		CompressFunc: func(context.Context, engine.File, engine.Quality, bool) ([]byte, error) {
			return nil, err
		},
		SplitFunc: func(context.Context, engine.File, []engine.PageRange, bool) ([]byte, error) {
			return nil, err
		},
		WatermarkFunc: func(context.Context, engine.File, engine.WatermarkOptions, bool) ([]byte, error) {
			return nil, err
		},
		ProtectFunc: func(context.Context, engine.File, string, string, bool) ([]byte, error) {
			return nil, err
		},
	}
}

// Calls returns how many document actions were invoked.
func (m *MockEngine) Calls() int64 { return m.calls.Load() }

func (m *MockEngine) Name() string { return m.Name_ }

func (m *MockEngine) Ready(ctx context.Context) error {
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

func (m *MockEngine) RenderHTML(ctx context.Context, html string, opts engine.PageOptions, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.RenderHTMLFunc != nil {
		return m.RenderHTMLFunc(ctx, html, opts, watermark)
	}
	return SamplePDF, nil
}

func (m *MockEngine) RenderURL(ctx context.Context, url string, opts engine.PageOptions, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.RenderURLFunc != nil {
		return m.RenderURLFunc(ctx, url, opts, watermark)
	}
	return SamplePDF, nil
}

func (m *MockEngine) Merge(ctx context.Context, files []engine.File, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.MergeFunc != nil {
		return m.MergeFunc(ctx, files, watermark)
	}
	return SamplePDF, nil
}

func (m *MockEngine) Compress(ctx context.Context, file engine.File, quality engine.Quality, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.CompressFunc != nil {
		return m.CompressFunc(ctx, file, quality, watermark)
	}
	return SamplePDF, nil
}

func (m *MockEngine) Split(ctx context.Context, file engine.File, pages []engine.PageRange, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.SplitFunc != nil {
		return m.SplitFunc(ctx, file, pages, watermark)
	}
	return []byte("PK\x03\x04"), nil
}

func (m *MockEngine) Watermark(ctx context.Context, file engine.File, opts engine.WatermarkOptions, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.WatermarkFunc != nil {
		return m.WatermarkFunc(ctx, file, opts, watermark)
	}
	return SamplePDF, nil
}

func (m *MockEngine) Protect(ctx context.Context, file engine.File, user, owner string, watermark bool) ([]byte, error) {
	m.calls.Add(1)
	if m.ProtectFunc != nil {
		return m.ProtectFunc(ctx, file, user, owner, watermark)
	}
	return SamplePDF, nil
}

var _ engine.Engine = (*MockEngine)(nil)
