// Package engine talks to the external document service that renders and
// transforms PDFs. No PDF bytes are manipulated in this process.
package engine

import (
	"bytes"
	"context"
	"errors"
)

// Sentinel errors for engine failures.
var (
	ErrEngineUnavailable = errors.New("document engine unavailable")
	ErrEngineTimeout     = errors.New("document engine timeout")
	ErrEngineRejected    = errors.New("document engine rejected input")
)

var pdfMagic = []byte("%PDF-")

// Engine performs document actions. watermark asks the engine to stamp the
// free-tier mark on every output page.
type Engine interface {
	Name() string
	Ready(ctx context.Context) error
	RenderHTML(ctx context.Context, html string, opts PageOptions, watermark bool) ([]byte, error)
	RenderURL(ctx context.Context, url string, opts PageOptions, watermark bool) ([]byte, error)
	Merge(ctx context.Context, files []File, watermark bool) ([]byte, error)
	Compress(ctx context.Context, file File, quality Quality, watermark bool) ([]byte, error)
	Split(ctx context.Context, file File, pages []PageRange, watermark bool) ([]byte, error)
	Watermark(ctx context.Context, file File, opts WatermarkOptions, watermark bool) ([]byte, error)
	Protect(ctx context.Context, file File, userPassword, ownerPassword string, watermark bool) ([]byte, error)
}

// File is an uploaded document.
type File struct {
	Name string
	Data []byte
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

type Margins struct {
	Top    string `json:"top"`
	Right  string `json:"right"`
	Bottom string `json:"bottom"`
	Left   string `json:"left"`
}

// PageOptions controls HTML and URL rendering.
type PageOptions struct {
	Format          string  `json:"format"`
	Margin          Margins `json:"margin"`
	Landscape       bool    `json:"landscape"`
	HeaderHTML      string  `json:"header_html,omitempty"`
	FooterHTML      string  `json:"footer_html,omitempty"`
	PrintBackground bool    `json:"print_background"`
	Scale           float64 `json:"scale"`
}

// DefaultPageOptions returns A4 with 10mm margins, backgrounds on, scale 1.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Format:          "A4",
		Margin:          Margins{Top: "10mm", Right: "10mm", Bottom: "10mm", Left: "10mm"},
		PrintBackground: true,
		Scale:           1.0,
	}
}

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// WatermarkOptions describes a caller-supplied text watermark.
type WatermarkOptions struct {
	Text     string  `json:"text"`
	Opacity  float64 `json:"opacity"`
	Position string  `json:"position"`
	FontSize float64 `json:"font_size"`
}

// WatermarkPositions lists accepted watermark placements.
var WatermarkPositions = []string{"center", "top-left", "top-right", "bottom-left", "bottom-right", "diagonal"}
