package handler

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kiranshivaraju/pdfgate/internal/engine"
)

const (
	maxHTMLChars    = 5_000_000
	minMergeFiles   = 2
	maxMergeFiles   = 50
	maxPasswordLen  = 128
	maxWatermarkLen = 200
)

var (
	httpURLPattern = regexp.MustCompile(`^https?://`)

	pageFormats = []any{"A4", "A3", "A5", "Letter", "Legal", "Tabloid"}
	qualities   = []any{string(engine.QualityLow), string(engine.QualityMedium), string(engine.QualityHigh)}
	positions   = func() []any {
		out := make([]any, len(engine.WatermarkPositions))
		for i, p := range engine.WatermarkPositions {
			out[i] = p
		}
		return out
	}()
)

func htmlRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(1, maxHTMLChars),
	}
}

func urlRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Match(httpURLPattern).Error("URL must start with http:// or https://"),
	}
}

func scaleRule() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(*float64)
		if s != nil && (*s < 0.1 || *s > 2) {
			return validation.NewError("validation_scale_range", "must be between 0.1 and 2")
		}
		return nil
	})
}

// pageOptionsInput is the optional "options" object of the render endpoints.
// Pointer fields distinguish an explicit false or zero from an omitted value.
type pageOptionsInput struct {
	Format          string          `json:"format"`
	Margin          *engine.Margins `json:"margin"`
	Landscape       bool            `json:"landscape"`
	HeaderHTML      string          `json:"header_html"`
	FooterHTML      string          `json:"footer_html"`
	PrintBackground *bool           `json:"print_background"`
	Scale           *float64        `json:"scale"`
}

func (o *pageOptionsInput) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Format, validation.In(pageFormats...)),
		validation.Field(&o.Scale, scaleRule()),
	)
}

// resolve merges o over the defaults.
func (o *pageOptionsInput) resolve() engine.PageOptions {
	opts := engine.DefaultPageOptions()
	if o == nil {
		return opts
	}
	if o.Format != "" {
		opts.Format = o.Format
	}
	if o.Margin != nil {
		opts.Margin = *o.Margin
	}
	opts.Landscape = o.Landscape
	opts.HeaderHTML = o.HeaderHTML
	opts.FooterHTML = o.FooterHTML
	if o.PrintBackground != nil {
		opts.PrintBackground = *o.PrintBackground
	}
	if o.Scale != nil {
		opts.Scale = *o.Scale
	}
	return opts
}

type htmlRequest struct {
	HTML    string            `json:"html"`
	Options *pageOptionsInput `json:"options"`
}

func (r *htmlRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.HTML, htmlRules()...),
		validation.Field(&r.Options),
	)
}

type urlRequest struct {
	URL     string            `json:"url"`
	Options *pageOptionsInput `json:"options"`
}

func (r *urlRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL, urlRules()...),
		validation.Field(&r.Options),
	)
}

type compressRequest struct {
	Quality string `json:"quality"`
}

func (r *compressRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Quality, validation.Required, validation.In(qualities...)),
	)
}

type splitRequest struct {
	Pages  string `json:"pages"`
	ranges []engine.PageRange
}

func (r *splitRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Pages, validation.Required, validation.By(func(any) error {
			ranges, err := engine.ParsePageRanges(r.Pages)
			if err != nil {
				return validation.NewError("validation_page_ranges", err.Error())
			}
			r.ranges = ranges
			return nil
		})),
	)
}

type watermarkRequest struct {
	Text     string  `json:"text"`
	Opacity  float64 `json:"opacity"`
	Position string  `json:"position"`
	FontSize float64 `json:"font_size"`
}

func (r *watermarkRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, maxWatermarkLen)),
		validation.Field(&r.Opacity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.Position, validation.Required, validation.In(positions...)),
		validation.Field(&r.FontSize, validation.Required, validation.Min(8.0), validation.Max(200.0)),
	)
}

type protectRequest struct {
	Password      string `json:"password"`
	OwnerPassword string `json:"owner_password"`
}

func (r *protectRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Password, validation.Required, validation.RuneLength(1, maxPasswordLen)),
		validation.Field(&r.OwnerPassword, validation.RuneLength(0, maxPasswordLen)),
	)
}

type generateKeyRequest struct {
	Plan  string `json:"plan"`
	Email string `json:"email"`
}

func (r *generateKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Plan, validation.Required, validation.In("free", "starter", "pro", "business")),
		validation.Field(&r.Email, validation.RuneLength(3, 254), validation.Match(emailPattern).Error("must be a valid email address")),
	)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
