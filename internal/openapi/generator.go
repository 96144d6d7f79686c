// Package openapi builds the OpenAPI document served at /openapi.json.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

const (
	errorRef         = "#/components/schemas/ErrorResponse"
	quotaExceededRef = "#/components/schemas/QuotaExceeded"
	pageOptionsRef   = "#/components/schemas/PageOptions"
)

// Generate returns the API description for a server reachable at baseURL.
func Generate(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "pdfgate API",
			Description: "PDF generation and manipulation with monthly usage quotas per API key.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-API-Key",
			Description: "Requests without a key run on the free plan, metered by client IP.",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Firebase ID token for dashboard endpoints.",
		},
	}

	addSchemas(doc.Components.Schemas)

	doc.Paths = openapi3.NewPaths()
	addDocumentPaths(doc)
	addAccountPaths(doc)
	addPublicPaths(doc)

	return doc
}

func addSchemas(s openapi3.Schemas) {
	s["ErrorResponse"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewObjectSchema().
			WithProperty("code", openapi3.NewStringSchema()).
			WithProperty("message", openapi3.NewStringSchema()).
			WithProperty("details", openapi3.NewObjectSchema())))

	quota := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("used", openapi3.NewIntegerSchema()).
		WithProperty("limit", openapi3.NewIntegerSchema()).
		WithProperty("plan", planSchema()).
		WithProperty("reset_date", openapi3.NewDateTimeSchema()).
		WithProperty("upgrade_url", openapi3.NewStringSchema())
	quota.Required = []string{"error", "used", "limit", "plan", "reset_date", "upgrade_url"}
	s["QuotaExceeded"] = openapi3.NewSchemaRef("", quota)

	s["Usage"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("used", openapi3.NewIntegerSchema()).
		WithProperty("remaining", openapi3.NewIntegerSchema()).
		WithProperty("plan", planSchema()).
		WithProperty("monthly_limit", openapi3.NewIntegerSchema()).
		WithProperty("reset_date", openapi3.NewDateTimeSchema()))

	s["IssuedKey"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("api_key", openapi3.NewStringSchema()).
		WithProperty("key_prefix", openapi3.NewStringSchema()).
		WithProperty("plan", planSchema()).
		WithProperty("monthly_limit", openapi3.NewIntegerSchema()).
		WithProperty("message", openapi3.NewStringSchema()))

	s["Registration"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum("existing", "linked", "created")).
		WithProperty("plan", planSchema()).
		WithProperty("api_key", openapi3.NewStringSchema()))

	s["Dashboard"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("api_key_prefix", openapi3.NewStringSchema()).
		WithProperty("plan", planSchema()).
		WithProperty("email", openapi3.NewStringSchema()).
		WithProperty("used", openapi3.NewIntegerSchema()).
		WithProperty("limit", openapi3.NewIntegerSchema()).
		WithProperty("remaining", openapi3.NewIntegerSchema()).
		WithProperty("reset_date", openapi3.NewDateTimeSchema()).
		WithProperty("created_at", openapi3.NewDateTimeSchema()).
		WithProperty("watermark", openapi3.NewBoolSchema()))

	s["PageOptions"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("format", openapi3.NewStringSchema().WithEnum("A4", "A3", "A5", "Letter", "Legal", "Tabloid")).
		WithProperty("margin", openapi3.NewObjectSchema().
			WithProperty("top", openapi3.NewStringSchema()).
			WithProperty("right", openapi3.NewStringSchema()).
			WithProperty("bottom", openapi3.NewStringSchema()).
			WithProperty("left", openapi3.NewStringSchema())).
		WithProperty("landscape", openapi3.NewBoolSchema()).
		WithProperty("header_html", openapi3.NewStringSchema()).
		WithProperty("footer_html", openapi3.NewStringSchema()).
		WithProperty("print_background", openapi3.NewBoolSchema()).
		WithProperty("scale", openapi3.NewFloat64Schema().WithMin(0.1).WithMax(2)))
}

func planSchema() *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum("free", "starter", "pro", "business")
}

func binarySchema() *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "binary"}
}

func addDocumentPaths(doc *openapi3.T) {
	metered := &openapi3.SecurityRequirements{
		{"apiKey": {}},
		{},
	}

	htmlBody := openapi3.NewObjectSchema().
		WithProperty("html", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(5_000_000)).
		WithPropertyRef("options", openapi3.NewSchemaRef(pageOptionsRef, nil))
	htmlBody.Required = []string{"html"}

	urlBody := openapi3.NewObjectSchema().
		WithProperty("url", openapi3.NewStringSchema().WithFormat("uri")).
		WithPropertyRef("options", openapi3.NewSchemaRef(pageOptionsRef, nil))
	urlBody.Required = []string{"url"}

	single := func(extra func(*openapi3.Schema)) *openapi3.Schema {
		s := openapi3.NewObjectSchema().WithProperty("file", binarySchema())
		s.Required = []string{"file"}
		if extra != nil {
			extra(s)
		}
		return s
	}

	ops := []struct {
		path, id, summary string
		body              openapi3.Content
		output            string
	}{
		{"/api/v1/html-to-pdf", "htmlToPdf", "Render HTML to PDF",
			openapi3.NewContentWithJSONSchema(htmlBody), "application/pdf"},
		{"/api/v1/url-to-pdf", "urlToPdf", "Render a web page to PDF",
			openapi3.NewContentWithJSONSchema(urlBody), "application/pdf"},
		{"/api/v1/merge", "merge", "Merge 2 to 50 PDFs in upload order",
			openapi3.NewContentWithFormDataSchema(openapi3.NewObjectSchema().
				WithProperty("files", openapi3.NewArraySchema().WithItems(binarySchema()).WithMinItems(2).WithMaxItems(50))),
			"application/pdf"},
		{"/api/v1/compress", "compress", "Compress a PDF",
			openapi3.NewContentWithFormDataSchema(single(func(s *openapi3.Schema) {
				s.WithProperty("quality", openapi3.NewStringSchema().WithEnum("low", "medium", "high"))
			})), "application/pdf"},
		{"/api/v1/split", "split", "Split a PDF by page ranges into a ZIP archive",
			openapi3.NewContentWithFormDataSchema(single(func(s *openapi3.Schema) {
				s.WithProperty("pages", openapi3.NewStringSchema().WithPattern(`^\s*\d+(\s*-\s*\d+)?(\s*,\s*\d+(\s*-\s*\d+)?)*\s*$`))
				s.Required = append(s.Required, "pages")
			})), "application/zip"},
		{"/api/v1/watermark", "watermark", "Stamp a text watermark on every page",
			openapi3.NewContentWithFormDataSchema(single(func(s *openapi3.Schema) {
				s.WithProperty("text", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(200))
				s.WithProperty("opacity", openapi3.NewFloat64Schema().WithMin(0).WithMax(1))
				s.WithProperty("position", openapi3.NewStringSchema().
					WithEnum("center", "top-left", "top-right", "bottom-left", "bottom-right", "diagonal"))
				s.WithProperty("font_size", openapi3.NewFloat64Schema().WithMin(8).WithMax(200))
				s.Required = append(s.Required, "text")
			})), "application/pdf"},
		{"/api/v1/protect", "protect", "Encrypt a PDF with a password",
			openapi3.NewContentWithFormDataSchema(single(func(s *openapi3.Schema) {
				s.WithProperty("password", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(128))
				s.WithProperty("owner_password", openapi3.NewStringSchema().WithMaxLength(128))
				s.Required = append(s.Required, "password")
			})), "application/pdf"},
	}

	for _, o := range ops {
		responses := newResponses("200", "Processed document",
			openapi3.NewContentWithSchema(binarySchema(), []string{o.output}))
		setError(responses, "422", "Document rejected by the engine")
		setJSON(responses, "429", "Monthly quota or burst limit exceeded", quotaExceededRef)
		setError(responses, "502", "Document engine unavailable")
		setError(responses, "503", "Usage ledger unavailable")
		setError(responses, "504", "Document engine timed out")

		doc.Paths.Set(o.path, &openapi3.PathItem{Post: &openapi3.Operation{
			Tags:        []string{"documents"},
			Summary:     o.summary,
			OperationID: o.id,
			Security:    metered,
			RequestBody: &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: o.body}},
			Responses:   responses,
		}})
	}

	doc.Paths.Set("/api/v1/usage", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"usage"},
		Summary:     "Current month usage for the caller",
		OperationID: "getUsage",
		Security:    metered,
		Responses:   newResponses("200", "Usage snapshot", jsonRef("#/components/schemas/Usage")),
	}})
}

func addAccountPaths(doc *openapi3.T) {
	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}

	add := func(path, method, id, summary, ref string) {
		op := &openapi3.Operation{
			Tags:        []string{"account"},
			Summary:     summary,
			OperationID: id,
			Security:    bearer,
			Responses:   newResponses("200", summary, jsonRef(ref)),
		}
		item := &openapi3.PathItem{}
		item.SetOperation(method, op)
		doc.Paths.Set(path, item)
	}

	add("/api/v1/auth/register", "POST", "register", "Register or link an account", "#/components/schemas/Registration")
	add("/api/v1/auth/dashboard", "GET", "dashboard", "Key and usage overview", "#/components/schemas/Dashboard")
	add("/api/v1/auth/regenerate-key", "POST", "regenerateKey", "Replace the account's API key", "#/components/schemas/IssuedKey")

	portal := openapi3.NewObjectSchema().WithProperty("url", openapi3.NewStringSchema())
	portalResponses := newResponses("200", "Portal session", openapi3.NewContentWithJSONSchema(portal))
	setError(portalResponses, "404", "No subscription for the verified email")
	setError(portalResponses, "502", "Billing provider unavailable")
	doc.Paths.Set("/api/v1/manage-subscription", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"account"},
		Summary:     "Open the billing portal",
		OperationID: "manageSubscription",
		Security:    bearer,
		Responses:   portalResponses,
	}})
}

func addPublicPaths(doc *openapi3.T) {
	public := &openapi3.SecurityRequirements{}

	doc.Paths.Set("/api/v1/generate-key", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"keys"},
		Summary:     "Issue a new API key",
		OperationID: "generateKey",
		Security:    public,
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("plan").WithSchema(planSchema())},
			&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("email").WithSchema(openapi3.NewStringSchema().WithFormat("email"))},
			&openapi3.ParameterRef{Value: openapi3.NewHeaderParameter("X-Admin-Token").WithSchema(openapi3.NewStringSchema())},
		},
		Responses: newResponses("201", "Key issued", jsonRef("#/components/schemas/IssuedKey")),
	}})

	status := openapi3.NewObjectSchema().WithProperty("status", openapi3.NewStringSchema())
	doc.Paths.Set("/stripe/webhook", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"billing"},
		Summary:     "Stripe subscription events",
		OperationID: "stripeWebhook",
		Security:    public,
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{Value: openapi3.NewHeaderParameter("Stripe-Signature").WithSchema(openapi3.NewStringSchema())},
		},
		Responses: newResponses("200", "Event accepted", openapi3.NewContentWithJSONSchema(status)),
	}})

	health := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema()).
		WithProperty("checks", openapi3.NewObjectSchema())
	doc.Paths.Set("/health", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Dependency health",
		OperationID: "health",
		Security:    public,
		Responses:   newResponses("200", "Healthy", openapi3.NewContentWithJSONSchema(health)),
	}})
}

func jsonRef(ref string) openapi3.Content {
	return openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(ref, nil))
}

// newResponses builds a success response plus the standard error responses.
func newResponses(status, description string, content openapi3.Content) *openapi3.Responses {
	responses := openapi3.NewResponsesWithCapacity(8)

	desc := description
	responses.Set(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{Description: &desc, Content: content},
	})
	setError(responses, "400", "Bad request")
	setError(responses, "401", "Unauthorized")
	setError(responses, "500", "Internal server error")
	return responses
}

func setError(responses *openapi3.Responses, status, description string) {
	setJSON(responses, status, description, errorRef)
}

func setJSON(responses *openapi3.Responses, status, description, ref string) {
	desc := description
	responses.Set(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{Description: &desc, Content: jsonRef(ref)},
	})
}
