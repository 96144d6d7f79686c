package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Info(t *testing.T) {
	doc := Generate("https://pdf.example.com", "1.2.0")

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	require.NotNil(t, doc.Info)
	assert.Equal(t, "pdfgate API", doc.Info.Title)
	assert.Equal(t, "1.2.0", doc.Info.Version)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://pdf.example.com", doc.Servers[0].URL)
}

func TestGenerate_SecuritySchemes(t *testing.T) {
	doc := Generate("http://localhost:8000", "dev")

	apiKey := doc.Components.SecuritySchemes["apiKey"]
	require.NotNil(t, apiKey)
	assert.Equal(t, "apiKey", apiKey.Value.Type)
	assert.Equal(t, "header", apiKey.Value.In)
	assert.Equal(t, "X-API-Key", apiKey.Value.Name)

	bearer := doc.Components.SecuritySchemes["bearerAuth"]
	require.NotNil(t, bearer)
	assert.Equal(t, "bearer", bearer.Value.Scheme)
}

func TestGenerate_DocumentPathsAllowAnonymous(t *testing.T) {
	doc := Generate("http://localhost:8000", "dev")

	for _, path := range []string{
		"/api/v1/html-to-pdf", "/api/v1/url-to-pdf", "/api/v1/merge", "/api/v1/compress",
		"/api/v1/split", "/api/v1/watermark", "/api/v1/protect",
	} {
		item := doc.Paths.Value(path)
		require.NotNil(t, item, path)
		require.NotNil(t, item.Post, path)

		sec := *item.Post.Security
		require.Len(t, sec, 2, path)
		assert.Contains(t, sec[0], "apiKey")
		assert.Empty(t, sec[1])

		quota := item.Post.Responses.Value("429")
		require.NotNil(t, quota, path)
		assert.Equal(t, quotaExceededRef, quota.Value.Content.Get("application/json").Schema.Ref)
	}
}

func TestGenerate_QuotaExceededSchema(t *testing.T) {
	doc := Generate("http://localhost:8000", "dev")

	schema := doc.Components.Schemas["QuotaExceeded"].Value
	for _, field := range []string{"error", "used", "limit", "plan", "reset_date", "upgrade_url"} {
		assert.Contains(t, schema.Properties, field)
		assert.Contains(t, schema.Required, field)
	}
}

func TestGenerate_SplitReturnsZip(t *testing.T) {
	doc := Generate("http://localhost:8000", "dev")

	ok := doc.Paths.Value("/api/v1/split").Post.Responses.Value("200")
	assert.NotNil(t, ok.Value.Content.Get("application/zip"))
}

func TestGenerate_MarshalsToJSON(t *testing.T) {
	raw, err := json.Marshal(Generate("http://localhost:8000", "dev"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "3.1.0", decoded["openapi"])
	paths, ok := decoded["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/usage")
	assert.Contains(t, paths, "/stripe/webhook")
}
