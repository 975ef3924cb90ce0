package renderer

import (
	"bytes"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/damacus/r2-dashboard/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestTemplateRenderer_RenderUnknownTemplate(t *testing.T) {
	r := &TemplateRenderer{
		Templates: make(map[string]*template.Template),
	}

	err := r.Render(&bytes.Buffer{}, "nonexistent", nil, newContext())

	assert.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Contains(t, httpErr.Message, "Template not found")
}

func TestSelfExecutingTemplates(t *testing.T) {
	assert.True(t, selfExecutingTemplates["listing"])
	assert.False(t, selfExecutingTemplates["browser"], "pages render through the base layout")
}

func TestNew_ParsesEmbeddedViews(t *testing.T) {
	r := New()

	assert.Contains(t, r.Templates, "browser")
	assert.Contains(t, r.Templates, "listing")
}

func TestRender_BrowserPage(t *testing.T) {
	r := New()
	data := map[string]interface{}{
		"BucketName": "drafts",
		"Listing": models.DirectoryListing{
			Prefix:      "docs/",
			Folders:     []models.FolderEntry{{Type: "folder", Name: "img", Prefix: "docs/img/"}},
			Files:       []models.FileEntry{{Type: "file", Name: "readme.md", Key: "docs/readme.md", FormattedSize: "10 B", LastModified: time.Now()}},
			Breadcrumbs: []models.Breadcrumb{{Name: "docs", Prefix: "docs/"}},
		},
		"MaxUploadFiles": 10,
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, "browser", data, newContext()))

	html := buf.String()
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "drafts")
	assert.Contains(t, html, "readme.md")
	assert.Contains(t, html, `data-key="docs/readme.md"`)
	assert.Contains(t, html, "/?prefix=docs%2fimg%2f")
}

func TestRender_BrowserPageShowsError(t *testing.T) {
	r := New()
	data := map[string]interface{}{
		"BucketName": "drafts",
		"Listing":    models.DirectoryListing{},
		"Error": &struct {
			Message string
			Code    string
		}{Message: "The specified bucket does not exist.", Code: "NoSuchBucket"},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, "browser", data, newContext()))

	assert.Contains(t, buf.String(), "NoSuchBucket")
	assert.Contains(t, buf.String(), "The specified bucket does not exist.")
}

func TestRender_ListingEscapesNames(t *testing.T) {
	r := New()
	data := map[string]interface{}{
		"Listing": models.DirectoryListing{
			Files: []models.FileEntry{{Name: "<script>x</script>.txt", Key: "<script>x</script>.txt"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, "listing", data, newContext()))

	assert.NotContains(t, buf.String(), "<script>x</script>")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestNewFromFS_CustomViews(t *testing.T) {
	fsys := fstest.MapFS{
		"layouts/base.html":     {Data: []byte(`{{define "base"}}[{{template "content" .}}]{{end}}`)},
		"partials/listing.html": {Data: []byte(`{{define "listing"}}{{len .Listing.Files}} files{{end}}`)},
		"pages/browser.html":    {Data: []byte(`{{define "content"}}{{template "listing" .}}{{end}}`)},
	}
	r := NewFromFS(fsys)

	var buf bytes.Buffer
	data := map[string]interface{}{"Listing": models.DirectoryListing{Files: make([]models.FileEntry, 2)}}
	require.NoError(t, r.Render(&buf, "browser", data, newContext()))

	assert.Equal(t, "[2 files]", buf.String())
}
