package renderer

import (
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/damacus/r2-dashboard/views"
	"github.com/labstack/echo/v4"
)

// TemplateRenderer implements echo.Renderer
type TemplateRenderer struct {
	Templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

// New parses the embedded views
func New() *TemplateRenderer {
	return NewFromFS(views.FS)
}

// NewFromFS parses templates from fsys, which must have the views/ layout
func NewFromFS(fsys fs.FS) *TemplateRenderer {
	r := &TemplateRenderer{
		Templates: make(map[string]*template.Template),
	}
	r.parseTemplates(fsys)
	return r
}

func (t *TemplateRenderer) parseTemplates(fsys fs.FS) {
	// Helper to parse layout + listing partial + page
	parse := func(name, pageFile string) {
		t.Templates[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(fsys,
			"layouts/base.html",
			"partials/listing.html",
			"pages/"+pageFile,
		))
	}

	parse("browser", "browser.html")

	// Partials
	t.Templates["listing"] = template.Must(template.New("listing").Funcs(funcs).ParseFS(fsys, "partials/listing.html"))
}

// selfExecutingTemplates lists templates that execute their own named block instead of "base"
var selfExecutingTemplates = map[string]bool{
	"listing": true,
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.Templates[name]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Template not found: "+name)
	}

	// Templates that define their own named block execute that block directly
	if selfExecutingTemplates[name] {
		return tmpl.ExecuteTemplate(w, name, data)
	}
	// All other templates (pages with layout) execute the "base" block
	return tmpl.ExecuteTemplate(w, "base", data)
}
