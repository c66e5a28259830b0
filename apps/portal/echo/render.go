package echoportal

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

//go:embed templates
var templateFS embed.FS

var pageTemplates = []string{"login.html", "otp.html", "join.html", "loading.html", "page.html", "error.html"}

type renderer struct {
	pages map[string]*template.Template
}

// newRenderer parses every page together with the shared layout.
func newRenderer() *renderer {
	funcs := template.FuncMap{
		"base": func(p string) string { return p[strings.LastIndex(p, "/")+1:] },
	}
	r := &renderer{pages: make(map[string]*template.Template, len(pageTemplates))}
	for _, name := range pageTemplates {
		r.pages[name] = template.Must(
			template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name),
		)
	}
	return r
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
