package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/db-tech/conbee2panel/internal/core/domain"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

var allViews = []domain.View{
	domain.ViewLogin,
	domain.ViewStart,
	domain.ViewDeconzAuth,
	domain.ViewConfig,
	domain.ViewKostalAuth,
	domain.ViewError,
}

var templateFuncs = template.FuncMap{
	// powers are shown the way the browser prints numbers, 12.5 not 12.50
	"watt": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"negative": func(v float64) bool {
		return v < 0
	},
}

// Page is the data every view is rendered with.
type Page struct {
	View       domain.View
	Title      string
	Connected  bool
	Username   string
	Version    string
	Response   domain.StatusResponse
	Telemetry  domain.Telemetry
	Monitoring bool
	Toasts     []domain.Toast
	Properties domain.Properties
	LightNames []string
}

// Templates renders one page per view inside the shared layout.
type Templates struct {
	views map[domain.View]*template.Template
}

func NewTemplates() (*Templates, error) {
	t := &Templates{views: map[domain.View]*template.Template{}}
	for _, view := range allViews {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html", fmt.Sprintf("templates/%s.html", view))
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", view, err)
		}
		t.views[view] = tmpl
	}
	return t, nil
}

func (t *Templates) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.views[domain.View(name)]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}
