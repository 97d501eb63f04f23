// Package web bundles the HTML templates and the cookie-backed flash
// messages used by the page handlers.
package web

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*template.Template, error) {
	tmpl, errParse := template.ParseFS(templateFS, "templates/*.html")
	if errParse != nil {
		return nil, fmt.Errorf("web: parse templates: %w", errParse)
	}
	return tmpl, nil
}
