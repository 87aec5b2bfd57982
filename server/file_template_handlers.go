package server

import (
	"embed"
	"fmt"
	"html/template"
)

// CallbackTemplate is the page shown in the browser once the redirect lands.
const CallbackTemplate = "callback.html"

//go:embed templates/*.html
var templateFiles embed.FS

// ParseTemplate parses one page from the embedded templates directory.
func ParseTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).ParseFS(templateFiles, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tmpl, nil
}
