// Package pages holds the site-wide pages that don't belong to a plugin:
// the not-found page and the generic error page.
package pages

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"

	"github.com/memzapp/memz/internal/templates/layouts"
)

//go:embed *.html
var pagesFS embed.FS

var pageTemplates = template.Must(template.New("pages").Funcs(layouts.Funcs).ParseFS(pagesFS, "*.html"))

// NotFoundPage is rendered for unknown routes and missing logs.
func NotFoundPage(message string) templ.Component {
	if message == "" {
		message = "The page you're looking for doesn't exist."
	}
	return layouts.Base("Not found", layouts.Page(pageTemplates, "not_found", message))
}

// ErrorPage renders a status code with a user-safe message.
func ErrorPage(code int, message string) templ.Component {
	data := struct {
		Code    int
		Message string
	}{code, message}
	return layouts.Base("Error", layouts.Page(pageTemplates, "error", data))
}
