package layouts

import (
	"context"
	"embed"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

//go:embed base.html
var baseFS embed.FS

var baseTemplate = template.Must(template.ParseFS(baseFS, "base.html"))

// baseData is what base.html renders around a page body.
type baseData struct {
	Title           string
	Body            template.HTML
	IsAuthenticated bool
	UserEmail       string
	CSRFToken       string
	FlashSuccess    string
	FlashError      string
	ActivePath      string
	LiveURL         string
}

// Base wraps body in the site chrome: head, nav bar, flash messages and the
// live-update script. Layout data comes from ctx.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		inner, err := templ.ToGoHTML(ctx, body)
		if err != nil {
			return err
		}
		return baseTemplate.Execute(w, baseData{
			Title:           title,
			Body:            inner,
			IsAuthenticated: IsAuthenticated(ctx),
			UserEmail:       GetUserEmail(ctx),
			CSRFToken:       GetCSRFToken(ctx),
			FlashSuccess:    GetFlashSuccess(ctx),
			FlashError:      GetFlashError(ctx),
			ActivePath:      GetActivePath(ctx),
			LiveURL:         GetLiveURL(ctx),
		})
	})
}

// Funcs are template helpers shared by page templates.
var Funcs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	"isoDate": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"join": strings.Join,
	"pct": func(count, max int) int {
		if max <= 0 {
			return 0
		}
		return count * 100 / max
	},
}

// Page builds a component from a named template in t, without chrome.
func Page(t *template.Template, name string, data any) templ.Component {
	return templ.FromGoHTML(t.Lookup(name), data)
}
