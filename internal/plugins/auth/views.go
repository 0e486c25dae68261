package auth

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"

	"github.com/memzapp/memz/internal/templates/layouts"
)

//go:embed templates/*.html
var templatesFS embed.FS

var views = template.Must(template.New("auth").Funcs(layouts.Funcs).ParseFS(templatesFS, "templates/*.html"))

// loginView is the data for the sign-in page.
type loginView struct {
	CSRFToken string
	Email     string
	Error     string
	OAuthName string
}

// LoginPage renders the sign-in form. email is echoed back after a failed
// attempt; errMsg is shown above the form. A non-empty oauthName adds the
// single sign-on link.
func LoginPage(csrfToken, email, errMsg, oauthName string) templ.Component {
	return layouts.Base("Sign in", layouts.Page(views, "login", loginView{
		CSRFToken: csrfToken,
		Email:     email,
		Error:     errMsg,
		OAuthName: oauthName,
	}))
}
