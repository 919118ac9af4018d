package handlers

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	flashCookie = "flash"
	flashKey    = "pendingFlashes"
)

// Flash categories.
const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

type flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

func mustParseTemplates() *template.Template {
	title := cases.Title(language.English)
	funcs := template.FuncMap{
		"title": title.String,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("02 Jan 2006 15:04")
		},
		"uploadURL": func(name string) string {
			return "/uploads/" + name
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// addFlash queues a message for the next rendered page.
func addFlash(c *gin.Context, category, message string) {
	pending, _ := c.Get(flashKey)
	list, _ := pending.([]flash)
	c.Set(flashKey, append(list, flash{Category: category, Message: message}))
}

// redirect stores the queued flashes in a cookie so they survive the redirect.
func (h *Handler) redirect(c *gin.Context, location string) {
	pending, _ := c.Get(flashKey)
	if list, _ := pending.([]flash); len(list) > 0 {
		if data, err := json.Marshal(list); err == nil {
			h.setCookie(c, flashCookie, base64.RawURLEncoding.EncodeToString(data), 60)
		}
	}
	c.Redirect(http.StatusFound, location)
}

// takeFlashes returns the flashes carried over from the previous request plus
// the ones queued during this one, and clears the cookie.
func (h *Handler) takeFlashes(c *gin.Context) []flash {
	var list []flash
	if value, err := c.Cookie(flashCookie); err == nil && value != "" {
		if data, err := base64.RawURLEncoding.DecodeString(value); err == nil {
			_ = json.Unmarshal(data, &list)
		}
		h.setCookie(c, flashCookie, "", -1)
	}
	if pending, ok := c.Get(flashKey); ok {
		if queued, ok := pending.([]flash); ok {
			list = append(list, queued...)
		}
	}
	return list
}

func (h *Handler) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.opts.SecureCookie, true)
}

// render executes a page template with the fields every page needs.
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if id, ok := auth.GetIdentity(c.Request.Context()); ok {
		data["User"] = id
	}
	data["Flashes"] = h.takeFlashes(c)
	c.HTML(status, name, data)
}

func (h *Handler) redirectToLogin(c *gin.Context, _ error) {
	addFlash(c, flashError, "Please login to access this page")
	h.redirect(c, "/login")
	c.Abort()
}
