package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/martpos/internal/config"
)

const (
	DefaultCookieName = "_sid"
	CSRFCookieName    = "_csrf"
)

// Manager manages auth session cookies.
type Manager struct {
	cookieName string
	secure     bool
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// Set writes the session cookie alongside a readable CSRF cookie that
// browser clients echo back in X-CSRF-Token.
func (m *Manager) Set(c *gin.Context, value, csrfToken string, expiresAt time.Time) {
	maxAge := max(int(time.Until(expiresAt).Seconds()), 0)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
	if csrfToken != "" {
		c.SetCookie(CSRFCookieName, csrfToken, maxAge, "/", "", m.secure, false)
	}
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
	c.SetCookie(CSRFCookieName, "", -1, "/", "", m.secure, false)
}
