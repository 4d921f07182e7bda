package server

import (
	"net/http"
	"net/url"

	"github.com/db-tech/conbee2panel/internal/core/domain"

	"github.com/labstack/echo/v4"
)

// session reads the user cookie. A missing or invalid cookie is the empty
// session.
func (s *Server) session(c echo.Context) domain.Session {
	cookie, err := c.Cookie(s.cfg.Session.CookieName)
	if err != nil {
		return domain.Session{}
	}
	username, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return domain.Session{}
	}
	session, err := domain.NewSession(username)
	if err != nil {
		return domain.Session{}
	}
	return session
}

func (s *Server) writeSession(c echo.Context, session domain.Session) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    url.QueryEscape(session.Username),
		Path:     "/",
		MaxAge:   s.cfg.Session.CookieMaxDays * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession guards the actions. Pages are redirected to the login
// view, JSON endpoints answer 401.
func (s *Server) requireSession(redirect bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.session(c).Empty() {
				return next(c)
			}
			if redirect {
				return c.Redirect(http.StatusSeeOther, "/")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
	}
}
