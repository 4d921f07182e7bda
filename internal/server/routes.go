package server

import (
	"fmt"
	"net/http"

	"github.com/db-tech/conbee2panel/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Renderer = s.templates
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	e.Use(s.metrics.Middleware())

	limit := s.RateLimit()
	loggedIn := s.requireSession(true)
	apiLoggedIn := s.requireSession(false)

	e.GET("/", s.IndexHandler)
	e.POST("/login", s.LoginHandler, limit)
	e.POST("/logout", s.LogoutHandler, limit)
	e.POST("/deconz/authenticate", s.DeconzAuthenticateHandler, limit, loggedIn)
	e.POST("/kostal/login", s.KostalLoginHandler, limit, loggedIn)
	e.POST("/config/save", s.ConfigSaveHandler, limit, loggedIn)
	e.GET("/config/lights", s.ConfigLightsHandler, apiLoggedIn)
	e.POST("/navigate/:view", s.NavigateHandler, limit, loggedIn)
	e.POST("/plug/toggle", s.PlugToggleHandler, limit, loggedIn)
	e.POST("/monitoring/start", s.MonitoringHandler(true), limit, loggedIn)
	e.POST("/monitoring/stop", s.MonitoringHandler(false), limit, loggedIn)
	e.GET("/api/state", s.StateHandler, apiLoggedIn)

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 2*askTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, fmt.Sprintf("health_check: OK (%s)", versioninfo.Short()))
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}
