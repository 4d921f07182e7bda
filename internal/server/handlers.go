package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/db-tech/conbee2panel/internal/adapter/rpc"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var ErrUnexpectedResponse = errors.New("unexpected actor response")

// StateView is the JSON form of the panel state.
type StateView struct {
	Connected     bool          `json:"connected"`
	Status        string        `json:"status"`
	StatusMessage string        `json:"statusMessage"`
	Title         string        `json:"title"`
	View          domain.View   `json:"view"`
	Telemetry     TelemetryView `json:"telemetry"`
	Monitoring    bool          `json:"monitoring"`
	Toasts        []ToastView   `json:"toasts"`
}

type TelemetryView struct {
	HousePowerConsumption float64 `json:"housePowerConsumption"`
	PVPowerGenerated      float64 `json:"pvPowerGenerated"`
	GridOut               float64 `json:"gridOut"`
	SocketState           bool    `json:"socketState"`
}

type ToastView struct {
	Kind    domain.ToastKind `json:"kind"`
	Message string           `json:"message"`
}

func (s *Server) IndexHandler(c echo.Context) error {
	session := s.session(c)
	state, err := s.panelState(true)
	if err != nil {
		s.logger.Error("index: panel state", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "panel not available")
	}

	view := service.ViewFor(state.Status, session)
	page := Page{
		View:       view,
		Title:      state.Title,
		Connected:  state.Connected,
		Username:   session.Username,
		Version:    versioninfo.Short(),
		Response:   state.LastResponse,
		Telemetry:  state.Telemetry,
		Monitoring: state.Monitoring,
		Toasts:     state.Toasts,
	}

	ctx := c.Request().Context()
	switch view {
	case domain.ViewConfig:
		page.Properties, err = s.controller.GetProperties(ctx)
		if err == nil {
			var lights domain.Lights
			lights, err = s.controller.GetLights(ctx)
			page.LightNames = lights.Names()
		}
	case domain.ViewDeconzAuth, domain.ViewKostalAuth:
		page.Properties, err = s.controller.GetProperties(ctx)
	}
	if err != nil {
		s.logger.Warn("index: load view data", zap.String("view", string(view)), zap.Error(err))
		page.Toasts = append(page.Toasts, service.TransportErrorToast(err))
	}

	return c.Render(http.StatusOK, string(view), page)
}

func (s *Server) LoginHandler(c echo.Context) error {
	session, resp, err := service.Login(c.Request().Context(), s.controller, c.FormValue("username"))
	if errors.Is(err, domain.ErrInvalidUsername) {
		s.toast(domain.FailureToast("Username must be at least 3 characters long"))
		return s.home(c)
	}
	s.writeSession(c, session)
	if err != nil {
		return s.transportFailure(c, "login", err)
	}
	s.route(resp)
	return s.home(c)
}

func (s *Server) LogoutHandler(c echo.Context) error {
	s.clearSession(c)
	return s.home(c)
}

func (s *Server) DeconzAuthenticateHandler(c echo.Context) error {
	resp, err := s.controller.Authenticate(c.Request().Context(), authenticateParams(c))
	if err != nil {
		return s.transportFailure(c, "authenticate", err)
	}
	s.toast(service.FormResultToast(resp))
	s.route(resp)
	return s.home(c)
}

func (s *Server) KostalLoginHandler(c echo.Context) error {
	resp, err := s.controller.LoginKostal(c.Request().Context(), authenticateParams(c))
	if err != nil {
		return s.transportFailure(c, "loginKostal", err)
	}
	s.toast(service.FormResultToast(resp))
	s.route(resp)
	return s.home(c)
}

func (s *Server) ConfigSaveHandler(c echo.Context) error {
	threshold, err := strconv.ParseFloat(strings.TrimSpace(c.FormValue("threshold")), 64)
	if err != nil {
		s.toast(domain.FailureToast("Invalid threshold: " + c.FormValue("threshold")))
		return s.home(c)
	}
	pollDuration, err := strconv.Atoi(strings.TrimSpace(c.FormValue("pollDuration")))
	if err != nil {
		s.toast(domain.FailureToast("Invalid duration: " + c.FormValue("pollDuration")))
		return s.home(c)
	}

	ctx := c.Request().Context()
	// the form only edits three fields, the rest is written back unchanged
	props, err := s.controller.GetProperties(ctx)
	if err != nil {
		return s.transportFailure(c, "getProperties", err)
	}
	props.Threshold = threshold
	props.PollDuration = pollDuration
	if plugName := strings.TrimSpace(c.FormValue("plugName")); plugName != "" {
		props.PlugName = plugName
	}

	resp, err := s.controller.SaveProperties(ctx, props)
	if errors.Is(err, rpc.ErrSaveInProgress) {
		s.toast(domain.InfoToast("Save already in progress"))
		return s.home(c)
	}
	if err != nil {
		return s.transportFailure(c, "saveProperties", err)
	}
	s.route(resp)
	return s.home(c)
}

func (s *Server) ConfigLightsHandler(c echo.Context) error {
	lights, err := s.controller.GetLights(c.Request().Context())
	if err != nil {
		s.logger.Warn("getLights failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, lights)
}

func (s *Server) NavigateHandler(c echo.Context) error {
	state, err := s.panelState(false)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "panel not available")
	}
	from := service.ViewFor(state.Status, s.session(c))
	resp, err := service.Navigate(from, domain.View(c.Param("view")))
	if err != nil {
		s.logger.Info("navigation rejected", zap.Error(err))
		s.toast(domain.FailureToast(err.Error()))
		return s.home(c)
	}
	s.route(resp)
	return s.home(c)
}

func (s *Server) PlugToggleHandler(c echo.Context) error {
	state, err := s.panelState(false)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "panel not available")
	}
	res, err := service.TogglePlug(c.Request().Context(), s.controller, state.Telemetry.SocketState)
	if err != nil {
		return s.transportFailure(c, "togglePlug", err)
	}
	if !res.Switched {
		s.toast(service.PlugFailureToast(res.Response))
		return s.home(c)
	}
	s.rootContext.Send(s.masterActor, domain.SetSocketStateRequest{On: res.SocketState})
	return s.home(c)
}

func (s *Server) MonitoringHandler(enable bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if enable {
			s.controller.StartMonitoring()
		} else {
			s.controller.StopMonitoring()
		}
		return s.home(c)
	}
}

func (s *Server) StateHandler(c echo.Context) error {
	state, err := s.panelState(false)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "panel not available")
	}
	view := StateView{
		Connected:     state.Connected,
		Status:        state.Status.String(),
		StatusMessage: state.LastResponse.StatusMessage,
		Title:         state.Title,
		View:          service.ViewFor(state.Status, s.session(c)),
		Telemetry: TelemetryView{
			HousePowerConsumption: state.Telemetry.HousePowerConsumption,
			PVPowerGenerated:      state.Telemetry.PVPowerGenerated,
			GridOut:               state.Telemetry.GridOut,
			SocketState:           state.Telemetry.SocketState,
		},
		Monitoring: state.Monitoring,
		Toasts:     []ToastView{},
	}
	for _, t := range state.Toasts {
		view.Toasts = append(view.Toasts, ToastView{Kind: t.Kind, Message: t.Message})
	}
	return c.JSON(http.StatusOK, view)
}

func authenticateParams(c echo.Context) domain.AuthenticateParams {
	return domain.AuthenticateParams{
		Username:    c.FormValue("username"),
		Password:    c.FormValue("password"),
		HostAddress: strings.TrimSpace(c.FormValue("hostAddress")),
	}
}

func (s *Server) home(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) panelState(drainToasts bool) (domain.PanelState, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetPanelStateRequest{DrainToasts: drainToasts}, askTimeout).Result()
	if err != nil {
		return domain.PanelState{}, err
	}
	resp, ok := res.(domain.GetPanelStateResponse)
	if !ok {
		return domain.PanelState{}, fmt.Errorf("%w: %T", ErrUnexpectedResponse, res)
	}
	return resp.State, nil
}

// route feeds resp into the router and waits until it has been applied, so
// the redirected page already shows the new state.
func (s *Server) route(resp domain.StatusResponse) {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RouteStatusRequest{Response: resp}, askTimeout).Result()
	if err != nil {
		s.logger.Error("route status", zap.Error(err))
		return
	}
	if routed, ok := res.(domain.RouteStatusResponse); ok && routed.HasResponseError() {
		s.logger.Warn("route status rejected", zap.Error(routed.GetResponseError()))
	}
}

func (s *Server) toast(t domain.Toast) {
	s.rootContext.Send(s.masterActor, domain.ToastRequest{Toast: t})
}

// transportFailure reports a call that never produced a response. The
// router state is left alone.
func (s *Server) transportFailure(c echo.Context, call string, err error) error {
	s.logger.Error("controller call failed", zap.String("call", call), zap.Error(err))
	s.toast(service.TransportErrorToast(err))
	return s.home(c)
}
