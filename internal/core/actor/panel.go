package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
	"github.com/db-tech/conbee2panel/internal/core/service"
	"github.com/db-tech/conbee2panel/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const maxToasts = 10

// PanelActor owns the router state, the telemetry snapshot and the pending
// toasts. Every change goes through its mailbox.
type PanelActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	scheduler   *scheduler.TimerScheduler
	controller  port.Controller
	eventStream *eventstream.EventStream

	router     service.Router
	connected  bool
	telemetry  domain.Telemetry
	monitoring bool
	toasts     []domain.Toast
	refreshing bool

	logger *zap.Logger
}

type statusRefreshTick struct{}

type statusRefreshed struct {
	Response domain.StatusResponse
	Error    error
}

type plugSwitched struct {
	Result domain.StatusResponse
	On     bool
	Error  error
}

func NewPanelActor(config *config.Config, controller port.Controller, eventStream *eventstream.EventStream, logger *zap.Logger) *PanelActor {
	act := &PanelActor{
		config:      config,
		controller:  controller,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		router:      service.NewRouter(),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_PANEL, logger),
	}
	act.stash = actorutil.NewLoggedStash(maxStashed, act.logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PanelActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PanelActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("panel@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.connected = state.controller.Connected()
		state.scheduleRefresh(ctx)

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("panel@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PanelActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("panel@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PANEL,
			Healthy: true,
			State:   state.describe(),
		})
	case domain.ConnectionStateChanged:
		state.logger.Debug("panel@default ConnectionStateChanged", zap.Bool("connected", msg.Connected))
		if state.connected == msg.Connected {
			return
		}
		state.connected = msg.Connected
		state.eventStream.Publish(domain.ConnectionUpdatedEvent{Connected: msg.Connected})
		if msg.Connected {
			state.refreshStatus(ctx)
		}
	case domain.RouteStatusRequest:
		state.logger.Debug("panel@default RouteStatusRequest", zap.Stringer("status", msg.Response.Status))
		err := state.route(msg.Response, true)
		actorutil.ForRequest(msg).Respond(ctx, domain.RouteStatusResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Status:             state.router.Status(),
			Title:              state.router.Title(),
		})
	case domain.ToastRequest:
		state.pushToast(msg.Toast)
	case domain.DataPushed:
		state.telemetry = domain.TelemetryFromData(msg.Notification)
		state.eventStream.Publish(domain.TelemetryUpdatedEvent{Telemetry: state.telemetry})
	case domain.MonitoringPushed:
		state.monitoring = msg.Enabled
		state.eventStream.Publish(domain.MonitoringUpdatedEvent{Enabled: msg.Enabled})
	case domain.SetSocketStateRequest:
		state.setSocketState(msg.On)
	case domain.GetPanelStateRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPanelStateResponse{State: state.snapshot()})
		if msg.DrainToasts {
			state.toasts = nil
		}
	case domain.PlugSwitchCommand:
		state.logger.Debug("panel@default PlugSwitchCommand", zap.Bool("on", msg.On))
		state.switchPlug(ctx, msg.On)
	case plugSwitched:
		switch {
		case msg.Error != nil:
			state.logger.Warn("panel@default plug switch failed", zap.Error(msg.Error))
			state.pushToast(service.TransportErrorToast(msg.Error))
		case !msg.Result.IsOk():
			state.pushToast(service.PlugFailureToast(msg.Result))
		default:
			state.setSocketState(msg.On)
		}
	case domain.MonitoringSwitchCommand:
		state.logger.Debug("panel@default MonitoringSwitchCommand", zap.Bool("enable", msg.Enable))
		if msg.Enable {
			state.controller.StartMonitoring()
		} else {
			state.controller.StopMonitoring()
		}
	case statusRefreshTick:
		state.refreshStatus(ctx)
		state.scheduleRefresh(ctx)
	case statusRefreshed:
		state.refreshing = false
		if msg.Error != nil {
			state.logger.Warn("panel@default status refresh failed", zap.Error(msg.Error))
			return
		}
		// a refresh only notifies when the status changed
		_ = state.route(msg.Response, msg.Response.Status != state.router.Status())
	case *actor.Stopping:
		state.logger.Debug("panel@default stopping")
	default:
		state.logger.Debug("panel@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PanelActor) route(resp domain.StatusResponse, notify bool) error {
	toast, ok, err := state.router.Apply(resp)
	if err != nil {
		state.logger.Warn("panel@route rejected response", zap.Error(err))
		return err
	}
	if ok && notify {
		state.pushToast(toast)
	}
	state.eventStream.Publish(domain.StatusUpdatedEvent{Response: resp})
	return nil
}

func (state *PanelActor) pushToast(t domain.Toast) {
	state.toasts = append(state.toasts, t)
	if len(state.toasts) > maxToasts {
		state.toasts = state.toasts[len(state.toasts)-maxToasts:]
	}
}

func (state *PanelActor) setSocketState(on bool) {
	state.telemetry.SocketState = on
	state.eventStream.Publish(domain.TelemetryUpdatedEvent{Telemetry: state.telemetry})
}

func (state *PanelActor) snapshot() domain.PanelState {
	return domain.PanelState{
		Connected:    state.connected,
		Status:       state.router.Status(),
		LastResponse: state.router.LastResponse(),
		Title:        state.router.Title(),
		Telemetry:    state.telemetry,
		Monitoring:   state.monitoring,
		Toasts:       append([]domain.Toast(nil), state.toasts...),
	}
}

func (state *PanelActor) describe() string {
	if state.connected {
		return "connected/" + state.router.Status().String()
	}
	return "disconnected/" + state.router.Status().String()
}

func (state *PanelActor) scheduleRefresh(ctx actor.Context) {
	if interval := state.config.Controller.StatusRefreshInterval(); interval > 0 {
		state.scheduler.RequestOnce(interval, ctx.Self(), statusRefreshTick{})
	}
}

func (state *PanelActor) callTimeout() time.Duration {
	if timeout := state.config.Controller.CallTimeout(); timeout > 0 {
		return timeout
	}
	return 10 * time.Second
}

func (state *PanelActor) refreshStatus(ctx actor.Context) {
	if state.refreshing || !state.connected {
		return
	}
	state.refreshing = true
	controller := state.controller
	actorutil.NewBackgroundTask(ctx, func() (*statusRefreshed, error) {
		resp, err := controller.Status(context.Background())
		return &statusRefreshed{Response: resp, Error: err}, nil
	}).WithTimeout(state.callTimeout()).Recover(func(err error) statusRefreshed {
		return statusRefreshed{Error: err}
	}).PipeToAsync(ctx.Self())
}

func (state *PanelActor) switchPlug(ctx actor.Context, on bool) {
	controller := state.controller
	actorutil.NewBackgroundTask(ctx, func() (*plugSwitched, error) {
		res, err := service.SwitchPlug(context.Background(), controller, on)
		return &plugSwitched{Result: res.Response, On: res.SocketState, Error: err}, nil
	}).WithTimeout(2 * state.callTimeout()).Recover(func(err error) plugSwitched {
		return plugSwitched{On: on, Error: err}
	}).PipeToAsync(ctx.Self())
}
