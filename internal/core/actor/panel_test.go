package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/db-tech/conbee2panel/internal/adapter/rpc"
	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(ev any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

type panelFixture struct {
	as         *actor.ActorSystem
	pid        *actor.PID
	controller *rpc.TestController
	events     *eventRecorder
}

func newPanelFixture(t *testing.T, mutate func(cfg *configMutation)) *panelFixture {
	t.Helper()
	cfg := util.LoadTestConfig()
	controller := rpc.NewTestController()
	if mutate != nil {
		mutate(&configMutation{cfg: &cfg, controller: controller})
	}

	es := &eventstream.EventStream{}
	rec := &eventRecorder{}
	es.Subscribe(rec.record)

	as := actor.NewActorSystem()
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPanelActor(&cfg, controller, es, zap.NewNop())
	}))
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return &panelFixture{as: as, pid: pid, controller: controller, events: rec}
}

type configMutation struct {
	cfg        *config.Config
	controller *rpc.TestController
}

func (f *panelFixture) state(t *testing.T, drain bool) domain.PanelState {
	t.Helper()
	res, err := f.as.Root.RequestFuture(f.pid, domain.GetPanelStateRequest{DrainToasts: drain}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.GetPanelStateResponse).State
}

func TestPanelRoutesStatus(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)

	res, err := f.as.Root.RequestFuture(f.pid, domain.RouteStatusRequest{
		Response: domain.StatusResponse{Status: domain.StatusConfig, StatusMessage: "please configure"},
	}, time.Second).Result()
	require.NoError(err)
	routed := res.(domain.RouteStatusResponse)
	require.False(routed.HasResponseError())
	require.Equal(domain.StatusConfig, routed.Status)
	require.Equal("Configuration", routed.Title)

	state := f.state(t, true)
	require.Equal(domain.StatusConfig, state.Status)
	require.Equal("please configure", state.LastResponse.StatusMessage)
	require.Len(state.Toasts, 1)
	require.Equal(domain.ToastInfo, state.Toasts[0].Kind)
	require.Equal("please configure", state.Toasts[0].Message)

	require.Empty(f.state(t, false).Toasts)
}

func TestPanelRejectsUnknownStatus(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)

	f.as.Root.Send(f.pid, domain.RouteStatusRequest{Response: domain.StatusResponse{Status: domain.StatusKostalAuth}})

	res, err := f.as.Root.RequestFuture(f.pid, domain.RouteStatusRequest{
		Response: domain.StatusResponse{Status: domain.InitStatus(42)},
	}, time.Second).Result()
	require.NoError(err)
	routed := res.(domain.RouteStatusResponse)
	require.ErrorIs(routed.GetResponseError(), domain.ErrUnknownStatus)
	require.Equal(domain.StatusKostalAuth, routed.Status)
	require.Equal("Kostal Authentication", routed.Title)
}

func TestPanelTelemetryPush(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)

	f.as.Root.Send(f.pid, domain.DataPushed{Notification: domain.DataNotification{
		InverterData: domain.InverterData{HousePowerConsumption: 412.456, PVPower: 1200.004, Overproduction: 787.555},
		SocketState:  true,
	}})
	f.as.Root.Send(f.pid, domain.MonitoringPushed{Enabled: true})

	state := f.state(t, false)
	require.Equal(412.46, state.Telemetry.HousePowerConsumption)
	require.Equal(1200.0, state.Telemetry.PVPowerGenerated)
	require.True(state.Telemetry.SocketState)
	require.True(state.Monitoring)
	require.Empty(state.Toasts)

	require.Eventually(func() bool {
		var telemetry, monitoring bool
		for _, ev := range f.events.snapshot() {
			switch ev.(type) {
			case domain.TelemetryUpdatedEvent:
				telemetry = true
			case domain.MonitoringUpdatedEvent:
				monitoring = true
			}
		}
		return telemetry && monitoring
	}, time.Second, 10*time.Millisecond)

	// the next push replaces the snapshot
	f.as.Root.Send(f.pid, domain.DataPushed{Notification: domain.DataNotification{}})
	require.Equal(domain.Telemetry{}, f.state(t, false).Telemetry)
}

func TestPanelToastsBounded(t *testing.T) {
	assert := assert.New(t)
	f := newPanelFixture(t, nil)

	for i := 0; i < 15; i++ {
		f.as.Root.Send(f.pid, domain.ToastRequest{Toast: domain.InfoToast(string(rune('a' + i)))})
	}
	toasts := f.state(t, true).Toasts
	assert.Len(toasts, 10)
	assert.Equal("f", toasts[0].Message)
	assert.Equal("o", toasts[9].Message)
}

func TestPanelPlugCommand(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)
	f.controller.Set(func(c *rpc.TestController) {
		c.SwitchResponse = domain.StatusResponse{Status: domain.StatusOk}
	})

	f.as.Root.Send(f.pid, domain.PlugSwitchCommand{On: true})

	require.Eventually(func() bool {
		return f.state(t, false).Telemetry.SocketState
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal([]string{rpc.MethodGetProperties, rpc.MethodSwitchLightOn}, f.controller.CallLog())
}

func TestPanelPlugCommandRefused(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)
	f.controller.Set(func(c *rpc.TestController) {
		c.SwitchResponse = domain.StatusResponse{Status: domain.StatusError, StatusMessage: "plug unreachable"}
	})

	f.as.Root.Send(f.pid, domain.PlugSwitchCommand{On: true})

	var toasts []domain.Toast
	require.Eventually(func() bool {
		toasts = f.state(t, false).Toasts
		return len(toasts) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(domain.ToastFailure, toasts[0].Kind)
	require.Equal("Error: plug unreachable", toasts[0].Message)
	require.False(f.state(t, false).Telemetry.SocketState)
}

func TestPanelMonitoringCommand(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, nil)

	f.as.Root.Send(f.pid, domain.MonitoringSwitchCommand{Enable: true})
	f.as.Root.Send(f.pid, domain.MonitoringSwitchCommand{Enable: false})
	f.state(t, false)

	require.Equal([]string{rpc.MethodStartMonitoring, rpc.MethodStopMonitoring}, f.controller.CallLog())
}

func TestPanelRefreshesStatusOnConnect(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, func(m *configMutation) {
		m.controller.IsConnected = false
		m.controller.StatusResponse = domain.StatusResponse{Status: domain.StatusDeconzAuth, StatusMessage: "press the link button"}
	})

	require.False(f.state(t, false).Connected)
	f.as.Root.Send(f.pid, domain.ConnectionStateChanged{Connected: true})

	require.Eventually(func() bool {
		return f.state(t, false).Status == domain.StatusDeconzAuth
	}, 2*time.Second, 20*time.Millisecond)
	state := f.state(t, false)
	require.True(state.Connected)
	require.Equal("Deconz Authentication", state.Title)
}

func TestPanelPeriodicRefresh(t *testing.T) {
	require := require.New(t)
	f := newPanelFixture(t, func(m *configMutation) {
		m.cfg.Controller.StatusRefreshMillis = 50
		m.controller.StatusResponse = domain.StatusResponse{Status: domain.StatusKostalAuth, StatusMessage: "kostal"}
	})

	require.Eventually(func() bool {
		return f.state(t, false).Status == domain.StatusKostalAuth
	}, 2*time.Second, 20*time.Millisecond)

	// the status is unchanged by later refreshes, so only one toast
	time.Sleep(200 * time.Millisecond)
	require.Len(f.state(t, false).Toasts, 1)
	require.GreaterOrEqual(len(f.controller.CallLog()), 2)
}

func TestPanelHealth(t *testing.T) {
	f := newPanelFixture(t, nil)

	res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, "connected/Ok", health.State)
}
