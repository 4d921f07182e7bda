package actor

import (
	"testing"
	"time"

	adactor "github.com/db-tech/conbee2panel/internal/adapter/actor"
	"github.com/db-tech/conbee2panel/internal/adapter/rpc"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/mqtt"
	"github.com/db-tech/conbee2panel/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	require := require.New(t)

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Enable = true
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	controller := rpc.NewTestController()
	controller.SwitchResponse = domain.StatusResponse{Status: domain.StatusOk}
	es := &eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, controller, es, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(err)
	defer func() {
		context.Stop(pid)
		as.Shutdown()
	}()

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)

	// panel messages are answered by the panel through the master
	res, err = context.RequestFuture(pid, domain.RouteStatusRequest{
		Response: domain.StatusResponse{Status: domain.StatusConfig, StatusMessage: "configure"},
	}, time.Second).Result()
	require.NoError(err)
	require.Equal(domain.StatusConfig, res.(domain.RouteStatusResponse).Status)

	// MQTT switch commands reach the controller
	mqttPID := actor.NewPID(as.Address(), domain.ACTOR_ID_MASTER+"/"+domain.ACTOR_ID_MQTT)
	context.Send(mqttPID, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_PLUG,
		Command:  "switch",
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})

	require.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetPanelStateRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		return res.(domain.GetPanelStateResponse).State.Telemetry.SocketState
	}, 3*time.Second, 50*time.Millisecond)
	controller.Set(func(c *rpc.TestController) {
		require.Equal("Plug1", c.LastSwitchedId)
	})

	// discovery and state changes are rendered by the MQTT actor
	require.Eventually(func() bool {
		res, err := context.RequestFuture(mqttPID, adactor.GetPublishedRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		published := res.(adactor.GetPublishedResponse).Messages
		return published["conbee2panel/switch/plug/state"] == mqtt.MQTT_PAYLOAD_ON &&
			published["conbee2panel/sensor/router_status/state"] == "Config" &&
			len(published) > 8
	}, 3*time.Second, 50*time.Millisecond)
}

func TestMasterActorWithoutMQTT(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	controller := rpc.NewTestController()

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, controller, &eventstream.EventStream{}, nil, zap.NewNop())
	}))
	defer func() {
		context.Stop(pid)
		as.Shutdown()
	}()

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ActorHealthResponse).Healthy)
}
