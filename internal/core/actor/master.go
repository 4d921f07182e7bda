package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/db-tech/conbee2panel/internal/adapter/actor"
	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
	. "github.com/db-tech/conbee2panel/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// maxStashed bounds the messages kept while an actor is busy.
const maxStashed = 256

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// MasterActor supervises the panel and, when enabled, the MQTT bridge. Panel
// messages sent to the master are forwarded to the panel with the original
// sender.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	controller         port.Controller
	panelActor         *actor.PID
	mqttActor          *actor.PID
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksExpected int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterActor(config config.Config, controller port.Controller, eventStream *eventstream.EventStream, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       eventStream,
		controller:        controller,
		mqttActorProvider: mqttActorProvider,
	}
	act.stash = NewLoggedStash(maxStashed, act.logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Panel child
		panelActorPID, err := state.startPanelActor(ctx)
		if err != nil {
			panic(err)
		}
		state.panelActor = panelActorPID

		if state.config.MQTT.Enable && state.mqttActorProvider != nil {
			// start MQTT child
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID

			// start HA Discovery
			if state.config.MQTT.HADiscoveryEnable {
				_, err := state.startHADiscoveryActor(ctx)
				if err != nil {
					panic(err)
				}
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.requestHealth(ctx, state.panelActor, domain.ACTOR_ID_PANEL)
		if state.mqttActor != nil {
			state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.PanelMessage:
		ctx.RequestWithCustomSender(state.panelActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		// redirect parsedCommand to the panel
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			if cmd := ParsedMQTTCommandToCommand(*msg.Command); cmd != nil {
				ctx.Send(state.panelActor, cmd)
			}
		}
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	state.currentHealthCheck.checksExpected++
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

func (state *MasterActor) startPanelActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	panelProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPanelActor(&state.config, state.controller, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(panelProps, domain.ACTOR_ID_PANEL)
}

func (state *MasterActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksExpected = 0
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthy) < state.checksExpected {
		return false
	}
	for _, ok := range state.healthy {
		if !ok {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
