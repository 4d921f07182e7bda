package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	. "github.com/db-tech/conbee2panel/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrMQTTNotHealthy = errors.New("MQTT actor is not healthy")

// HADiscoveryActor announces the panel entities to Home Assistant once the
// MQTT actor is up.
type HADiscoveryActor struct {
	ActorWithStates
	config    *config.Config
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		logger:    ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(HADStartingState{
		actor: act,
	})
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *HADiscoveryActor) ignored(msg any) {
	state.logger.Debug(fmt.Sprintf("hadiscovery@%s ignored", state.StateName()), zap.String("type", fmt.Sprintf("%T", msg)))
}

// Starting state

type HADStartingState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADStartingState) Name() string {
	return "starting"
}

func (state HADStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("hadiscovery@starting started")

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.actor.Become(HADWaitingHealthyState{
			actor: state.actor,
		})
	case *actor.Restarting:
	default:
		state.actor.ignored(msg)
	}
}

// Waiting for the MQTT actor

type HADWaitingHealthyState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADWaitingHealthyState) Name() string {
	return "waitingHealthy"
}

func (state HADWaitingHealthyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.actor.logger.Debug("hadiscovery@waitingHealthy ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(ErrMQTTNotHealthy)
		}

		panelDevice := domain.PanelDevice(state.actor.config.MQTT.BaseTopic)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:  domain.PanelSensors(panelDevice),
			Switches: domain.PanelSwitches(panelDevice),
		}, 5*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		state.actor.Become(HADPublishingState{
			actor: state.actor,
		})
	default:
		state.actor.ignored(msg)
	}
}

// Publishing state

type HADPublishingState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADPublishingState) Name() string {
	return "publishing"
}

func (state HADPublishingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("hadiscovery@publishing failed", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		state.actor.logger.Info("hadiscovery@publishing done")
		state.actor.Become(HADDoneState{
			actor: state.actor,
		})
	default:
		state.actor.ignored(msg)
	}
}

// Done state

type HADDoneState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADDoneState) Name() string {
	return "done"
}

func (state HADDoneState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   state.actor.StateName(),
		})
	default:
		state.actor.ignored(msg)
	}
}
