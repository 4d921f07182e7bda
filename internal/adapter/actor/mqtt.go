package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/events"
	"github.com/db-tech/conbee2panel/internal/mqtt"
	"github.com/db-tech/conbee2panel/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const maxStashed = 1024

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	topics         mqtt.Topics
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger

	// publishes of the batch in flight
	pending    int
	pendingErr error
	replyTo    *actor.PID

	// test actor only
	published map[string]string
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type OnEventStreamMessage struct {
	Message any
}

type publishResult struct {
	Error error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		topics:      mqtt.NewTopics(config.MQTT),
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.stash = actorutil.NewLoggedStash(maxStashed, act.logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	root, self := ctx.ActorSystem().Root, ctx.Self()
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.NewMQTTClient(state.config.MQTT, mqtt.ConnectionHooks{
			OnLost: func(err error) {
				root.Send(self, MQTTConnectionLost{Error: err})
			},
		})
		state.client.Connect(10*time.Second, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		})

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.topics.BridgeState(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, 500*time.Millisecond, nil)

		if state.eventStream != nil {
			state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
				root.Send(self, OnEventStreamMessage{Message: value})
			})
		}

		state.client.SubscribeCommands(func(cmd *mqtt.ParsedMQTTCommand) {
			root.Send(self, ParsedCommand{Command: cmd})
		}, time.Second, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		})
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case OnEventStreamMessage:
		// state is republished on the next change
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		evs := events.PanelEventToUpdateEvents(msg.Message)
		if len(evs) > 0 {
			state.logger.Debug("mqtt@default OnEventStreamMessage", zap.String("type", fmt.Sprintf("%T", msg.Message)))
			state.publishSensorValues(ctx, evs, false, nil)
		}
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValues(ctx, []domain.SensorUpdateEvent{msg.Event}, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(msg.Sensors, msg.Switches)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.topics.SensorState(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.topics.BinarySensorState(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.topics.SwitchState(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.topics.SensorState(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.topics.BridgeState(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

// publishSensorValues publishes a batch and waits for every publish to be
// acknowledged before handling the next message.
func (state *MQTTActor) publishSensorValues(ctx actor.Context, evs []domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	root, self := ctx.ActorSystem().Root, ctx.Self()
	state.pending = 0
	state.pendingErr = nil
	state.replyTo = replyTo
	for _, ev := range evs {
		msg := state.event2MQTTMessage(ev)
		if msg == nil {
			continue
		}
		state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
		state.pending++
		state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, 5*time.Second, func(err error) {
			root.Send(self, publishResult{Error: err})
		})
	}
	if state.pending == 0 {
		state.respondPublished(ctx, errors.New("no publishable sensor update"))
		return
	}
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) respondPublished(ctx actor.Context, err error) {
	if state.replyTo != nil {
		ctx.Send(state.replyTo, domain.PublishSensorUpdateResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	}
	state.replyTo = nil
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	root, self := ctx.ActorSystem().Root, ctx.Self()
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.replyTo = replyTo
	state.client.Publish(topic, payload, 1, retain, 5*time.Second, func(err error) {
		root.Send(self, publishResult{Error: err})
	})
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
			state.replyTo = nil
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
			state.pendingErr = msg.Error
		}
		state.pending--
		if state.pending > 0 {
			return
		}
		state.respondPublished(ctx, state.pendingErr)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// PublishHomeAssistantDiscovery sends the retained discovery configs without
// waiting for the broker.
func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor, switches []domain.GenericSwitch) error {
	msgs, err := mqtt.DiscoveryMessages(state.topics, sensors, switches)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		state.client.Publish(m.Topic, m.Payload, 0, true, time.Second, nil)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.topics.BridgeState(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, 500*time.Millisecond, nil)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

// NewTestMQTTActor answers like a connected MQTT actor without a broker and
// records the sensor updates it would publish.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		topics:      mqtt.NewTopics(config.MQTT),
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.stash = actorutil.NewLoggedStash(maxStashed, act.logger)
	act.behavior.Become(act.DummyReceive)
	return act
}

// GetPublishedRequest asks a test MQTT actor for the messages it rendered.
type GetPublishedRequest struct{}

type GetPublishedResponse struct {
	Messages map[string]string
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.published = map[string]string{}
		if state.eventStream != nil {
			root, self := ctx.ActorSystem().Root, ctx.Self()
			state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
				root.Send(self, OnEventStreamMessage{Message: value})
			})
		}
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case OnEventStreamMessage:
		for _, ev := range events.PanelEventToUpdateEvents(msg.Message) {
			state.record(ev)
		}
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		state.record(msg.Event)
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
	case domain.PublishMessageRequest:
		state.published[msg.Topic] = msg.Payload
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		for _, s := range msg.Sensors {
			state.published[state.topics.SensorConfig(s)] = s.UniqueId
		}
		for _, s := range msg.Switches {
			state.published[state.topics.SwitchConfig(s)] = s.UniqueId
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{})
	case GetPublishedRequest:
		out := make(map[string]string, len(state.published))
		for k, v := range state.published {
			out[k] = v
		}
		ctx.Respond(GetPublishedResponse{Messages: out})
	}
}

func (state *MQTTActor) record(ev domain.SensorUpdateEvent) {
	if raw := state.event2MQTTMessage(ev); raw != nil {
		state.published[raw.topic] = raw.message
	}
}
