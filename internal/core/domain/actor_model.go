package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_PANEL        = "panel"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ActorRef actor.PID

// ActorRequest is implemented by requests that may name the PID the answer
// goes to. A nil ReplyTo means "answer the sender".
type ActorRequest interface {
	ReplyTo() *ActorRef
}

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponse carries the error of a request that failed inside an actor.
type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

// PanelMessage marks the messages the master routes to the panel actor.
type PanelMessage interface {
	isPanelMessage()
}

type panelMessageMixIn struct{}

func (panelMessageMixIn) isPanelMessage() {}

type ConnectionStateChanged struct {
	panelMessageMixIn
	Connected bool
}

// RouteStatusRequest feeds a StatusResponse into the router.
type RouteStatusRequest struct {
	panelMessageMixIn
	ActorRequestMixIn
	Response StatusResponse
}

type RouteStatusResponse struct {
	ActorResponseMixIn
	Status InitStatus
	Title  string
}

type ToastRequest struct {
	panelMessageMixIn
	Toast Toast
}

type DataPushed struct {
	panelMessageMixIn
	Notification DataNotification
}

type MonitoringPushed struct {
	panelMessageMixIn
	Enabled bool
}

type SetSocketStateRequest struct {
	panelMessageMixIn
	On bool
}

type GetPanelStateRequest struct {
	panelMessageMixIn
	ActorRequestMixIn
	DrainToasts bool
}

type PanelState struct {
	Connected    bool
	Status       InitStatus
	LastResponse StatusResponse
	Title        string
	Telemetry    Telemetry
	Monitoring   bool
	Toasts       []Toast
}

type GetPanelStateResponse struct {
	ActorResponseMixIn
	State PanelState
}

// PlugSwitchCommand and MonitoringSwitchCommand arrive from MQTT.
type PlugSwitchCommand struct {
	panelMessageMixIn
	On bool
}

type MonitoringSwitchCommand struct {
	panelMessageMixIn
	Enable bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
