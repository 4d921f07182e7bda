package rpc

import (
	"context"
	"sync"

	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
)

// TestController is an in-memory controller for tests. Responses are set
// through the exported fields, every call is recorded in Calls.
type TestController struct {
	mu sync.Mutex

	IsConnected      bool
	StatusResponse   domain.StatusResponse
	AuthResponse     domain.StatusResponse
	SaveResponse     domain.StatusResponse
	SwitchResponse   domain.StatusResponse
	Properties       domain.Properties
	Lights           domain.Lights
	Err              error
	Calls            []string
	LastAuth         domain.AuthenticateParams
	LastSwitchedId   string
	LastSaved        domain.Properties
	LoggedInUsername string
}

func NewTestController() *TestController {
	return &TestController{
		IsConnected: true,
		Properties: domain.Properties{
			Threshold:     500,
			PlugName:      "Plug1",
			PollDuration:  30,
			HostAddress:   "10.0.0.5",
			KostalAddress: "10.0.0.6",
		},
		Lights: domain.Lights{
			"1": {Name: "Plug1", State: domain.LightState{On: false, Reachable: true}},
			"2": {Name: "Lamp", State: domain.LightState{On: true, Reachable: true}},
		},
	}
}

func (c *TestController) record(call string) {
	c.Calls = append(c.Calls, call)
}

func (c *TestController) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Calls...)
}

func (c *TestController) Set(fn func(c *TestController)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *TestController) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.IsConnected
}

func (c *TestController) Login(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodLogin)
	c.LoggedInUsername = username
}

func (c *TestController) Status(ctx context.Context) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodStatus)
	return c.StatusResponse, c.Err
}

func (c *TestController) Authenticate(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodAuthenticate)
	c.LastAuth = params
	return c.AuthResponse, c.Err
}

func (c *TestController) LoginKostal(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodLoginKostal)
	c.LastAuth = params
	return c.AuthResponse, c.Err
}

func (c *TestController) GetLights(ctx context.Context) (domain.Lights, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodGetLights)
	return c.Lights, c.Err
}

func (c *TestController) GetProperties(ctx context.Context) (domain.Properties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodGetProperties)
	return c.Properties, c.Err
}

func (c *TestController) SaveProperties(ctx context.Context, props domain.Properties) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodSaveProperties)
	c.LastSaved = props
	return c.SaveResponse, c.Err
}

func (c *TestController) SwitchLightOn(ctx context.Context, lightId string) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodSwitchLightOn)
	c.LastSwitchedId = lightId
	return c.SwitchResponse, c.Err
}

func (c *TestController) SwitchLightOff(ctx context.Context, lightId string) (domain.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodSwitchLightOff)
	c.LastSwitchedId = lightId
	return c.SwitchResponse, c.Err
}

func (c *TestController) StartMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodStartMonitoring)
}

func (c *TestController) StopMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodStopMonitoring)
}

func (c *TestController) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(MethodInit)
}

var _ port.Controller = (*TestController)(nil)
