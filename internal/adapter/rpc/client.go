package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
	"github.com/db-tech/conbee2panel/pkg/jrpcws"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	MethodLogin           = "login"
	MethodStatus          = "status"
	MethodAuthenticate    = "authenticate"
	MethodLoginKostal     = "loginKostal"
	MethodGetLights       = "getLights"
	MethodGetProperties   = "getProperties"
	MethodSaveProperties  = "saveProperties"
	MethodSwitchLightOn   = "switchLightOn"
	MethodSwitchLightOff  = "switchLightOff"
	MethodStartMonitoring = "startMonitoring"
	MethodStopMonitoring  = "stopMonitoring"
	MethodInit            = "init"
)

var ErrSaveInProgress = errors.New("save properties already in progress")

// ControllerClient is the typed RPC surface of the controller. It owns at
// most one connection and never redials.
type ControllerClient struct {
	cfg     config.ControllerConfig
	metrics *Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	client *jrpcws.Client
	subs   []*jrpcws.Subscription

	properties singleflight.Group
	saving     *semaphore.Weighted
}

func NewControllerClient(cfg config.ControllerConfig, metrics *Metrics, logger *zap.Logger) *ControllerClient {
	return &ControllerClient{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(zap.String("controller", cfg.Name)),
		saving:  semaphore.NewWeighted(1),
	}
}

// Connect dials the controller and subscribes the listener to the data and
// monitoring pushes. The client is usable and subscribed by the time the
// listener hears ConnectionChanged(true). On failure the client stays
// disconnected and every call fails with jrpcws.ErrNotConnected.
func (c *ControllerClient) Connect(ctx context.Context, listener port.ControllerListener) error {
	_, err := jrpcws.Dial(ctx, jrpcws.Options{
		URL:              c.cfg.WebSocketURL(),
		Name:             c.cfg.Name,
		HandshakeTimeout: c.cfg.HandshakeTimeout(),
		Logger:           c.logger,
		BeforeOpen: func(client *jrpcws.Client) {
			c.attach(client, listener)
		},
		IsConnected: listener.ConnectionChanged,
	})
	return err
}

func (c *ControllerClient) attach(client *jrpcws.Client, listener port.ControllerListener) {
	subs := []*jrpcws.Subscription{
		client.Subscribe(domain.TopicData, func(params json.RawMessage) {
			var n domain.DataNotification
			if err := json.Unmarshal(params, &n); err != nil {
				c.logger.Warn("controller: malformed data push", zap.Error(err))
				return
			}
			listener.DataPushed(n)
		}),
		client.Subscribe(domain.TopicMonitoring, func(params json.RawMessage) {
			var n domain.MonitoringNotification
			if err := json.Unmarshal(params, &n); err != nil {
				c.logger.Warn("controller: malformed monitoring push", zap.Error(err))
				return
			}
			listener.MonitoringPushed(n)
		}),
	}

	c.mu.Lock()
	c.client = client
	c.subs = subs
	c.mu.Unlock()
}

func (c *ControllerClient) Close() error {
	c.mu.Lock()
	client := c.client
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Release()
	}
	if client == nil {
		return nil
	}
	return client.Close()
}

func (c *ControllerClient) Connected() bool {
	client := c.current()
	return client != nil && client.Connected()
}

func (c *ControllerClient) current() *jrpcws.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *ControllerClient) call(ctx context.Context, method string, params, result any) error {
	client := c.current()
	if client == nil {
		c.metrics.observe(method, OutcomeNotConnected, 0)
		return fmt.Errorf("%s: %w", method, jrpcws.ErrNotConnected)
	}
	if timeout := c.cfg.CallTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := client.Call(ctx, method, params, result)
	c.metrics.observe(method, outcomeOf(err), time.Since(start))
	if err != nil {
		c.logger.Warn("controller: call failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}
	c.logger.Debug("controller: call done", zap.String("method", method))
	return nil
}

func (c *ControllerClient) notify(method string, params any) {
	client := c.current()
	if client == nil {
		c.metrics.observe(method, OutcomeNotConnected, 0)
		c.logger.Warn("controller: notify while disconnected", zap.String("method", method))
		return
	}
	c.metrics.observe(method, OutcomeSent, 0)
	client.Notify(method, params)
}

func (c *ControllerClient) statusCall(ctx context.Context, method string, params any) (domain.StatusResponse, error) {
	var resp domain.StatusResponse
	err := c.call(ctx, method, params, &resp)
	return resp, err
}

func (c *ControllerClient) Login(username string) {
	c.notify(MethodLogin, domain.LoginParams{Username: username})
}

func (c *ControllerClient) Status(ctx context.Context) (domain.StatusResponse, error) {
	return c.statusCall(ctx, MethodStatus, nil)
}

func (c *ControllerClient) Authenticate(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error) {
	return c.statusCall(ctx, MethodAuthenticate, params)
}

func (c *ControllerClient) LoginKostal(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error) {
	return c.statusCall(ctx, MethodLoginKostal, params)
}

func (c *ControllerClient) GetLights(ctx context.Context) (domain.Lights, error) {
	var lights domain.Lights
	err := c.call(ctx, MethodGetLights, nil, &lights)
	return lights, err
}

// GetProperties joins an outstanding getProperties call instead of issuing
// a second one. The shared call does not inherit any caller's cancellation;
// each caller stops waiting when its own ctx is done.
func (c *ControllerClient) GetProperties(ctx context.Context) (domain.Properties, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.properties.DoChan(MethodGetProperties, func() (any, error) {
		var props domain.Properties
		err := c.call(shared, MethodGetProperties, nil, &props)
		return props, err
	})
	select {
	case <-ctx.Done():
		return domain.Properties{}, fmt.Errorf("%s: %w", MethodGetProperties, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("controller: getProperties coalesced")
		}
		if res.Err != nil {
			return domain.Properties{}, res.Err
		}
		return res.Val.(domain.Properties), nil
	}
}

// SaveProperties allows a single outstanding save. A concurrent save fails
// fast with ErrSaveInProgress.
func (c *ControllerClient) SaveProperties(ctx context.Context, props domain.Properties) (domain.StatusResponse, error) {
	if !c.saving.TryAcquire(1) {
		return domain.StatusResponse{}, ErrSaveInProgress
	}
	defer c.saving.Release(1)
	// reads started before the save must not be joined afterwards
	defer c.properties.Forget(MethodGetProperties)

	c.logger.Debug("controller: saving properties", zap.Any("properties", props.Redacted()))
	return c.statusCall(ctx, MethodSaveProperties, props)
}

func (c *ControllerClient) SwitchLightOn(ctx context.Context, lightId string) (domain.StatusResponse, error) {
	return c.statusCall(ctx, MethodSwitchLightOn, domain.SwitchLightParams{LightId: lightId})
}

func (c *ControllerClient) SwitchLightOff(ctx context.Context, lightId string) (domain.StatusResponse, error) {
	return c.statusCall(ctx, MethodSwitchLightOff, domain.SwitchLightParams{LightId: lightId})
}

func (c *ControllerClient) StartMonitoring() {
	c.notify(MethodStartMonitoring, nil)
}

func (c *ControllerClient) StopMonitoring() {
	c.notify(MethodStopMonitoring, nil)
}

func (c *ControllerClient) Init() {
	c.notify(MethodInit, nil)
}

var _ port.Controller = (*ControllerClient)(nil)
