package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/pkg/jrpcws"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wireRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wire struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wire) send(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteJSON(v)
}

func (w *wire) result(id string, result any) {
	w.send(map[string]any{"jsonrpc": jrpcws.Version, "id": id, "result": result})
}

func (w *wire) push(topic string, params any) {
	w.send(map[string]any{"notification": topic, "params": params})
}

// fakeController serves the controller protocol on a websocket. handle is
// called from the read loop of the connection.
func fakeController(t *testing.T, handle func(w *wire, req wireRequest)) config.ControllerConfig {
	t.Helper()
	return greetingController(t, nil, handle)
}

// greetingController is a fakeController that runs greet as soon as a
// connection is upgraded, before reading any request.
func greetingController(t *testing.T, greet func(w *wire), handle func(w *wire, req wireRequest)) config.ControllerConfig {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		w := &wire{conn: conn}
		if greet != nil {
			greet(w)
		}
		for {
			var req wireRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(w, req)
		}
	}))
	t.Cleanup(srv.Close)
	return config.ControllerConfig{
		Name: "test",
		URL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

type recordingListener struct {
	mu         sync.Mutex
	connected  []bool
	data       []domain.DataNotification
	monitoring []domain.MonitoringNotification
}

func (l *recordingListener) ConnectionChanged(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = append(l.connected, connected)
}

func (l *recordingListener) DataPushed(n domain.DataNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, n)
}

func (l *recordingListener) MonitoringPushed(n domain.MonitoringNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.monitoring = append(l.monitoring, n)
}

func (l *recordingListener) snapshot() ([]bool, []domain.DataNotification, []domain.MonitoringNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.connected...),
		append([]domain.DataNotification(nil), l.data...),
		append([]domain.MonitoringNotification(nil), l.monitoring...)
}

func connect(t *testing.T, cfg config.ControllerConfig, metrics *Metrics) (*ControllerClient, *recordingListener) {
	t.Helper()
	client := NewControllerClient(cfg, metrics, zap.NewNop())
	listener := &recordingListener{}
	require.NoError(t, client.Connect(context.Background(), listener))
	t.Cleanup(func() { _ = client.Close() })
	return client, listener
}

func TestStatusAndAuthenticate(t *testing.T) {
	require := require.New(t)

	auth := make(chan domain.AuthenticateParams, 1)
	cfg := fakeController(t, func(w *wire, req wireRequest) {
		switch req.Method {
		case MethodStatus:
			w.result(req.ID, map[string]any{"Status": 2, "StatusMessage": "configure me"})
		case MethodAuthenticate:
			var p domain.AuthenticateParams
			_ = json.Unmarshal(req.Params, &p)
			auth <- p
			w.result(req.ID, map[string]any{"Status": 0, "StatusMessage": "ok"})
		}
	})
	client, _ := connect(t, cfg, nil)

	resp, err := client.Status(context.Background())
	require.NoError(err)
	require.Equal(domain.StatusConfig, resp.Status)
	require.Equal("configure me", resp.StatusMessage)

	resp, err = client.Authenticate(context.Background(), domain.AuthenticateParams{
		Username: "admin", Password: "secret", HostAddress: "10.0.0.5",
	})
	require.NoError(err)
	require.True(resp.IsOk())
	require.Equal(domain.AuthenticateParams{Username: "admin", Password: "secret", HostAddress: "10.0.0.5"}, <-auth)
}

func TestSwitchLightSendsLightId(t *testing.T) {
	require := require.New(t)

	seen := make(chan wireRequest, 2)
	cfg := fakeController(t, func(w *wire, req wireRequest) {
		seen <- req
		w.result(req.ID, map[string]any{"Status": 0})
	})
	client, _ := connect(t, cfg, nil)

	_, err := client.SwitchLightOn(context.Background(), "Plug1")
	require.NoError(err)
	_, err = client.SwitchLightOff(context.Background(), "Plug1")
	require.NoError(err)

	on := <-seen
	off := <-seen
	require.Equal(MethodSwitchLightOn, on.Method)
	require.JSONEq(`{"lightId":"Plug1"}`, string(on.Params))
	require.Equal(MethodSwitchLightOff, off.Method)
	require.JSONEq(`{"lightId":"Plug1"}`, string(off.Params))
}

func TestPushesReachListener(t *testing.T) {
	require := require.New(t)

	cfg := fakeController(t, func(w *wire, req wireRequest) {
		if req.Method == MethodStartMonitoring {
			w.push(domain.TopicMonitoring, map[string]any{"enabled": true})
			w.push(domain.TopicData, map[string]any{
				"inverterData": map[string]any{"HousePowerConsumption": 412.456, "PVPower": 1200.0, "Overproduction": 787.5},
				"socketState":  true,
			})
			w.push(domain.TopicData, "garbage")
		}
	})
	client, listener := connect(t, cfg, nil)
	client.StartMonitoring()

	require.Eventually(func() bool {
		_, data, monitoring := listener.snapshot()
		return len(data) == 1 && len(monitoring) == 1
	}, 2*time.Second, 10*time.Millisecond)

	connected, data, monitoring := listener.snapshot()
	require.Equal([]bool{true}, connected)
	require.True(monitoring[0].Enabled)
	require.True(data[0].SocketState)
	require.Equal(412.456, data[0].InverterData.HousePowerConsumption)
}

func TestCallsFailWhenNeverConnected(t *testing.T) {
	assert := assert.New(t)

	metrics := NewMetrics()
	client := NewControllerClient(config.ControllerConfig{Name: "offline"}, metrics, zap.NewNop())

	_, err := client.Status(context.Background())
	assert.ErrorIs(err, jrpcws.ErrNotConnected)
	assert.False(client.Connected())
	client.Init()
	assert.NoError(client.Close())

	assert.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(MethodStatus, OutcomeNotConnected)))
	assert.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(MethodInit, OutcomeNotConnected)))
}

func TestCallTimeout(t *testing.T) {
	require := require.New(t)

	cfg := fakeController(t, func(w *wire, req wireRequest) {})
	cfg.CallTimeoutMillis = 50
	metrics := NewMetrics()
	client, _ := connect(t, cfg, metrics)

	_, err := client.GetLights(context.Background())
	require.ErrorIs(err, context.DeadlineExceeded)
	require.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(MethodGetLights, OutcomeTimeout)))
}

func TestRemoteErrorOutcome(t *testing.T) {
	require := require.New(t)

	cfg := fakeController(t, func(w *wire, req wireRequest) {
		w.send(map[string]any{"jsonrpc": jrpcws.Version, "id": req.ID, "error": map[string]any{"code": -32601, "message": "Method not found"}})
	})
	metrics := NewMetrics()
	client, _ := connect(t, cfg, metrics)

	_, err := client.GetProperties(context.Background())
	var rpcErr *jrpcws.Error
	require.ErrorAs(err, &rpcErr)
	require.Equal(-32601, rpcErr.Code)
	require.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(MethodGetProperties, OutcomeRemoteError)))
}

func TestGetPropertiesCoalesced(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	release := make(chan struct{})
	cfg := fakeController(t, func(w *wire, req wireRequest) {
		if req.Method != MethodGetProperties {
			return
		}
		calls.Add(1)
		go func() {
			<-release
			w.result(req.ID, map[string]any{"Threshold": 500, "PlugName": "Plug1", "PollDuration": 30})
		}()
	})
	client, _ := connect(t, cfg, nil)

	var wg sync.WaitGroup
	results := make(chan domain.Properties, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			props, err := client.GetProperties(context.Background())
			if err == nil {
				results <- props
			}
		}()
	}
	require.Eventually(func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	require.Equal(int32(1), calls.Load())
	n := 0
	for props := range results {
		require.Equal("Plug1", props.PlugName)
		n++
	}
	require.Equal(5, n)
}

func TestSaveRejectsConcurrentSave(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	received := make(chan domain.Properties, 1)
	cfg := fakeController(t, func(w *wire, req wireRequest) {
		if req.Method != MethodSaveProperties {
			return
		}
		var p domain.Properties
		_ = json.Unmarshal(req.Params, &p)
		received <- p
		go func() {
			<-release
			w.result(req.ID, map[string]any{"Status": 0, "StatusMessage": "saved"})
		}()
	})
	client, _ := connect(t, cfg, nil)

	done := make(chan error, 1)
	go func() {
		_, err := client.SaveProperties(context.Background(), domain.Properties{Threshold: 750, PlugName: "Plug2", PollDuration: 15})
		done <- err
	}()

	saved := <-received
	require.Equal(750.0, saved.Threshold)
	require.Equal("Plug2", saved.PlugName)

	_, err := client.SaveProperties(context.Background(), domain.Properties{})
	require.ErrorIs(err, ErrSaveInProgress)

	close(release)
	require.NoError(<-done)
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewMetrics().Register(reg))
	require.Error(t, NewMetrics().Register(reg))
}

// statusOnConnect asks the controller for its status from inside the
// connected callback, the way the panel does on startup.
type statusOnConnect struct {
	recordingListener
	client *ControllerClient
	status chan domain.StatusResponse
	errs   chan error
}

func (l *statusOnConnect) ConnectionChanged(connected bool) {
	l.recordingListener.ConnectionChanged(connected)
	if !connected {
		return
	}
	resp, err := l.client.Status(context.Background())
	if err != nil {
		l.errs <- err
		return
	}
	l.status <- resp
}

func TestClientUsableFromConnectedCallback(t *testing.T) {
	require := require.New(t)

	cfg := fakeController(t, func(w *wire, req wireRequest) {
		if req.Method == MethodStatus {
			w.result(req.ID, map[string]any{"Status": 1, "StatusMessage": "Please authenticate"})
		}
	})
	client := NewControllerClient(cfg, nil, zap.NewNop())
	listener := &statusOnConnect{
		client: client,
		status: make(chan domain.StatusResponse, 1),
		errs:   make(chan error, 1),
	}
	require.NoError(client.Connect(context.Background(), listener))
	t.Cleanup(func() { _ = client.Close() })

	select {
	case resp := <-listener.status:
		require.Equal(domain.StatusDeconzAuth, resp.Status)
		require.Equal("Please authenticate", resp.StatusMessage)
	case err := <-listener.errs:
		require.FailNow("status from connected callback failed", err.Error())
	case <-time.After(2 * time.Second):
		require.FailNow("no status from connected callback")
	}
	require.True(client.Connected())
}

func TestPushRightAfterOpenReachesListener(t *testing.T) {
	require := require.New(t)

	cfg := greetingController(t, func(w *wire) {
		w.push(domain.TopicMonitoring, map[string]any{"enabled": true})
	}, func(w *wire, req wireRequest) {})
	_, listener := connect(t, cfg, nil)

	require.Eventually(func() bool {
		_, _, monitoring := listener.snapshot()
		return len(monitoring) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, _, monitoring := listener.snapshot()
	require.True(monitoring[0].Enabled)
}

func TestGetPropertiesSurvivesCancelledJoiner(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	release := make(chan struct{})
	cfg := fakeController(t, func(w *wire, req wireRequest) {
		if req.Method != MethodGetProperties {
			return
		}
		calls.Add(1)
		go func() {
			<-release
			w.result(req.ID, map[string]any{"Threshold": 500, "PlugName": "Plug1", "PollDuration": 30})
		}()
	})
	client, _ := connect(t, cfg, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := client.GetProperties(firstCtx)
		first <- err
	}()
	require.Eventually(func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	type result struct {
		props domain.Properties
		err   error
	}
	second := make(chan result, 1)
	go func() {
		props, err := client.GetProperties(context.Background())
		second <- result{props, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(<-first, context.Canceled)

	close(release)
	r := <-second
	require.NoError(r.err)
	require.Equal("Plug1", r.props.PlugName)
	require.Equal(int32(1), calls.Load())
}
