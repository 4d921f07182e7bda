package jrpcws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type fakeHandler func(conn *websocket.Conn, req fakeRequest)

func newFakeController(t *testing.T, handle fakeHandler) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req fakeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(conn, req)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func respond(conn *websocket.Conn, id string, result any) {
	_ = conn.WriteJSON(map[string]any{"jsonrpc": Version, "id": id, "result": result})
}

func push(conn *websocket.Conn, topic string, params any) {
	_ = conn.WriteJSON(map[string]any{"notification": topic, "params": params})
}

type connectedRecorder struct {
	mu     sync.Mutex
	values []bool
}

func (r *connectedRecorder) record(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *connectedRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

func testLogger() *zap.Logger {
	return zap.Must(zap.NewDevelopment())
}

func TestCallDecodesResult(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		if req.Method == "status" {
			respond(conn, req.ID, map[string]any{"Status": 1, "StatusMessage": "Please authenticate"})
		}
	})

	client, err := Dial(context.Background(), Options{URL: url, Name: "test", Logger: testLogger()})
	require.NoError(err)
	defer client.Close()

	var resp struct {
		Status        int
		StatusMessage string
	}
	err = client.Call(context.Background(), "status", nil, &resp)
	require.NoError(err)
	assert.Equal(1, resp.Status)
	assert.Equal("Please authenticate", resp.StatusMessage)
	assert.Equal("test", client.Name())
	assert.Equal(url, client.URL())
	assert.True(client.Connected())
}

func TestCallSendsEmptyParamsObject(t *testing.T) {
	require := require.New(t)

	params := make(chan string, 1)
	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		params <- string(req.Params)
		respond(conn, req.ID, nil)
	})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	require.NoError(client.Call(context.Background(), "getLights", nil, nil))
	assert.Equal(t, "{}", <-params)
}

func TestCallReturnsRemoteError(t *testing.T) {
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": Version,
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "Method not found"},
		})
	})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	err = client.Call(context.Background(), "nope", nil, nil)
	var rpcErr *Error
	require.True(errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "Method not found", rpcErr.Message)
}

func TestRequestIdsAreUniqueUUIDs(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		mu.Lock()
		seen[req.ID] = true
		mu.Unlock()
		respond(conn, req.ID, true)
	})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var ok bool
			assert.NoError(t, client.Call(context.Background(), "status", nil, &ok))
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(seen, 20)
	for id := range seen {
		_, err := uuid.Parse(id)
		assert.NoError(t, err, id)
	}
}

func TestSubscribeFansOutInRegistrationOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		if req.Method == "startMonitoring" {
			push(conn, "monitoring", map[string]any{"enabled": true})
		}
		respond(conn, req.ID, nil)
	})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	var mu sync.Mutex
	var calls []string
	first := client.Subscribe("monitoring", func(params json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "first:"+string(params))
	})
	client.Subscribe("monitoring", func(params json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "second")
	})
	assert.Equal("monitoring", first.Topic())

	// the push precedes the response on the wire, so handlers have run when Call returns
	require.NoError(client.Call(context.Background(), "startMonitoring", nil, nil))

	mu.Lock()
	assert.Equal([]string{`first:{"enabled":true}`, "second"}, calls)
	calls = nil
	mu.Unlock()

	first.Release()
	first.Release()
	require.NoError(client.Call(context.Background(), "startMonitoring", nil, nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal([]string{"second"}, calls)
}

func TestMethodStyleNotification(t *testing.T) {
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		_ = conn.WriteJSON(map[string]any{"jsonrpc": Version, "method": "data", "params": map[string]any{"socketState": true}})
		respond(conn, req.ID, nil)
	})

	var messages []Message
	client, err := Dial(context.Background(), Options{
		URL:       url,
		OnMessage: func(m Message) { messages = append(messages, m) },
	})
	require.NoError(err)
	defer client.Close()

	got := make(chan string, 1)
	client.Subscribe("data", func(params json.RawMessage) {
		got <- string(params)
	})

	require.NoError(client.Call(context.Background(), "init", nil, nil))
	assert.JSONEq(t, `{"socketState":true}`, <-got)
	require.Len(messages, 2)
	assert.Equal(t, "data", messages[0].Topic())
}

func TestServerDropFailsPendingCalls(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		if req.Method == "hang" {
			conn.Close()
		}
	})

	recorder := &connectedRecorder{}
	errs := make(chan error, 1)
	opened := false
	client, err := Dial(context.Background(), Options{
		URL:         url,
		OnOpen:      func() { opened = true },
		OnError:     func(err error) { errs <- err },
		IsConnected: recorder.record,
	})
	require.NoError(err)
	assert.True(opened)

	err = client.Call(context.Background(), "hang", nil, nil)
	assert.ErrorIs(err, ErrConnectionClosed)

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was not called")
	}
	assert.Eventually(func() bool {
		return len(recorder.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal([]bool{true, false}, recorder.snapshot())
	assert.False(client.Connected())

	err = client.Call(context.Background(), "status", nil, nil)
	assert.ErrorIs(err, ErrNotConnected)

	// no reconnect happens behind the owner's back
	time.Sleep(100 * time.Millisecond)
	assert.Equal([]bool{true, false}, recorder.snapshot())
}

func TestCloseReportsOnClose(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {})

	recorder := &connectedRecorder{}
	closed := make(chan struct{}, 1)
	client, err := Dial(context.Background(), Options{
		URL:         url,
		OnClose:     func() { closed <- struct{}{} },
		OnError:     func(err error) { t.Errorf("unexpected error: %v", err) },
		IsConnected: recorder.record,
	})
	require.NoError(err)

	require.NoError(client.Close())
	<-closed
	assert.Equal([]bool{true, false}, recorder.snapshot())
	assert.NoError(client.Close())
}

func TestCallHonoursContext(t *testing.T) {
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.Call(ctx, "status", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifyDoesNotBlock(t *testing.T) {
	require := require.New(t)

	received := make(chan fakeRequest, 1)
	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		received <- req
		respond(conn, req.ID, nil)
	})

	client, err := Dial(context.Background(), Options{URL: url})
	require.NoError(err)
	defer client.Close()

	client.Notify("login", map[string]string{"username": "alice"})

	select {
	case req := <-received:
		assert.Equal(t, "login", req.Method)
		assert.JSONEq(t, `{"username":"alice"}`, string(req.Params))
	case <-time.After(2 * time.Second):
		t.Fatal("login was not sent")
	}
}

func TestDialFailure(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	recorder := &connectedRecorder{}
	var dialErr error
	client, err := Dial(context.Background(), Options{
		URL:         url,
		OnError:     func(err error) { dialErr = err },
		IsConnected: recorder.record,
	})
	assert.Error(err)
	assert.Nil(client)
	assert.Error(dialErr)
	assert.Equal([]bool{false}, recorder.snapshot())
}

func TestOpenCallbackOrder(t *testing.T) {
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		respond(conn, req.ID, "pong")
	})

	var order []string
	client, err := Dial(context.Background(), Options{
		URL: url,
		BeforeOpen: func(*Client) {
			order = append(order, "before")
		},
		OnOpen: func() { order = append(order, "open") },
		IsConnected: func(connected bool) {
			if connected {
				order = append(order, "connected")
			}
		},
		Logger: testLogger(),
	})
	require.NoError(err)
	defer client.Close()
	require.Equal([]string{"before", "open", "connected"}, order)
}

func TestCallFromConnectedCallback(t *testing.T) {
	require := require.New(t)

	_, url := newFakeController(t, func(conn *websocket.Conn, req fakeRequest) {
		respond(conn, req.ID, "pong")
	})

	var self *Client
	var reply string
	var callErr error
	client, err := Dial(context.Background(), Options{
		URL:        url,
		BeforeOpen: func(c *Client) { self = c },
		IsConnected: func(connected bool) {
			if connected {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				callErr = self.Call(ctx, "ping", nil, &reply)
			}
		},
		Logger: testLogger(),
	})
	require.NoError(err)
	defer client.Close()
	require.Same(client, self)
	require.NoError(callErr)
	require.Equal("pong", reply)
}
