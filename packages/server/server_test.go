package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/sheetd/packages/engine"
	"github.com/vogtb/sheetd/packages/graph"
	"github.com/vogtb/sheetd/packages/store"
	"github.com/vogtb/sheetd/packages/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine returns an engine whose worker runs until the test ends
func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(store.New(), graph.New(), engine.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return eng
}

// serve runs a supervisor in the background and returns a function that
// waits for Serve to return
func serve(t *testing.T, ctx context.Context, sup *Supervisor) func() error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.Serve(ctx)
	}()
	return func() error {
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
			return nil
		}
	}
}

func roundTrip(t *testing.T, client *transport.MemClient, msg string) string {
	t.Helper()
	require.NoError(t, client.Send(msg))
	reply, err := client.Receive()
	require.NoError(t, err)
	return reply.String()
}

func TestSupervisorMemTransport(t *testing.T) {
	eng := newEngine(t)
	ln := transport.NewMemListener()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := serve(t, ctx, NewSupervisor(ln, eng, RateLimit{}, nil))

	client, err := ln.Dial()
	require.NoError(t, err)

	assert.Equal(t, "A1 = ", roundTrip(t, client, "get A1"))
	require.NoError(t, client.Send("set A1 5"))
	assert.Equal(t, "A1 = 5", roundTrip(t, client, "get A1"))
	assert.Equal(t, "Error: invalid command", roundTrip(t, client, "delete A1"))
	assert.Equal(t, "Error: invalid command", roundTrip(t, client, ""))

	cancel()
	assert.NoError(t, wait())
	_, err = client.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSupervisorListenerClosed(t *testing.T) {
	eng := newEngine(t)
	ln := transport.NewMemListener()
	wait := serve(t, context.Background(), NewSupervisor(ln, eng, RateLimit{}, nil))

	client, err := ln.Dial()
	require.NoError(t, err)
	assert.Equal(t, "B2 = ", roundTrip(t, client, "get B2"))

	// live connections keep being served until they hang up
	require.NoError(t, ln.Close())
	assert.Equal(t, "B2 = ", roundTrip(t, client, "get B2"))
	require.NoError(t, client.Close())

	assert.NoError(t, wait())
}

func TestSupervisorConcurrentClients(t *testing.T) {
	eng := newEngine(t)
	ln := transport.NewMemListener()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := serve(t, ctx, NewSupervisor(ln, eng, RateLimit{}, nil))

	const clients = 8
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := ln.Dial()
			if !assert.NoError(t, err) {
				return
			}
			defer client.Close()

			name := fmt.Sprintf("A%d", i+1)
			assert.NoError(t, client.Send(fmt.Sprintf("set %s %d", name, i)))
			assert.NoError(t, client.Send("get "+name))
			reply, err := client.Receive()
			if assert.NoError(t, err) {
				assert.Equal(t, fmt.Sprintf("%s = %d", name, i), reply.String())
			}
		}()
	}
	wg.Wait()

	require.NoError(t, eng.Flush(context.Background()))
	for i := range clients {
		_, value, err := eng.Get(fmt.Sprintf("A%d", i+1))
		require.NoError(t, err)
		assert.Equal(t, int64(i), value.Int)
	}

	cancel()
	assert.NoError(t, wait())
}

func TestSupervisorRateLimit(t *testing.T) {
	eng := newEngine(t)
	ln := transport.NewMemListener()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := serve(t, ctx, NewSupervisor(ln, eng, RateLimit{PerSecond: 1000, Burst: 1}, nil))

	client, err := ln.Dial()
	require.NoError(t, err)
	for i := range 5 {
		assert.Equal(t, "C1 = ", roundTrip(t, client, "get C1"), "message %d", i)
	}

	cancel()
	assert.NoError(t, wait())
}

func TestSupervisorTCP(t *testing.T) {
	eng := newEngine(t)
	ln, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := serve(t, ctx, NewSupervisor(ln, eng, RateLimit{}, nil))

	conn, err := net.Dial("tcp", ln.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "set A1 1\nset A2 2\nset A3 3\nset B1 sum(A1_A3)\nget B1\n")
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "B1 = 6\n", line)

	_, err = io.WriteString(conn, "set A2 20\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, value, err := eng.Get("B1")
		return err == nil && value.Int == 24
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, wait())
}

func TestAdminRoutes(t *testing.T) {
	eng := newEngine(t)
	require.NoError(t, eng.Set(context.Background(), "A1", "6 * 7"))
	require.NoError(t, eng.Set(context.Background(), "B1", `"hi"`))
	router := NewRouter(eng, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		want   map[string]any
	}{
		{
			name:   "health",
			method: http.MethodGet,
			path:   "/healthz",
			status: http.StatusOK,
			want:   map[string]any{"status": "ok"},
		},
		{
			name:   "int cell",
			method: http.MethodGet,
			path:   "/v1/cells/a1",
			status: http.StatusOK,
			want:   map[string]any{"cell": "A1", "kind": "int", "value": float64(42), "display": "42"},
		},
		{
			name:   "string cell",
			method: http.MethodGet,
			path:   "/v1/cells/B1",
			status: http.StatusOK,
			want:   map[string]any{"cell": "B1", "kind": "string", "value": "hi", "display": `"hi"`},
		},
		{
			name:   "unset cell",
			method: http.MethodGet,
			path:   "/v1/cells/Z9",
			status: http.StatusOK,
			want:   map[string]any{"cell": "Z9", "kind": "none", "value": nil, "display": ""},
		},
		{
			name:   "flush",
			method: http.MethodPost,
			path:   "/v1/flush",
			status: http.StatusOK,
			want:   map[string]any{"status": "flushed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdminBadCellName(t *testing.T) {
	router := NewRouter(newEngine(t), nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/cells/1A", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid command")
}

func TestAdminListCells(t *testing.T) {
	eng := newEngine(t)
	require.NoError(t, eng.Set(context.Background(), "B1", "A1 + 1"))
	require.NoError(t, eng.Set(context.Background(), "A1", "41"))
	require.NoError(t, eng.Flush(context.Background()))
	router := NewRouter(eng, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/cells", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Cells []CellResponse `json:"cells"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, "A1", got.Cells[0].Cell)
	assert.Equal(t, "41", got.Cells[0].Display)
	assert.Equal(t, "B1", got.Cells[1].Cell)
	assert.Equal(t, "42", got.Cells[1].Display)
}

func TestAdminListFunctions(t *testing.T) {
	router := NewRouter(newEngine(t), nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/functions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Functions []string `json:"functions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Contains(t, got.Functions, "SUM")
	assert.Contains(t, got.Functions, "MOD")
	assert.IsIncreasing(t, got.Functions)
}

func TestAdminMetrics(t *testing.T) {
	eng := newEngine(t)
	_, _ = eng.Handle(context.Background(), "get A1")
	router := NewRouter(eng, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sheetd_commands_total")
}

func TestWebSocketThroughSupervisor(t *testing.T) {
	eng := newEngine(t)
	ws := transport.NewWSListener("/ws")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := serve(t, ctx, NewSupervisor(ws, eng, RateLimit{}, nil))

	srv := httptest.NewServer(NewRouter(eng, ws, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("set C3 2 ^ 10")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("get C3")))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "C3 = 1024", string(data))

	cancel()
	assert.NoError(t, wait())
}

func TestServeAdmin(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	router := NewRouter(newEngine(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeAdmin(ctx, ln, router, nil)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ServeAdmin did not return")
	}
}
