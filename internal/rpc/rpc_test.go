package rpc

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"tunnel-keeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tunnels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode([]models.Tunnel{{SandboxID: 1234, SSHPort: 22345, BastionPort: 2345, State: models.StateClosed}})
		case http.MethodPost:
			var req models.CreateTunnelRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req.Port == "22345" {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "port already used", Code: "port_occupied"})
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(models.TunnelResponse{Index: 1})
		}
	})
	mux.HandleFunc("/api/v1/tunnels/0", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/v1/tunnels/eligible", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("action"))
		w.Write([]byte(`[0,2]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func tcpClient(srv *httptest.Server) HTTPClient {
	return NewHTTPClient(&HTTPConfig{
		Network: "tcp",
		Address: srv.Listener.Addr().String(),
		Timeout: 2 * time.Second,
		BaseURL: "http://localhost",
	})
}

func TestClientGet(t *testing.T) {
	client := tcpClient(newTestServer(t))
	defer client.Close()

	resp, err := client.Get("/api/v1/tunnels", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	var tunnels []models.Tunnel
	require.NoError(t, resp.Decode(&tunnels))
	require.Len(t, tunnels, 1)
	assert.Equal(t, 1234, tunnels[0].SandboxID)
	assert.Equal(t, models.StateClosed, tunnels[0].State)
}

func TestClientGetWithParams(t *testing.T) {
	client := tcpClient(newTestServer(t))
	defer client.Close()

	resp, err := client.Get("/api/v1/tunnels/eligible", map[string]interface{}{"action": "open"})
	require.NoError(t, err)
	var indexes []int
	require.NoError(t, resp.Decode(&indexes))
	assert.Equal(t, []int{0, 2}, indexes)
}

func TestClientPostErrorBody(t *testing.T) {
	client := tcpClient(newTestServer(t))
	defer client.Close()

	resp, err := client.Post("/api/v1/tunnels", models.CreateTunnelRequest{SandboxID: "1234", Port: "22345"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "port already used", resp.Error)
	assert.Equal(t, "port_occupied", resp.Code)
	assert.Error(t, resp.Err())

	resp, err = client.Post("/api/v1/tunnels", models.CreateTunnelRequest{SandboxID: "1234", Port: "22346"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NoError(t, resp.Err())
}

func TestClientDeleteEmptyErrorBody(t *testing.T) {
	client := tcpClient(newTestServer(t))
	defer client.Close()

	resp, err := client.Delete("/api/v1/tunnels/0", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404 Not Found", resp.Error)
}

func TestClientConnectionRefused(t *testing.T) {
	// 占用一个端口后立即释放，得到一个无人监听的地址
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	client := NewHTTPClient(&HTTPConfig{Network: "tcp", Address: addr, Timeout: time.Second, BaseURL: "http://localhost", Retries: 1})
	defer client.Close()

	_, err = client.Get("/api/v1/tunnels", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot connect to tunnel-keeper")
}

func TestClientUnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix socket test runs on posix only")
	}
	dir, err := os.MkdirTemp("", "tk")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "k.sock")

	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"port":22223}`))
	})}
	go srv.Serve(l)
	defer srv.Close()

	client := NewHTTPClient(&HTTPConfig{Network: "unix", Address: sock, Timeout: 2 * time.Second, BaseURL: "http://localhost"})
	defer client.Close()
	resp, err := client.Get("/api/v1/tunnels/suggest-port", nil)
	require.NoError(t, err)
	var suggestion models.PortSuggestion
	require.NoError(t, resp.Decode(&suggestion))
	assert.Equal(t, 22223, suggestion.Port)
}

func TestBuildURL(t *testing.T) {
	u, err := buildURL("http://localhost", "/api/v1/tunnels", map[string]interface{}{"action": "close"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/api/v1/tunnels?action=close", u)

	u, err = buildURL("http://localhost/base/", "/api", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/base/api", u)
}
