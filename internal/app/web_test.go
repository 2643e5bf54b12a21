package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/safe_space/internal/serialport"
	"github.com/relabs-tech/safe_space/internal/stress"
)

func newTestServer(t *testing.T) (*httptest.Server, *System) {
	t.Helper()
	sys, _ := newTestSystem(t, testConfig(t))
	sys.Coach = &fixedCoach{}
	srv := httptest.NewServer(NewServer(sys, NewAssessor(sys)))
	t.Cleanup(srv.Close)
	return srv, sys
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_SessionRoundTrip(t *testing.T) {
	srv, sys := newTestServer(t)

	var ports map[string][]string
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/ports", nil, &ports))
	assert.Equal(t, []string{serialport.MockPortName}, ports["ports"])

	var scan scanResponse
	doJSON(t, http.MethodPost, srv.URL+"/api/scan", nil, &scan)
	assert.Equal(t, "disconnected", scan.Status)
	assert.Equal(t, "Sensor not connected. Select a port first.", scan.Message)

	var status sessionStatus
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/connect", connectRequest{Port: "mock"}, &status))
	assert.True(t, status.Connected)
	assert.Equal(t, "mock", status.Port)
	assert.Equal(t, sys.Session.ID().String(), status.SessionID)

	doJSON(t, http.MethodPost, srv.URL+"/api/scan", nil, &scan)
	assert.Equal(t, "parsed", scan.Status)
	assert.True(t, strings.HasPrefix(scan.Line, "{"))

	var entries map[string]map[string]float64
	doJSON(t, http.MethodGet, srv.URL+"/api/log", nil, &entries)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[scan.Timestamp], "eda_raw")

	var latest latestResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/latest", nil, &latest))
	assert.Equal(t, scan.Line, latest.Line)
	assert.InDelta(t, 33.5, latest.Vitals.TempC, 0.5)

	doJSON(t, http.MethodPost, srv.URL+"/api/disconnect", nil, &status)
	assert.False(t, status.Connected)
	assert.False(t, sys.Session.IsOpen())
}

func TestServer_ConnectFailure(t *testing.T) {
	srv, sys := newTestServer(t)

	var status sessionStatus
	code := doJSON(t, http.MethodPost, srv.URL+"/api/connect", connectRequest{Port: "/dev/ttyUSB7"}, &status)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, status.Connected)
	assert.Contains(t, status.Message, "Failed to connect to /dev/ttyUSB7")
	assert.False(t, sys.Session.IsOpen())

	resp, err := http.Post(srv.URL+"/api/connect", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_LatestWithoutData(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Assess(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"audio":{"label":"stressed","confidence":0.9},` +
		`"facial":{"label":"stressed","confidence":0.85},` +
		`"survey":{"label":"not_stressed","confidence":0.9},"words":"exams"}`
	resp, err := http.Post(srv.URL+"/api/assess", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.InDelta(t, 0.75, report.Fusion.Score, 1e-9)
	assert.Equal(t, stress.Stressed, report.Fusion.Label)
	assert.Equal(t, "Breathe.", report.Advice)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/connect")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_DiscoverWebsocket(t *testing.T) {
	srv, sys := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/discover"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var probing, found discoveryMessage
	require.NoError(t, conn.ReadJSON(&probing))
	assert.Equal(t, "probing", probing.Kind)
	assert.Equal(t, "Testing port: mock...", probing.Message)

	require.NoError(t, conn.ReadJSON(&found))
	assert.Equal(t, "found", found.Kind)
	assert.Equal(t, "mock", found.Port)

	var status sessionStatus
	require.NoError(t, conn.ReadJSON(&status))
	assert.True(t, status.Connected)
	assert.Equal(t, "mock", status.Port)
	assert.True(t, sys.Session.IsOpen())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_DiscoverWebsocketNotFound(t *testing.T) {
	cfg := testConfig(t)
	cfg.SerialMock = false
	sys, _ := newTestSystem(t, cfg)
	srv := httptest.NewServer(NewServer(sys, NewAssessor(sys)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/discover"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev discoveryMessage
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "no_ports", ev.Kind)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.False(t, sys.Session.IsOpen())
}
