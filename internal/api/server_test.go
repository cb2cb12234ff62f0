package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/engine"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
)

func newTestSetup(t *testing.T) (*Server, *events.Emitter, *engine.Engine) {
	t.Helper()
	cfg := config.Defaults()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "n1", NodeType: graph.NodeTypeConcept, Name: "alpha", E: 0.5}))

	emitter := events.NewEmitter(context.Background(), nil, 64, 1.0)
	require.NoError(t, emitter.Start())
	t.Cleanup(emitter.Stop)

	e := engine.New(cfg, "agent-api-test", g, nil, emitter, nil, time.Now())

	s := New(nil)
	s.RegisterEngine(e)
	s.Subscribe(emitter)
	return s, emitter, e
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestSetup(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStimulusRoutesToRegisteredAgent(t *testing.T) {
	s, _, e := newTestSetup(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"agent_id": "agent-api-test", "node_id": "n1", "amount": 0.3,
	})
	resp, err := http.Post(ts.URL+"/stimulus", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	e.RunFrame(context.Background(), time.Now())
}

func TestStimulusUnknownAgentReturns404(t *testing.T) {
	s, _, _ := newTestSetup(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"agent_id": "nobody", "node_id": "n1", "amount": 0.1,
	})
	resp, err := http.Post(ts.URL+"/stimulus", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsReportsRegisteredAgent(t *testing.T) {
	s, _, e := newTestSetup(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	e.RunFrame(context.Background(), time.Now())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Agents []agentMetrics `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Agents, 1)
	require.Equal(t, "agent-api-test", payload.Agents[0].AgentID)
	require.EqualValues(t, 1, payload.Agents[0].FrameID)
}

func TestEventsWebsocketBroadcastsTickFrame(t *testing.T) {
	s, _, e := newTestSetup(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	e.RunFrame(context.Background(), time.Now())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var sawTickFrame bool
	for i := 0; i < 20; i++ {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		if env.Type == events.TypeTickFrame {
			sawTickFrame = true
			break
		}
	}
	require.True(t, sawTickFrame, "expected tick_frame.v1 to arrive over the websocket broadcast")
}
