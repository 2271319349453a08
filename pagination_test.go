package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/publisher"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func withConfig(t *testing.T) {
	t.Helper()
	prev := cfg.Config
	cfg.Config = cfg.DefaultConfiguration()
	cfg.Config.NodeID = 1
	cfg.Config.DataDir = t.TempDir()
	cfg.Config.Store.Backend = cfg.BackendMemory
	cfg.Config.Prometheus.Enabled = false
	cfg.Config.Publications = []cfg.PublicationConfiguration{{
		Name:             "myOrders",
		Collection:       "orders",
		DynamicFilters:   "owner",
		TransformOptions: "limit_cap",
	}}
	t.Cleanup(func() { cfg.Config = prev })
	require.NoError(t, cfg.Validate())
}

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (c *wsClient) send(raw string) {
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (c *wsClient) read() map[string]any {
	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(data, &msg))
	return msg
}

// readUntil collects messages until one satisfies done
func (c *wsClient) readUntil(done func(map[string]any) bool) []map[string]any {
	var msgs []map[string]any
	for {
		msg := c.read()
		msgs = append(msgs, msg)
		if done(msg) {
			return msgs
		}
	}
}

func post(t *testing.T, url, body string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestApp_ReactivePaginationEndToEnd(t *testing.T) {
	withConfig(t)

	a, err := newApp(publisher.DefaultHooks())
	require.NoError(t, err)
	defer a.Close()

	hs := httptest.NewServer(a.Routes())
	defer hs.Close()

	post(t, hs.URL+"/admin/collections/orders/", `{"_id":"o1","owner":"alice","total":10}`)
	post(t, hs.URL+"/admin/collections/orders/", `{"_id":"o2","owner":"bob","total":20}`)

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + cfg.Config.Server.Path
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-Id": []string{"alice"}})
	require.NoError(t, err)
	defer ws.Close()
	c := &wsClient{t: t, ws: ws}

	c.send(`{"msg":"connect","version":"1"}`)
	assert.Equal(t, "connected", c.read()["msg"])

	c.send(`{"msg":"sub","id":"s1","name":"myOrders","params":[{},{"sort":{"total":1},"reactive":true}]}`)
	initial := c.readUntil(func(m map[string]any) bool { return m["msg"] == "ready" })

	var added []string
	var sawCount, sawMarker bool
	for _, m := range initial {
		switch {
		case m["msg"] == "added" && m["collection"] == "counts":
			sawCount = true
			assert.Equal(t, "sub_count_s1", m["id"])
			assert.EqualValues(t, 1, m["fields"].(map[string]any)["count"])
		case m["msg"] == "added" && m["collection"] == "orders":
			added = append(added, m["id"].(string))
		case m["msg"] == "changed" && m["collection"] == "orders":
			sawMarker = true
			assert.EqualValues(t, 1, m["fields"].(map[string]any)["sub_s1"])
		}
	}
	assert.True(t, sawCount)
	assert.True(t, sawMarker)
	assert.Equal(t, []string{"o1"}, added, "only the subscriber's own orders are published")

	post(t, hs.URL+"/admin/collections/orders/", `{"_id":"o3","owner":"alice","total":5}`)

	var gotDoc, gotCount bool
	c.readUntil(func(m map[string]any) bool {
		if m["msg"] == "added" && m["id"] == "o3" {
			gotDoc = true
		}
		if m["msg"] == "changed" && m["collection"] == "counts" {
			assert.EqualValues(t, 2, m["fields"].(map[string]any)["count"])
			gotCount = true
		}
		return gotDoc && gotCount
	})

	c.send(`{"msg":"unsub","id":"s1"}`)
	c.readUntil(func(m map[string]any) bool { return m["msg"] == "nosub" })
	assert.Eventually(t, func() bool { return a.store.ObserverCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestApp_RejectsUnknownHook(t *testing.T) {
	withConfig(t)
	cfg.Config.Publications[0].TransformOptions = "missing"

	_, err := newApp(publisher.DefaultHooks())
	assert.Error(t, err)
}
