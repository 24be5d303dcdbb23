package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseStream struct {
	r *bufio.Reader
}

// next returns the event name and data of the next server-sent event.
func (s *sseStream) next(t *testing.T) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mcpClient struct {
	t          *testing.T
	stream     *sseStream
	messageURL string
}

func (c *mcpClient) send(msg map[string]interface{}) {
	c.t.Helper()
	msg["jsonrpc"] = "2.0"
	body, err := json.Marshal(msg)
	require.NoError(c.t, err)
	resp, err := http.Post(c.messageURL, "application/json", bytes.NewReader(body))
	require.NoError(c.t, err)
	resp.Body.Close()
	require.Equal(c.t, http.StatusAccepted, resp.StatusCode)
}

func (c *mcpClient) call(id int, method string, params interface{}) rpcResponse {
	c.t.Helper()
	c.send(map[string]interface{}{"id": id, "method": method, "params": params})

	event, data := c.stream.next(c.t)
	require.Equal(c.t, "message", event)
	var resp rpcResponse
	require.NoError(c.t, json.Unmarshal([]byte(data), &resp))
	require.Equal(c.t, id, resp.ID)
	require.Nil(c.t, resp.Error)
	return resp
}

// connectMCP opens an event stream and completes the initialize handshake.
func connectMCP(t *testing.T, baseURL string) *mcpClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+mcpSSEPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream := &sseStream{r: bufio.NewReader(resp.Body)}
	event, data := stream.next(t)
	require.Equal(t, "endpoint", event)
	endpoint, err := url.Parse(data)
	require.NoError(t, err)
	sessionID := endpoint.Query().Get("sessionID")
	require.NotEmpty(t, sessionID)

	c := &mcpClient{
		t:          t,
		stream:     stream,
		messageURL: baseURL + mcpMessagePath + "?sessionID=" + url.QueryEscape(sessionID),
	}

	initResp := c.call(1, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "pantry-test", "version": "0.0.1"},
		"capabilities":    map[string]interface{}{},
	})
	var info struct {
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(initResp.Result, &info))
	assert.Equal(t, "pantry", info.ServerInfo.Name)

	c.send(map[string]interface{}{"method": "notifications/initialized"})
	return c
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func TestMCPToolsOverSSE(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})
	c := connectMCP(t, ts.URL)

	var list struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			InputSchema struct {
				Type       string                     `json:"type"`
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(c.call(2, "tools/list", map[string]interface{}{}).Result, &list))
	require.Len(t, list.Tools, 21)
	for _, tool := range list.Tools {
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
		if tool.Name == "add_food_item" {
			assert.Equal(t, []string{"name"}, tool.InputSchema.Required)
			assert.Contains(t, tool.InputSchema.Properties, "expiration_date")
		}
	}

	var result toolCallResult
	require.NoError(t, json.Unmarshal(c.call(3, "tools/call", map[string]interface{}{
		"name":      "format_quantity",
		"arguments": map[string]interface{}{"quantity": 1500, "unit": "g"},
	}).Result, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"formatted":"1.5 kg"}`, result.Content[0].Text)

	require.NoError(t, json.Unmarshal(c.call(4, "tools/call", map[string]interface{}{
		"name":      "delete_food_item",
		"arguments": map[string]interface{}{"id": "nope"},
	}).Result, &result))
	assert.True(t, result.IsError)
}

func TestInputSchema(t *testing.T) {
	schema := inputSchema(AddFamilyMemberParams{})
	assert.Equal(t, []string{"name", "gender", "age", "height_cm", "weight_kg", "activity_level"}, schema.Required)

	allergies, ok := schema.Properties["allergies"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "array", allergies["type"])
	assert.Equal(t, map[string]interface{}{"type": "string"}, allergies["items"])

	age, ok := schema.Properties["age"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "integer", age["type"])

	empty := inputSchema(nil)
	assert.Empty(t, empty.Properties)
	assert.Empty(t, empty.Required)
}

func TestStopEndsStartWithRulesWatcher(t *testing.T) {
	rules, err := os.ReadFile(filepath.Join("..", "classify", "rules.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, rules, 0o644))

	srv, err := NewPantryServer(&Config{
		Host:       "127.0.0.1",
		Port:       0,
		DBPath:     filepath.Join(dir, "pantry.db"),
		RulesPath:  rulesPath,
		WatchRules: true,
	}, &stubGenerator{}, nil)
	require.NoError(t, err)
	require.NotNil(t, srv.watcher)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	// A reload proves the watcher loop is running before Stop.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(rulesPath, rules, 0o644)
		return srv.watcher.Reloads() > 0
	}, 5*time.Second, 300*time.Millisecond)

	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	select {
	case <-srv.watcher.Done():
	default:
		t.Fatal("rules watcher still running")
	}
}
