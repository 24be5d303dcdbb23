// internal/ai/gateway.go
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GatewayClient calls an MCP proxy that fronts an OpenRouter gateway.
type GatewayClient struct {
	httpClient *http.Client
	proxyURL   string
	apiKey     string
	model      string
	logger     *zap.Logger
}

func NewGatewayClient(cfg Config, logger *zap.Logger) *GatewayClient {
	proxyURL := cfg.ProxyURL
	if proxyURL == "" {
		proxyURL = "http://mcp-compose-http-proxy:9876"
	}
	model := cfg.Model
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GatewayClient{
		httpClient: &http.Client{Timeout: timeout},
		proxyURL:   strings.TrimRight(proxyURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		logger:     logger.Named("gateway"),
	}
}

func (c *GatewayClient) GenerateRecipe(ctx context.Context, message, language string) (string, error) {
	completionRequest := map[string]interface{}{
		"model":         c.model,
		"system_prompt": systemPrompt(language),
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": message,
			},
		},
		"max_tokens":  3000,
		"temperature": 0.7,
	}

	output, err := c.callGateway(ctx, "create_completion", completionRequest)
	if err != nil {
		return "", err
	}
	return extractCompletionText(output), nil
}

func (c *GatewayClient) callGateway(ctx context.Context, toolName string, args interface{}) (string, error) {
	url := fmt.Sprintf("%s/openrouter-gateway", c.proxyURL)

	requestData := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      toolName,
			"arguments": args,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway call finished",
		zap.String("tool", toolName),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("request failed with status %d and couldn't read body: %v", resp.StatusCode, err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || isQuotaMessage(string(bodyBytes)) {
			return "", fmt.Errorf("%w: %s", ErrDailyQuotaExceeded, strings.TrimSpace(string(bodyBytes)))
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var rpcResponse struct {
		Result *struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if rpcResponse.Error != nil {
		if isQuotaMessage(rpcResponse.Error.Message) {
			return "", fmt.Errorf("%w: %s", ErrDailyQuotaExceeded, rpcResponse.Error.Message)
		}
		return "", fmt.Errorf("gateway error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)
	}
	if rpcResponse.Result == nil || len(rpcResponse.Result.Content) == 0 {
		return "", fmt.Errorf("unexpected response format")
	}

	text := rpcResponse.Result.Content[0].Text
	if rpcResponse.Result.IsError {
		if isQuotaMessage(text) {
			return "", fmt.Errorf("%w: %s", ErrDailyQuotaExceeded, text)
		}
		return "", fmt.Errorf("gateway tool error: %s", text)
	}
	return text, nil
}

// extractCompletionText unwraps {"content": "..."} completions; anything
// else is returned as-is.
func extractCompletionText(output string) string {
	var completion struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(output), &completion); err != nil || completion.Content == nil {
		return strings.TrimSpace(output)
	}
	return strings.TrimSpace(*completion.Content)
}
