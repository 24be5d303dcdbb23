// Package ai wraps the text-generation services used for recipe
// recommendations. Callers only see the Generator interface.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrDailyQuotaExceeded is returned when the provider rejects a call
// because the account's daily quota is used up.
var ErrDailyQuotaExceeded = errors.New("daily quota exceeded")

type Generator interface {
	GenerateRecipe(ctx context.Context, message, language string) (string, error)
}

type Config struct {
	Provider string // "gemini" or "gateway"
	APIKey   string
	Model    string
	ProxyURL string
	Timeout  time.Duration
}

// NewGenerator picks the client for cfg.Provider.
func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, logger)
	case "gateway", "":
		return NewGatewayClient(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
}

// systemPrompt is shared by every provider.
func systemPrompt(language string) string {
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(`You are a home cooking assistant who plans meals from the food a family already has.

Recommend practical recipes, prefer ingredients that expire soon, and never use ingredients that any family member is allergic to.

For each recipe give a title, servings, total time, an ingredient list with quantities, numbered steps, and approximate calories per serving.

Respond in %s.`, languageName(language))
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "zh", "zh-hans", "zh-cn", "chinese":
		return "Simplified Chinese"
	case "en", "en-us", "english":
		return "English"
	}
	return code
}

func isQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
