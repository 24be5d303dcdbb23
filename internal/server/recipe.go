package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-pantry/internal/models"
	"mcp-pantry/internal/recipe"
)

type GenerateRecipeParams struct {
	Message  string `json:"message,omitempty" description:"What the family wants to eat"`
	Language string `json:"language,omitempty" description:"Response language, e.g. en or zh (defaults to en)"`
	Mode     string `json:"mode,omitempty" description:"use_expiring, quick, healthy or custom"`
	Servings int    `json:"servings,omitempty"`
}

type RecipeChatParams struct {
	Clear bool `json:"clear,omitempty" description:"Drop the chat history after returning it"`
}

func parseMode(value string) (models.RecipeMode, error) {
	switch m := models.RecipeMode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return models.ModeCustom, nil
	case models.ModeUseExpiring, models.ModeQuick, models.ModeHealthy, models.ModeCustom:
		return m, nil
	}
	return "", invalidParams("unknown recipe mode %q", value)
}

// handleGenerateRecipe blocks until the recipe is ready. Progress is pushed
// to /ws/recipe-progress meanwhile.
func (s *PantryServer) handleGenerateRecipe(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GenerateRecipeParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	mode, err := parseMode(params.Mode)
	if err != nil {
		return nil, err
	}
	if mode == models.ModeCustom && strings.TrimSpace(params.Message) == "" {
		return nil, invalidParams("message is required for custom requests")
	}
	if params.Servings < 0 {
		return nil, invalidParams("servings must not be negative")
	}
	if params.Language == "" {
		params.Language = "en"
	}

	family, err := s.familyProfile(ctx)
	if err != nil {
		return nil, err
	}
	inventory, err := s.storage.ListFoodItems(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list food items: %w", err)
	}

	msg, err := s.session.Generate(ctx, recipe.PromptInput{
		Request: models.RecipeRequest{
			Message:  params.Message,
			Language: params.Language,
			Mode:     mode,
			Servings: params.Servings,
		},
		Family:    family,
		Inventory: inventory,
		Now:       s.now(),
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return s.createJSONResponse(map[string]interface{}{
			"cancelled": true,
			"progress":  s.session.Progress(),
		})
	}
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(map[string]interface{}{
		"message":  msg,
		"progress": s.session.Progress(),
	})
}

func (s *PantryServer) handleCancelRecipe(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	return s.createJSONResponse(map[string]bool{"cancelled": s.session.Cancel()})
}

func (s *PantryServer) handleRecipeChat(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RecipeChatParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	messages := s.session.Messages()
	if params.Clear {
		s.session.ClearMessages()
	}
	return s.createJSONResponse(map[string]interface{}{
		"messages":  messages,
		"in_flight": s.session.InFlight(),
		"progress":  s.session.Progress(),
	})
}
