// internal/models/recipe.go
package models

import "time"

type RecipeMode string

const (
	ModeUseExpiring RecipeMode = "use_expiring"
	ModeQuick       RecipeMode = "quick"
	ModeHealthy     RecipeMode = "healthy"
	ModeCustom      RecipeMode = "custom"
)

type RecipeRequest struct {
	Message  string     `json:"message"`
	Language string     `json:"language"`
	Mode     RecipeMode `json:"mode"`
	Servings int        `json:"servings,omitempty"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	IsError   bool      `json:"is_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
