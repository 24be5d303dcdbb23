// internal/models/shopping.go
package models

import (
	"fmt"
	"strings"
	"time"
)

type ShoppingListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
	Category  Category  `json:"category"`
	Purchased bool      `json:"purchased"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryAction string

const (
	ActionConsumed  HistoryAction = "consumed"
	ActionDiscarded HistoryAction = "discarded"
	ActionExpired   HistoryAction = "expired"
)

func ParseHistoryAction(s string) (HistoryAction, error) {
	switch a := HistoryAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionConsumed, ActionDiscarded, ActionExpired:
		return a, nil
	case "":
		return ActionConsumed, nil
	}
	return "", fmt.Errorf("unknown history action %q", s)
}

// FoodHistoryRecord is written when an item leaves the inventory.
type FoodHistoryRecord struct {
	ID         string        `json:"id"`
	FoodName   string        `json:"food_name"`
	Quantity   float64       `json:"quantity"`
	Unit       string        `json:"unit"`
	Category   Category      `json:"category"`
	Action     HistoryAction `json:"action"`
	RecordedAt time.Time     `json:"recorded_at"`
}
