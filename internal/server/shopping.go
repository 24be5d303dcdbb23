package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"mcp-pantry/internal/models"
)

type AddShoppingItemParams struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty" description:"Amount to buy (defaults to 1)"`
	Unit     string  `json:"unit,omitempty"`
	Category string  `json:"category,omitempty"`
}

type ListShoppingItemsParams struct {
	IncludePurchased bool `json:"include_purchased,omitempty"`
}

type SetShoppingPurchasedParams struct {
	ID        string `json:"id"`
	Purchased bool   `json:"purchased"`
}

type DeleteShoppingItemParams struct {
	ID string `json:"id"`
}

func (s *PantryServer) handleAddShoppingItem(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AddShoppingItemParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, invalidParams("name is required")
	}
	if params.Quantity < 0 {
		return nil, invalidParams("quantity must not be negative")
	}

	item := &models.ShoppingListItem{
		Name:     name,
		Quantity: params.Quantity,
		Unit:     strings.TrimSpace(params.Unit),
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if params.Category != "" {
		c, err := parseCategory(params.Category)
		if err != nil {
			return nil, err
		}
		item.Category = c
	} else {
		item.Category = s.classifier.Categorize(name)
	}
	if item.Unit == "" {
		item.Unit = s.classifier.DefaultUnit(name, item.Category)
	}

	if err := s.storage.SaveShoppingItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save shopping item: %w", err)
	}
	return s.createJSONResponse(item)
}

func (s *PantryServer) handleListShoppingItems(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListShoppingItemsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	items, err := s.storage.ListShoppingItems(ctx, params.IncludePurchased)
	if err != nil {
		return nil, fmt.Errorf("failed to list shopping items: %w", err)
	}
	if items == nil {
		items = []*models.ShoppingListItem{}
	}
	return s.createJSONResponse(items)
}

func (s *PantryServer) handleSetShoppingPurchased(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetShoppingPurchasedParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}

	if err := s.storage.SetShoppingPurchased(ctx, params.ID, params.Purchased); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{"id": params.ID, "purchased": params.Purchased})
}

func (s *PantryServer) handleDeleteShoppingItem(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DeleteShoppingItemParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}

	if err := s.storage.DeleteShoppingItem(ctx, params.ID); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{"deleted": true, "id": params.ID})
}

// handleRestockPurchased moves every purchased shopping entry into the
// inventory, with storage and expiration filled in from the rules.
func (s *PantryServer) handleRestockPurchased(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	items, err := s.storage.ListShoppingItems(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list shopping items: %w", err)
	}

	added := []itemView{}
	now := s.now()
	for _, entry := range items {
		if !entry.Purchased {
			continue
		}
		item, err := s.newFoodItem(AddFoodItemParams{
			Name:     entry.Name,
			Quantity: entry.Quantity,
			Unit:     entry.Unit,
			Category: string(entry.Category),
		})
		if err != nil {
			return nil, err
		}
		if err := s.storage.RestockShoppingItem(ctx, entry.ID, item); err != nil {
			return nil, fmt.Errorf("failed to restock %s: %w", entry.Name, err)
		}
		added = append(added, s.viewItem(item, now))
	}

	s.logger.Info("restocked purchased items", zap.Int("count", len(added)))
	return s.createJSONResponse(added)
}
