// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"mcp-pantry/internal/models"
	"mcp-pantry/internal/units"
)

type AddFoodItemParams struct {
	Name            string  `json:"name" description:"Name of the food"`
	Quantity        float64 `json:"quantity,omitempty" description:"Amount (defaults to 1)"`
	Unit            string  `json:"unit,omitempty" description:"Unit; suggested from the name when empty"`
	Category        string  `json:"category,omitempty" description:"Category; detected from the name when empty"`
	StorageLocation string  `json:"storage_location,omitempty" description:"freezer, refrigerator or pantry; recommended when empty"`
	PurchaseDate    string  `json:"purchase_date,omitempty" description:"YYYY-MM-DD or RFC3339 (defaults to now)"`
	ExpirationDate  string  `json:"expiration_date,omitempty" description:"YYYY-MM-DD or RFC3339; estimated when empty"`
	ImagePath       string  `json:"image_path,omitempty" description:"Path of a photo of the item"`
}

type ListFoodItemsParams struct {
	StorageLocation string `json:"storage_location,omitempty" description:"Only items stored here"`
}

type DeleteFoodItemParams struct {
	ID     string `json:"id"`
	Action string `json:"action,omitempty" description:"discarded or expired; records history when set"`
}

type DeleteFoodGroupParams struct {
	ID string `json:"id"`
}

type ConsumeFoodItemParams struct {
	ID       string  `json:"id"`
	Quantity float64 `json:"quantity,omitempty" description:"Amount used; the whole item when zero"`
	Unit     string  `json:"unit,omitempty" description:"Unit of quantity (defaults to the item's unit)"`
}

type ExpiringItemsParams struct {
	Days int `json:"days,omitempty" description:"Look-ahead window in days (defaults to 3)"`
}

type RecommendStorageParams struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type FormatQuantityParams struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// itemView adds the display fields clients need.
type itemView struct {
	*models.FoodItem
	FormattedQuantity   string                  `json:"formatted_quantity"`
	Status              models.ExpirationStatus `json:"status"`
	DaysUntilExpiration *int                    `json:"days_until_expiration,omitempty"`
}

type groupView struct {
	ID                 string          `json:"id"`
	BaseName           string          `json:"base_name"`
	Category           models.Category `json:"category"`
	PrimaryUnit        string          `json:"primary_unit"`
	TotalQuantity      float64         `json:"total_quantity"`
	FormattedTotal     string          `json:"formatted_total"`
	EarliestExpiration *time.Time      `json:"earliest_expiration,omitempty"`
	Items              []itemView      `json:"items"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return invalidParams("failed to marshal arguments: %v", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return invalidParams("failed to unmarshal parameters: %v", err)
	}

	return nil
}

func (s *PantryServer) registerTools() {
	specs := s.toolSpecs()
	s.tools = make(map[string]toolHandler, len(specs))
	names := make([]string, 0, len(specs))
	for _, t := range specs {
		s.tools[t.name] = t.handler
		s.server.RegisterTool(&protocol.Tool{
			Name:        t.name,
			Description: t.description,
			InputSchema: inputSchema(t.params),
		}, s.mcpToolHandler(t.name, t.handler))
		names = append(names, t.name)
	}

	sort.Strings(names)
	s.logger.Debug("registered tools", zap.Strings("tools", names))
}

func (s *PantryServer) viewItem(item *models.FoodItem, now time.Time) itemView {
	v := itemView{
		FoodItem:          item,
		FormattedQuantity: item.FormattedQuantity(),
		Status:            item.Status(now),
	}
	if days, ok := item.DaysUntilExpiration(now); ok {
		v.DaysUntilExpiration = &days
	}
	return v
}

func (s *PantryServer) viewItems(items []*models.FoodItem) []itemView {
	now := s.now()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, s.viewItem(item, now))
	}
	return views
}

// parseDate accepts a calendar date, read in local time, or an RFC3339
// timestamp.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, invalidParams("invalid date %q, want YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

func parseCategory(value string) (models.Category, error) {
	c, err := models.ParseCategory(value)
	if err != nil {
		return "", invalidParams("%v", err)
	}
	return c, nil
}

// newFoodItem fills what the caller left out from the classification rules.
func (s *PantryServer) newFoodItem(p AddFoodItemParams) (*models.FoodItem, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, invalidParams("name is required")
	}
	if p.Quantity < 0 {
		return nil, invalidParams("quantity must not be negative")
	}

	item := &models.FoodItem{
		Name:      name,
		Quantity:  p.Quantity,
		Unit:      strings.TrimSpace(p.Unit),
		ImagePath: p.ImagePath,
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}

	if p.Category != "" {
		c, err := parseCategory(p.Category)
		if err != nil {
			return nil, err
		}
		item.Category = c
	} else {
		item.Category = s.classifier.Categorize(name)
	}

	if p.StorageLocation != "" {
		loc, err := models.ParseStorageLocation(p.StorageLocation)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		item.StorageLocation = loc
	} else {
		item.StorageLocation = s.classifier.RecommendStorageLocation(name, item.Category)
	}

	if item.Unit == "" {
		item.Unit = s.classifier.DefaultUnit(name, item.Category)
	}

	item.PurchaseDate = s.now()
	if p.PurchaseDate != "" {
		t, err := parseDate(p.PurchaseDate)
		if err != nil {
			return nil, err
		}
		item.PurchaseDate = t
	}

	if p.ExpirationDate != "" {
		t, err := parseDate(p.ExpirationDate)
		if err != nil {
			return nil, err
		}
		item.ExpirationDate = &t
	} else {
		t := s.classifier.EstimateExpiration(name, item.Category, item.StorageLocation, item.PurchaseDate)
		item.ExpirationDate = &t
	}
	return item, nil
}

func (s *PantryServer) handleAddFoodItem(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AddFoodItemParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	item, err := s.newFoodItem(params)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveFoodItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save food item: %w", err)
	}
	s.logger.Info("food item added",
		zap.String("id", item.ID),
		zap.String("name", item.Name),
		zap.String("group_id", item.GroupID))

	return s.createJSONResponse(s.viewItem(item, s.now()))
}

func (s *PantryServer) handleListFoodGroups(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	groups, err := s.storage.ListFoodGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list food groups: %w", err)
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{
			ID:                 g.ID,
			BaseName:           g.BaseName,
			Category:           g.Category,
			PrimaryUnit:        g.PrimaryUnit,
			TotalQuantity:      g.TotalQuantity,
			FormattedTotal:     g.FormattedTotal(),
			EarliestExpiration: g.EarliestExpiration(),
			Items:              s.viewItems(g.Items),
		})
	}
	return s.createJSONResponse(views)
}

func (s *PantryServer) handleListFoodItems(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListFoodItemsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	var location models.StorageLocation
	if params.StorageLocation != "" {
		loc, err := models.ParseStorageLocation(params.StorageLocation)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		location = loc
	}

	items, err := s.storage.ListFoodItems(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to list food items: %w", err)
	}
	return s.createJSONResponse(s.viewItems(items))
}

func (s *PantryServer) handleDeleteFoodItem(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DeleteFoodItemParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}

	var action models.HistoryAction
	if params.Action != "" {
		a, err := models.ParseHistoryAction(params.Action)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		action = a
	}

	item, err := s.storage.GetFoodItem(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if err := s.storage.DeleteFoodItem(ctx, params.ID); err != nil {
		return nil, fmt.Errorf("failed to delete food item: %w", err)
	}
	if action != "" {
		s.recordHistory(ctx, item, item.Quantity, action)
	}

	return s.createJSONResponse(map[string]interface{}{"deleted": true, "id": params.ID})
}

func (s *PantryServer) handleDeleteFoodGroup(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DeleteFoodGroupParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}

	if err := s.storage.DeleteFoodGroup(ctx, params.ID); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{"deleted": true, "id": params.ID})
}

// handleConsumeFoodItem lowers an item's quantity, removing it when nothing
// is left, and records the use in history.
func (s *PantryServer) handleConsumeFoodItem(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ConsumeFoodItemParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}
	if params.Quantity < 0 {
		return nil, invalidParams("quantity must not be negative")
	}

	item, err := s.storage.GetFoodItem(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	used := params.Quantity
	if used == 0 {
		used = item.Quantity
	} else if params.Unit != "" && units.Canonical(params.Unit) != units.Canonical(item.Unit) {
		converted, ok := units.Convert(params.Quantity, params.Unit, item.Unit)
		if !ok {
			return nil, invalidParams("cannot convert %s to %s", params.Unit, item.Unit)
		}
		used = converted
	}

	remaining := item.Quantity - used
	if remaining <= 1e-9 {
		used = item.Quantity
		remaining = 0
		if err := s.storage.DeleteFoodItem(ctx, item.ID); err != nil {
			return nil, fmt.Errorf("failed to delete food item: %w", err)
		}
	} else if err := s.storage.UpdateFoodQuantity(ctx, item.ID, remaining); err != nil {
		return nil, fmt.Errorf("failed to update food item: %w", err)
	}

	s.recordHistory(ctx, item, used, models.ActionConsumed)

	return s.createJSONResponse(map[string]interface{}{
		"id":                  item.ID,
		"consumed":            units.FormatQuantityWithUnit(used, item.Unit),
		"remaining":           remaining,
		"formatted_remaining": units.FormatQuantityWithUnit(remaining, item.Unit),
		"removed":             remaining == 0,
	})
}

// recordHistory is best effort; the inventory change already happened.
func (s *PantryServer) recordHistory(ctx context.Context, item *models.FoodItem, quantity float64, action models.HistoryAction) {
	rec := &models.FoodHistoryRecord{
		FoodName: item.Name,
		Quantity: quantity,
		Unit:     item.Unit,
		Category: item.Category,
		Action:   action,
	}
	if err := s.storage.AddHistory(ctx, rec); err != nil {
		s.logger.Warn("failed to record history",
			zap.String("item_id", item.ID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (s *PantryServer) handleExpiringItems(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ExpiringItemsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Days < 0 {
		return nil, invalidParams("days must not be negative")
	}
	if params.Days == 0 {
		params.Days = models.ExpiringSoonDays
	}

	// Everything expiring on or before the last day of the window.
	now := s.now()
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d+params.Days+1, 0, 0, 0, 0, now.Location()).Add(-time.Nanosecond)

	items, err := s.storage.ExpiringItems(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring items: %w", err)
	}
	return s.createJSONResponse(s.viewItems(items))
}

func (s *PantryServer) handleRecommendStorage(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RecommendStorageParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, invalidParams("name is required")
	}

	var category models.Category
	if params.Category != "" {
		c, err := parseCategory(params.Category)
		if err != nil {
			return nil, err
		}
		category = c
	}

	c := s.classifier.Classify(params.Name, category)
	expires := s.classifier.EstimateExpiration(c.Name, c.Category, c.StorageLocation, s.now())
	return s.createJSONResponse(map[string]interface{}{
		"name":                 c.Name,
		"category":             c.Category,
		"storage_location":     c.StorageLocation,
		"shelf_life_days":      c.ShelfLifeDays,
		"default_unit":         c.DefaultUnit,
		"estimated_expiration": expires.Format("2006-01-02"),
	})
}

func (s *PantryServer) handleFormatQuantity(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params FormatQuantityParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]string{
		"formatted": units.FormatQuantityWithUnit(params.Quantity, params.Unit),
	})
}
