package server

import (
	"reflect"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"go.uber.org/zap"
)

// toolSpec describes one tool for both the plain HTTP endpoint and MCP
// clients. params is the zero value of the tool's argument struct, or nil.
type toolSpec struct {
	name        string
	description string
	params      interface{}
	handler     toolHandler
}

func (s *PantryServer) toolSpecs() []toolSpec {
	return []toolSpec{
		{"add_food_item", "Add a food item to the inventory. Category, storage location, unit and expiration are filled in from the name when omitted.", AddFoodItemParams{}, s.handleAddFoodItem},
		{"list_food_groups", "List food groups with their items and aggregated totals", nil, s.handleListFoodGroups},
		{"list_food_items", "List inventory items, soonest expiring first", ListFoodItemsParams{}, s.handleListFoodItems},
		{"delete_food_item", "Remove an item from the inventory", DeleteFoodItemParams{}, s.handleDeleteFoodItem},
		{"delete_food_group", "Remove a food group and every item in it", DeleteFoodGroupParams{}, s.handleDeleteFoodGroup},
		{"consume_food_item", "Use up part or all of an inventory item", ConsumeFoodItemParams{}, s.handleConsumeFoodItem},
		{"expiring_items", "List items that expire within the next few days", ExpiringItemsParams{}, s.handleExpiringItems},
		{"recommend_storage", "Recommend where to store a food and how long it keeps", RecommendStorageParams{}, s.handleRecommendStorage},
		{"format_quantity", "Format a quantity the way the inventory displays it", FormatQuantityParams{}, s.handleFormatQuantity},
		{"add_shopping_item", "Add an entry to the shopping list", AddShoppingItemParams{}, s.handleAddShoppingItem},
		{"list_shopping_items", "List the shopping list, open entries first", ListShoppingItemsParams{}, s.handleListShoppingItems},
		{"set_shopping_purchased", "Mark a shopping list entry as purchased or not", SetShoppingPurchasedParams{}, s.handleSetShoppingPurchased},
		{"delete_shopping_item", "Remove an entry from the shopping list", DeleteShoppingItemParams{}, s.handleDeleteShoppingItem},
		{"restock_purchased", "Move every purchased shopping entry into the inventory", nil, s.handleRestockPurchased},
		{"add_family_member", "Add or update a family member's dietary profile", AddFamilyMemberParams{}, s.handleAddFamilyMember},
		{"list_family_members", "List family members with daily calorie needs", nil, s.handleListFamilyMembers},
		{"delete_family_member", "Remove a family member", DeleteFamilyMemberParams{}, s.handleDeleteFamilyMember},
		{"get_history", "List consumed, discarded and expired food, newest first", GetHistoryParams{}, s.handleGetHistory},
		{"generate_recipe", "Suggest a recipe for the family from the current inventory", GenerateRecipeParams{}, s.handleGenerateRecipe},
		{"cancel_recipe", "Cancel the recipe request in progress", nil, s.handleCancelRecipe},
		{"recipe_chat", "Show the recipe conversation and generation progress", RecipeChatParams{}, s.handleRecipeChat},
	}
}

// mcpToolHandler adapts a tool for go-mcp. go-mcp handlers carry no
// context, so calls run under the server's lifetime context. Failures are
// reported as error results so the client can show them.
func (s *PantryServer) mcpToolHandler(name string, handler toolHandler) server.ToolHandlerFunc {
	return func(req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
		result, err := handler(s.baseCtx, req)
		if err != nil {
			if statusFor(err) >= 500 {
				s.logger.Error("mcp tool failed", zap.String("tool", name), zap.Error(err))
			}
			return &protocol.CallToolResult{
				Content: []protocol.Content{
					protocol.TextContent{
						Type: "text",
						Text: err.Error(),
					},
				},
				IsError: true,
			}, nil
		}
		return result, nil
	}
}

// inputSchema builds a JSON schema from a parameter struct's json and
// description tags. Fields without omitempty are required.
func inputSchema(params interface{}) protocol.InputSchema {
	schema := protocol.InputSchema{
		Type:       protocol.Object,
		Properties: map[string]interface{}{},
	}
	if params == nil {
		return schema
	}

	t := reflect.TypeOf(params)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		prop := map[string]interface{}{"type": jsonType(field.Type)}
		if field.Type.Kind() == reflect.Slice {
			prop["items"] = map[string]interface{}{"type": jsonType(field.Type.Elem())}
		}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		schema.Properties[name] = prop

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return "string"
}
