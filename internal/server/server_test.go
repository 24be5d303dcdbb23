package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-pantry/internal/ai"
	"mcp-pantry/internal/models"
	"mcp-pantry/internal/recipe"
)

var testNow = time.Date(2025, 5, 10, 9, 0, 0, 0, time.Local)

type stubGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	block   bool
	started chan struct{}
	prompts []string
}

func (g *stubGenerator) GenerateRecipe(ctx context.Context, message, language string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, message)
	g.mu.Unlock()
	if g.started != nil {
		close(g.started)
	}
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.text, g.err
}

func newTestServer(t *testing.T, gen ai.Generator) (*PantryServer, *httptest.Server) {
	t.Helper()
	srv, err := NewPantryServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		DBPath: filepath.Join(t.TempDir(), "pantry.db"),
	}, gen, nil)
	require.NoError(t, err)
	srv.now = func() time.Time { return testNow }

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		// Stop first: it ends open MCP event streams that Close waits on.
		srv.Stop()
		ts.Close()
	})
	return srv, ts
}

func post(t *testing.T, ts *httptest.Server, name string, args map[string]interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// callTool invokes a tool, expects 200 and decodes the text payload into out.
func callTool(t *testing.T, ts *httptest.Server, name string, args map[string]interface{}, out interface{}) {
	t.Helper()
	resp := post(t, ts, name, args)
	require.Equal(t, http.StatusOK, resp.StatusCode, "tool %s", name)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), out))
	}
}

type itemResult struct {
	ID                  string     `json:"id"`
	GroupID             string     `json:"group_id"`
	Name                string     `json:"name"`
	Quantity            float64    `json:"quantity"`
	Unit                string     `json:"unit"`
	Category            string     `json:"category"`
	StorageLocation     string     `json:"storage_location"`
	ExpirationDate      *time.Time `json:"expiration_date"`
	FormattedQuantity   string     `json:"formatted_quantity"`
	Status              string     `json:"status"`
	DaysUntilExpiration *int       `json:"days_until_expiration"`
}

func TestHTTPErrors(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, post(t, ts, "order_pizza", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "add_food_item", map[string]interface{}{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "add_food_item", map[string]interface{}{
		"name": "Milk", "category": "candy",
	}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "add_food_item", map[string]interface{}{
		"name": "Milk", "purchase_date": "yesterday",
	}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "add_food_item", map[string]interface{}{
		"name": "Milk", "quantity": "lots",
	}).StatusCode)
	assert.Equal(t, http.StatusNotFound, post(t, ts, "delete_food_item", map[string]interface{}{"id": "nope"}).StatusCode)
	assert.Equal(t, http.StatusNotFound, post(t, ts, "delete_food_group", map[string]interface{}{"id": "nope"}).StatusCode)
}

func TestAddFoodItemFillsDefaults(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var item itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Milk", "quantity": 1, "unit": "L"}, &item)

	assert.NotEmpty(t, item.ID)
	assert.NotEmpty(t, item.GroupID)
	assert.Equal(t, "dairy", item.Category)
	assert.Equal(t, "refrigerator", item.StorageLocation)
	assert.Equal(t, "1 L", item.FormattedQuantity)
	require.NotNil(t, item.ExpirationDate)
	require.NotNil(t, item.DaysUntilExpiration)
	assert.Equal(t, 7, *item.DaysUntilExpiration)
	assert.Equal(t, "fresh", item.Status)

	var frozen itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Vanilla Ice Cream"}, &frozen)
	assert.Equal(t, "freezer", frozen.StorageLocation)
	assert.Equal(t, "frozen", frozen.Category)
}

func TestFoodGroupsAggregate(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var first, second itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Milk", "quantity": 1, "unit": "L"}, &first)
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Organic Milk", "quantity": 500, "unit": "ml"}, &second)
	assert.Equal(t, first.GroupID, second.GroupID)

	var groups []struct {
		ID             string       `json:"id"`
		BaseName       string       `json:"base_name"`
		PrimaryUnit    string       `json:"primary_unit"`
		TotalQuantity  float64      `json:"total_quantity"`
		FormattedTotal string       `json:"formatted_total"`
		Items          []itemResult `json:"items"`
	}
	callTool(t, ts, "list_food_groups", nil, &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, "milk", groups[0].BaseName)
	assert.Equal(t, 1500.0, groups[0].TotalQuantity)
	assert.Equal(t, "ml", groups[0].PrimaryUnit)
	assert.Equal(t, "1.5 L", groups[0].FormattedTotal)
	assert.Len(t, groups[0].Items, 2)

	callTool(t, ts, "delete_food_group", map[string]interface{}{"id": groups[0].ID}, nil)
	var items []itemResult
	callTool(t, ts, "list_food_items", nil, &items)
	assert.Empty(t, items)
}

func TestConsumeFoodItem(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var rice itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Rice", "quantity": 2, "unit": "kg"}, &rice)

	var out struct {
		Remaining          float64 `json:"remaining"`
		FormattedRemaining string  `json:"formatted_remaining"`
		Removed            bool    `json:"removed"`
	}
	callTool(t, ts, "consume_food_item", map[string]interface{}{"id": rice.ID, "quantity": 500, "unit": "g"}, &out)
	assert.InDelta(t, 1.5, out.Remaining, 1e-9)
	assert.Equal(t, "1.5 kg", out.FormattedRemaining)
	assert.False(t, out.Removed)

	assert.Equal(t, http.StatusBadRequest, post(t, ts, "consume_food_item", map[string]interface{}{
		"id": rice.ID, "quantity": 1, "unit": "cup",
	}).StatusCode)

	callTool(t, ts, "consume_food_item", map[string]interface{}{"id": rice.ID}, &out)
	assert.True(t, out.Removed)
	assert.Equal(t, http.StatusNotFound, post(t, ts, "consume_food_item", map[string]interface{}{"id": rice.ID}).StatusCode)

	var history []models.FoodHistoryRecord
	callTool(t, ts, "get_history", nil, &history)
	require.Len(t, history, 2)
	for _, rec := range history {
		assert.Equal(t, models.ActionConsumed, rec.Action)
		assert.Equal(t, "Rice", rec.FoodName)
	}
}

func TestConsumeUnknownUnitIgnoresCase(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var parsley itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Parsley", "quantity": 2, "unit": "Bunch"}, &parsley)

	var out struct {
		Remaining float64 `json:"remaining"`
	}
	callTool(t, ts, "consume_food_item", map[string]interface{}{"id": parsley.ID, "quantity": 1, "unit": "bunch"}, &out)
	assert.Equal(t, 1.0, out.Remaining)
}

func TestDeleteFoodItemRecordsAction(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var bread itemResult
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Bread"}, &bread)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "delete_food_item", map[string]interface{}{
		"id": bread.ID, "action": "eaten by dog",
	}).StatusCode)
	callTool(t, ts, "delete_food_item", map[string]interface{}{"id": bread.ID, "action": "discarded"}, nil)

	var history []models.FoodHistoryRecord
	callTool(t, ts, "get_history", map[string]interface{}{"limit": 10}, &history)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionDiscarded, history[0].Action)
}

func TestExpiringItems(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	soon := testNow.AddDate(0, 0, 3).Format("2006-01-02")
	later := testNow.AddDate(0, 0, 4).Format("2006-01-02")
	gone := testNow.AddDate(0, 0, -1).Format("2006-01-02")
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Yogurt", "expiration_date": soon}, nil)
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Cheese", "expiration_date": later}, nil)
	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Spinach", "expiration_date": gone}, nil)

	var items []itemResult
	callTool(t, ts, "expiring_items", nil, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "Spinach", items[0].Name)
	assert.Equal(t, "expired", items[0].Status)
	assert.Equal(t, "Yogurt", items[1].Name)
	assert.Equal(t, "expiring_soon", items[1].Status)

	callTool(t, ts, "expiring_items", map[string]interface{}{"days": 4}, &items)
	assert.Len(t, items, 3)
}

func TestRecommendAndFormat(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var rec struct {
		Category            string `json:"category"`
		StorageLocation     string `json:"storage_location"`
		ShelfLifeDays       int    `json:"shelf_life_days"`
		EstimatedExpiration string `json:"estimated_expiration"`
	}
	callTool(t, ts, "recommend_storage", map[string]interface{}{"name": "ice cream"}, &rec)
	assert.Equal(t, "freezer", rec.StorageLocation)
	assert.Equal(t, 60, rec.ShelfLifeDays)
	assert.Equal(t, testNow.AddDate(0, 0, 60).Format("2006-01-02"), rec.EstimatedExpiration)

	var formatted map[string]string
	callTool(t, ts, "format_quantity", map[string]interface{}{"quantity": 1500, "unit": "g"}, &formatted)
	assert.Equal(t, "1.5 kg", formatted["formatted"])
}

func TestShoppingRestock(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var bread, milk models.ShoppingListItem
	callTool(t, ts, "add_shopping_item", map[string]interface{}{"name": "Bread"}, &bread)
	callTool(t, ts, "add_shopping_item", map[string]interface{}{"name": "Milk", "quantity": 2, "unit": "L"}, &milk)
	assert.Equal(t, models.CategoryBakery, bread.Category)

	callTool(t, ts, "set_shopping_purchased", map[string]interface{}{"id": milk.ID, "purchased": true}, nil)

	var open []models.ShoppingListItem
	callTool(t, ts, "list_shopping_items", nil, &open)
	require.Len(t, open, 1)
	assert.Equal(t, bread.ID, open[0].ID)

	var added []itemResult
	callTool(t, ts, "restock_purchased", nil, &added)
	require.Len(t, added, 1)
	assert.Equal(t, "Milk", added[0].Name)
	assert.Equal(t, "refrigerator", added[0].StorageLocation)
	assert.Equal(t, "2 L", added[0].FormattedQuantity)

	var all []models.ShoppingListItem
	callTool(t, ts, "list_shopping_items", map[string]interface{}{"include_purchased": true}, &all)
	require.Len(t, all, 1)

	callTool(t, ts, "delete_shopping_item", map[string]interface{}{"id": bread.ID}, nil)
	assert.Equal(t, http.StatusNotFound, post(t, ts, "set_shopping_purchased", map[string]interface{}{"id": bread.ID}).StatusCode)
}

func TestFamilyMembers(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{})

	var member struct {
		ID            string `json:"id"`
		DailyCalories int    `json:"daily_calories"`
	}
	callTool(t, ts, "add_family_member", map[string]interface{}{
		"name": "Ana", "gender": "female", "age": 35, "height_cm": 165, "weight_kg": 60,
		"activity_level": "sedentary", "allergies": []string{"Peanuts", " "},
	}, &member)
	assert.Equal(t, 1634, member.DailyCalories)

	assert.Equal(t, http.StatusBadRequest, post(t, ts, "add_family_member", map[string]interface{}{
		"name": "Ghost", "gender": "female", "age": 300, "height_cm": 165, "weight_kg": 60,
		"activity_level": "sedentary",
	}).StatusCode)

	var family struct {
		Members            []json.RawMessage `json:"members"`
		TotalDailyCalories int               `json:"total_daily_calories"`
		Allergies          []string          `json:"allergies"`
	}
	callTool(t, ts, "list_family_members", nil, &family)
	assert.Len(t, family.Members, 1)
	assert.Equal(t, 1634, family.TotalDailyCalories)
	assert.Len(t, family.Allergies, 1)

	callTool(t, ts, "delete_family_member", map[string]interface{}{"id": member.ID}, nil)
	assert.Equal(t, http.StatusNotFound, post(t, ts, "delete_family_member", map[string]interface{}{"id": member.ID}).StatusCode)
}

type recipeResult struct {
	Cancelled bool                `json:"cancelled"`
	Message   *models.ChatMessage `json:"message"`
	Progress  recipe.Progress     `json:"progress"`
}

func TestGenerateRecipe(t *testing.T) {
	gen := &stubGenerator{text: "```markdown\nTomato egg stir-fry\n```"}
	_, ts := newTestServer(t, gen)

	callTool(t, ts, "add_food_item", map[string]interface{}{"name": "Tomato", "quantity": 3}, nil)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "generate_recipe", map[string]interface{}{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "generate_recipe", map[string]interface{}{"mode": "fancy"}).StatusCode)

	var out recipeResult
	callTool(t, ts, "generate_recipe", map[string]interface{}{"mode": "use_expiring", "language": "en"}, &out)
	require.NotNil(t, out.Message)
	assert.Equal(t, "Tomato egg stir-fry", out.Message.Text)
	assert.False(t, out.Message.IsError)
	assert.Equal(t, recipe.StageCompleted, out.Progress.Stage)
	assert.Equal(t, 1.0, out.Progress.Value)

	gen.mu.Lock()
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Tomato")
	gen.mu.Unlock()

	var chat struct {
		Messages []models.ChatMessage `json:"messages"`
		InFlight bool                 `json:"in_flight"`
	}
	callTool(t, ts, "recipe_chat", nil, &chat)
	require.Len(t, chat.Messages, 1, "preset modes add no empty user message")
	assert.Equal(t, models.RoleAssistant, chat.Messages[0].Role)

	callTool(t, ts, "generate_recipe", map[string]interface{}{"message": "something light"}, &out)
	callTool(t, ts, "recipe_chat", map[string]interface{}{"clear": true}, &chat)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, models.RoleUser, chat.Messages[1].Role)
	assert.Equal(t, "something light", chat.Messages[1].Text)
	assert.Equal(t, models.RoleAssistant, chat.Messages[2].Role)
	assert.False(t, chat.InFlight)

	callTool(t, ts, "recipe_chat", nil, &chat)
	assert.Empty(t, chat.Messages)
}

func TestGenerateRecipeQuotaError(t *testing.T) {
	gen := &stubGenerator{err: ai.ErrDailyQuotaExceeded}
	_, ts := newTestServer(t, gen)

	var out recipeResult
	callTool(t, ts, "generate_recipe", map[string]interface{}{"message": "dinner", "language": "en"}, &out)
	require.NotNil(t, out.Message)
	assert.True(t, out.Message.IsError)
	assert.Equal(t, recipe.ErrorMessage(ai.ErrDailyQuotaExceeded, "en"), out.Message.Text)
	assert.Equal(t, recipe.StageIdle, out.Progress.Stage)

	gen.err = errors.New("boom")
	callTool(t, ts, "generate_recipe", map[string]interface{}{"message": "dinner", "language": "zh"}, &out)
	assert.Equal(t, recipe.ErrorMessage(errors.New("boom"), "zh"), out.Message.Text)
}

func TestCancelRecipe(t *testing.T) {
	gen := &stubGenerator{block: true, started: make(chan struct{})}
	srv, ts := newTestServer(t, gen)

	done := make(chan recipeResult, 1)
	go func() {
		body, _ := json.Marshal(map[string]interface{}{
			"name":      "generate_recipe",
			"arguments": map[string]interface{}{"message": "soup"},
		})
		resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			done <- recipeResult{}
			return
		}
		defer resp.Body.Close()
		var result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		var out recipeResult
		if json.NewDecoder(resp.Body).Decode(&result) == nil && len(result.Content) == 1 {
			_ = json.Unmarshal([]byte(result.Content[0].Text), &out)
		}
		done <- out
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not start")
	}
	assert.True(t, srv.session.InFlight())
	assert.Equal(t, http.StatusConflict, post(t, ts, "generate_recipe", map[string]interface{}{"message": "more soup"}).StatusCode)

	var cancelled map[string]bool
	callTool(t, ts, "cancel_recipe", nil, &cancelled)
	assert.True(t, cancelled["cancelled"])

	select {
	case out := <-done:
		assert.True(t, out.Cancelled)
		assert.Nil(t, out.Message)
		assert.Equal(t, recipe.StageIdle, out.Progress.Stage)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled request did not return")
	}

	callTool(t, ts, "cancel_recipe", nil, &cancelled)
	assert.False(t, cancelled["cancelled"])
}

func TestProgressWebSocket(t *testing.T) {
	gen := &stubGenerator{text: "Pancakes"}
	_, ts := newTestServer(t, gen)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/recipe-progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var p recipe.Progress
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, recipe.StageIdle, p.Stage)

	callTool(t, ts, "generate_recipe", map[string]interface{}{"message": "breakfast"}, nil)

	var stages []recipe.Stage
	last := 0.0
	for p.Stage != recipe.StageCompleted {
		require.NoError(t, conn.ReadJSON(&p))
		assert.GreaterOrEqual(t, p.Value, last)
		last = p.Value
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}
	assert.Equal(t, []recipe.Stage{
		recipe.StagePreparing, recipe.StageAnalyzing, recipe.StageGenerating,
		recipe.StageFormatting, recipe.StageCompleted,
	}, stages)
	assert.Equal(t, 1.0, last)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(invalidParams("x")))
	assert.Equal(t, http.StatusConflict, statusFor(recipe.ErrRequestInFlight))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
}
