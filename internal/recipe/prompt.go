// Package recipe assembles recipe prompts from family and inventory state
// and drives a generation request through its loading stages.
package recipe

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mcp-pantry/internal/models"
)

type PromptInput struct {
	Request   models.RecipeRequest
	Family    *models.FamilyProfile
	Inventory []*models.FoodItem
	Now       time.Time
}

var modeInstructions = map[models.RecipeMode]string{
	models.ModeUseExpiring: "Suggest recipes that use up the ingredients expiring soonest.",
	models.ModeQuick:       "Suggest recipes that take 30 minutes or less from start to table.",
	models.ModeHealthy:     "Suggest balanced, nutritious recipes that fit the family's daily calorie needs.",
	models.ModeCustom:      "Follow the family's request below.",
}

// BuildPrompt renders the instruction text sent to the generator. Output is
// deterministic for a given input.
func BuildPrompt(in PromptInput) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	var b strings.Builder

	family := in.Family
	if family == nil {
		family = &models.FamilyProfile{}
	}
	if len(family.Members) > 0 {
		b.WriteString("Family profile:\n")
		for _, m := range family.Members {
			fmt.Fprintf(&b, "- %s: %s, %d years, %.0f cm, %.0f kg, %s activity, about %d kcal/day",
				m.Name, m.Gender, m.Age, m.HeightCm, m.WeightKg,
				strings.ReplaceAll(string(m.ActivityLevel), "_", " "), m.DailyCalories())
			if len(m.DietaryRestrictions) > 0 {
				fmt.Fprintf(&b, "; diet: %s", strings.Join(m.DietaryRestrictions, ", "))
			}
			if len(m.Allergies) > 0 {
				fmt.Fprintf(&b, "; allergies: %s", strings.Join(m.Allergies, ", "))
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Total daily energy need: %d kcal.\n", family.TotalDailyCalories())
		if allergies := family.Allergies(); len(allergies) > 0 {
			fmt.Fprintf(&b, "Never use these allergens: %s.\n", strings.Join(allergies, ", "))
		}
		if restrictions := family.DietaryRestrictions(); len(restrictions) > 0 {
			fmt.Fprintf(&b, "Respect these dietary restrictions: %s.\n", strings.Join(restrictions, ", "))
		}
		b.WriteString("\n")
	}

	items := usableItems(in.Inventory, now)
	if len(items) > 0 {
		b.WriteString("Available ingredients (soonest to expire first):\n")
		var expiring []string
		for _, item := range items {
			fmt.Fprintf(&b, "- %s: %s, %s", item.Name, item.FormattedQuantity(), item.StorageLocation)
			if days, ok := item.DaysUntilExpiration(now); ok {
				fmt.Fprintf(&b, ", expires in %d days", days)
				if item.Status(now) == models.StatusExpiringSoon {
					expiring = append(expiring, item.Name)
				}
			}
			b.WriteString("\n")
		}
		if len(expiring) > 0 {
			fmt.Fprintf(&b, "Use these first because they expire soon: %s.\n", strings.Join(expiring, ", "))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("The inventory is empty; suggest recipes with common staple ingredients.\n\n")
	}

	mode := in.Request.Mode
	if _, ok := modeInstructions[mode]; !ok {
		mode = models.ModeCustom
	}
	fmt.Fprintf(&b, "Task: %s\n", modeInstructions[mode])

	servings := in.Request.Servings
	if servings <= 0 {
		servings = len(family.Members)
	}
	if servings <= 0 {
		servings = 2
	}
	fmt.Fprintf(&b, "Servings: %d\n", servings)

	if msg := strings.TrimSpace(in.Request.Message); msg != "" {
		fmt.Fprintf(&b, "Request: %s\n", msg)
	}
	return b.String()
}

// usableItems drops expired items and orders the rest by expiration date,
// undated items last by name.
func usableItems(inventory []*models.FoodItem, now time.Time) []*models.FoodItem {
	out := make([]*models.FoodItem, 0, len(inventory))
	for _, item := range inventory {
		if item.IsExpired(now) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpirationDate, out[j].ExpirationDate
		switch {
		case a != nil && b != nil:
			if !a.Equal(*b) {
				return a.Before(*b)
			}
			return out[i].Name < out[j].Name
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return out[i].Name < out[j].Name
	})
	return out
}
