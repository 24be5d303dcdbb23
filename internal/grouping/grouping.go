// Package grouping clusters inventory entries that name the same food,
// e.g. several purchases of "apples", "Organic Apple" and "apple".
package grouping

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"mcp-pantry/internal/models"
)

// SimilarityThreshold is the minimum normalized edit similarity for two
// base names to share a group.
const SimilarityThreshold = 0.8

var descriptors = map[string]bool{
	"fresh": true, "organic": true, "large": true, "small": true, "medium": true,
	"whole": true, "raw": true, "ripe": true, "free-range": true, "free": true,
	"range": true, "frozen": true, "chilled": true, "sliced": true, "diced": true,
	"chopped": true, "baby": true, "extra": true, "premium": true, "local": true,
	"pack": true, "bag": true, "of": true, "the": true, "a": true,
	"green": true, "red": true, "yellow": true, "white": true, "brown": true,
}

var cjkDescriptors = []string{"新鲜", "有机", "进口", "冷冻", "冰鲜", "特级", "散装"}

// NormalizeBaseName reduces a food name to the token used for grouping:
// lower-case, descriptors and punctuation removed, plurals folded.
func NormalizeBaseName(name string) string {
	name = strings.ToLower(name)
	for _, d := range cjkDescriptors {
		if trimmed := strings.ReplaceAll(name, d, ""); strings.TrimSpace(trimmed) != "" {
			name = trimmed
		}
	}

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-')
	})

	var kept []string
	for _, f := range fields {
		if descriptors[f] {
			continue
		}
		kept = append(kept, singular(f))
	}
	if len(kept) == 0 {
		// Name consisted only of descriptors; keep them rather than return "".
		for _, f := range fields {
			kept = append(kept, singular(f))
		}
	}
	return strings.Join(kept, " ")
}

func singular(w string) string {
	switch {
	case len(w) <= 3 || !isASCII(w):
		return w
	case strings.HasSuffix(w, "ies"):
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "oes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Similar reports whether two normalized base names belong together:
// equal names, a CJK name ending in the other (土鸡蛋 / 鸡蛋), or a spelling
// variant that only adds or drops letters (yoghurt / yogurt).
func Similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if headMatch(a, b) || headMatch(b, a) {
		return true
	}
	return spellingVariant(a, b)
}

// minHeadRunes keeps single characters such as 鸡 or 油 from absorbing
// 鸡蛋 or 酱油.
const minHeadRunes = 2

// headMatch reports whether long is short with a qualifier in front. Only
// CJK names qualify; English qualifiers are handled as descriptors so that
// "peanut butter" and "butter" stay apart.
func headMatch(long, short string) bool {
	if isASCII(long) || isASCII(short) {
		return false
	}
	if utf8.RuneCountInString(short) < minHeadRunes {
		return false
	}
	return strings.HasSuffix(long, short)
}

// minVariantRunes is the shortest name a spelling variant may match, so
// "corn" never joins "acorn".
const minVariantRunes = 5

// spellingVariant accepts names within SimilarityThreshold whose only
// edits are inserted or dropped letters. Substitutions ("butter" /
// "batter", "milk" / "silk") name different foods.
func spellingVariant(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	shorter, diff := len(ra), len(rb)-len(ra)
	if diff < 0 {
		shorter, diff = len(rb), -diff
	}
	if shorter < minVariantRunes {
		return false
	}
	if Similarity(a, b) < SimilarityThreshold {
		return false
	}
	return levenshtein(ra, rb) == diff
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// FindGroup returns the existing group an item with this name and category
// should join. Groups of another category never match. Exact base-name
// matches beat fuzzy ones.
func FindGroup(groups []*models.FoodGroup, name string, category models.Category) *models.FoodGroup {
	base := NormalizeBaseName(name)
	var fuzzy *models.FoodGroup
	for _, g := range groups {
		if g.Category != category {
			continue
		}
		if g.BaseName == base {
			return g
		}
		if fuzzy == nil && Similar(g.BaseName, base) {
			fuzzy = g
		}
	}
	return fuzzy
}

// Assign places item into a matching group or a new one, recomputes the
// group totals and returns the group with whether it was created.
func Assign(groups []*models.FoodGroup, item *models.FoodItem) (*models.FoodGroup, bool) {
	g := FindGroup(groups, item.Name, item.Category)
	created := false
	if g == nil {
		g = &models.FoodGroup{
			ID:        uuid.NewString(),
			BaseName:  NormalizeBaseName(item.Name),
			Category:  item.Category,
			CreatedAt: time.Now().UTC(),
		}
		created = true
	}
	item.GroupID = g.ID
	g.Items = append(g.Items, item)
	g.Recompute()
	return g, created
}

// GroupItems builds groups for a batch of items, preserving input order.
func GroupItems(items []*models.FoodItem) []*models.FoodGroup {
	var groups []*models.FoodGroup
	for _, item := range items {
		g, created := Assign(groups, item)
		if created {
			groups = append(groups, g)
		}
	}
	return groups
}
