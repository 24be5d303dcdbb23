package recipe

import (
	"errors"
	"strings"

	"mcp-pantry/internal/ai"
)

type errorTexts struct {
	quota   string
	generic string
}

var localizedErrors = map[string]errorTexts{
	"en": {
		quota:   "You've reached today's recipe limit. Please try again tomorrow.",
		generic: "Sorry, I couldn't come up with a recipe right now. Please try again.",
	},
	"zh": {
		quota:   "今天的食谱生成次数已用完，请明天再试。",
		generic: "抱歉，暂时无法生成食谱，请稍后再试。",
	},
}

// ErrorMessage is the chat text shown for a failed generation.
func ErrorMessage(err error, language string) string {
	texts := localizedErrors[languageKey(language)]
	if errors.Is(err, ai.ErrDailyQuotaExceeded) {
		return texts.quota
	}
	return texts.generic
}

func languageKey(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if strings.HasPrefix(l, "zh") || l == "chinese" {
		return "zh"
	}
	return "en"
}
