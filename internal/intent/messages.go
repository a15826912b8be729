package intent

import (
	"fmt"
	"strings"
)

// responses holds the user-facing failure and confirmation texts per
// language. Session language selects the table; unknown languages fall back
// to English.
var responses = map[string]map[string]string{
	"ru": {
		"no_handler":          "Я не знаю, как выполнить «%s».",
		"handler_unavailable": "Навык «%s» сейчас недоступен.",
		"no_active_actions":   "Сейчас нет активных действий.",
		"no_capable_handlers": "Ни одно из активных действий не поддерживает «%s».",
		"confirm_target":      "Что именно: %s?",
		"execution_error":     "Не получилось выполнить команду.",
	},
	"en": {
		"no_handler":          "I don't know how to handle \"%s\".",
		"handler_unavailable": "The \"%s\" skill is unavailable right now.",
		"no_active_actions":   "There is nothing running right now.",
		"no_capable_handlers": "None of the running actions support \"%s\".",
		"confirm_target":      "Which one: %s?",
		"execution_error":     "Something went wrong executing the command.",
	},
}

// respond formats the response text for the given key in the session
// language.
func respond(lang, key string, args ...any) string {
	table, ok := responses[lang]
	if !ok {
		table = responses["en"]
	}
	msg, ok := table[key]
	if !ok {
		msg = responses["en"][key]
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// joinChoices renders a candidate list for a confirmation prompt:
// "audio или timer" in Russian, "audio or timer" in English.
func joinChoices(lang string, items []string) string {
	sep := " or "
	if lang == "ru" {
		sep = " или "
	}
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + sep + items[len(items)-1]
	}
}
