package history

import (
	"strings"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/entity"
)

// Title derives a conversation title from its first user message: trimmed,
// newlines flattened to spaces, cut to 50 characters with an ellipsis.
func Title(messages []entity.Message) string {
	for _, m := range messages {
		if m.Role != entity.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		text = strings.ReplaceAll(text, "\r\n", " ")
		text = strings.ReplaceAll(text, "\n", " ")

		runes := []rune(text)
		if len(runes) > constant.ConversationTitleMaxRunes {
			return string(runes[:constant.ConversationTitleMaxRunes]) + constant.ConversationTitleEllipsis
		}
		if text == "" {
			return constant.DefaultConversationTitle
		}
		return text
	}
	return constant.DefaultConversationTitle
}
