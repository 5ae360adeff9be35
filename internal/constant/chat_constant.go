package constant

import "time"

const (
	// Title given to a conversation that has no user message yet.
	DefaultConversationTitle  = "New Chat"
	ConversationTitleMaxRunes = 50
	ConversationTitleEllipsis = "..."

	// Prefix of the assistant turn recorded when an exchange fails.
	AssistantErrorPrefix    = "❌ Error: "
	AssistantErrorFallback  = "Something went wrong. Please try again."
	AssistantCancelledReply = "Response cancelled."

	DefaultAnswerTimeout  = 120 * time.Second
	DefaultPersistTimeout = 10 * time.Second
	DefaultSessionIdleTTL = time.Hour
)

// Fixed follow-up suggestions offered after every successful answer.
var DefaultFollowUpSuggestions = []string{
	"Can you explain this in more detail?",
	"What are the key takeaways?",
	"Can you provide an example?",
}

const (
	EventConversationSaved   = "CONVERSATION_SAVED"
	EventConversationDeleted = "CONVERSATION_DELETED"
)

const (
	WsEventChunk          = "chunk"
	WsEventSnapshot       = "snapshot"
	WsEventHistoryChanged = "history_changed"
)
