package chat

import (
	"sort"
	"strings"
)

// ConversationSeparator joins the two participant ids of a conversation id.
const ConversationSeparator = "_"

// ConversationID derives the id of the 1:1 conversation between a and b.
// It is independent of argument order, so both participants converge on the same log
// without coordination. A conversation has no lifecycle of its own: it exists once its
// first message is appended.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ConversationSeparator)
}

// Topic is the pub/sub topic carrying live appends of a conversation.
func Topic(conversationID string) string {
	return "conversation:" + conversationID
}
