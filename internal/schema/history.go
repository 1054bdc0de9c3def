package schema

import "strings"

// DefaultHistoryWindow is the number of most recent messages rendered into
// prompt templates when no explicit window is configured.
const DefaultHistoryWindow = 10

// HistoryString renders messages as a "Human:"/"Assistant:" transcript, one
// line per message, oldest first. System messages are skipped; they are
// configuration, not conversation.
func HistoryString(msgs []ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			b.WriteString("Human: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// LastN returns the trailing n messages, or all of them when fewer exist.
func LastN(msgs []ChatMessage, n int) []ChatMessage {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
