package chat

// Author identifies who wrote an entry.
type Author string

const (
	AuthorBot  Author = "bot"
	AuthorUser Author = "user"
)

// Entry is one message in the conversation.
type Entry struct {
	ID        int    `json:"id"`
	Author    Author `json:"author"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	UserImage string `json:"userImage"`
	Votes     int    `json:"votes"`
}

// QuoteReply builds the composer prefill used when replying to message.
func QuoteReply(message string) string {
	return "@" + message + ": "
}
