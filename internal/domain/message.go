package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a live session transcript. Messages are
// immutable once appended.
type ChatMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	Time string `json:"time"`
}
