package chat

// Snapshot is a read-only view of the session state handed to the
// presentation layer.
type Snapshot struct {
	Messages   []Message `json:"messages"`
	Busy       bool      `json:"busy"`
	State      string    `json:"state"`
	Version    int64     `json:"version"`
	TokenCount int       `json:"tokenCount"`
}

// DefaultGreeting seeds every new session.
const DefaultGreeting = "Hello there! How can I help you today?\n\nI'm ready to answer questions, help with writing, brainstorm ideas, or just chat. What's on your mind?"
